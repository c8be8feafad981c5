package def

import (
	"fmt"
	"strconv"
	"strings"
)

// Type defs just to make it hard to accidentally get ids crossed.
type (
	ProjectID string
	WorkerID  string // the transport session id of the participant.
	JobID     int
)

const projectIDPrefix = "project"

func ProjectIDFor(seq int) ProjectID {
	return ProjectID(fmt.Sprintf("%s%d", projectIDPrefix, seq))
}

/*
	Recover the sequence number from an id issued by `ProjectIDFor`.
	Returns false for ids of any other shape.
*/
func (id ProjectID) Seq() (int, bool) {
	s := string(id)
	if !strings.HasPrefix(s, projectIDPrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(s[len(projectIDPrefix):])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

type ProjectType string

const (
	ProjectTypeDefault ProjectType = "default"
	ProjectTypeANN     ProjectType = "ANN"
)

func (t ProjectType) Normalize() ProjectType {
	if t == "" {
		return ProjectTypeDefault
	}
	return t
}
