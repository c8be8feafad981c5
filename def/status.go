package def

import (
	"time"

	"go.polydawn.net/cohort/nn"
)

type ProjectStatus struct {
	ProjectID        ProjectID     `json:"projectId"`
	ProjectType      ProjectType   `json:"projectType"`
	Title            string        `json:"title"`
	AvailableJobsNum int           `json:"availableJobsNum"`
	JobsLength       int           `json:"jobsLength"`
	CompletedJobs    int           `json:"completedJobs"`
	Workers          []WorkerID    `json:"workers"`
	FinalResult      interface{}   `json:"finalResult,omitempty"`
	Complete         bool          `json:"complete"`
	ProjectTime      time.Duration `json:"projectTime,omitempty"` // from creation to completion.
	Epoch            int           `json:"epoch,omitempty"`
	Failure          string        `json:"failure,omitempty"`
}

type WorkerStatus struct {
	WorkerID    WorkerID  `json:"workerId"`
	ProjectID   ProjectID `json:"projectId"`
	MaxJobs     int       `json:"maxJobs"`
	CurrentJobs []JobID   `json:"currentJobs"`
	IsBusy      bool      `json:"isBusy"`
}

/*
	The persisted subset of a project: enough to rebuild it after a
	coordinator restart without losing work already reported.

	Jobs in flight are not persisted; they're simply handed out again.
*/
type ProjectRecord struct {
	ProjectID     ProjectID      `json:"projectId"`
	ProjectType   ProjectType    `json:"projectType"`
	Title         string         `json:"title"`
	Complete      bool           `json:"complete"`
	CreatedAt     time.Time      `json:"createdAt"`
	ProjectTime   time.Duration  `json:"projectTime,omitempty"`
	Options       ProjectOptions `json:"options"`
	CompletedJobs []*Job         `json:"completedJobs,omitempty"`
	FinalResult   interface{}    `json:"finalResult,omitempty"`
	Failure       string         `json:"failure,omitempty"`

	// ANN projects resume from the last reconciled network.
	Network    *nn.Network  `json:"network,omitempty"`
	Epoch      int          `json:"epoch,omitempty"`
	Generation int          `json:"generation,omitempty"` // last partitioning of the epoch handed out.
	History    []EpochScore `json:"history,omitempty"`
}

// Test error of the reconciled network at the end of one epoch.
type EpochScore struct {
	Epoch int     `json:"epoch"`
	Error float64 `json:"error"`
}

// The final result of an ANN project.
type ANNResult struct {
	Network *nn.Network  `json:"network"`
	Error   float64      `json:"error"`
	Epochs  int          `json:"epochs"`
	History []EpochScore `json:"history"`
}
