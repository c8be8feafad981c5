package dispatcher

import (
	"github.com/spacemonkeygo/errors"
)

var Error *errors.ErrorClass = errors.NewClass("DispatchError")

var (
	// Every slot is busy and the backlog is full.
	QueueFullError *errors.ErrorClass = Error.NewClass("QueueFullError")

	// The dispatcher has been closed.
	ClosedError *errors.ErrorClass = Error.NewClass("ClosedError")
)
