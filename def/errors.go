package def

import (
	"github.com/spacemonkeygo/errors"
)

/*
	Base class of every anomaly the coordinator recognizes.  None of
	these are fatal: they're logged, the offending event is dropped, and
	everything else keeps running.
*/
var Error *errors.ErrorClass = errors.NewClass("CohortError")

/*
	Validation error is a base class for anything that matches the description
	of an HTTP 400: project options or config that cannot be acted on.
*/
var ValidationError *errors.ErrorClass = Error.NewClass("ValidationError")

var (
	// Raised when an event references a project the coordinator doesn't have.
	UnknownProjectError *errors.ErrorClass = Error.NewClass("UnknownProjectError")

	// Raised when a disconnect arrives for a session that never joined a project.
	UnknownSessionError *errors.ErrorClass = Error.NewClass("UnknownSessionError")

	// Raised when a job is assigned to a worker already holding `maxJobs` jobs.
	CapacityExceededError *errors.ErrorClass = Error.NewClass("CapacityExceededError")

	/*
		Raised when a worker asks for work and the queue is empty.
		This is the normal shape of a project draining towards completion,
		so it's logged quietly.
	*/
	StarvationError *errors.ErrorClass = Error.NewClass("StarvationError")

	// A result for a job that's already complete.  Never surfaced; the result is ignored.
	DuplicateResultError *errors.ErrorClass = Error.NewClass("DuplicateResultError")

	// Raised when a transform name isn't registered, or a transform fails on its input.
	TransformError *errors.ErrorClass = Error.NewClass("TransformError")

	// Raised when project records cannot be loaded or saved.  Retried next interval.
	StoreError *errors.ErrorClass = Error.NewClass("StoreError")
)
