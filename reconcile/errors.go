package reconcile

import (
	"github.com/spacemonkeygo/errors"
)

/*
	Error raised when a set of partial models cannot be combined: nothing
	to combine, partials built from different architectures, or an
	unknown combination policy.
*/
var Error *errors.ErrorClass = errors.NewClass("ReconcileError")
