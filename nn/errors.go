package nn

import (
	"github.com/spacemonkeygo/errors"
)

// grouping, do not instantiate
var Error *errors.ErrorClass = errors.NewClass("NetworkError")

/*
	Error raised when a network's shape is unusable: no layers, empty
	layers, connections pointing outside of the neuron list, or
	connections that skip a layer.
*/
var ShapeError *errors.ErrorClass = Error.NewClass("NetworkShapeError")

/*
	Error raised when a sample does not fit the network it is applied to
	(input or output width mismatch).
*/
var SampleError *errors.ErrorClass = Error.NewClass("NetworkSampleError")
