package transport

import (
	"github.com/spacemonkeygo/errors"
)

var Error *errors.ErrorClass = errors.NewClass("TransportError")

var (
	// The peer's connection is gone; nothing more can be sent to it.
	PeerGoneError *errors.ErrorClass = Error.NewClass("PeerGoneError")

	// The peer isn't reading fast enough and its outbox is full.  The message was dropped.
	OutboxFullError *errors.ErrorClass = Error.NewClass("OutboxFullError")

	// A message could not be encoded or decoded.
	CodecError *errors.ErrorClass = Error.NewClass("CodecError")
)
