/*
	Package transport connects the coordinator to participants and
	observers.

	The coordinator only ever sees the interfaces in this file: an
	Emitter to push a message somewhere, a Peer that is one connected
	participant, and a Broadcaster that reaches everyone connected.  The
	Hub implements them over websockets; the Recorder implements them in
	memory for tests.
*/
package transport

import (
	"go.polydawn.net/cohort/def"
)

type Emitter interface {
	/*
		Queue a message for delivery.  Must not block on the network:
		emitters are called with project locks held.
	*/
	Emit(msg *def.Message) error
}

// One connected participant.
type Peer interface {
	Emitter
	ID() def.WorkerID
}

// Reaches every connected peer.
type Broadcaster interface {
	Emitter
}

/*
	Handler is what the transport delivers inbound events to.  The
	coordinator implements it.
*/
type Handler interface {
	UserReady(ready def.ReadyMessage, peer Peer)
	UserJobDone(job *def.Job)
	UserDisconnect(session def.WorkerID)
	CreateProject(opts def.ProjectOptions) (def.ProjectID, error)
	SendUpdateAllProjects(dest Emitter)
}

// Handler plus the read side the HTTP API needs.
type Service interface {
	Handler
	Status() []def.ProjectStatus
	WorkerStatus() []def.WorkerStatus
	DestroyProject(id def.ProjectID) error
}

/*
	Route one inbound message to the handler.  Shared by the websocket hub
	and anything else that receives envelopes.
*/
func Dispatch(h Handler, peer Peer, msg *def.Message) error {
	switch msg.Event {
	case def.EventReady:
		if msg.Ready == nil {
			return def.ValidationError.New("%s event without a ready payload", msg.Event)
		}
		h.UserReady(*msg.Ready, peer)
	case def.EventJobDone:
		if msg.Job == nil {
			return def.ValidationError.New("%s event without a job", msg.Event)
		}
		msg.Job.WorkerID = peer.ID()
		h.UserJobDone(msg.Job)
	case def.EventCreateProject:
		if msg.Options == nil {
			return def.ValidationError.New("%s event without options", msg.Event)
		}
		if _, err := h.CreateProject(*msg.Options); err != nil {
			return err
		}
	case def.EventRequestUpdate:
		h.SendUpdateAllProjects(peer)
	default:
		return def.ValidationError.New("unknown event %q", msg.Event)
	}
	return nil
}
