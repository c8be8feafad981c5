package transport

import (
	"sync"

	"go.polydawn.net/cohort/def"
)

/*
	Recorder is an in-memory Peer (and Broadcaster) that keeps every
	message emitted to it.  Used wherever a test needs to stand in for a
	participant.
*/
type Recorder struct {
	Session def.WorkerID

	mu   sync.Mutex
	msgs []*def.Message
}

func NewRecorder(session def.WorkerID) *Recorder {
	return &Recorder{Session: session}
}

func (r *Recorder) ID() def.WorkerID { return r.Session }

func (r *Recorder) Emit(msg *def.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *Recorder) Messages() []*def.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*def.Message(nil), r.msgs...)
}

// Messages of one event kind, in order of emission.
func (r *Recorder) Events(ev def.Event) []*def.Message {
	var found []*def.Message
	for _, msg := range r.Messages() {
		if msg.Event == ev {
			found = append(found, msg)
		}
	}
	return found
}

// Jobs received through newJob or newANNJob, in order.
func (r *Recorder) Jobs() []*def.Job {
	var jobs []*def.Job
	for _, msg := range r.Messages() {
		if msg.Event == def.EventNewJob || msg.Event == def.EventNewANNJob {
			jobs = append(jobs, msg.Job)
		}
	}
	return jobs
}

func (r *Recorder) Last() *def.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		return nil
	}
	return r.msgs[len(r.msgs)-1]
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = nil
}
