package project

import (
	"go.polydawn.net/cohort/def"
	"go.polydawn.net/cohort/worker"
)

/*
	Roster is the workers of one project, kept in the order they joined
	so refilling idle workers is deterministic.
*/
type Roster struct {
	order []def.WorkerID
	byID  map[def.WorkerID]*worker.Worker
}

func NewRoster() *Roster {
	return &Roster{byID: make(map[def.WorkerID]*worker.Worker)}
}

// Add a worker.  One already present under the same id is replaced in place and returned.
func (r *Roster) Add(w *worker.Worker) *worker.Worker {
	old, exists := r.byID[w.WorkerID]
	if !exists {
		r.order = append(r.order, w.WorkerID)
	}
	r.byID[w.WorkerID] = w
	return old
}

func (r *Roster) Get(id def.WorkerID) *worker.Worker {
	return r.byID[id]
}

func (r *Roster) Remove(id def.WorkerID) *worker.Worker {
	w, ok := r.byID[id]
	if !ok {
		return nil
	}
	delete(r.byID, id)
	for i, wid := range r.order {
		if wid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return w
}

func (r *Roster) All() []*worker.Worker {
	all := make([]*worker.Worker, len(r.order))
	for i, id := range r.order {
		all[i] = r.byID[id]
	}
	return all
}

func (r *Roster) IDs() []def.WorkerID {
	return append([]def.WorkerID{}, r.order...)
}

func (r *Roster) Len() int { return len(r.order) }

// Total job capacity of every worker on the roster.
func (r *Roster) Capacity() int {
	n := 0
	for _, w := range r.byID {
		n += w.MaxJobs
	}
	return n
}

// The worker holding a job, if any does.
func (r *Roster) Holder(id def.JobID) *worker.Worker {
	for _, wid := range r.order {
		if w := r.byID[wid]; w.Holds(id) {
			return w
		}
	}
	return nil
}

func (r *Roster) Statuses() []def.WorkerStatus {
	statuses := make([]def.WorkerStatus, len(r.order))
	for i, id := range r.order {
		statuses[i] = r.byID[id].Status()
	}
	return statuses
}

// Tell every worker on the roster.  Failures are returned per worker.
func (r *Roster) Emit(msg *def.Message) map[def.WorkerID]error {
	var errs map[def.WorkerID]error
	for _, id := range r.order {
		if err := r.byID[id].Emit(msg); err != nil {
			if errs == nil {
				errs = make(map[def.WorkerID]error)
			}
			errs[id] = err
		}
	}
	return errs
}
