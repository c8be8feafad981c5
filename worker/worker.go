/*
	Package worker is the coordinator's handle on one connected
	participant: how many jobs it will take at once, which it holds right
	now, and how to reach it.

	A Worker is not safe for concurrent use.  It belongs to exactly one
	project, and that project's lock guards it.
*/
package worker

import (
	"time"

	"go.polydawn.net/cohort/def"
	"go.polydawn.net/cohort/transport"
)

type Worker struct {
	WorkerID  def.WorkerID
	ProjectID def.ProjectID
	MaxJobs   int
	Peer      transport.Peer

	current []*def.Job // in assignment order.
}

// A participant asking for fewer than one job is given room for one.
func New(ready def.ReadyMessage, peer transport.Peer) *Worker {
	max := ready.MaxJobs
	if max < 1 {
		max = 1
	}
	return &Worker{
		WorkerID:  peer.ID(),
		ProjectID: ready.ProjectID,
		MaxJobs:   max,
		Peer:      peer,
	}
}

func (w *Worker) Assign(job *def.Job) error {
	if !w.IsAvailable() {
		return def.CapacityExceededError.New("worker %s already holds %d of %d jobs", w.WorkerID, len(w.current), w.MaxJobs)
	}
	w.current = append(w.current, job)
	return nil
}

// Release one in-flight job.  Returns nil if the worker wasn't holding it.
func (w *Worker) Release(id def.JobID) *def.Job {
	for i, job := range w.current {
		if job.JobID == id {
			w.current = append(w.current[:i], w.current[i+1:]...)
			return job
		}
	}
	return nil
}

// Release everything, in assignment order.
func (w *Worker) ReleaseAll() []*def.Job {
	jobs := w.current
	w.current = nil
	return jobs
}

func (w *Worker) IsAvailable() bool {
	return len(w.current) < w.MaxJobs
}

func (w *Worker) IsBusy() bool {
	return len(w.current) > 0
}

func (w *Worker) Holds(id def.JobID) bool {
	for _, job := range w.current {
		if job.JobID == id {
			return true
		}
	}
	return false
}

func (w *Worker) CurrentJobs() []*def.Job {
	return append([]*def.Job(nil), w.current...)
}

// In-flight jobs assigned before the cutoff.
func (w *Worker) Stale(cutoff time.Time) []*def.Job {
	var stale []*def.Job
	for _, job := range w.current {
		if job.AssignedAt.Before(cutoff) {
			stale = append(stale, job)
		}
	}
	return stale
}

func (w *Worker) Status() def.WorkerStatus {
	ids := make([]def.JobID, len(w.current))
	for i, job := range w.current {
		ids[i] = job.JobID
	}
	return def.WorkerStatus{
		WorkerID:    w.WorkerID,
		ProjectID:   w.ProjectID,
		MaxJobs:     w.MaxJobs,
		CurrentJobs: ids,
		IsBusy:      w.IsBusy(),
	}
}

func (w *Worker) Emit(msg *def.Message) error {
	return w.Peer.Emit(msg)
}
