package project

import (
	"go.polydawn.net/cohort/def"
)

// FIFO of jobs waiting for a worker.  Guarded by the owning project's lock.
type Queue struct {
	jobs []*def.Job
}

func (q *Queue) Push(jobs ...*def.Job) {
	q.jobs = append(q.jobs, jobs...)
}

// Put jobs back at the head, keeping the order they're given in.
func (q *Queue) PushFront(jobs ...*def.Job) {
	if len(jobs) == 0 {
		return
	}
	q.jobs = append(append(make([]*def.Job, 0, len(jobs)+len(q.jobs)), jobs...), q.jobs...)
}

func (q *Queue) Pop() *def.Job {
	if len(q.jobs) == 0 {
		return nil
	}
	job := q.jobs[0]
	q.jobs[0] = nil
	q.jobs = q.jobs[1:]
	return job
}

// Take a job out wherever it is.  Returns false if it wasn't queued.
func (q *Queue) Remove(id def.JobID) bool {
	for i, job := range q.jobs {
		if job.JobID == id {
			q.jobs = append(q.jobs[:i], q.jobs[i+1:]...)
			return true
		}
	}
	return false
}

func (q *Queue) Contains(id def.JobID) bool {
	for _, job := range q.jobs {
		if job.JobID == id {
			return true
		}
	}
	return false
}

func (q *Queue) Len() int { return len(q.jobs) }

func (q *Queue) Jobs() []*def.Job {
	return append([]*def.Job(nil), q.jobs...)
}

func (q *Queue) Reset() {
	q.jobs = nil
}
