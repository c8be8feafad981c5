package dispatcher

import (
	"go.polydawn.net/cohort/def"
)

/*
	Barrier collects the jobs of one batch until the batch is whole.

	Its only completion predicate is `len(jobs) == size`; Add returns the
	batch exactly once, from the call that completes it.  A job id is
	only counted once.  Not safe for concurrent use; the dispatcher
	guards it.
*/
type Barrier struct {
	size  int
	jobs  []*def.Job
	seen  map[def.JobID]bool
	fired bool
}

func NewBarrier(size int) *Barrier {
	if size < 1 {
		size = 1
	}
	return &Barrier{size: size, seen: make(map[def.JobID]bool)}
}

/*
	The size of the batch a job belongs to: the cohort size the
	coordinator stamped on it, or failing that as many jobs as could
	still follow it in the epoch, capped at the number of local slots.
*/
func BatchSize(job *def.Job, slots int) int {
	if job.CohortSize > 0 {
		return job.CohortSize
	}
	rest := job.JobsLength - int(job.JobID)
	if rest < 1 {
		rest = 1
	}
	if slots < rest {
		return slots
	}
	return rest
}

func (b *Barrier) Add(job *def.Job) (batch []*def.Job, full bool) {
	if b.fired || b.seen[job.JobID] {
		return nil, false
	}
	b.seen[job.JobID] = true
	b.jobs = append(b.jobs, job)
	if len(b.jobs) == b.size {
		b.fired = true
		return b.jobs, true
	}
	return nil, false
}

func (b *Barrier) Has(id def.JobID) bool { return b.seen[id] }

func (b *Barrier) Len() int  { return len(b.jobs) }
func (b *Barrier) Size() int { return b.size }
