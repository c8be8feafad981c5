package project

import (
	"sort"
	"sync"
	"time"

	"github.com/inconshreveable/log15"

	"go.polydawn.net/cohort/def"
	"go.polydawn.net/cohort/worker"
)

/*
	Core is the scheduling machinery every project variant embeds: the
	lock, the job queue, the roster, and the straggler timer, plus the
	operations that only move jobs between them.

	Variants supply the parts that differ through Hooks.  Every method
	without a lock of its own expects the caller to hold Mu.
*/
type Core struct {
	Mu     sync.Mutex
	Cfg    Config
	Log    log15.Logger
	Queue  Queue
	Roster *Roster
	Timer  *StragglerTimer
	Result interface{} // the final result, once there is one.
	Closed bool

	id    def.ProjectID
	hooks Hooks
}

type Hooks struct {
	// Hand the worker up to `max` queued jobs.
	Assign func(w *worker.Worker, max int)
	// Whether a job taken back from a worker belongs on the queue again.
	Keep func(job *def.Job) bool
	// Whether the project has stopped handing out jobs for good.
	Done func() bool
}

// Set up the core.  cfg must already have its defaults.
func (c *Core) Init(id def.ProjectID, cfg Config, hooks Hooks) {
	c.id = id
	c.Cfg = cfg
	c.Log = cfg.Log.New("project", id)
	c.Roster = NewRoster()
	c.Timer = NewStragglerTimer(cfg.StragglerTimeout, c.expire)
	c.hooks = hooks
}

func (c *Core) ID() def.ProjectID { return c.id }

func (c *Core) stopped() bool {
	return c.Closed || c.hooks.Done()
}

// Give the worker as many jobs as it has room for.
func (c *Core) Fill(w *worker.Worker) {
	free := w.MaxJobs - len(w.CurrentJobs())
	if free > 0 && c.Queue.Len() > 0 {
		c.hooks.Assign(w, free)
	}
}

func (c *Core) FillIdle(except def.WorkerID) {
	for _, w := range c.Roster.All() {
		if w.WorkerID != except {
			c.Fill(w)
		}
	}
}

// Put jobs back at the front of the queue, in job id order.  Jobs the variant no longer wants are dropped.
func (c *Core) Requeue(jobs []*def.Job) {
	var kept []*def.Job
	for _, job := range jobs {
		if c.hooks.Keep(job) {
			job.WorkerID = ""
			kept = append(kept, job)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].JobID < kept[j].JobID })
	c.Queue.PushFront(kept...)
}

func (c *Core) RemoveWorker(id def.WorkerID) int {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	w := c.Roster.Remove(id)
	if w == nil {
		c.Log.Warn("no such worker to remove", "worker", id)
		return 0
	}
	returned := w.ReleaseAll()
	c.Requeue(returned)
	c.Log.Info("worker left", "worker", id, "requeued", len(returned))
	c.FillIdle("")
	return len(returned)
}

/*
	Re-queue every job assigned before the cutoff and hand the freed
	capacity out again.  Returns how many jobs were taken back.
*/
func (c *Core) RequeueStragglers(cutoff time.Time) int {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	return c.requeueStragglers(cutoff)
}

func (c *Core) requeueStragglers(cutoff time.Time) int {
	if c.stopped() {
		return 0
	}
	var stale []*def.Job
	for _, w := range c.Roster.All() {
		for _, job := range w.Stale(cutoff) {
			w.Release(job.JobID)
			stale = append(stale, job)
		}
	}
	if len(stale) > 0 {
		c.Log.Info("re-queueing stragglers", "jobs", len(stale))
	}
	c.Requeue(stale)
	c.FillIdle("")
	for _, w := range c.Roster.All() {
		if w.IsBusy() {
			c.Timer.Start()
			break
		}
	}
	return len(stale)
}

func (c *Core) expire(gen int) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	if !c.Timer.Expire(gen) {
		return
	}
	c.requeueStragglers(c.Cfg.Clock().Add(-c.Timer.Timeout()))
}

func (c *Core) Emit(w *worker.Worker, msg *def.Message) {
	if err := w.Emit(msg); err != nil {
		c.Log.Warn("could not reach worker", "worker", w.WorkerID, "event", msg.Event, "err", err)
	}
}

// Tell every worker.  Returns how many could not be reached.
func (c *Core) Broadcast(msg *def.Message) int {
	errs := c.Roster.Emit(msg)
	for id, err := range errs {
		c.Log.Warn("could not reach worker", "worker", id, "event", msg.Event, "err", err)
	}
	return len(errs)
}

func (c *Core) FinalResultMessage() *def.Message {
	return &def.Message{Event: def.EventFinalResult, ProjectID: c.id, FinalResult: c.Result}
}

func (c *Core) Workers() []def.WorkerStatus {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	return c.Roster.Statuses()
}

func (c *Core) FinalResult() interface{} {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	return c.Result
}

// Jobs waiting for a worker, in queue order.
func (c *Core) Available() []*def.Job {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	return c.Queue.Jobs()
}

func (c *Core) TimerState() TimerState {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	return c.Timer.State()
}

func (c *Core) Close() {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	c.Timer.Stop()
	c.Closed = true
}
