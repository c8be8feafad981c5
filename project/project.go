/*
	Package project holds the Project capability every kind of project
	implements, the plain map/reduce project, and the pieces each project
	variant is assembled from: the job queue, the roster of workers, and
	the straggler timer.

	Every exported method of a project takes the project's own lock for
	its whole duration.  Jobs are pushed to participants from inside that
	lock, so emitters must never block.
*/
package project

import (
	"math/rand"
	"time"

	"github.com/inconshreveable/log15"

	"go.polydawn.net/cohort/def"
	"go.polydawn.net/cohort/reconcile"
	"go.polydawn.net/cohort/transform"
	"go.polydawn.net/cohort/transport"
	"go.polydawn.net/cohort/worker"
)

type Project interface {
	ID() def.ProjectID
	Type() def.ProjectType

	/*
		Register a participant under this project and immediately fill
		its capacity with jobs.  A participant already registered under
		the same session id has its held jobs returned to the queue first.
	*/
	CreateWorker(ready def.ReadyMessage, peer transport.Peer) error

	/*
		Hand the next queued job to the worker.  Returns nil if the
		project is complete, the queue is empty, or the worker is full.
	*/
	AssignJob(w *worker.Worker) *def.Job

	/*
		Record a result.  Returns true exactly once: for the result that
		completes the project.  Results for jobs already completed are
		ignored.
	*/
	HandleResult(job *def.Job) bool

	// Drop a worker, returning its in-flight jobs to the front of the queue.  Returns how many.
	RemoveWorker(id def.WorkerID) int

	Workers() []def.WorkerStatus
	Status() def.ProjectStatus
	Record() def.ProjectRecord
	IsComplete() bool
	FinalResult() interface{}

	// Stop the project's timers.  The project ignores everything afterwards.
	Close()
}

type Config struct {
	StragglerTimeout time.Duration    // zero disables re-queueing of stragglers.
	MergePolicy      reconcile.Policy // for ANN projects that don't pick one.
	NumWorkers       int              // ANN partitions per epoch before any worker joins.
	Registry         *transform.Registry
	Log              log15.Logger
	Clock            func() time.Time
	NewRand          func() *rand.Rand // one per project; projects shuffle under their own lock.
}

func (c Config) WithDefaults() Config {
	if c.Registry == nil {
		c.Registry = transform.Builtin()
	}
	if c.Log == nil {
		c.Log = log15.New()
		c.Log.SetHandler(log15.DiscardHandler())
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.NewRand == nil {
		c.NewRand = func() *rand.Rand {
			return rand.New(rand.NewSource(time.Now().UnixNano()))
		}
	}
	if c.NumWorkers <= 0 {
		c.NumWorkers = def.DefaultNumWorkers
	}
	c.MergePolicy = c.MergePolicy.OrDefault()
	return c
}
