/*
	Package dispatcher is the participant's side of a project: a fixed
	number of execution slots, each running at most one job at a time,
	and the uplink results are reported through.

	Plain jobs run their named map transform and report straight away.
	ANN jobs wait at a barrier until every job of their batch has arrived,
	train concurrently on the slots, and are reconciled locally into one
	partial that's reported once, covering the whole batch.
*/
package dispatcher

import (
	"context"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/inconshreveable/log15"
	"gonum.org/v1/gonum/stat"

	"go.polydawn.net/cohort/def"
	"go.polydawn.net/cohort/nn"
	"go.polydawn.net/cohort/reconcile"
	"go.polydawn.net/cohort/transform"
	"go.polydawn.net/cohort/transport"
)

type Config struct {
	Slots     int // default runtime.NumCPU().
	QueueSize int // jobs that may wait for a slot; default 4 per slot.
}

// One cut of one epoch.  Keys compare by epoch, then by generation.
type barrierKey struct {
	project    def.ProjectID
	epoch      int
	generation int
}

func keyOf(job *def.Job) barrierKey {
	return barrierKey{job.ProjectID, job.Epoch, job.Generation}
}

func (k barrierKey) before(o barrierKey) bool {
	if k.epoch != o.epoch {
		return k.epoch < o.epoch
	}
	return k.generation < o.generation
}

type Dispatcher struct {
	registry *transform.Registry
	uplink   transport.Emitter
	log      log15.Logger
	slots    int

	tasks   chan func()
	mu      sync.RWMutex // guards closed against sends on tasks.
	closed  bool
	slotsWG sync.WaitGroup
	batchWG sync.WaitGroup

	bmu      sync.Mutex
	barriers map[barrierKey]*Barrier
	latest   map[def.ProjectID]barrierKey

	smu       sync.Mutex
	durations []float64 // seconds per executed job.
}

func New(cfg Config, registry *transform.Registry, uplink transport.Emitter, log log15.Logger) *Dispatcher {
	if cfg.Slots < 1 {
		cfg.Slots = runtime.NumCPU()
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 4 * cfg.Slots
	}
	return &Dispatcher{
		registry: registry,
		uplink:   uplink,
		log:      log,
		slots:    cfg.Slots,
		tasks:    make(chan func(), cfg.QueueSize),
		barriers: make(map[barrierKey]*Barrier),
		latest:   make(map[def.ProjectID]barrierKey),
	}
}

func (d *Dispatcher) Slots() int { return d.slots }

func (d *Dispatcher) Start() {
	for i := 0; i < d.slots; i++ {
		d.slotsWG.Add(1)
		go d.run()
	}
}

// Run tasks one at a time.
func (d *Dispatcher) run() {
	defer d.slotsWG.Done()
	for task := range d.tasks {
		task()
	}
}

/*
	Stop accepting jobs, finish everything already accepted, and stop
	the slots.
*/
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()
	d.batchWG.Wait()
	d.mu.Lock()
	close(d.tasks)
	d.mu.Unlock()
	d.slotsWG.Wait()
}

func (d *Dispatcher) enqueue(task func(), block bool) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed && !block {
		return ClosedError.New("dispatcher is closed")
	}
	if block {
		d.tasks <- task
		return nil
	}
	select {
	case d.tasks <- task:
		return nil
	default:
		return QueueFullError.New("all %d slots busy and %d jobs waiting", d.slots, len(d.tasks))
	}
}

// Announce this participant to a project, offering one job per slot.
func (d *Dispatcher) Join(project def.ProjectID) error {
	return d.uplink.Emit(&def.Message{
		Event: def.EventReady,
		Ready: &def.ReadyMessage{ProjectID: project, MaxJobs: d.slots},
	})
}

/*
	Handle one message from the coordinator.  Returns true when the
	message is the final result of a project.
*/
func (d *Dispatcher) Handle(msg *def.Message) bool {
	switch msg.Event {
	case def.EventNewJob:
		if msg.Job == nil {
			d.log.Warn("newJob without a job")
			return false
		}
		if err := d.Submit(msg.Job); err != nil {
			d.log.Warn("job refused", "job", msg.Job.JobID, "err", err)
			d.report(failed(msg.Job, err))
		}
	case def.EventNewANNJob:
		if msg.Job == nil {
			d.log.Warn("newANNJob without a job")
			return false
		}
		d.Collect(msg.Job)
	case def.EventFinalResult:
		d.log.Info("project complete", "project", msg.ProjectID, "result", msg.FinalResult)
		return true
	case def.EventError:
		d.log.Warn("coordinator refused a message", "err", msg.Error)
	default:
		d.log.Debug("update", "event", msg.Event)
	}
	return false
}

// Queue a plain job for a free slot.  Never blocks.
func (d *Dispatcher) Submit(job *def.Job) error {
	return d.enqueue(func() { d.report(d.Execute(job)) }, false)
}

// Run a plain job's map transform.  Failures are reported on the job, not returned.
func (d *Dispatcher) Execute(job *def.Job) *def.Job {
	start := time.Now()
	done := job.Clone()
	out, err := d.registry.Apply(job.MapData, job.Data)
	d.observe(time.Since(start))
	if err != nil {
		d.log.Error("job failed", "project", job.ProjectID, "job", job.JobID, "err", err)
		return failed(job, err)
	}
	done.Result = out
	return done
}

/*
	Add an ANN job to its batch's barrier.  The call that completes the
	batch starts training it.

	Only the newest cut seen for a project collects jobs: a job of a
	newer cut drops the barriers of older ones, and jobs of an older cut
	or ids already waiting are ignored.
*/
func (d *Dispatcher) Collect(job *def.Job) {
	key := keyOf(job)
	d.bmu.Lock()
	if latest, ok := d.latest[job.ProjectID]; ok && key.before(latest) {
		d.bmu.Unlock()
		d.log.Info("dropping job of a superseded batch", "project", job.ProjectID, "job", job.JobID, "epoch", job.Epoch, "generation", job.Generation, "latest epoch", latest.epoch, "latest generation", latest.generation)
		return
	} else if !ok || latest.before(key) {
		d.latest[job.ProjectID] = key
		for k := range d.barriers {
			if k.project == key.project && k.before(key) {
				d.log.Info("abandoning superseded batch", "project", k.project, "epoch", k.epoch, "generation", k.generation, "had", d.barriers[k].Len())
				delete(d.barriers, k)
			}
		}
	}
	b, ok := d.barriers[key]
	if !ok {
		b = NewBarrier(BatchSize(job, d.slots))
		d.barriers[key] = b
	}
	if b.Has(job.JobID) {
		d.bmu.Unlock()
		d.log.Warn("job is already waiting in its batch", "project", job.ProjectID, "job", job.JobID, "epoch", job.Epoch)
		return
	}
	batch, full := b.Add(job)
	have, size := b.Len(), b.Size()
	if full {
		delete(d.barriers, key)
	}
	d.bmu.Unlock()
	if !full {
		d.log.Debug("waiting for the rest of the batch", "project", job.ProjectID, "epoch", job.Epoch, "have", have, "of", size)
		return
	}
	d.mu.RLock()
	closed := d.closed
	if !closed {
		d.batchWG.Add(1)
	}
	d.mu.RUnlock()
	if closed {
		d.report(failed(batch[0], ClosedError.New("dispatcher is closed"), ids(batch)...))
		return
	}
	go func() {
		defer d.batchWG.Done()
		d.report(d.RunCohort(batch))
	}()
}

// Batches still waiting for jobs.
func (d *Dispatcher) Pending() int {
	d.bmu.Lock()
	defer d.bmu.Unlock()
	return len(d.barriers)
}

/*
	Train every job of a batch concurrently on the slots, wait for all
	of them, and reconcile the trained networks, in job id order, with
	the batch's merge policy.  The returned job reports the merged
	partial and covers every job of the batch.
*/
func (d *Dispatcher) RunCohort(batch []*def.Job) *def.Job {
	sort.Slice(batch, func(i, j int) bool { return batch[i].JobID < batch[j].JobID })
	partials := make([]reconcile.Partial, len(batch))
	errs := make([]error, len(batch))
	var wg sync.WaitGroup
	for i, job := range batch {
		i, job := i, job
		wg.Add(1)
		d.enqueue(func() {
			defer wg.Done()
			partials[i], errs[i] = d.train(job)
		}, true)
	}
	wg.Wait()

	covers := ids(batch)
	for _, err := range errs {
		if err != nil {
			return failed(batch[0], err, covers...)
		}
	}
	merged, err := reconcile.Merge(partials, batch[0].MergePolicy)
	if err != nil {
		return failed(batch[0], err, covers...)
	}
	done := strip(batch[0])
	done.Covers = covers
	done.Partial = &merged
	d.log.Info("batch trained", "project", done.ProjectID, "epoch", done.Epoch, "jobs", len(batch))
	return done
}

func (d *Dispatcher) train(job *def.Job) (reconcile.Partial, error) {
	if job.Network == nil {
		return reconcile.Partial{}, def.ValidationError.New("ANN job %d carries no network", job.JobID)
	}
	opts := nn.TrainerOptions{}
	if job.TrainerOptions != nil {
		opts = *job.TrainerOptions
	}
	start := time.Now()
	net := job.Network.Clone()
	trainer := nn.NewTrainer(net, rand.New(rand.NewSource(start.UnixNano())))
	trainer.Log = d.log.New("project", job.ProjectID, "job", job.JobID)
	res, err := trainer.Train(job.TrainingSet, opts)
	d.observe(time.Since(start))
	if err != nil {
		return reconcile.Partial{}, err
	}
	d.log.Debug("partition trained", "job", job.JobID, "error", res.Error, "iterations", res.Iterations)
	return reconcile.Partial{Network: *net, Partitions: 1, Samples: len(job.TrainingSet)}, nil
}

func (d *Dispatcher) report(job *def.Job) {
	if err := d.uplink.Emit(&def.Message{Event: def.EventJobDone, Job: job}); err != nil {
		d.log.Error("could not report result", "project", job.ProjectID, "job", job.JobID, "err", err)
	}
}

func (d *Dispatcher) observe(took time.Duration) {
	d.smu.Lock()
	defer d.smu.Unlock()
	d.durations = append(d.durations, took.Seconds())
}

type Stats struct {
	Jobs   int
	Mean   time.Duration
	StdDev time.Duration
}

// Turnaround of every job executed so far.
func (d *Dispatcher) Stats() Stats {
	d.smu.Lock()
	defer d.smu.Unlock()
	if len(d.durations) == 0 {
		return Stats{}
	}
	mean, std := stat.MeanStdDev(d.durations, nil)
	if len(d.durations) < 2 {
		std = 0
	}
	return Stats{
		Jobs:   len(d.durations),
		Mean:   time.Duration(mean * float64(time.Second)),
		StdDev: time.Duration(std * float64(time.Second)),
	}
}

/*
	Join the project and handle messages until its final result arrives,
	the connection drops, or the context is done.
*/
func (d *Dispatcher) Run(ctx context.Context, conn *transport.Conn, project def.ProjectID) error {
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	if err := d.Join(project); err != nil {
		return err
	}
	for {
		msg, err := conn.Receive()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if d.Handle(msg) && msg.ProjectID == project {
			st := d.Stats()
			d.log.Info("done", "jobs", st.Jobs, "mean", st.Mean, "stddev", st.StdDev)
			return nil
		}
	}
}

// A copy of the job without the bulky inputs, for reporting back.
func strip(job *def.Job) *def.Job {
	done := job.Clone()
	done.Network = nil
	done.TrainingSet = nil
	done.TrainerOptions = nil
	done.Data = nil
	return done
}

func failed(job *def.Job, err error, covers ...def.JobID) *def.Job {
	done := strip(job)
	done.Failure = err.Error()
	if len(covers) > 1 {
		done.Covers = covers
	}
	return done
}

func ids(batch []*def.Job) []def.JobID {
	out := make([]def.JobID, len(batch))
	for i, job := range batch {
		out[i] = job.JobID
	}
	return out
}
