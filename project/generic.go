package project

import (
	"time"

	"go.polydawn.net/cohort/def"
	"go.polydawn.net/cohort/transform"
	"go.polydawn.net/cohort/transport"
	"go.polydawn.net/cohort/worker"
)

// interface assertion
var _ Project = &Generic{}

/*
	Generic is the plain map/reduce project: one job per element of the
	data set, each mapped by a participant, all of them reduced by the
	coordinator once every result is in.
*/
type Generic struct {
	Core
	opts def.ProjectOptions

	jobs      []*def.Job // every job, indexed by id.
	completed map[def.JobID]*def.Job
	reduce    transform.Reduce

	createdAt   time.Time
	projectTime time.Duration
	complete    bool
	failure     string
}

func NewGeneric(id def.ProjectID, opts def.ProjectOptions, cfg Config) (*Generic, error) {
	cfg = cfg.WithDefaults()
	opts.ProjectType = opts.ProjectType.Normalize()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.ProjectType != def.ProjectTypeDefault {
		return nil, def.ValidationError.New("project type %q is not a map/reduce project", opts.ProjectType)
	}
	if _, err := cfg.Registry.Map(opts.MapData); err != nil {
		return nil, err
	}
	reduce, err := cfg.Registry.Reduce(opts.ReduceResults)
	if err != nil {
		return nil, err
	}
	data := opts.DataSet
	if data == nil {
		gen, err := cfg.Registry.Generator(opts.GenerateDataSet)
		if err != nil {
			return nil, err
		}
		data = gen()
	}

	p := &Generic{
		opts:      opts,
		completed: make(map[def.JobID]*def.Job),
		reduce:    reduce,
		createdAt: cfg.Clock(),
	}
	p.Init(id, cfg, Hooks{
		Assign: p.assignUpTo,
		Keep: func(job *def.Job) bool {
			_, done := p.completed[job.JobID]
			return !done
		},
		Done: func() bool { return p.complete },
	})
	p.jobs = make([]*def.Job, len(data))
	for i, d := range data {
		job := def.NewJob(d, def.JobID(i), id)
		job.ProjectType = def.ProjectTypeDefault
		job.JobsLength = len(data)
		job.MapData = opts.MapData
		p.jobs[i] = job
	}
	p.Queue.Push(p.jobs...)
	if len(p.jobs) == 0 {
		p.finish()
	}
	p.Log.Info("project created", "title", opts.Title, "jobs", len(p.jobs))
	return p, nil
}

/*
	Rebuild a project from its persisted record.  Completed jobs keep
	their results and are not queued again; a complete project stays
	complete with its recorded result.
*/
func RestoreGeneric(rec def.ProjectRecord, cfg Config) (*Generic, error) {
	p, err := NewGeneric(rec.ProjectID, rec.Options, cfg)
	if err != nil {
		return nil, err
	}
	p.Mu.Lock()
	defer p.Mu.Unlock()
	p.createdAt = rec.CreatedAt
	for _, job := range rec.CompletedJobs {
		if job == nil || int(job.JobID) < 0 || int(job.JobID) >= len(p.jobs) {
			continue
		}
		live := p.jobs[job.JobID]
		live.Result = job.Result
		live.WorkerID = job.WorkerID
		p.completed[job.JobID] = live
		p.Queue.Remove(job.JobID)
	}
	p.failure = rec.Failure
	if rec.Complete {
		p.complete = true
		p.Result = rec.FinalResult
		p.projectTime = rec.ProjectTime
		p.Queue.Reset()
	} else if p.covered() {
		p.finish()
	}
	p.Log.Info("project restored", "completed", len(p.completed), "complete", p.complete)
	return p, nil
}

func (p *Generic) Type() def.ProjectType { return def.ProjectTypeDefault }

func (p *Generic) CreateWorker(ready def.ReadyMessage, peer transport.Peer) error {
	p.Mu.Lock()
	defer p.Mu.Unlock()
	if p.Closed {
		return def.UnknownProjectError.New("project %s is closed", p.id)
	}
	w := worker.New(ready, peer)
	if old := p.Roster.Add(w); old != nil {
		returned := old.ReleaseAll()
		p.Requeue(returned)
		p.Log.Info("worker rejoined", "worker", w.WorkerID, "requeued", len(returned))
	} else {
		p.Log.Info("worker joined", "worker", w.WorkerID, "maxJobs", w.MaxJobs)
	}
	if p.complete {
		p.Emit(w, p.FinalResultMessage())
		return nil
	}
	p.Fill(w)
	return nil
}

func (p *Generic) AssignJob(w *worker.Worker) *def.Job {
	p.Mu.Lock()
	defer p.Mu.Unlock()
	return p.assign(w)
}

func (p *Generic) assign(w *worker.Worker) *def.Job {
	if p.complete || p.Closed {
		return nil
	}
	if !w.IsAvailable() {
		p.Log.Error("cannot assign job", "err", def.CapacityExceededError.New("worker %s is at capacity (%d jobs)", w.WorkerID, w.MaxJobs))
		return nil
	}
	job := p.Queue.Pop()
	if job == nil {
		p.Log.Debug("no job to assign", "worker", w.WorkerID, "err", def.StarvationError.New("queue empty"))
		return nil
	}
	job.WorkerID = w.WorkerID
	job.JobsLength = len(p.jobs)
	job.MapData = p.opts.MapData
	job.AssignedAt = p.Cfg.Clock()
	if err := w.Assign(job); err != nil {
		p.Queue.PushFront(job)
		p.Log.Error("cannot assign job", "err", err)
		return nil
	}
	p.Timer.Touch()
	p.Emit(w, def.JobMessage(job.Clone()))
	return job
}

// Assign one job at a time until `max` are out, the worker is full, or the queue runs dry.
func (p *Generic) assignUpTo(w *worker.Worker, max int) {
	for i := 0; i < max && w.IsAvailable() && p.Queue.Len() > 0; i++ {
		if p.assign(w) == nil {
			return
		}
	}
}

func (p *Generic) HandleResult(result *def.Job) bool {
	p.Mu.Lock()
	defer p.Mu.Unlock()
	if p.Closed {
		return false
	}
	log := p.Log.New("job", result.JobID, "worker", result.WorkerID)
	id := result.JobID
	if int(id) < 0 || int(id) >= len(p.jobs) {
		log.Warn("result for a job this project never issued")
		return false
	}
	if _, done := p.completed[id]; done || p.complete {
		log.Debug("ignoring result", "err", def.DuplicateResultError.New("job %d already complete", id))
		if w := p.Roster.Get(result.WorkerID); w != nil && w.Release(id) != nil {
			p.Fill(w)
		}
		return false
	}

	job := p.jobs[id]
	if result.Failure != "" {
		log.Error("job failed on worker", "failure", result.Failure)
		if w := p.Roster.Get(result.WorkerID); w != nil {
			w.Release(id)
		}
		if !p.Queue.Contains(id) && p.Roster.Holder(id) == nil {
			job.WorkerID = ""
			p.Queue.Push(job)
		}
		p.FillIdle(result.WorkerID)
		return false
	}

	// A straggler re-queued by the timer may report after all; take it.
	if p.Queue.Remove(id) {
		log.Info("late result for a re-queued job")
	}
	var freed []*worker.Worker
	for _, w := range p.Roster.All() {
		if w.Release(id) != nil {
			freed = append(freed, w)
		}
	}
	job.Result = result.Result
	job.WorkerID = result.WorkerID
	p.completed[id] = job

	if p.covered() {
		return p.finish()
	}
	for _, w := range freed {
		p.Fill(w)
	}
	if w := p.Roster.Get(result.WorkerID); w != nil {
		p.Fill(w)
	}
	return false
}

func (p *Generic) covered() bool {
	return p.Queue.Len() == 0 && len(p.completed) == len(p.jobs)
}

/*
	Reduce every result in job id order.  If the reduce fails, the project
	records the failure and stays incomplete.
*/
func (p *Generic) finish() bool {
	results := make([]interface{}, len(p.jobs))
	for i, job := range p.jobs {
		results[i] = job.Result
	}
	final, err := p.reduce(results)
	if err != nil {
		p.failure = err.Error()
		p.Log.Error("reduce failed", "reduce", p.opts.ReduceResults, "err", err)
		return false
	}
	p.Timer.Stop()
	p.complete = true
	p.failure = ""
	p.Result = final
	p.projectTime = p.Cfg.Clock().Sub(p.createdAt)
	p.Log.Info("project complete", "result", final, "time", p.projectTime)
	p.Broadcast(p.FinalResultMessage())
	return true
}

func (p *Generic) Status() def.ProjectStatus {
	p.Mu.Lock()
	defer p.Mu.Unlock()
	return def.ProjectStatus{
		ProjectID:        p.id,
		ProjectType:      def.ProjectTypeDefault,
		Title:            p.opts.Title,
		AvailableJobsNum: p.Queue.Len(),
		JobsLength:       len(p.jobs),
		CompletedJobs:    len(p.completed),
		Workers:          p.Roster.IDs(),
		FinalResult:      p.Result,
		Complete:         p.complete,
		ProjectTime:      p.projectTime,
		Failure:          p.failure,
	}
}

func (p *Generic) Record() def.ProjectRecord {
	p.Mu.Lock()
	defer p.Mu.Unlock()
	done := make([]*def.Job, 0, len(p.completed))
	for _, job := range p.jobs {
		if _, ok := p.completed[job.JobID]; ok {
			done = append(done, job.Clone())
		}
	}
	return def.ProjectRecord{
		ProjectID:     p.id,
		ProjectType:   def.ProjectTypeDefault,
		Title:         p.opts.Title,
		Complete:      p.complete,
		CreatedAt:     p.createdAt,
		ProjectTime:   p.projectTime,
		Options:       p.opts,
		CompletedJobs: done,
		FinalResult:   p.Result,
		Failure:       p.failure,
	}
}

func (p *Generic) IsComplete() bool {
	p.Mu.Lock()
	defer p.Mu.Unlock()
	return p.complete
}
