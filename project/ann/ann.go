/*
	Package ann is the project variant that trains one neural network
	across every participant.

	Each epoch shuffles the training set, cuts it into one partition per
	job, and ships every job with the same snapshot of the network.
	Participants train their copy on their partition and send the trained
	copy back as a partial; once partials cover every job of the epoch,
	they're reconciled into the next network, which is scored against the
	test set before the next epoch starts.

		collecting -> reconciling -> dispatched -> collecting -> ... -> complete
*/
package ann

import (
	"math/rand"
	"sort"
	"time"

	"go.polydawn.net/cohort/def"
	"go.polydawn.net/cohort/nn"
	"go.polydawn.net/cohort/project"
	"go.polydawn.net/cohort/reconcile"
	"go.polydawn.net/cohort/transport"
	"go.polydawn.net/cohort/worker"
)

// interface assertion
var _ project.Project = &Project{}

type State string

const (
	Collecting  State = "collecting"
	Reconciling State = "reconciling"
	Dispatched  State = "dispatched"
	Complete    State = "complete"
)

type partial struct {
	first   def.JobID // lowest job id covered; cohort order.
	partial reconcile.Partial
}

type Project struct {
	project.Core
	opts def.ProjectOptions
	rand *rand.Rand

	network     *nn.Network
	trainer     nn.TrainerOptions
	trainingSet []nn.Sample
	testSet     []nn.Sample
	policy      reconcile.Policy
	numWorkers  int
	epochs      int

	epoch      int
	generation int // how many times jobs have been cut; a result must match the current cut.
	state      State
	jobs       []*def.Job // the current cut's jobs, indexed by id.
	completed  map[def.JobID]bool
	partials   []partial
	history    []def.EpochScore

	createdAt   time.Time
	projectTime time.Duration
	failure     string
}

func New(id def.ProjectID, opts def.ProjectOptions, cfg project.Config) (*Project, error) {
	cfg = cfg.WithDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.ProjectType != def.ProjectTypeANN {
		return nil, def.ValidationError.New("project type %q is not an ANN project", opts.ProjectType)
	}
	set := opts.TrainingSet
	if len(set) == 0 {
		gen, err := cfg.Registry.TrainingSet(opts.GenerateDataSet)
		if err != nil {
			return nil, err
		}
		set = gen()
	}
	p := &Project{
		opts:        opts,
		rand:        cfg.NewRand(),
		trainingSet: set,
		testSet:     opts.TestSet,
		policy:      opts.MergePolicy,
		numWorkers:  opts.NumWorkers,
		epochs:      opts.Epochs,
		state:       Collecting,
		createdAt:   cfg.Clock(),
	}
	p.Init(id, cfg, project.Hooks{
		Assign: func(w *worker.Worker, max int) { p.assign(w, max) },
		Keep:   p.current,
		Done:   func() bool { return p.state == Complete },
	})
	if p.policy == "" {
		p.policy = cfg.MergePolicy
	}
	if p.numWorkers <= 0 {
		p.numWorkers = cfg.NumWorkers
	}
	if p.epochs <= 0 {
		p.epochs = def.DefaultEpochs
	}
	if opts.TrainerOptions != nil {
		p.trainer = *opts.TrainerOptions
	}
	p.trainer = p.trainer.Defaults()

	network, err := nn.Perceptron(p.rand, opts.Layers()...)
	if err != nil {
		return nil, def.ValidationError.Wrap(err)
	}
	p.network = network
	for i, s := range set {
		if len(s.Input) != network.InputSize() || len(s.Output) != network.OutputSize() {
			return nil, def.ValidationError.New("training sample %d does not fit a %v network", i, opts.Layers())
		}
	}
	p.createJobs(p.numWorkers)
	p.Log.Info("project created", "title", opts.Title, "layers", opts.Layers(), "samples", len(set), "policy", p.policy)
	return p, nil
}

/*
	Rebuild a project from its persisted record.  Training resumes from
	the last reconciled network at the start of the recorded epoch;
	partials that were in flight are simply trained again.
*/
func Restore(rec def.ProjectRecord, cfg project.Config) (*Project, error) {
	p, err := New(rec.ProjectID, rec.Options, cfg)
	if err != nil {
		return nil, err
	}
	p.Mu.Lock()
	defer p.Mu.Unlock()
	p.createdAt = rec.CreatedAt
	if rec.Network != nil {
		if err := p.updateNetwork(rec.Network); err != nil {
			return nil, err
		}
	}
	p.epoch = rec.Epoch
	p.generation = rec.Generation
	p.history = rec.History
	p.failure = rec.Failure
	if rec.Complete {
		p.state = Complete
		p.Result = rec.FinalResult
		p.projectTime = rec.ProjectTime
		p.jobs = nil
		p.Queue.Reset()
	} else {
		p.createJobs(p.numWorkers)
	}
	p.Log.Info("project restored", "epoch", p.epoch, "complete", p.state == Complete)
	return p, nil
}

func (p *Project) Type() def.ProjectType { return def.ProjectTypeANN }

/*
	Replace the current epoch's jobs with `n` fresh partitions (zero or
	less means the project's numWorkers).  Jobs in flight are forgotten;
	idle workers get the new ones.
*/
func (p *Project) CreateJobs(n int) {
	p.Mu.Lock()
	defer p.Mu.Unlock()
	if p.state == Complete || p.Closed {
		return
	}
	for _, w := range p.Roster.All() {
		w.ReleaseAll()
	}
	p.createJobs(n)
	p.FillIdle("")
}

/*
	Shuffle the training set once and cut it into `n` contiguous
	partitions of `len/n` samples, the last one taking the remainder.
	There are never more partitions than samples.
*/
func (p *Project) createJobs(n int) {
	if n <= 0 {
		n = p.numWorkers
	}
	if n > len(p.trainingSet) {
		n = len(p.trainingSet)
	}
	set := append([]nn.Sample(nil), p.trainingSet...)
	p.rand.Shuffle(len(set), func(i, j int) { set[i], set[j] = set[j], set[i] })

	p.generation++
	snapshot := p.network.Clone()
	opts := p.trainer
	size := 0
	if n > 0 {
		size = len(set) / n
	}
	p.jobs = make([]*def.Job, n)
	for i := 0; i < n; i++ {
		end := (i + 1) * size
		if i == n-1 {
			end = len(set)
		}
		job := def.NewJob(nil, def.JobID(i), p.ID())
		job.ProjectType = def.ProjectTypeANN
		job.JobsLength = n
		job.Epoch = p.epoch
		job.Generation = p.generation
		job.TrainingSet = set[i*size : end]
		job.Network = snapshot
		job.TrainerOptions = &opts
		job.MergePolicy = p.policy
		p.jobs[i] = job
	}
	p.Queue.Reset()
	p.Queue.Push(p.jobs...)
	p.completed = make(map[def.JobID]bool, n)
	p.partials = nil
	p.state = Collecting
}

func (p *Project) CreateWorker(ready def.ReadyMessage, peer transport.Peer) error {
	p.Mu.Lock()
	defer p.Mu.Unlock()
	if p.Closed {
		return def.UnknownProjectError.New("project %s is closed", p.ID())
	}
	w := worker.New(ready, peer)
	if old := p.Roster.Add(w); old != nil {
		p.Requeue(old.ReleaseAll())
	}
	p.Log.Info("worker joined", "worker", w.WorkerID, "maxJobs", w.MaxJobs)
	if p.state == Complete {
		p.Emit(w, p.FinalResultMessage())
		return nil
	}
	p.Fill(w)
	return nil
}

// Assign a single job, as a batch of one.
func (p *Project) AssignJob(w *worker.Worker) *def.Job {
	p.Mu.Lock()
	defer p.Mu.Unlock()
	batch := p.assign(w, 1)
	if len(batch) == 0 {
		return nil
	}
	return batch[0]
}

/*
	Hand the worker up to `max` queued jobs as one batch.  Every job of
	the batch carries the batch size, which is what a participant waits
	for before merging its partials and reporting.
*/
func (p *Project) assign(w *worker.Worker, max int) []*def.Job {
	if p.state == Complete || p.Closed {
		return nil
	}
	if !w.IsAvailable() {
		p.Log.Error("cannot assign job", "err", def.CapacityExceededError.New("worker %s is at capacity (%d jobs)", w.WorkerID, w.MaxJobs))
		return nil
	}
	if p.Queue.Len() == 0 {
		p.Log.Debug("no job to assign", "worker", w.WorkerID, "err", def.StarvationError.New("epoch %d is draining", p.epoch))
		return nil
	}
	now := p.Cfg.Clock()
	var batch []*def.Job
	for len(batch) < max && w.IsAvailable() && p.Queue.Len() > 0 {
		job := p.Queue.Pop()
		job.WorkerID = w.WorkerID
		job.AssignedAt = now
		w.Assign(job)
		batch = append(batch, job)
	}
	for _, job := range batch {
		job.CohortSize = len(batch)
		p.Emit(w, def.JobMessage(job.Clone()))
	}
	p.Timer.Touch()
	return batch
}

// Whether a job is one of the current cut's and still wants a result.
func (p *Project) current(job *def.Job) bool {
	return job.Epoch == p.epoch && job.Generation == p.generation &&
		int(job.JobID) < len(p.jobs) && p.jobs[job.JobID] == job && !p.completed[job.JobID]
}

func (p *Project) HandleResult(result *def.Job) bool {
	p.Mu.Lock()
	defer p.Mu.Unlock()
	if p.Closed || p.state == Complete {
		return false
	}
	log := p.Log.New("epoch", result.Epoch, "job", result.JobID, "worker", result.WorkerID)
	reporter := p.Roster.Get(result.WorkerID)
	if result.Epoch != p.epoch {
		log.Debug("ignoring result", "err", def.DuplicateResultError.New("result is for epoch %d; now training epoch %d", result.Epoch, p.epoch))
		return false
	}
	// The epoch was cut again since this job went out; its partition no longer exists.
	if result.Generation != p.generation {
		log.Info("ignoring result", "err", def.DuplicateResultError.New("result is for cut %d of epoch %d; now on cut %d", result.Generation, p.epoch, p.generation))
		return false
	}

	covers := result.Covered()
	var fresh []def.JobID
	for _, id := range covers {
		if int(id) < 0 || int(id) >= len(p.jobs) {
			log.Warn("result covers a job this epoch never issued", "covers", covers)
			return false
		}
		if !p.completed[id] {
			fresh = append(fresh, id)
		}
	}
	if len(fresh) == 0 {
		log.Debug("ignoring result", "err", def.DuplicateResultError.New("jobs %v already complete", covers))
		p.releaseFrom(reporter, covers)
		return false
	}
	if len(fresh) < len(covers) || result.Failure != "" || result.Partial == nil || !p.network.SameShape(&result.Partial.Network) {
		switch {
		case result.Failure != "":
			log.Error("job failed on worker", "failure", result.Failure)
		case result.Partial == nil:
			log.Error("result carries no trained network")
		case len(fresh) < len(covers):
			log.Warn("merged result overlaps jobs already complete; training the rest again", "covers", covers)
		default:
			log.Error("trained network does not match the project's network")
		}
		p.releaseFrom(reporter, covers)
		var again []*def.Job
		for _, id := range fresh {
			if !p.Queue.Contains(id) && p.Roster.Holder(id) == nil {
				again = append(again, p.jobs[id])
			}
		}
		p.Requeue(again)
		p.FillIdle(result.WorkerID)
		return false
	}

	var freed []*worker.Worker
	samples := 0
	for _, id := range covers {
		p.Queue.Remove(id)
		for _, w := range p.Roster.All() {
			if w.Release(id) != nil {
				freed = append(freed, w)
			}
		}
		p.completed[id] = true
		samples += len(p.jobs[id].TrainingSet)
	}
	part := *result.Partial
	if part.Partitions < 1 {
		part.Partitions = len(covers)
	}
	if part.Samples < 1 {
		part.Samples = samples
	}
	first := covers[0]
	for _, id := range covers {
		if id < first {
			first = id
		}
	}
	p.partials = append(p.partials, partial{first, part})

	if len(p.completed) == len(p.jobs) {
		return p.reconcile()
	}
	for _, w := range freed {
		p.Fill(w)
	}
	if reporter != nil {
		p.Fill(reporter)
	}
	return false
}

func (p *Project) releaseFrom(w *worker.Worker, ids []def.JobID) {
	if w == nil {
		return
	}
	released := false
	for _, id := range ids {
		if w.Release(id) != nil {
			released = true
		}
	}
	if released {
		p.Fill(w)
	}
}

/*
	Merge the epoch's partials in cohort order, score the result, and
	either finish or start the next epoch.
*/
func (p *Project) reconcile() bool {
	p.state = Reconciling
	p.Timer.Stop()
	sort.Slice(p.partials, func(i, j int) bool { return p.partials[i].first < p.partials[j].first })
	cohort := make([]reconcile.Partial, len(p.partials))
	for i, pt := range p.partials {
		cohort[i] = pt.partial
	}
	merged, err := reconcile.Merge(cohort, p.policy)
	if err == nil {
		err = p.updateNetwork(&merged.Network)
	}
	if err != nil {
		p.failure = err.Error()
		p.Log.Error("reconciliation failed; training the epoch again", "err", err)
		p.resetTrainingSet()
		return false
	}
	score, err := p.testNetwork(p.network)
	if err != nil {
		p.failure = err.Error()
		p.Log.Error("could not score the reconciled network", "err", err)
	}
	p.history = append(p.history, def.EpochScore{Epoch: p.epoch, Error: score})
	p.Log.Info("epoch reconciled", "epoch", p.epoch, "partials", len(cohort), "error", score)
	p.state = Dispatched
	p.epoch++

	if p.epoch >= p.epochs || (p.opts.TargetError > 0 && score <= p.opts.TargetError) {
		p.completeProject(def.ANNResult{
			Network: p.network.Clone(),
			Error:   score,
			Epochs:  p.epoch,
			History: append([]def.EpochScore(nil), p.history...),
		})
		return true
	}
	p.resetTrainingSet()
	return false
}

// Evaluate a network against the test set (the training set, if there's no test set).
func (p *Project) TestNetwork(network *nn.Network) (float64, error) {
	p.Mu.Lock()
	defer p.Mu.Unlock()
	return p.testNetwork(network)
}

func (p *Project) testNetwork(network *nn.Network) (float64, error) {
	set := p.testSet
	if len(set) == 0 {
		set = p.trainingSet
	}
	res, err := nn.NewTrainer(network.Clone(), p.rand).Test(set, p.trainer)
	return res.Error, err
}

// Replace the live network.  It must have the project's architecture.
func (p *Project) UpdateNetwork(network *nn.Network) error {
	p.Mu.Lock()
	defer p.Mu.Unlock()
	return p.updateNetwork(network)
}

func (p *Project) updateNetwork(network *nn.Network) error {
	if err := network.Validate(); err != nil {
		return def.ValidationError.Wrap(err)
	}
	if !p.network.SameShape(network) {
		return def.ValidationError.New("network does not have the %v architecture of project %s", p.opts.Layers(), p.ID())
	}
	p.network = network.Clone()
	return nil
}

/*
	Start the current epoch over: drop every job in flight, partition the
	training set again across the capacity of the workers now present,
	and hand the new jobs out.
*/
func (p *Project) ResetTrainingSet() {
	p.Mu.Lock()
	defer p.Mu.Unlock()
	if p.state == Complete || p.Closed {
		return
	}
	p.resetTrainingSet()
}

func (p *Project) resetTrainingSet() {
	for _, w := range p.Roster.All() {
		w.ReleaseAll()
	}
	n := p.Roster.Capacity()
	if n == 0 {
		n = p.numWorkers
	}
	p.createJobs(n)
	p.FillIdle("")
}

func (p *Project) CompleteProject(result interface{}) {
	p.Mu.Lock()
	defer p.Mu.Unlock()
	p.completeProject(result)
}

func (p *Project) completeProject(result interface{}) {
	if p.state == Complete {
		return
	}
	p.Timer.Stop()
	p.state = Complete
	p.Result = result
	p.projectTime = p.Cfg.Clock().Sub(p.createdAt)
	p.Queue.Reset()
	for _, w := range p.Roster.All() {
		w.ReleaseAll()
	}
	p.Log.Info("project complete", "epochs", p.epoch, "time", p.projectTime)
	p.Broadcast(p.FinalResultMessage())
}

func (p *Project) Status() def.ProjectStatus {
	p.Mu.Lock()
	defer p.Mu.Unlock()
	return def.ProjectStatus{
		ProjectID:        p.ID(),
		ProjectType:      def.ProjectTypeANN,
		Title:            p.opts.Title,
		AvailableJobsNum: p.Queue.Len(),
		JobsLength:       len(p.jobs),
		CompletedJobs:    len(p.completed),
		Workers:          p.Roster.IDs(),
		FinalResult:      p.Result,
		Complete:         p.state == Complete,
		ProjectTime:      p.projectTime,
		Epoch:            p.epoch,
		Failure:          p.failure,
	}
}

func (p *Project) Record() def.ProjectRecord {
	p.Mu.Lock()
	defer p.Mu.Unlock()
	return def.ProjectRecord{
		ProjectID:   p.ID(),
		ProjectType: def.ProjectTypeANN,
		Title:       p.opts.Title,
		Complete:    p.state == Complete,
		CreatedAt:   p.createdAt,
		ProjectTime: p.projectTime,
		Options:     p.opts,
		FinalResult: p.Result,
		Failure:     p.failure,
		Network:     p.network.Clone(),
		Epoch:       p.epoch,
		Generation:  p.generation,
		History:     append([]def.EpochScore(nil), p.history...),
	}
}

func (p *Project) IsComplete() bool {
	p.Mu.Lock()
	defer p.Mu.Unlock()
	return p.state == Complete
}

func (p *Project) State() State {
	p.Mu.Lock()
	defer p.Mu.Unlock()
	return p.state
}

func (p *Project) Epoch() int {
	p.Mu.Lock()
	defer p.Mu.Unlock()
	return p.epoch
}

// A copy of the live network.
func (p *Project) Network() *nn.Network {
	p.Mu.Lock()
	defer p.Mu.Unlock()
	return p.network.Clone()
}
