/*
	Package coordinator is the process-wide registry of projects and the
	router for every inbound event.

	A Controller owns its projects and a ledger mapping each transport
	session to the project it joined.  Each operation holds the
	controller's lock for its whole duration and takes project locks
	inside it, never the other way around.  Broadcasts happen after the
	controller's lock is released.
*/
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/inconshreveable/log15"

	"go.polydawn.net/cohort/def"
	"go.polydawn.net/cohort/project"
	"go.polydawn.net/cohort/project/ann"
	"go.polydawn.net/cohort/snapshot"
	"go.polydawn.net/cohort/transport"
)

// interface assertion
var _ transport.Service = &Controller{}

type Config struct {
	Project        project.Config
	BackupInterval time.Duration // zero persists only on Close.
}

type Controller struct {
	cfg       Config
	store     snapshot.Store
	broadcast transport.Broadcaster
	log       log15.Logger

	mu       sync.Mutex
	projects map[def.ProjectID]project.Project
	order    []def.ProjectID
	ledger   map[def.WorkerID]def.ProjectID
	nextID   int

	stop chan struct{}
	wg   sync.WaitGroup
}

func New(cfg Config, store snapshot.Store, broadcast transport.Broadcaster, log log15.Logger) *Controller {
	cfg.Project.Log = log
	cfg.Project = cfg.Project.WithDefaults()
	return &Controller{
		cfg:       cfg,
		store:     store,
		broadcast: broadcast,
		log:       log,
		projects:  make(map[def.ProjectID]project.Project),
		ledger:    make(map[def.WorkerID]def.ProjectID),
		stop:      make(chan struct{}),
	}
}

/*
	Load the persisted projects, rebuild them, and start the persistence
	cycle.  The cycle runs until the context is done or Close is called.

	A store that can't be read is an error: starting empty would
	overwrite the snapshot at the next interval.  A single record that
	can't be rebuilt is logged and skipped.
*/
func (c *Controller) Start(ctx context.Context) error {
	records, err := c.store.Load()
	if err != nil {
		return err
	}
	c.mu.Lock()
	for _, rec := range records {
		p, err := restoreProject(rec, c.cfg.Project)
		if err != nil {
			c.log.Error("could not restore project", "project", rec.ProjectID, "err", err)
			continue
		}
		c.add(p)
		if seq, ok := rec.ProjectID.Seq(); ok && seq >= c.nextID {
			c.nextID = seq + 1
		}
	}
	c.log.Info("coordinator started", "restored", len(c.order), "records", len(records))
	c.mu.Unlock()

	if c.cfg.BackupInterval > 0 {
		c.wg.Add(1)
		go c.persistLoop(ctx)
	}
	return nil
}

func (c *Controller) persistLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.BackupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Persist()
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		}
	}
}

/*
	Replace the store's contents with a snapshot of every project.  Each
	project is recorded under its own lock.  A failure is logged and left
	for the next interval to retry.
*/
func (c *Controller) Persist() error {
	projects := c.list()
	records := make([]def.ProjectRecord, len(projects))
	for i, p := range projects {
		records[i] = p.Record()
	}
	if err := c.store.Replace(records); err != nil {
		c.log.Error("could not persist projects; retrying next interval", "err", err)
		return err
	}
	c.log.Debug("projects persisted", "projects", len(records))
	return nil
}

// Stop the persistence cycle, persist one last time, and stop every project.
func (c *Controller) Close() error {
	select {
	case <-c.stop:
		return nil
	default:
		close(c.stop)
	}
	c.wg.Wait()
	err := c.Persist()
	for _, p := range c.list() {
		p.Close()
	}
	return err
}

func newProject(id def.ProjectID, opts def.ProjectOptions, cfg project.Config) (project.Project, error) {
	switch opts.ProjectType.Normalize() {
	case def.ProjectTypeDefault:
		return project.NewGeneric(id, opts, cfg)
	case def.ProjectTypeANN:
		return ann.New(id, opts, cfg)
	default:
		return nil, def.ValidationError.New("unknown projectType %q", opts.ProjectType)
	}
}

func restoreProject(rec def.ProjectRecord, cfg project.Config) (project.Project, error) {
	switch rec.ProjectType.Normalize() {
	case def.ProjectTypeDefault:
		return project.RestoreGeneric(rec, cfg)
	case def.ProjectTypeANN:
		return ann.Restore(rec, cfg)
	default:
		return nil, def.ValidationError.New("unknown projectType %q", rec.ProjectType)
	}
}

func (c *Controller) add(p project.Project) {
	c.projects[p.ID()] = p
	c.order = append(c.order, p.ID())
}

// Projects in creation order.
func (c *Controller) list() []project.Project {
	c.mu.Lock()
	defer c.mu.Unlock()
	projects := make([]project.Project, len(c.order))
	for i, id := range c.order {
		projects[i] = c.projects[id]
	}
	return projects
}

func (c *Controller) Project(id def.ProjectID) project.Project {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projects[id]
}

func (c *Controller) CreateProject(opts def.ProjectOptions) (def.ProjectID, error) {
	c.mu.Lock()
	id := def.ProjectIDFor(c.nextID)
	p, err := newProject(id, opts, c.cfg.Project)
	if err != nil {
		c.mu.Unlock()
		c.log.Warn("project refused", "title", opts.Title, "err", err)
		return "", err
	}
	c.nextID++
	c.add(p)
	c.mu.Unlock()

	c.SendUpdateAllProjects(nil)
	c.SendPendingProjects(nil)
	return id, nil
}

/*
	Stop a project and forget it.  Its workers stay connected but are no
	longer attached to anything; they'll need to send ready again.
*/
func (c *Controller) DestroyProject(id def.ProjectID) error {
	c.mu.Lock()
	p, ok := c.projects[id]
	if !ok {
		c.mu.Unlock()
		err := def.UnknownProjectError.New("no project %s", id)
		c.log.Warn("cannot destroy project", "err", err)
		return err
	}
	p.Close()
	delete(c.projects, id)
	for i, pid := range c.order {
		if pid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	for session, pid := range c.ledger {
		if pid == id {
			delete(c.ledger, session)
		}
	}
	c.log.Info("project destroyed", "project", id)
	c.mu.Unlock()

	c.SendUpdateAllProjects(nil)
	c.SendPendingProjects(nil)
	c.SendUpdateWorkers(nil)
	return nil
}

func (c *Controller) UserReady(ready def.ReadyMessage, peer transport.Peer) {
	c.mu.Lock()
	session := peer.ID()
	p, ok := c.projects[ready.ProjectID]
	if !ok {
		c.mu.Unlock()
		err := def.UnknownProjectError.New("no project %s", ready.ProjectID)
		c.log.Error("ready for unknown project", "session", session, "err", err)
		peer.Emit(def.ErrorMessage(err))
		return
	}
	if prev, joined := c.ledger[session]; joined && prev != ready.ProjectID {
		if old, ok := c.projects[prev]; ok {
			old.RemoveWorker(session)
		}
	}
	if err := p.CreateWorker(ready, peer); err != nil {
		c.mu.Unlock()
		c.log.Error("could not add worker", "session", session, "project", ready.ProjectID, "err", err)
		return
	}
	c.ledger[session] = ready.ProjectID
	c.mu.Unlock()

	c.SendUpdateWorkers(nil)
}

func (c *Controller) UserJobDone(job *def.Job) {
	c.mu.Lock()
	p, ok := c.projects[job.ProjectID]
	if !ok {
		c.mu.Unlock()
		c.log.Error("result for unknown project", "job", job.JobID, "err", def.UnknownProjectError.New("no project %s", job.ProjectID))
		return
	}
	complete := p.HandleResult(job)
	c.mu.Unlock()

	if complete {
		c.log.Info("project complete", "project", job.ProjectID)
		c.SendUpdateAllProjects(nil)
		c.SendPendingProjects(nil)
	}
}

func (c *Controller) UserDisconnect(session def.WorkerID) {
	c.mu.Lock()
	pid, ok := c.ledger[session]
	if !ok {
		c.mu.Unlock()
		c.log.Error("disconnect", "err", def.UnknownSessionError.New("session %s never joined a project", session))
		return
	}
	if p, ok := c.projects[pid]; ok {
		p.RemoveWorker(session)
	}
	delete(c.ledger, session)
	c.mu.Unlock()

	c.SendUpdateAllProjects(nil)
	c.SendUpdateWorkers(nil)
}

func (c *Controller) Status() []def.ProjectStatus {
	projects := c.list()
	statuses := make([]def.ProjectStatus, len(projects))
	for i, p := range projects {
		statuses[i] = p.Status()
	}
	return statuses
}

func (c *Controller) WorkerStatus() []def.WorkerStatus {
	var statuses []def.WorkerStatus
	for _, p := range c.list() {
		statuses = append(statuses, p.Workers()...)
	}
	return statuses
}

// Send the status of every project to one destination, or to everyone given nil.
func (c *Controller) SendUpdateAllProjects(dest transport.Emitter) {
	c.send(dest, &def.Message{Event: def.EventUpdateAllProjects, Projects: c.Status()})
}

func (c *Controller) SendUpdateWorkers(dest transport.Emitter) {
	c.send(dest, &def.Message{Event: def.EventUpdateWorkers, Workers: c.WorkerStatus()})
}

// Status of the projects that aren't complete yet.
func (c *Controller) SendPendingProjects(dest transport.Emitter) {
	var pending []def.ProjectStatus
	for _, st := range c.Status() {
		if !st.Complete {
			pending = append(pending, st)
		}
	}
	c.send(dest, &def.Message{Event: def.EventUpdatePendingProjects, Projects: pending})
}

func (c *Controller) send(dest transport.Emitter, msg *def.Message) {
	if dest == nil {
		dest = c.broadcast
	}
	if dest == nil {
		return
	}
	if err := dest.Emit(msg); err != nil {
		c.log.Warn("could not send update", "event", msg.Event, "err", err)
	}
}
