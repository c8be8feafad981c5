package project

import (
	"fmt"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"go.polydawn.net/cohort/def"
	"go.polydawn.net/cohort/lib/testutil"
	"go.polydawn.net/cohort/transform"
	"go.polydawn.net/cohort/transport"
)

var doubleSum = def.ProjectOptions{
	Title:         "double then sum",
	DataSet:       []interface{}{1, 2, 3, 4},
	MapData:       "double",
	ReduceResults: "sum",
}

// What a participant would send back after running the job's map.
func execute(c C, job *def.Job) *def.Job {
	out, err := transform.Builtin().Apply(job.MapData, job.Data)
	c.So(err, ShouldBeNil)
	done := job.Clone()
	done.Result = out
	return done
}

// No job is both queued and complete, and no job is lost.
func shouldConserveJobs(c C, p *Generic) {
	inFlight := 0
	for _, w := range p.Roster.All() {
		inFlight += len(w.CurrentJobs())
	}
	for _, job := range p.Queue.Jobs() {
		_, done := p.completed[job.JobID]
		c.So(done, ShouldBeFalse)
	}
	c.So(len(p.completed)+p.Queue.Len()+inFlight, ShouldEqual, len(p.jobs))
}

func TestGenericProject(t *testing.T) {
	Convey("Given a double-then-sum project over [1,2,3,4]", t, func(c C) {
		cfg := Config{Log: testutil.TestLogger(c)}
		p, err := NewGeneric("project0", doubleSum, cfg)
		So(err, ShouldBeNil)
		defer p.Close()

		So(p.Status().AvailableJobsNum, ShouldEqual, 4)
		So(p.Status().JobsLength, ShouldEqual, 4)
		So(p.IsComplete(), ShouldBeFalse)

		Convey("Four single-slot workers each receive one job", func() {
			peers := make([]*transport.Recorder, 4)
			for i := range peers {
				peers[i] = transport.NewRecorder(def.WorkerID(fmt.Sprintf("s%d", i)))
				So(p.CreateWorker(def.ReadyMessage{ProjectID: "project0", MaxJobs: 1}, peers[i]), ShouldBeNil)
				So(peers[i].Jobs(), ShouldHaveLength, 1)
			}
			So(p.Status().AvailableJobsNum, ShouldEqual, 0)
			So(p.TimerState(), ShouldEqual, TimerClean) // no straggler timeout configured
			shouldConserveJobs(c, p)

			Convey("Jobs are stamped at assignment", func() {
				job := peers[2].Jobs()[0]
				So(job.JobID, ShouldEqual, 2)
				So(job.WorkerID, ShouldEqual, def.WorkerID("s2"))
				So(job.JobsLength, ShouldEqual, 4)
				So(job.MapData, ShouldEqual, "double")
				So(job.Data, ShouldEqual, 3)
			})

			Convey("Reporting every result, in any order, completes the project with 20", func() {
				completions := 0
				for _, i := range []int{3, 1, 0, 2} {
					if p.HandleResult(execute(c, peers[i].Jobs()[0])) {
						completions++
					}
					shouldConserveJobs(c, p)
				}
				So(completions, ShouldEqual, 1)
				So(p.IsComplete(), ShouldBeTrue)
				So(p.FinalResult(), ShouldEqual, 20.0)
				for _, peer := range peers {
					msgs := peer.Events(def.EventFinalResult)
					So(msgs, ShouldHaveLength, 1)
					So(msgs[0].FinalResult, ShouldEqual, 20.0)
				}

				Convey("Re-delivering a result afterwards changes nothing", func() {
					So(p.HandleResult(execute(c, peers[0].Jobs()[0])), ShouldBeFalse)
					So(p.Status().CompletedJobs, ShouldEqual, 4)
					So(p.FinalResult(), ShouldEqual, 20.0)
				})

				Convey("A worker joining late is told the result and given nothing", func() {
					late := transport.NewRecorder("late")
					So(p.CreateWorker(def.ReadyMessage{ProjectID: "project0", MaxJobs: 1}, late), ShouldBeNil)
					So(late.Jobs(), ShouldBeEmpty)
					So(late.Events(def.EventFinalResult), ShouldHaveLength, 1)
				})
			})

			Convey("A duplicate result before completion is ignored", func() {
				first := execute(c, peers[0].Jobs()[0])
				So(p.HandleResult(first), ShouldBeFalse)
				So(p.Status().CompletedJobs, ShouldEqual, 1)
				So(p.HandleResult(first), ShouldBeFalse)
				So(p.Status().CompletedJobs, ShouldEqual, 1)
				shouldConserveJobs(c, p)
			})

			Convey("Disconnecting a worker returns exactly its job to the front", func() {
				So(p.RemoveWorker("s1"), ShouldEqual, 1)
				avail := p.Available()
				So(avail, ShouldHaveLength, 1)
				So(avail[0].JobID, ShouldEqual, 1)
				So(avail[0].Data, ShouldEqual, 2)
				So(p.Status().Workers, ShouldResemble, []def.WorkerID{"s0", "s2", "s3"})
				shouldConserveJobs(c, p)

				Convey("The next freed worker picks it up", func() {
					So(p.HandleResult(execute(c, peers[0].Jobs()[0])), ShouldBeFalse)
					So(peers[0].Jobs(), ShouldHaveLength, 2)
					So(peers[0].Jobs()[1].JobID, ShouldEqual, 1)
					So(p.Status().AvailableJobsNum, ShouldEqual, 0)
				})
			})

			Convey("Removing an unknown worker changes nothing", func() {
				So(p.RemoveWorker("nobody"), ShouldEqual, 0)
				shouldConserveJobs(c, p)
			})

			Convey("A failed job is queued again and not handed back to its worker", func() {
				failed := peers[0].Jobs()[0].Clone()
				failed.Failure = "no map transform named \"double\""
				So(p.HandleResult(failed), ShouldBeFalse)
				So(p.Status().CompletedJobs, ShouldEqual, 0)
				So(p.Available(), ShouldHaveLength, 1)
				So(peers[0].Jobs(), ShouldHaveLength, 1)
				shouldConserveJobs(c, p)
			})
		})

		Convey("A worker at capacity is given nothing more", func() {
			peer := transport.NewRecorder("big")
			So(p.CreateWorker(def.ReadyMessage{ProjectID: "project0", MaxJobs: 2}, peer), ShouldBeNil)
			So(peer.Jobs(), ShouldHaveLength, 2)
			w := p.Roster.Get("big")
			So(p.AssignJob(w), ShouldBeNil)
			So(w.CurrentJobs(), ShouldHaveLength, 2)
			So(p.Status().AvailableJobsNum, ShouldEqual, 2)

			Convey("Rejoining under the same session re-queues what it held", func() {
				So(p.CreateWorker(def.ReadyMessage{ProjectID: "project0", MaxJobs: 1}, peer), ShouldBeNil)
				So(p.Roster.Len(), ShouldEqual, 1)
				So(p.Roster.Get("big").CurrentJobs(), ShouldHaveLength, 1)
				So(p.Available()[0].JobID, ShouldEqual, 1)
				shouldConserveJobs(c, p)
			})
		})

		Convey("A draining queue assigns nothing", func() {
			peer := transport.NewRecorder("greedy")
			So(p.CreateWorker(def.ReadyMessage{ProjectID: "project0", MaxJobs: 8}, peer), ShouldBeNil)
			So(peer.Jobs(), ShouldHaveLength, 4)
			So(p.AssignJob(p.Roster.Get("greedy")), ShouldBeNil)
		})

		Convey("With no workers at all the project never completes", func() {
			time.Sleep(10 * time.Millisecond)
			So(p.IsComplete(), ShouldBeFalse)
			So(p.Status().AvailableJobsNum, ShouldEqual, 4)
		})

		Convey("Results for jobs never issued are ignored", func() {
			So(p.HandleResult(&def.Job{JobID: 9, ProjectID: "project0"}), ShouldBeFalse)
			So(p.Status().CompletedJobs, ShouldEqual, 0)
		})
	})

	Convey("Given a project with a fake clock", t, func(c C) {
		now := time.Unix(1000, 0)
		cfg := Config{Log: testutil.TestLogger(c), Clock: func() time.Time { return now }}
		p, err := NewGeneric("project1", doubleSum, cfg)
		So(err, ShouldBeNil)
		defer p.Close()

		slow := transport.NewRecorder("slow")
		So(p.CreateWorker(def.ReadyMessage{ProjectID: "project1", MaxJobs: 2}, slow), ShouldBeNil)
		now = now.Add(time.Minute)
		fast := transport.NewRecorder("fast")
		So(p.CreateWorker(def.ReadyMessage{ProjectID: "project1", MaxJobs: 2}, fast), ShouldBeNil)

		Convey("Re-queueing stragglers takes exactly the stale jobs", func() {
			n := p.RequeueStragglers(now.Add(-time.Second))
			So(n, ShouldEqual, 2)
			// the freed capacity is handed straight back out
			So(p.Status().AvailableJobsNum, ShouldEqual, 0)
			So(slow.Jobs(), ShouldHaveLength, 4)
			So(p.Roster.Get("fast").CurrentJobs(), ShouldHaveLength, 2)
			shouldConserveJobs(c, p)

			Convey("A late result from the original worker is still taken", func() {
				late := execute(c, slow.Jobs()[0])
				So(p.HandleResult(late), ShouldBeFalse)
				So(p.Status().CompletedJobs, ShouldEqual, 1)
				shouldConserveJobs(c, p)
			})
		})

		Convey("Project time runs from creation to completion", func() {
			for _, peer := range []*transport.Recorder{slow, fast} {
				for _, job := range peer.Jobs() {
					p.HandleResult(execute(c, job))
				}
			}
			So(p.IsComplete(), ShouldBeTrue)
			So(p.Status().ProjectTime, ShouldEqual, time.Minute)
		})
	})

	Convey("Given a project with a short straggler timeout", t, func(c C) {
		cfg := Config{Log: testutil.TestLogger(c), StragglerTimeout: 20 * time.Millisecond}
		p, err := NewGeneric("project2", doubleSum, cfg)
		So(err, ShouldBeNil)
		defer p.Close()

		peer := transport.NewRecorder("s0")
		So(p.CreateWorker(def.ReadyMessage{ProjectID: "project2", MaxJobs: 2}, peer), ShouldBeNil)
		So(p.TimerState(), ShouldEqual, TimerStarted)

		Convey("Unreported jobs are handed out again after the timeout", func() {
			deadline := time.Now().Add(2 * time.Second)
			for len(peer.Jobs()) < 4 && time.Now().Before(deadline) {
				time.Sleep(5 * time.Millisecond)
			}
			jobs := peer.Jobs()
			So(len(jobs), ShouldBeGreaterThanOrEqualTo, 4)
			So(jobs[2].JobID, ShouldEqual, 0)
			So(jobs[3].JobID, ShouldEqual, 1)
		})

		Convey("The timer stops once the project completes", func() {
			for _, i := range []def.JobID{0, 1, 2, 3} {
				p.HandleResult(&def.Job{JobID: i, ProjectID: "project2", WorkerID: "s0", Result: 1})
			}
			So(p.IsComplete(), ShouldBeTrue)
			So(p.TimerState(), ShouldEqual, TimerStopped)
		})
	})

	Convey("Project construction", t, func(c C) {
		cfg := Config{Log: testutil.TestLogger(c)}

		Convey("refuses transforms that aren't registered", func() {
			opts := doubleSum
			opts.MapData = "eval"
			_, err := NewGeneric("project0", opts, cfg)
			So(err, testutil.ShouldBeErrorClass, def.TransformError)
		})

		Convey("refuses invalid options", func() {
			opts := doubleSum
			opts.DataSet = nil
			_, err := NewGeneric("project0", opts, cfg)
			So(err, testutil.ShouldBeErrorClass, def.ValidationError)
		})

		Convey("can generate its data set", func() {
			opts := doubleSum
			opts.DataSet = nil
			opts.GenerateDataSet = "range100"
			p, err := NewGeneric("project0", opts, cfg)
			So(err, ShouldBeNil)
			So(p.Status().JobsLength, ShouldEqual, 100)
		})

		Convey("completes an empty data set immediately", func() {
			opts := doubleSum
			opts.DataSet = []interface{}{}
			p, err := NewGeneric("project0", opts, cfg)
			So(err, ShouldBeNil)
			So(p.IsComplete(), ShouldBeTrue)
			So(p.FinalResult(), ShouldEqual, 0.0)
		})

		Convey("records a failing reduce and stays incomplete", func() {
			opts := doubleSum
			opts.DataSet = []interface{}{1}
			p, err := NewGeneric("project0", opts, cfg)
			So(err, ShouldBeNil)
			So(p.HandleResult(&def.Job{JobID: 0, ProjectID: "project0", Result: "not a number"}), ShouldBeFalse)
			So(p.IsComplete(), ShouldBeFalse)
			So(p.Status().Failure, ShouldNotBeEmpty)
		})
	})

	Convey("Restoring from a record", t, func(c C) {
		cfg := Config{Log: testutil.TestLogger(c)}
		p, err := NewGeneric("project3", doubleSum, cfg)
		So(err, ShouldBeNil)
		p.HandleResult(&def.Job{JobID: 1, ProjectID: "project3", Result: 4.0})
		p.HandleResult(&def.Job{JobID: 3, ProjectID: "project3", Result: 8.0})
		rec := p.Record()
		p.Close()
		So(rec.CompletedJobs, ShouldHaveLength, 2)

		Convey("keeps completed jobs and queues only the rest", func() {
			r, err := RestoreGeneric(rec, cfg)
			So(err, ShouldBeNil)
			defer r.Close()
			st := r.Status()
			So(st.CompletedJobs, ShouldEqual, 2)
			So(st.AvailableJobsNum, ShouldEqual, 2)
			So(r.Available()[0].JobID, ShouldEqual, 0)
			So(r.Available()[1].JobID, ShouldEqual, 2)

			r.HandleResult(&def.Job{JobID: 0, ProjectID: "project3", Result: 2.0})
			So(r.HandleResult(&def.Job{JobID: 2, ProjectID: "project3", Result: 6.0}), ShouldBeTrue)
			So(r.FinalResult(), ShouldEqual, 20.0)
		})

		Convey("keeps a complete project complete", func() {
			rec.Complete = true
			rec.FinalResult = 20.0
			r, err := RestoreGeneric(rec, cfg)
			So(err, ShouldBeNil)
			defer r.Close()
			So(r.IsComplete(), ShouldBeTrue)
			So(r.FinalResult(), ShouldEqual, 20.0)
			So(r.Status().AvailableJobsNum, ShouldEqual, 0)
		})
	})
}
