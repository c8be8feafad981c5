package transport

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"go.polydawn.net/cohort/def"
	"go.polydawn.net/cohort/lib/testutil"
)

// Records what the transport hands it.
type fakeService struct {
	ready       chan def.ReadyMessage
	peers       chan Peer
	done        chan *def.Job
	disconnects chan def.WorkerID
	created     []def.ProjectOptions
}

func newFakeService() *fakeService {
	return &fakeService{
		ready:       make(chan def.ReadyMessage, 8),
		peers:       make(chan Peer, 8),
		done:        make(chan *def.Job, 8),
		disconnects: make(chan def.WorkerID, 8),
	}
}

func (s *fakeService) UserReady(ready def.ReadyMessage, peer Peer) {
	s.ready <- ready
	s.peers <- peer
}
func (s *fakeService) UserJobDone(job *def.Job)            { s.done <- job }
func (s *fakeService) UserDisconnect(session def.WorkerID) { s.disconnects <- session }
func (s *fakeService) CreateProject(opts def.ProjectOptions) (def.ProjectID, error) {
	if err := opts.Validate(); err != nil {
		return "", err
	}
	s.created = append(s.created, opts)
	return def.ProjectIDFor(len(s.created) - 1), nil
}
func (s *fakeService) SendUpdateAllProjects(dest Emitter) {
	dest.Emit(&def.Message{Event: def.EventUpdateAllProjects, Projects: s.Status()})
}
func (s *fakeService) Status() []def.ProjectStatus {
	return []def.ProjectStatus{{ProjectID: "project0", Title: "double", JobsLength: 4, AvailableJobsNum: 4}}
}
func (s *fakeService) WorkerStatus() []def.WorkerStatus {
	return []def.WorkerStatus{{WorkerID: "s0", ProjectID: "project0", MaxJobs: 2}}
}
func (s *fakeService) DestroyProject(id def.ProjectID) error {
	if id != "project0" {
		return def.UnknownProjectError.New("no project %s", id)
	}
	return nil
}

func TestDispatch(t *testing.T) {
	Convey("Dispatching inbound envelopes", t, func() {
		svc := newFakeService()
		peer := NewRecorder("s1")

		Convey("ready reaches the handler with the peer", func() {
			err := Dispatch(svc, peer, &def.Message{Event: def.EventReady, Ready: &def.ReadyMessage{ProjectID: "project0", MaxJobs: 2}})
			So(err, ShouldBeNil)
			So((<-svc.ready).MaxJobs, ShouldEqual, 2)
			So((<-svc.peers).ID(), ShouldEqual, def.WorkerID("s1"))
		})

		Convey("jobDone is attributed to the sending session", func() {
			err := Dispatch(svc, peer, &def.Message{Event: def.EventJobDone, Job: &def.Job{JobID: 3, WorkerID: "forged"}})
			So(err, ShouldBeNil)
			So((<-svc.done).WorkerID, ShouldEqual, def.WorkerID("s1"))
		})

		Convey("requestUpdate answers the requester", func() {
			So(Dispatch(svc, peer, &def.Message{Event: def.EventRequestUpdate}), ShouldBeNil)
			So(peer.Last().Event, ShouldEqual, def.EventUpdateAllProjects)
		})

		Convey("malformed envelopes are refused", func() {
			So(Dispatch(svc, peer, &def.Message{Event: def.EventReady}), testutil.ShouldBeErrorClass, def.ValidationError)
			So(Dispatch(svc, peer, &def.Message{Event: "shutdown"}), testutil.ShouldBeErrorClass, def.ValidationError)
			So(Dispatch(svc, peer, &def.Message{Event: def.EventCreateProject, Options: &def.ProjectOptions{}}), testutil.ShouldBeErrorClass, def.ValidationError)
		})
	})
}

func TestCodec(t *testing.T) {
	Convey("Untyped numbers decode as floats", t, func() {
		b, err := Encode(&def.Message{Event: def.EventNewJob, Job: def.NewJob(3, 1, "project0")})
		So(err, ShouldBeNil)
		So(string(b), ShouldContainSubstring, `"event":"newJob"`)
		var msg def.Message
		So(Decode(b, &msg), ShouldBeNil)
		So(msg.Job.Data, ShouldEqual, 3.0)
		So(msg.Job.JobID, ShouldEqual, 1)
		So(msg.Ready, ShouldBeNil)
	})
	Convey("Garbage is a codec error", t, func() {
		var msg def.Message
		So(Decode([]byte("{nope"), &msg), testutil.ShouldBeErrorClass, CodecError)
	})
}

func TestHub(t *testing.T) {
	Convey("Given a hub behind the HTTP router", t, func(c C) {
		svc := newFakeService()
		log := testutil.TestLogger(c)
		hub := NewHub(svc, log)
		srv := httptest.NewServer(NewRouter(svc, hub, log))
		defer srv.Close()
		defer hub.Close()

		Convey("A websocket participant can join and be sent jobs", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			conn, err := Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws")
			So(err, ShouldBeNil)
			defer conn.Close()

			So(conn.Emit(&def.Message{Event: def.EventReady, Ready: &def.ReadyMessage{ProjectID: "project0", MaxJobs: 1}}), ShouldBeNil)
			var peer Peer
			select {
			case peer = <-svc.peers:
			case <-time.After(5 * time.Second):
			}
			So(peer, ShouldNotBeNil)
			So(peer.ID(), ShouldNotBeEmpty)
			So(hub.Peers(), ShouldEqual, 1)

			So(peer.Emit(def.JobMessage(def.NewJob(2, 0, "project0"))), ShouldBeNil)
			msg, err := conn.Receive()
			So(err, ShouldBeNil)
			So(msg.Event, ShouldEqual, def.EventNewJob)
			So(msg.Job.Data, ShouldEqual, 2.0)

			Convey("Broadcasts reach it too", func() {
				So(hub.Emit(&def.Message{Event: def.EventUpdateAllProjects}), ShouldBeNil)
				msg, err := conn.Receive()
				So(err, ShouldBeNil)
				So(msg.Event, ShouldEqual, def.EventUpdateAllProjects)
			})

			Convey("Refused events come back as errors", func() {
				So(conn.Emit(&def.Message{Event: "shutdown"}), ShouldBeNil)
				msg, err := conn.Receive()
				So(err, ShouldBeNil)
				So(msg.Event, ShouldEqual, def.EventError)
			})

			Convey("Closing the connection disconnects the session", func() {
				conn.Close()
				var gone def.WorkerID
				select {
				case gone = <-svc.disconnects:
				case <-time.After(5 * time.Second):
				}
				So(gone, ShouldEqual, peer.ID())
			})
		})

		Convey("GET /projects lists status", func() {
			resp, err := http.Get(srv.URL + "/projects")
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			var statuses []def.ProjectStatus
			var buf bytes.Buffer
			buf.ReadFrom(resp.Body)
			So(Decode(buf.Bytes(), &statuses), ShouldBeNil)
			So(statuses, ShouldHaveLength, 1)
			So(statuses[0].JobsLength, ShouldEqual, 4)
		})

		Convey("GET /workers lists workers", func() {
			resp, err := http.Get(srv.URL + "/workers")
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
		})

		Convey("POST /projects accepts JSON", func() {
			body := `{"title":"double","dataSet":[1,2,3,4],"mapData":"double","reduceResults":"sum"}`
			resp, err := http.Post(srv.URL+"/projects", "application/json", strings.NewReader(body))
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusCreated)
			So(svc.created, ShouldHaveLength, 1)
			So(svc.created[0].DataSet, ShouldHaveLength, 4)
		})

		Convey("POST /projects accepts YAML", func() {
			body := "title: primes\ngenerateDataSet: range100\nmapData: isPrime\nreduceResults: countTrue\n"
			resp, err := http.Post(srv.URL+"/projects", "application/yaml", strings.NewReader(body))
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusCreated)
			So(svc.created[0].GenerateDataSet, ShouldEqual, "range100")
		})

		Convey("POST /projects refuses invalid options", func() {
			resp, err := http.Post(srv.URL+"/projects", "application/json", strings.NewReader(`{"title":"nothing"}`))
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("DELETE of an unknown project is a 404", func() {
			req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/projects/project9", nil)
			resp, err := http.DefaultClient.Do(req)
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusNotFound)

			req, _ = http.NewRequest(http.MethodDelete, srv.URL+"/projects/project0", nil)
			resp2, err := http.DefaultClient.Do(req)
			So(err, ShouldBeNil)
			defer resp2.Body.Close()
			So(resp2.StatusCode, ShouldEqual, http.StatusNoContent)
		})
	})
}
