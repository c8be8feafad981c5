package cli

import (
	"bytes"
	"context"
	"io/ioutil"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"go.polydawn.net/cohort/config"
	"go.polydawn.net/cohort/coordinator"
	"go.polydawn.net/cohort/def"
	"go.polydawn.net/cohort/lib/testutil"
	"go.polydawn.net/cohort/snapshot/mem"
	"go.polydawn.net/cohort/transport"
)

var (
	// os flag parsing mandates the executable name
	baseArgs = []string{"cohort"}
)

func TestCLI(t *testing.T) {
	Convey("It should not crash without args", t, func() {
		Main(baseArgs, ioutil.Discard, ioutil.Discard)
	})

	Convey("Unknown subcommands are usage errors", t, func() {
		So(func() { Main(append(baseArgs, "frobnicate"), ioutil.Discard, ioutil.Discard) }, testutil.ShouldPanicWith, Error)
	})

	Convey("Version goes to stdout", t, func() {
		var out bytes.Buffer
		Main(append(baseArgs, "version"), &out, ioutil.Discard)
		So(out.String(), ShouldContainSubstring, "cohort v0.1+dev")
	})

	Convey("Work without a project id is a usage error", t, func() {
		defer func() {
			err := recover().(error)
			So(err, testutil.ShouldBeErrorClass, Error)
			So(GetExitCode(err), ShouldEqual, EXIT_BADARGS)
		}()
		Main(append(baseArgs, "work"), ioutil.Discard, ioutil.Discard)
	})
}

func TestProjectCommands(t *testing.T) {
	Convey("Given a coordinator", t, func(c C) {
		log := testutil.TestLogger(c)
		hub := transport.NewHub(nil, log)
		ctrl := coordinator.New(coordinator.Config{}, mem.New(), hub, log)
		hub.Handler = ctrl
		So(ctrl.Start(context.Background()), ShouldBeNil)
		srv := httptest.NewServer(transport.NewRouter(ctrl, hub, log))
		Reset(func() {
			srv.Close()
			hub.Close()
			ctrl.Close()
		})

		Convey("create posts an options file and prints the new id", testutil.WithTmpdir(func(c C, dir string) {
			path := filepath.Join(dir, "double.yaml")
			So(os.WriteFile(path, []byte("title: double\ndataSet: [1, 2, 3, 4]\nmapData: double\nreduceResults: sum\n"), 0644), ShouldBeNil)
			var out bytes.Buffer
			Main(append(baseArgs, "create", "--api", srv.URL, path), &out, ioutil.Discard)
			So(out.String(), ShouldEqual, "project0\n")

			Convey("and projects lists it", func() {
				out.Reset()
				Main(append(baseArgs, "projects", "--api", srv.URL), &out, ioutil.Discard)
				So(out.String(), ShouldContainSubstring, "project0")
				So(out.String(), ShouldContainSubstring, "0/4")
			})
		}))

		Convey("create refuses options the coordinator can't run", testutil.WithTmpdir(func(c C, dir string) {
			path := filepath.Join(dir, "bogus.yaml")
			So(os.WriteFile(path, []byte("title: bogus\ndataSet: [1]\nmapData: teleport\nreduceResults: sum\n"), 0644), ShouldBeNil)
			defer func() {
				err := recover().(error)
				So(err, testutil.ShouldBeErrorClass, Error)
				So(GetExitCode(err), ShouldEqual, EXIT_USER)
			}()
			Main(append(baseArgs, "create", "--api", srv.URL, path), ioutil.Discard, ioutil.Discard)
		}))

		Convey("a participant works a project to completion", func() {
			id, err := ctrl.CreateProject(def.ProjectOptions{
				Title:         "double",
				DataSet:       []interface{}{1.0, 2.0, 3.0, 4.0},
				MapData:       "double",
				ReduceResults: "sum",
			})
			So(err, ShouldBeNil)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			cfg := config.Participant{Server: "ws" + srv.URL[len("http"):] + "/ws", Slots: 2}
			So(Work(ctx, cfg, id, log), ShouldBeNil)
			So(ctrl.Project(id).IsComplete(), ShouldBeTrue)
			So(ctrl.Project(id).FinalResult(), ShouldEqual, 20.0)
		})
	})
}
