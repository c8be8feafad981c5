package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"go.polydawn.net/cohort/def"
	"go.polydawn.net/cohort/lib/testutil"
	"go.polydawn.net/cohort/reconcile"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestCoordinatorConfig(t *testing.T) {
	Convey("Coordinator settings", t, func() {
		Convey("default sensibly", func() {
			cfg := DefaultCoordinator()
			So(cfg.Listen, ShouldEqual, ":8000")
			So(cfg.BackupInterval, ShouldEqual, 10*time.Second)
			So(cfg.StragglerTimeout, ShouldEqual, 30*time.Second)
			So(cfg.MergePolicy, ShouldEqual, reconcile.Sum)
			So(cfg.Validate(), ShouldBeNil)
		})

		Convey("read from a file, then the environment", testutil.WithTmpdir(func(c C, dir string) {
			path := filepath.Join(dir, "cohort.yaml")
			So(os.WriteFile(path, []byte("listen: \":9000\"\nstragglerTimeout: 5s\nmergePolicy: mean\n"), 0644), ShouldBeNil)
			cfg := DefaultCoordinator()
			So(readYAML(path, &cfg), ShouldBeNil)
			So(cfg.Listen, ShouldEqual, ":9000")
			So(cfg.StragglerTimeout, ShouldEqual, 5*time.Second)
			So(cfg.MergePolicy, ShouldEqual, reconcile.Mean)
			So(cfg.BackupInterval, ShouldEqual, 10*time.Second)

			So(cfg.applyEnv(env(map[string]string{
				"COHORT_LISTEN":          ":9001",
				"COHORT_BACKUP_INTERVAL": "1m",
				"COHORT_STORE":           "/var/lib/cohort/snapshot",
			})), ShouldBeNil)
			So(cfg.Listen, ShouldEqual, ":9001")
			So(cfg.BackupInterval, ShouldEqual, time.Minute)
			So(cfg.StorePath, ShouldEqual, "/var/lib/cohort/snapshot")
		}))

		Convey("reject garbage durations", func() {
			cfg := DefaultCoordinator()
			err := cfg.applyEnv(env(map[string]string{"COHORT_STRAGGLER_TIMEOUT": "soon"}))
			So(err, testutil.ShouldBeErrorClass, def.ValidationError)
		})

		Convey("reject unknown merge policies", func() {
			cfg := DefaultCoordinator()
			cfg.MergePolicy = "vote"
			So(cfg.Validate(), testutil.ShouldBeErrorClass, def.ValidationError)
		})

		Convey("translate to controller settings", func() {
			cfg := DefaultCoordinator()
			cc := cfg.Controller()
			So(cc.BackupInterval, ShouldEqual, 10*time.Second)
			So(cc.Project.StragglerTimeout, ShouldEqual, 30*time.Second)
			So(cc.Project.NumWorkers, ShouldEqual, def.DefaultNumWorkers)
		})

		Convey("fail loudly on a missing file", func() {
			_, err := LoadCoordinator("/nonexistent/cohort.yaml")
			So(err, testutil.ShouldBeErrorClass, def.ValidationError)
		})
	})
}

func TestParticipantConfig(t *testing.T) {
	Convey("Participant settings", t, func() {
		cfg := DefaultParticipant()
		So(cfg.Slots, ShouldBeGreaterThan, 0)

		Convey("take slots from the environment", func() {
			So(cfg.applyEnv(env(map[string]string{"COHORT_SLOTS": "3", "COHORT_SERVER": "ws://coordinator/ws"})), ShouldBeNil)
			So(cfg.Slots, ShouldEqual, 3)
			So(cfg.Server, ShouldEqual, "ws://coordinator/ws")
			So(cfg.Dispatcher().Slots, ShouldEqual, 3)
		})

		Convey("refuse zero slots", func() {
			cfg.Slots = 0
			So(cfg.Validate(), testutil.ShouldBeErrorClass, def.ValidationError)
		})

		Convey("refuse non-numeric slots", func() {
			err := cfg.applyEnv(env(map[string]string{"COHORT_SLOTS": "many"}))
			So(err, testutil.ShouldBeErrorClass, def.ValidationError)
		})
	})
}

func TestReadProjectOptions(t *testing.T) {
	Convey("Project option files", t, testutil.WithTmpdir(func(c C, dir string) {
		Convey("parse as YAML", func() {
			path := filepath.Join(dir, "double.yaml")
			So(os.WriteFile(path, []byte("title: double\ndataSet: [1, 2, 3, 4]\nmapData: double\nreduceResults: sum\n"), 0644), ShouldBeNil)
			opts, err := ReadProjectOptions(path)
			So(err, ShouldBeNil)
			So(opts.Title, ShouldEqual, "double")
			So(opts.DataSet, ShouldHaveLength, 4)
			So(opts.MapData, ShouldEqual, "double")
		})

		Convey("parse as JSON", func() {
			path := filepath.Join(dir, "xor.json")
			So(os.WriteFile(path, []byte(`{"projectType":"ANN","title":"xor","inputLayer":2,"hiddenLayer":[2],"outputLayer":1,"generateDataSet":"xor"}`), 0644), ShouldBeNil)
			opts, err := ReadProjectOptions(path)
			So(err, ShouldBeNil)
			So(opts.ProjectType, ShouldEqual, def.ProjectTypeANN)
			So(opts.HiddenLayer, ShouldResemble, []int{2})
		})

		Convey("are validated", func() {
			path := filepath.Join(dir, "broken.yaml")
			So(os.WriteFile(path, []byte("title: broken\nmapData: double\n"), 0644), ShouldBeNil)
			_, err := ReadProjectOptions(path)
			So(err, testutil.ShouldBeErrorClass, def.ValidationError)
		})
	}))
}
