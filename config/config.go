/*
	Package config loads the settings of both ends of a cohort: the
	coordinator's and a participant's.

	Settings come from an optional YAML file, then the environment
	(`COHORT_*` variables) stomps on top of whatever the file said.
	Command line flags are applied by the cli package after that.
*/
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"go.polydawn.net/cohort/coordinator"
	"go.polydawn.net/cohort/def"
	"go.polydawn.net/cohort/dispatcher"
	"go.polydawn.net/cohort/project"
	"go.polydawn.net/cohort/reconcile"
	"go.polydawn.net/cohort/transport"
)

type Coordinator struct {
	Listen           string           `yaml:"listen"`
	StorePath        string           `yaml:"store"` // empty keeps snapshots in memory only.
	BackupInterval   time.Duration    `yaml:"backupInterval"`
	StragglerTimeout time.Duration    `yaml:"stragglerTimeout"`
	MergePolicy      reconcile.Policy `yaml:"mergePolicy"`
	ANNWorkers       int              `yaml:"annWorkers"`
}

func DefaultCoordinator() Coordinator {
	return Coordinator{
		Listen:           ":8000",
		BackupInterval:   10 * time.Second,
		StragglerTimeout: 30 * time.Second,
		MergePolicy:      reconcile.Sum,
		ANNWorkers:       def.DefaultNumWorkers,
	}
}

/*
	Load the coordinator's settings.  An empty path means defaults and
	the environment only.
*/
func LoadCoordinator(path string) (Coordinator, error) {
	cfg := DefaultCoordinator()
	if err := readYAML(path, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Coordinator) applyEnv(getenv func(string) string) error {
	if v := getenv("COHORT_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := getenv("COHORT_STORE"); v != "" {
		c.StorePath = v
	}
	if err := envDuration(getenv, "COHORT_BACKUP_INTERVAL", &c.BackupInterval); err != nil {
		return err
	}
	if err := envDuration(getenv, "COHORT_STRAGGLER_TIMEOUT", &c.StragglerTimeout); err != nil {
		return err
	}
	if v := getenv("COHORT_MERGE_POLICY"); v != "" {
		c.MergePolicy = reconcile.Policy(v)
	}
	return nil
}

func (c Coordinator) Validate() error {
	if c.Listen == "" {
		return def.ValidationError.New("listen address must not be empty")
	}
	if c.BackupInterval < 0 || c.StragglerTimeout < 0 {
		return def.ValidationError.New("intervals must not be negative")
	}
	if !c.MergePolicy.OrDefault().Valid() {
		return def.ValidationError.New("unknown merge policy %q", c.MergePolicy)
	}
	if c.ANNWorkers < 0 {
		return def.ValidationError.New("annWorkers must not be negative")
	}
	return nil
}

// The controller settings these translate to.
func (c Coordinator) Controller() coordinator.Config {
	return coordinator.Config{
		Project: project.Config{
			StragglerTimeout: c.StragglerTimeout,
			MergePolicy:      c.MergePolicy,
			NumWorkers:       c.ANNWorkers,
		},
		BackupInterval: c.BackupInterval,
	}
}

type Participant struct {
	Server string `yaml:"server"`
	Slots  int    `yaml:"slots"`
}

func DefaultParticipant() Participant {
	return Participant{
		Server: "ws://localhost:8000/ws",
		Slots:  runtime.NumCPU(),
	}
}

func LoadParticipant(path string) (Participant, error) {
	cfg := DefaultParticipant()
	if err := readYAML(path, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (p *Participant) applyEnv(getenv func(string) string) error {
	if v := getenv("COHORT_SERVER"); v != "" {
		p.Server = v
	}
	if v := getenv("COHORT_SLOTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return def.ValidationError.New("COHORT_SLOTS: %q is not a number", v)
		}
		p.Slots = n
	}
	return nil
}

func (p Participant) Validate() error {
	if p.Server == "" {
		return def.ValidationError.New("server address must not be empty")
	}
	if p.Slots < 1 {
		return def.ValidationError.New("slots must be at least 1 (got %d)", p.Slots)
	}
	return nil
}

func (p Participant) Dispatcher() dispatcher.Config {
	return dispatcher.Config{Slots: p.Slots}
}

/*
	Read project options from a file: JSON if the name says so,
	otherwise YAML.  The options are validated before they're returned.
*/
func ReadProjectOptions(path string) (def.ProjectOptions, error) {
	var opts def.ProjectOptions
	b, err := os.ReadFile(path)
	if err != nil {
		return opts, def.ValidationError.New("could not read project options: %s", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := transport.Decode(b, &opts); err != nil {
			return opts, def.ValidationError.New("could not parse %q: %s", path, err)
		}
	} else if err := yaml.Unmarshal(b, &opts); err != nil {
		return opts, def.ValidationError.New("could not parse %q: %s", path, err)
	}
	return opts, opts.Validate()
}

func readYAML(path string, into interface{}) error {
	if path == "" {
		return nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return def.ValidationError.New("could not read config: %s", err)
	}
	if err := yaml.Unmarshal(b, into); err != nil {
		return def.ValidationError.New("could not parse config %q: %s", path, err)
	}
	return nil
}

func envDuration(getenv func(string) string, key string, into *time.Duration) error {
	v := getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def.ValidationError.New("%s: %q is not a duration", key, v)
	}
	*into = d
	return nil
}
