/*
	Package transform is the registry of vetted, named transforms a
	project may use.

	Projects never ship code to participants.  They name a map transform
	(run by participants on each job's data), a reduce transform (run by
	the coordinator over every result, in job id order), and optionally a
	generator for their data set or training set.  Both ends look the
	names up in a Registry; a name that isn't registered is refused.
*/
package transform

import (
	"fmt"
	"sort"
	"sync"

	"github.com/spacemonkeygo/errors"
	"github.com/spacemonkeygo/errors/try"

	"go.polydawn.net/cohort/def"
	"go.polydawn.net/cohort/nn"
)

type (
	Map       func(data interface{}) (interface{}, error)
	Reduce    func(results []interface{}) (interface{}, error)
	Generator func() []interface{}
	// A named training set for ANN projects.
	Samples func() []nn.Sample
)

type Registry struct {
	mu           sync.RWMutex
	maps         map[string]Map
	reduces      map[string]Reduce
	generators   map[string]Generator
	trainingSets map[string]Samples
}

func NewRegistry() *Registry {
	return &Registry{
		maps:         make(map[string]Map),
		reduces:      make(map[string]Reduce),
		generators:   make(map[string]Generator),
		trainingSets: make(map[string]Samples),
	}
}

// Registering the same name twice is a programmer error and panics.
func (r *Registry) RegisterMap(name string, fn Map) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.maps[name]; ok {
		panic(errors.ProgrammerError.New("map transform %q registered twice", name))
	}
	r.maps[name] = fn
}

func (r *Registry) RegisterReduce(name string, fn Reduce) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.reduces[name]; ok {
		panic(errors.ProgrammerError.New("reduce transform %q registered twice", name))
	}
	r.reduces[name] = fn
}

func (r *Registry) RegisterGenerator(name string, fn Generator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.generators[name]; ok {
		panic(errors.ProgrammerError.New("data set generator %q registered twice", name))
	}
	r.generators[name] = fn
}

func (r *Registry) RegisterTrainingSet(name string, fn Samples) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.trainingSets[name]; ok {
		panic(errors.ProgrammerError.New("training set %q registered twice", name))
	}
	r.trainingSets[name] = fn
}

func (r *Registry) Map(name string) (Map, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.maps[name]
	if !ok {
		return nil, def.TransformError.New("no map transform named %q", name)
	}
	return fn, nil
}

func (r *Registry) Reduce(name string) (Reduce, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.reduces[name]
	if !ok {
		return nil, def.TransformError.New("no reduce transform named %q", name)
	}
	return fn, nil
}

func (r *Registry) Generator(name string) (Generator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.generators[name]
	if !ok {
		return nil, def.TransformError.New("no data set generator named %q", name)
	}
	return fn, nil
}

func (r *Registry) TrainingSet(name string) (Samples, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.trainingSets[name]
	if !ok {
		return nil, def.TransformError.New("no training set named %q", name)
	}
	return fn, nil
}

/*
	Run a map transform by name.  Panics inside the transform come back
	as a TransformError, same as an unknown name does; a participant
	reports either one as the job's failure.
*/
func (r *Registry) Apply(name string, data interface{}) (result interface{}, err error) {
	fn, err := r.Map(name)
	if err != nil {
		return nil, err
	}
	try.Do(func() {
		result, err = fn(data)
	}).CatchAll(func(e error) {
		err = e
	}).Done()
	if err != nil && !errors.GetClass(err).Is(def.TransformError) {
		err = def.TransformError.Wrap(err)
	}
	return
}

// Names of everything registered, sorted, for `cohort version` and friends.
func (r *Registry) Names() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string][]string{
		"map":         keys(r.maps),
		"reduce":      keys(r.reduces),
		"generator":   keys(r.generators),
		"trainingSet": keys(r.trainingSets),
	}
}

func keys(m interface{}) []string {
	var names []string
	switch m := m.(type) {
	case map[string]Map:
		for k := range m {
			names = append(names, k)
		}
	case map[string]Reduce:
		for k := range m {
			names = append(names, k)
		}
	case map[string]Generator:
		for k := range m {
			names = append(names, k)
		}
	case map[string]Samples:
		for k := range m {
			names = append(names, k)
		}
	default:
		panic(fmt.Errorf("unhandled registry map %T", m))
	}
	sort.Strings(names)
	return names
}
