package def

import (
	"go.polydawn.net/cohort/nn"
	"go.polydawn.net/cohort/reconcile"
)

/*
	ProjectOptions is everything a project is created from.  It arrives
	with a `createProject` event, a POST to the HTTP API, or a YAML file
	given to `cohort create`, and is persisted verbatim so the project can
	be rebuilt after a restart.
*/
type ProjectOptions struct {
	ProjectType ProjectType `json:"projectType,omitempty" yaml:"projectType,omitempty"`
	Title       string      `json:"title" yaml:"title"`

	// Plain projects: either an inline data set or the name of a generator.
	DataSet         []interface{} `json:"dataSet,omitempty" yaml:"dataSet,omitempty"`
	GenerateDataSet string        `json:"generateDataSet,omitempty" yaml:"generateDataSet,omitempty"`
	MapData         string        `json:"mapData,omitempty" yaml:"mapData,omitempty"`
	ReduceResults   string        `json:"reduceResults,omitempty" yaml:"reduceResults,omitempty"`

	// ANN projects.  `GenerateDataSet` may name a registered training set instead of an inline one.
	InputLayer     int                `json:"inputLayer,omitempty" yaml:"inputLayer,omitempty"`
	HiddenLayer    []int              `json:"hiddenLayer,omitempty" yaml:"hiddenLayer,omitempty"`
	OutputLayer    int                `json:"outputLayer,omitempty" yaml:"outputLayer,omitempty"`
	TrainerOptions *nn.TrainerOptions `json:"trainerOptions,omitempty" yaml:"trainerOptions,omitempty"`
	TrainingSet    []nn.Sample        `json:"trainingSet,omitempty" yaml:"trainingSet,omitempty"`
	TestSet        []nn.Sample        `json:"testSet,omitempty" yaml:"testSet,omitempty"`
	NumWorkers     int                `json:"numWorkers,omitempty" yaml:"numWorkers,omitempty"`   // partitions per epoch before any worker has joined.
	Epochs         int                `json:"epochs,omitempty" yaml:"epochs,omitempty"`           // epoch budget.
	TargetError    float64            `json:"targetError,omitempty" yaml:"targetError,omitempty"` // stop early once the test error drops below this.
	MergePolicy    reconcile.Policy   `json:"mergePolicy,omitempty" yaml:"mergePolicy,omitempty"`
}

const (
	DefaultNumWorkers = 4
	DefaultEpochs     = 10
)

/*
	Check the options are internally consistent.  Whether the transforms
	they name actually exist is checked by the project against its
	registry.
*/
func (o ProjectOptions) Validate() error {
	switch o.ProjectType.Normalize() {
	case ProjectTypeDefault:
		if o.DataSet == nil && o.GenerateDataSet == "" {
			return ValidationError.New("project %q needs a dataSet or a generateDataSet", o.Title)
		}
		if o.MapData == "" {
			return ValidationError.New("project %q needs a mapData transform", o.Title)
		}
		if o.ReduceResults == "" {
			return ValidationError.New("project %q needs a reduceResults transform", o.Title)
		}
	case ProjectTypeANN:
		if o.InputLayer < 1 || o.OutputLayer < 1 {
			return ValidationError.New("ANN project %q needs input and output layers of at least one neuron", o.Title)
		}
		for _, h := range o.HiddenLayer {
			if h < 1 {
				return ValidationError.New("ANN project %q has an empty hidden layer", o.Title)
			}
		}
		if len(o.TrainingSet) == 0 && o.GenerateDataSet == "" {
			return ValidationError.New("ANN project %q needs a trainingSet or a generateDataSet", o.Title)
		}
		if o.NumWorkers < 0 || o.Epochs < 0 || o.TargetError < 0 {
			return ValidationError.New("ANN project %q has negative numWorkers, epochs, or targetError", o.Title)
		}
		if !o.MergePolicy.Valid() {
			return ValidationError.New("ANN project %q has unknown mergePolicy %q", o.Title, o.MergePolicy)
		}
		if err := checkSamples(o.TrainingSet, o.InputLayer, o.OutputLayer); err != nil {
			return err
		}
		if err := checkSamples(o.TestSet, o.InputLayer, o.OutputLayer); err != nil {
			return err
		}
	default:
		return ValidationError.New("unknown projectType %q", o.ProjectType)
	}
	return nil
}

// Layer sizes of the network, input first.
func (o ProjectOptions) Layers() []int {
	layers := append([]int{o.InputLayer}, o.HiddenLayer...)
	return append(layers, o.OutputLayer)
}

func checkSamples(set []nn.Sample, in, out int) error {
	for i, s := range set {
		if len(s.Input) != in || len(s.Output) != out {
			return ValidationError.New("sample %d has shape %d->%d; expected %d->%d", i, len(s.Input), len(s.Output), in, out)
		}
	}
	return nil
}

/*
	Sent by a participant to join a project.  `MaxJobs` is how many jobs
	it is willing to run at once (typically its number of execution slots).
*/
type ReadyMessage struct {
	ProjectID ProjectID `json:"projectId"`
	MaxJobs   int       `json:"maxJobs"`
}
