package nn

import (
	"math"
	"math/rand"
	"time"

	"github.com/inconshreveable/log15"
	"gonum.org/v1/gonum/stat"
)

type Cost string

const (
	CrossEntropy Cost = "crossEntropy"
	MSE          Cost = "mse"
)

/*
	Knobs for one training run.  Zero values are replaced by the defaults
	in `Defaults()` before use, so a project may leave any of them unset.
*/
type TrainerOptions struct {
	Rate       float64 `json:"rate" yaml:"rate"`             // learning rate
	Iterations int     `json:"iterations" yaml:"iterations"` // upper bound on passes over the set
	Error      float64 `json:"error" yaml:"error"`           // stop once the mean cost drops below this
	Shuffle    bool    `json:"shuffle" yaml:"shuffle"`       // reshuffle the set before every pass
	Log        int     `json:"log" yaml:"log"`               // log progress every N passes; zero disables
	Cost       Cost    `json:"cost" yaml:"cost"`
}

func (o TrainerOptions) Defaults() TrainerOptions {
	if o.Rate == 0 {
		o.Rate = .2
	}
	if o.Iterations == 0 {
		o.Iterations = 100000
	}
	if o.Error == 0 {
		o.Error = .005
	}
	if o.Cost == "" {
		o.Cost = CrossEntropy
	}
	return o
}

type Result struct {
	Error      float64       `json:"error"`
	Iterations int           `json:"iterations"`
	Time       time.Duration `json:"time"`
}

/*
	Trains a network in place with online backpropagation.

	Output neurons take the raw `target - activation` as their error
	term, which is the cross-entropy gradient for logistic units; the
	configured cost only decides how progress is measured.
*/
type Trainer struct {
	Network *Network
	Rand    *rand.Rand
	Log     log15.Logger
}

func NewTrainer(n *Network, rnd *rand.Rand) *Trainer {
	return &Trainer{Network: n, Rand: rnd}
}

func (t *Trainer) Train(set []Sample, opts TrainerOptions) (Result, error) {
	opts = opts.Defaults()
	start := time.Now()
	c, err := t.Network.compile()
	if err != nil {
		return Result{}, err
	}
	if err := t.checkSet(set); err != nil {
		return Result{}, err
	}
	if len(set) == 0 {
		return Result{Time: time.Since(start)}, nil
	}

	order := make([]int, len(set))
	for i := range order {
		order[i] = i
	}
	act := make([]float64, len(t.Network.Neurons))
	delta := make([]float64, len(t.Network.Neurons))
	costs := make([]float64, len(set))

	res := Result{Error: math.Inf(1)}
	for res.Iterations < opts.Iterations && res.Error > opts.Error {
		if opts.Shuffle && t.Rand != nil {
			t.Rand.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		}
		for k, idx := range order {
			s := set[idx]
			c.forward(t.Network, s.Input, act)
			costs[k] = cost(opts.Cost, s.Output, act[c.outputStart:])
			t.backprop(c, s.Output, act, delta, opts.Rate)
		}
		res.Iterations++
		res.Error = stat.Mean(costs, nil)
		if opts.Log > 0 && t.Log != nil && res.Iterations%opts.Log == 0 {
			t.Log.Debug("training", "iterations", res.Iterations, "error", res.Error)
		}
	}
	res.Time = time.Since(start)
	return res, nil
}

// Test measures the mean cost over a set without touching the weights.
func (t *Trainer) Test(set []Sample, opts TrainerOptions) (Result, error) {
	opts = opts.Defaults()
	start := time.Now()
	c, err := t.Network.compile()
	if err != nil {
		return Result{}, err
	}
	if err := t.checkSet(set); err != nil {
		return Result{}, err
	}
	if len(set) == 0 {
		return Result{Time: time.Since(start)}, nil
	}
	act := make([]float64, len(t.Network.Neurons))
	costs := make([]float64, len(set))
	for i, s := range set {
		c.forward(t.Network, s.Input, act)
		costs[i] = cost(opts.Cost, s.Output, act[c.outputStart:])
	}
	return Result{
		Error: stat.Mean(costs, nil),
		Time:  time.Since(start),
	}, nil
}

func (t *Trainer) checkSet(set []Sample) error {
	for i, s := range set {
		if len(s.Input) != t.Network.InputSize() {
			return SampleError.New("sample %d has input width %d; network expects %d", i, len(s.Input), t.Network.InputSize())
		}
		if len(s.Output) != t.Network.OutputSize() {
			return SampleError.New("sample %d has output width %d; network expects %d", i, len(s.Output), t.Network.OutputSize())
		}
	}
	return nil
}

func (t *Trainer) backprop(c *compiled, target []float64, act []float64, delta []float64, rate float64) {
	n := t.Network
	inputs := n.InputSize()
	for j := len(n.Neurons) - 1; j >= inputs; j-- {
		if j >= c.outputStart {
			delta[j] = target[j-c.outputStart] - act[j]
			continue
		}
		var sum float64
		for _, ci := range c.outgoing[j] {
			sum += n.Connections[ci].Weight * delta[n.Connections[ci].To]
		}
		delta[j] = act[j] * (1 - act[j]) * sum
	}
	for ci := range n.Connections {
		conn := &n.Connections[ci]
		conn.Weight += rate * delta[conn.To] * act[conn.From]
	}
	for j := inputs; j < len(n.Neurons); j++ {
		n.Neurons[j].Bias += rate * delta[j]
	}
}

func cost(kind Cost, target, output []float64) float64 {
	var sum float64
	switch kind {
	case MSE:
		for i := range output {
			d := target[i] - output[i]
			sum += d * d
		}
		return sum / float64(len(output))
	default:
		for i := range output {
			sum += -((target[i] * math.Log(output[i]+1e-15)) + ((1 - target[i]) * math.Log((1+1e-15)-output[i])))
		}
		return sum
	}
}
