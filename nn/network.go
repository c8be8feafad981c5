/*
	Package nn holds the small feed-forward networks that participants
	train on their partition of a training set.

	Networks travel between the coordinator and participants in the
	serialized form defined here: a flat list of neurons (layer-major)
	and a flat list of weighted connections.  The position of a connection
	in that list is its identity; reconciliation relies on every copy of a
	network listing its connections in the same order.
*/
package nn

import (
	"math"
	"math/rand"
)

type Neuron struct {
	Layer int     `json:"layer" yaml:"layer"`
	Bias  float64 `json:"bias" yaml:"bias"`
}

type Connection struct {
	From   int     `json:"from" yaml:"from"`
	To     int     `json:"to" yaml:"to"`
	Weight float64 `json:"weight" yaml:"weight"`
}

type Network struct {
	Layers      []int        `json:"layers" yaml:"layers"`
	Neurons     []Neuron     `json:"neurons" yaml:"neurons"`
	Connections []Connection `json:"connections" yaml:"connections"`
}

type Sample struct {
	Input  []float64 `json:"input" yaml:"input"`
	Output []float64 `json:"output" yaml:"output"`
}

/*
	Construct a fully connected perceptron with the given layer sizes:
	the first is the input layer, the last the output layer, anything
	between is hidden.

	Weights and biases start uniformly in [-0.1, 0.1).  Connections are
	listed from-major: every connection out of neuron 0, then neuron 1,
	and so on.
*/
func Perceptron(rnd *rand.Rand, layers ...int) (*Network, error) {
	if len(layers) < 2 {
		return nil, ShapeError.New("a perceptron needs at least an input and an output layer (got %d layers)", len(layers))
	}
	n := &Network{Layers: append([]int(nil), layers...)}
	for l, size := range layers {
		if size < 1 {
			return nil, ShapeError.New("layer %d has size %d", l, size)
		}
		for i := 0; i < size; i++ {
			bias := 0.0
			if l > 0 {
				bias = rnd.Float64()*.2 - .1
			}
			n.Neurons = append(n.Neurons, Neuron{Layer: l, Bias: bias})
		}
	}
	offset := 0
	for l := 0; l < len(layers)-1; l++ {
		next := offset + layers[l]
		for from := offset; from < next; from++ {
			for to := next; to < next+layers[l+1]; to++ {
				n.Connections = append(n.Connections, Connection{
					From:   from,
					To:     to,
					Weight: rnd.Float64()*.2 - .1,
				})
			}
		}
		offset = next
	}
	return n, nil
}

func (n *Network) Clone() *Network {
	if n == nil {
		return nil
	}
	return &Network{
		Layers:      append([]int(nil), n.Layers...),
		Neurons:     append([]Neuron(nil), n.Neurons...),
		Connections: append([]Connection(nil), n.Connections...),
	}
}

func (n *Network) InputSize() int {
	if len(n.Layers) == 0 {
		return 0
	}
	return n.Layers[0]
}

func (n *Network) OutputSize() int {
	if len(n.Layers) == 0 {
		return 0
	}
	return n.Layers[len(n.Layers)-1]
}

// Weights returns the connection weights in connection order.
func (n *Network) Weights() []float64 {
	ws := make([]float64, len(n.Connections))
	for i, c := range n.Connections {
		ws[i] = c.Weight
	}
	return ws
}

// SetWeights overwrites the connection weights in connection order.
func (n *Network) SetWeights(ws []float64) error {
	if len(ws) != len(n.Connections) {
		return ShapeError.New("expected %d weights, got %d", len(n.Connections), len(ws))
	}
	for i := range n.Connections {
		n.Connections[i].Weight = ws[i]
	}
	return nil
}

// SameShape reports whether two networks list the same neurons and connection endpoints in the same order.
func (n *Network) SameShape(other *Network) bool {
	if len(n.Layers) != len(other.Layers) ||
		len(n.Neurons) != len(other.Neurons) ||
		len(n.Connections) != len(other.Connections) {
		return false
	}
	for i := range n.Layers {
		if n.Layers[i] != other.Layers[i] {
			return false
		}
	}
	for i := range n.Connections {
		if n.Connections[i].From != other.Connections[i].From ||
			n.Connections[i].To != other.Connections[i].To {
			return false
		}
	}
	return true
}

func (n *Network) Validate() error {
	_, err := n.compile()
	return err
}

/*
	Run the network forward over one input vector and return the output
	layer's activations.
*/
func (n *Network) Activate(input []float64) ([]float64, error) {
	c, err := n.compile()
	if err != nil {
		return nil, err
	}
	if len(input) != n.InputSize() {
		return nil, SampleError.New("input has width %d; network expects %d", len(input), n.InputSize())
	}
	act := make([]float64, len(n.Neurons))
	c.forward(n, input, act)
	out := make([]float64, n.OutputSize())
	copy(out, act[c.outputStart:])
	return out, nil
}

// Index of connections by neuron.  Rebuilt per call; never serialized.
type compiled struct {
	outputStart int
	incoming    [][]int
	outgoing    [][]int
}

func (n *Network) compile() (*compiled, error) {
	if len(n.Layers) < 2 {
		return nil, ShapeError.New("network has %d layers; need at least 2", len(n.Layers))
	}
	total := 0
	for l, size := range n.Layers {
		if size < 1 {
			return nil, ShapeError.New("layer %d has size %d", l, size)
		}
		for i := total; i < total+size; i++ {
			if i >= len(n.Neurons) || n.Neurons[i].Layer != l {
				return nil, ShapeError.New("neuron %d does not belong to layer %d", i, l)
			}
		}
		total += size
	}
	if total != len(n.Neurons) {
		return nil, ShapeError.New("layers describe %d neurons, network lists %d", total, len(n.Neurons))
	}
	c := &compiled{
		outputStart: total - n.OutputSize(),
		incoming:    make([][]int, total),
		outgoing:    make([][]int, total),
	}
	for i, conn := range n.Connections {
		if conn.From < 0 || conn.From >= total || conn.To < 0 || conn.To >= total {
			return nil, ShapeError.New("connection %d (%d->%d) points outside the network", i, conn.From, conn.To)
		}
		if n.Neurons[conn.To].Layer != n.Neurons[conn.From].Layer+1 {
			return nil, ShapeError.New("connection %d (%d->%d) does not join adjacent layers", i, conn.From, conn.To)
		}
		c.incoming[conn.To] = append(c.incoming[conn.To], i)
		c.outgoing[conn.From] = append(c.outgoing[conn.From], i)
	}
	return c, nil
}

// Neurons are layer-major, so a single ascending pass sees every source before its target.
func (c *compiled) forward(n *Network, input []float64, act []float64) {
	copy(act, input)
	for j := len(input); j < len(n.Neurons); j++ {
		sum := n.Neurons[j].Bias
		for _, ci := range c.incoming[j] {
			conn := n.Connections[ci]
			sum += conn.Weight * act[conn.From]
		}
		act[j] = logistic(sum)
	}
}

func logistic(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
