/*
	Package reconcile merges partially trained copies of one network back
	into a single network.

	Every participant trains its own copy of the epoch's network on its
	own partition of the training set; once the whole cohort has reported,
	the copies' connection weights are combined position by position.
	Biases are not combined: the merged network keeps the biases of the
	first partial in cohort order.

	Partials carry how many partitions and how many samples they already
	stand for, so a participant may merge its local batch first and the
	coordinator may merge those merged partials again later without
	changing the outcome of the mean policies.
*/
package reconcile

import (
	"gonum.org/v1/gonum/floats"

	"go.polydawn.net/cohort/nn"
)

type Policy string

const (
	// Sum adds the weights of every partial.  This is the historical
	// behavior of the system and remains the default.
	Sum Policy = "sum"

	// Mean averages the weights, each partial counted once per partition it covers.
	Mean Policy = "mean"

	// Weighted averages the weights by the number of training samples behind each partial.
	Weighted Policy = "weighted"
)

func (p Policy) Valid() bool {
	switch p {
	case "", Sum, Mean, Weighted:
		return true
	}
	return false
}

func (p Policy) OrDefault() Policy {
	if p == "" {
		return Sum
	}
	return p
}

type Partial struct {
	Network    nn.Network `json:"network"`
	Partitions int        `json:"partitions"`
	Samples    int        `json:"samples"`
}

/*
	Combine partials, given in cohort order, under the policy.

	The first partial is the accumulator base and the rest are folded
	into it in order.  None of the inputs are modified.
*/
func Merge(partials []Partial, policy Policy) (Partial, error) {
	if len(partials) == 0 {
		return Partial{}, Error.New("no partial networks to reconcile")
	}
	if !policy.Valid() {
		return Partial{}, Error.New("unknown reconciliation policy %q", policy)
	}
	base := partials[0].Network.Clone()
	for i, p := range partials[1:] {
		if !base.SameShape(&p.Network) {
			return Partial{}, Error.New("partial network %d does not match the shape of the first partial", i+1)
		}
	}

	merged := Partial{}
	for _, p := range partials {
		merged.Partitions += partitions(p)
		merged.Samples += p.Samples
	}

	acc := make([]float64, len(base.Connections))
	switch policy.OrDefault() {
	case Sum:
		for _, p := range partials {
			floats.Add(acc, p.Network.Weights())
		}
	case Mean:
		for _, p := range partials {
			floats.AddScaled(acc, float64(partitions(p)), p.Network.Weights())
		}
		floats.Scale(1/float64(merged.Partitions), acc)
	case Weighted:
		if merged.Samples == 0 {
			return Merge(partials, Mean)
		}
		for _, p := range partials {
			floats.AddScaled(acc, float64(p.Samples), p.Network.Weights())
		}
		floats.Scale(1/float64(merged.Samples), acc)
	}
	if err := base.SetWeights(acc); err != nil {
		return Partial{}, Error.Wrap(err)
	}
	merged.Network = *base
	return merged, nil
}

// A partial that does not say otherwise stands for one partition.
func partitions(p Partial) int {
	if p.Partitions < 1 {
		return 1
	}
	return p.Partitions
}
