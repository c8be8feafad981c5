package reconcile

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"go.polydawn.net/cohort/lib/testutil"
	"go.polydawn.net/cohort/nn"
)

// Two neurons, one connection between them.
func single(w float64, partitions, samples int) Partial {
	return Partial{
		Network: nn.Network{
			Layers:      []int{1, 1},
			Neurons:     []nn.Neuron{{Layer: 0}, {Layer: 1, Bias: .5}},
			Connections: []nn.Connection{{From: 0, To: 1, Weight: w}},
		},
		Partitions: partitions,
		Samples:    samples,
	}
}

func TestMerge(t *testing.T) {
	Convey("Given two single-connection partials weighing 0.2 and 0.3", t, func() {
		partials := []Partial{single(.2, 1, 1), single(.3, 1, 3)}

		Convey("The sum policy adds them", func() {
			merged, err := Merge(partials, Sum)
			So(err, ShouldBeNil)
			So(merged.Network.Connections[0].Weight, ShouldAlmostEqual, .5)
			So(merged.Partitions, ShouldEqual, 2)
			So(merged.Samples, ShouldEqual, 4)
		})

		Convey("An unset policy behaves as sum", func() {
			merged, err := Merge(partials, "")
			So(err, ShouldBeNil)
			So(merged.Network.Connections[0].Weight, ShouldAlmostEqual, .5)
		})

		Convey("The mean policy averages them", func() {
			merged, err := Merge(partials, Mean)
			So(err, ShouldBeNil)
			So(merged.Network.Connections[0].Weight, ShouldAlmostEqual, .25)
		})

		Convey("The weighted policy averages by samples", func() {
			merged, err := Merge(partials, Weighted)
			So(err, ShouldBeNil)
			So(merged.Network.Connections[0].Weight, ShouldAlmostEqual, (.2*1+.3*3)/4)
		})

		Convey("The inputs are left alone", func() {
			_, err := Merge(partials, Sum)
			So(err, ShouldBeNil)
			So(partials[0].Network.Connections[0].Weight, ShouldEqual, .2)
			So(partials[1].Network.Connections[0].Weight, ShouldEqual, .3)
		})

		Convey("Biases come from the first partial", func() {
			partials[1].Network.Neurons[1].Bias = 9
			merged, err := Merge(partials, Sum)
			So(err, ShouldBeNil)
			So(merged.Network.Neurons[1].Bias, ShouldEqual, .5)
		})
	})

	Convey("Merging a pre-merged partial again keeps the mean exact", t, func() {
		a, b, c := single(.1, 1, 1), single(.2, 1, 1), single(.6, 1, 1)
		local, err := Merge([]Partial{a, b}, Mean)
		So(err, ShouldBeNil)
		twoStep, err := Merge([]Partial{local, c}, Mean)
		So(err, ShouldBeNil)
		oneStep, err := Merge([]Partial{a, b, c}, Mean)
		So(err, ShouldBeNil)
		So(twoStep.Network.Connections[0].Weight, ShouldAlmostEqual, oneStep.Network.Connections[0].Weight)
		So(twoStep.Partitions, ShouldEqual, 3)
	})

	Convey("Reconciliation refuses", t, func() {
		Convey("an empty cohort", func() {
			_, err := Merge(nil, Sum)
			So(err, testutil.ShouldBeErrorClass, Error)
		})
		Convey("partials of different shapes", func() {
			other := single(.3, 1, 1)
			other.Network.Connections = append(other.Network.Connections, nn.Connection{From: 0, To: 1})
			_, err := Merge([]Partial{single(.2, 1, 1), other}, Sum)
			So(err, testutil.ShouldBeErrorClass, Error)
		})
		Convey("an unknown policy", func() {
			_, err := Merge([]Partial{single(.2, 1, 1)}, Policy("median"))
			So(err, testutil.ShouldBeErrorClass, Error)
		})
	})
}
