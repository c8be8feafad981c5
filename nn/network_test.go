package nn

import (
	"math/rand"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"go.polydawn.net/cohort/lib/testutil"
)

var andSet = []Sample{
	{Input: []float64{0, 0}, Output: []float64{0}},
	{Input: []float64{0, 1}, Output: []float64{0}},
	{Input: []float64{1, 0}, Output: []float64{0}},
	{Input: []float64{1, 1}, Output: []float64{1}},
}

func TestPerceptron(t *testing.T) {
	Convey("Given a 2-3-1 perceptron", t, func() {
		net, err := Perceptron(rand.New(rand.NewSource(1)), 2, 3, 1)
		So(err, ShouldBeNil)

		Convey("It should have one neuron per layer slot and full connectivity", func() {
			So(net.Neurons, ShouldHaveLength, 6)
			So(net.Connections, ShouldHaveLength, 2*3+3*1)
			So(net.Validate(), ShouldBeNil)
			So(net.Connections[0].From, ShouldEqual, 0)
			So(net.Connections[0].To, ShouldEqual, 2)
		})

		Convey("Activation should produce one value per output neuron", func() {
			out, err := net.Activate([]float64{1, 0})
			So(err, ShouldBeNil)
			So(out, ShouldHaveLength, 1)
			So(out[0], ShouldBeBetween, 0, 1)
		})

		Convey("Activation with the wrong width should be refused", func() {
			_, err := net.Activate([]float64{1})
			So(err, testutil.ShouldBeErrorClass, SampleError)
		})

		Convey("Clones should be independent", func() {
			dup := net.Clone()
			dup.Connections[0].Weight = 42
			So(net.Connections[0].Weight, ShouldNotEqual, 42)
			So(net.SameShape(dup), ShouldBeTrue)
		})

		Convey("A connection skipping a layer should fail validation", func() {
			broken := net.Clone()
			broken.Connections[0].To = 5
			So(broken.Validate(), testutil.ShouldBeErrorClass, ShapeError)
		})
	})

	Convey("Perceptrons need two layers", t, func() {
		_, err := Perceptron(rand.New(rand.NewSource(1)), 3)
		So(err, testutil.ShouldBeErrorClass, ShapeError)
	})
}

func TestTrainer(t *testing.T) {
	Convey("Training on a separable set should lower the test error", t, func() {
		net, err := Perceptron(rand.New(rand.NewSource(7)), 2, 2, 1)
		So(err, ShouldBeNil)
		trainer := NewTrainer(net, rand.New(rand.NewSource(7)))
		opts := TrainerOptions{Rate: .5, Iterations: 3000, Error: .01, Shuffle: true}

		before, err := trainer.Test(andSet, opts)
		So(err, ShouldBeNil)
		res, err := trainer.Train(andSet, opts)
		So(err, ShouldBeNil)
		So(res.Iterations, ShouldBeGreaterThan, 0)
		after, err := trainer.Test(andSet, opts)
		So(err, ShouldBeNil)
		So(after.Error, ShouldBeLessThan, before.Error)
	})

	Convey("Training on an empty partition leaves the network untouched", t, func() {
		net, _ := Perceptron(rand.New(rand.NewSource(3)), 2, 1)
		before := net.Weights()
		res, err := NewTrainer(net, nil).Train(nil, TrainerOptions{})
		So(err, ShouldBeNil)
		So(res.Iterations, ShouldEqual, 0)
		So(net.Weights(), ShouldResemble, before)
	})

	Convey("Samples of the wrong width are refused", t, func() {
		net, _ := Perceptron(rand.New(rand.NewSource(3)), 2, 1)
		_, err := NewTrainer(net, nil).Test([]Sample{{Input: []float64{1}, Output: []float64{1}}}, TrainerOptions{})
		So(err, testutil.ShouldBeErrorClass, SampleError)
	})
}
