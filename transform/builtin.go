package transform

import (
	"math"

	"go.polydawn.net/cohort/def"
	"go.polydawn.net/cohort/nn"
)

/*
	A registry stocked with the transforms the sample projects use.
	Coordinator and participants both start from this; anything else
	has to be compiled in and registered by hand on both sides.
*/
func Builtin() *Registry {
	r := NewRegistry()

	r.RegisterMap("identity", func(x interface{}) (interface{}, error) { return x, nil })
	r.RegisterMap("double", func(x interface{}) (interface{}, error) {
		f, err := toFloat(x)
		return f * 2, err
	})
	r.RegisterMap("square", func(x interface{}) (interface{}, error) {
		f, err := toFloat(x)
		return f * f, err
	})
	r.RegisterMap("isPrime", func(x interface{}) (interface{}, error) {
		f, err := toFloat(x)
		if err != nil {
			return nil, err
		}
		return isPrime(int64(f)), nil
	})

	r.RegisterReduce("sum", func(results []interface{}) (interface{}, error) {
		var total float64
		for _, x := range results {
			f, err := toFloat(x)
			if err != nil {
				return nil, err
			}
			total += f
		}
		return total, nil
	})
	r.RegisterReduce("max", func(results []interface{}) (interface{}, error) {
		if len(results) == 0 {
			return nil, nil
		}
		best := math.Inf(-1)
		for _, x := range results {
			f, err := toFloat(x)
			if err != nil {
				return nil, err
			}
			best = math.Max(best, f)
		}
		return best, nil
	})
	r.RegisterReduce("countTrue", func(results []interface{}) (interface{}, error) {
		n := 0
		for _, x := range results {
			if b, ok := x.(bool); ok && b {
				n++
			}
		}
		return n, nil
	})
	r.RegisterReduce("collect", func(results []interface{}) (interface{}, error) {
		return append([]interface{}(nil), results...), nil
	})

	r.RegisterGenerator("range100", func() []interface{} { return span(100) })
	r.RegisterGenerator("range1000", func() []interface{} { return span(1000) })

	r.RegisterTrainingSet("xor", truthTable(func(a, b bool) bool { return a != b }))
	r.RegisterTrainingSet("and", truthTable(func(a, b bool) bool { return a && b }))
	r.RegisterTrainingSet("or", truthTable(func(a, b bool) bool { return a || b }))

	return r
}

/*
	Numbers arrive as whatever the wire codec decoded them into, so
	accept any of the usual suspects.
*/
func toFloat(x interface{}) (float64, error) {
	switch v := x.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case int32:
		return float64(v), nil
	default:
		return 0, def.TransformError.New("expected a number, got %T", x)
	}
}

func isPrime(n int64) bool {
	if n < 2 {
		return false
	}
	for i := int64(2); i*i <= n; i++ {
		if n%i == 0 {
			return false
		}
	}
	return true
}

func span(n int) []interface{} {
	xs := make([]interface{}, n)
	for i := range xs {
		xs[i] = i
	}
	return xs
}

func truthTable(op func(a, b bool) bool) Samples {
	bit := func(b bool) float64 {
		if b {
			return 1
		}
		return 0
	}
	return func() []nn.Sample {
		var set []nn.Sample
		for _, a := range []bool{false, true} {
			for _, b := range []bool{false, true} {
				set = append(set, nn.Sample{
					Input:  []float64{bit(a), bit(b)},
					Output: []float64{bit(op(a, b))},
				})
			}
		}
		return set
	}
}
