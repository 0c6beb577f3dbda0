package cpu

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// float64 kernels, vectorized through gonum/floats where it has an
// in-place form.

func add64(dst, a, b []float64) {
	copy(dst, a)
	floats.Add(dst, b)
}

func sub64(dst, a, b []float64) {
	copy(dst, a)
	floats.Sub(dst, b)
}

func mul64(dst, a, b []float64) {
	copy(dst, a)
	floats.Mul(dst, b)
}

func div64(dst, a, b []float64) {
	copy(dst, a)
	floats.Div(dst, b)
}

func addScalar64(dst, x []float64, s float64) {
	copy(dst, x)
	floats.AddConst(s, dst)
}

func mulScalar64(dst, x []float64, s float64) {
	for i := range dst {
		dst[i] = x[i] * s
	}
}

func exp64(dst, x []float64) {
	for i := range dst {
		dst[i] = math.Exp(x[i])
	}
}

func log64(dst, x []float64) {
	for i := range dst {
		dst[i] = math.Log(x[i])
	}
}

func tanh64(dst, x []float64) {
	for i := range dst {
		dst[i] = math.Tanh(x[i])
	}
}

func sqrt64(dst, x []float64) {
	for i := range dst {
		dst[i] = math.Sqrt(x[i])
	}
}

func sum64(x []float64) float64 {
	return floats.Sum(x)
}
