package cpu

import "github.com/chewxy/math32"

// float32 kernels. Loops are written so the compiler can eliminate bounds
// checks after the length assertions in the callers.

func add32(dst, a, b []float32) {
	for i := range dst {
		dst[i] = a[i] + b[i]
	}
}

func sub32(dst, a, b []float32) {
	for i := range dst {
		dst[i] = a[i] - b[i]
	}
}

func mul32(dst, a, b []float32) {
	for i := range dst {
		dst[i] = a[i] * b[i]
	}
}

func div32(dst, a, b []float32) {
	for i := range dst {
		dst[i] = a[i] / b[i]
	}
}

func addScalar32(dst, x []float32, s float32) {
	for i := range dst {
		dst[i] = x[i] + s
	}
}

func mulScalar32(dst, x []float32, s float32) {
	for i := range dst {
		dst[i] = x[i] * s
	}
}

func exp32(dst, x []float32) {
	for i := range dst {
		dst[i] = math32.Exp(x[i])
	}
}

func log32(dst, x []float32) {
	for i := range dst {
		dst[i] = math32.Log(x[i])
	}
}

func tanh32(dst, x []float32) {
	for i := range dst {
		dst[i] = math32.Tanh(x[i])
	}
}

func sqrt32(dst, x []float32) {
	for i := range dst {
		dst[i] = math32.Sqrt(x[i])
	}
}

func sum32(x []float32) float64 {
	var s float64
	for _, v := range x {
		s += float64(v)
	}
	return s
}
