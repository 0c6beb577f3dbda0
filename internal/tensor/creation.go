package tensor

import (
	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/stat/distuv"
)

// Zeros creates a tensor filled with zeros.
func Zeros[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	var dummy T
	raw := MustRaw(shape, inferDataType(any(dummy)), b.Device())
	return New[T, B](raw, b)
}

// Ones creates a tensor filled with ones.
func Ones[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return Full[T, B](shape, 1, b)
}

// Full creates a tensor filled with value.
func Full[T DType, B Backend](shape Shape, value T, b B) *Tensor[T, B] {
	t := Zeros[T, B](shape, b)
	data := t.Data()
	for i := range data {
		data[i] = value
	}
	return t
}

// Randn creates a tensor with elements drawn from the standard normal
// distribution N(0, 1), using the process-global source.
func Randn[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return RandnFrom[T, B](shape, nil, b)
}

// RandnFrom is Randn drawing from src, so callers that need reproducible
// values can pass a seeded source. A nil src falls back to the
// process-global one.
func RandnFrom[T DType, B Backend](shape Shape, src rand.Source, b B) *Tensor[T, B] {
	dist := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	t := Zeros[T, B](shape, b)
	data := t.Data()
	for i := range data {
		data[i] = T(dist.Rand())
	}
	return t
}

// Uniform creates a tensor with elements drawn from U(min, max), using the
// process-global source.
func Uniform[T DType, B Backend](shape Shape, min, max float64, b B) *Tensor[T, B] {
	return UniformFrom[T, B](shape, min, max, nil, b)
}

// UniformFrom is Uniform drawing from src. A nil src falls back to the
// process-global one.
func UniformFrom[T DType, B Backend](shape Shape, min, max float64, src rand.Source, b B) *Tensor[T, B] {
	dist := distuv.Uniform{Min: min, Max: max, Src: src}
	t := Zeros[T, B](shape, b)
	data := t.Data()
	for i := range data {
		data[i] = T(dist.Rand())
	}
	return t
}
