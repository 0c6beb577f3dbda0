// Package cpu implements the CPU compute backend for the cinn tensor core.
package cpu

import (
	"fmt"

	"github.com/born-ml/cinn/internal/tensor"
)

// CPUBackend implements tensor operations on the CPU.
//
// float32 kernels use chewxy/math32; float64 kernels use gonum/floats.
type CPUBackend struct {
	device tensor.Device
}

// New creates a new CPU backend.
func New() *CPUBackend {
	return &CPUBackend{device: tensor.CPU}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

// checkBinary validates operands of a binary element-wise operation.
func checkBinary(op string, a, b *tensor.RawTensor) {
	if a.DType() != b.DType() {
		panic(fmt.Sprintf("%s: dtype mismatch %v vs %v", op, a.DType(), b.DType()))
	}
	if !a.Shape().Equal(b.Shape()) {
		panic(fmt.Sprintf("%s: shape mismatch %v vs %v", op, a.Shape(), b.Shape()))
	}
}

// Add performs element-wise addition.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	checkBinary("add", a, b)
	out := tensor.MustRaw(a.Shape(), a.DType(), cpu.device)
	switch a.DType() {
	case tensor.Float32:
		add32(out.AsFloat32(), a.AsFloat32(), b.AsFloat32())
	case tensor.Float64:
		add64(out.AsFloat64(), a.AsFloat64(), b.AsFloat64())
	}
	return out
}

// Sub performs element-wise subtraction.
func (cpu *CPUBackend) Sub(a, b *tensor.RawTensor) *tensor.RawTensor {
	checkBinary("sub", a, b)
	out := tensor.MustRaw(a.Shape(), a.DType(), cpu.device)
	switch a.DType() {
	case tensor.Float32:
		sub32(out.AsFloat32(), a.AsFloat32(), b.AsFloat32())
	case tensor.Float64:
		sub64(out.AsFloat64(), a.AsFloat64(), b.AsFloat64())
	}
	return out
}

// Mul performs element-wise multiplication.
func (cpu *CPUBackend) Mul(a, b *tensor.RawTensor) *tensor.RawTensor {
	checkBinary("mul", a, b)
	out := tensor.MustRaw(a.Shape(), a.DType(), cpu.device)
	switch a.DType() {
	case tensor.Float32:
		mul32(out.AsFloat32(), a.AsFloat32(), b.AsFloat32())
	case tensor.Float64:
		mul64(out.AsFloat64(), a.AsFloat64(), b.AsFloat64())
	}
	return out
}

// Div performs element-wise division.
func (cpu *CPUBackend) Div(a, b *tensor.RawTensor) *tensor.RawTensor {
	checkBinary("div", a, b)
	out := tensor.MustRaw(a.Shape(), a.DType(), cpu.device)
	switch a.DType() {
	case tensor.Float32:
		div32(out.AsFloat32(), a.AsFloat32(), b.AsFloat32())
	case tensor.Float64:
		div64(out.AsFloat64(), a.AsFloat64(), b.AsFloat64())
	}
	return out
}

// AddScalar adds a scalar to every element.
func (cpu *CPUBackend) AddScalar(x *tensor.RawTensor, s float64) *tensor.RawTensor {
	out := tensor.MustRaw(x.Shape(), x.DType(), cpu.device)
	switch x.DType() {
	case tensor.Float32:
		addScalar32(out.AsFloat32(), x.AsFloat32(), float32(s))
	case tensor.Float64:
		addScalar64(out.AsFloat64(), x.AsFloat64(), s)
	}
	return out
}

// MulScalar multiplies every element by a scalar.
func (cpu *CPUBackend) MulScalar(x *tensor.RawTensor, s float64) *tensor.RawTensor {
	out := tensor.MustRaw(x.Shape(), x.DType(), cpu.device)
	switch x.DType() {
	case tensor.Float32:
		mulScalar32(out.AsFloat32(), x.AsFloat32(), float32(s))
	case tensor.Float64:
		mulScalar64(out.AsFloat64(), x.AsFloat64(), s)
	}
	return out
}

// Neg negates every element.
func (cpu *CPUBackend) Neg(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.MulScalar(x, -1)
}
