package cpu

import (
	"github.com/born-ml/cinn/internal/tensor"
)

// Exp computes e^x element-wise.
func (cpu *CPUBackend) Exp(x *tensor.RawTensor) *tensor.RawTensor {
	out := tensor.MustRaw(x.Shape(), x.DType(), cpu.device)
	switch x.DType() {
	case tensor.Float32:
		exp32(out.AsFloat32(), x.AsFloat32())
	case tensor.Float64:
		exp64(out.AsFloat64(), x.AsFloat64())
	}
	return out
}

// Log computes the natural logarithm element-wise.
func (cpu *CPUBackend) Log(x *tensor.RawTensor) *tensor.RawTensor {
	out := tensor.MustRaw(x.Shape(), x.DType(), cpu.device)
	switch x.DType() {
	case tensor.Float32:
		log32(out.AsFloat32(), x.AsFloat32())
	case tensor.Float64:
		log64(out.AsFloat64(), x.AsFloat64())
	}
	return out
}

// Tanh computes the hyperbolic tangent element-wise.
func (cpu *CPUBackend) Tanh(x *tensor.RawTensor) *tensor.RawTensor {
	out := tensor.MustRaw(x.Shape(), x.DType(), cpu.device)
	switch x.DType() {
	case tensor.Float32:
		tanh32(out.AsFloat32(), x.AsFloat32())
	case tensor.Float64:
		tanh64(out.AsFloat64(), x.AsFloat64())
	}
	return out
}

// Sqrt computes the square root element-wise.
func (cpu *CPUBackend) Sqrt(x *tensor.RawTensor) *tensor.RawTensor {
	out := tensor.MustRaw(x.Shape(), x.DType(), cpu.device)
	switch x.DType() {
	case tensor.Float32:
		sqrt32(out.AsFloat32(), x.AsFloat32())
	case tensor.Float64:
		sqrt64(out.AsFloat64(), x.AsFloat64())
	}
	return out
}
