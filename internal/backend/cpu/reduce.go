package cpu

import (
	"fmt"

	"github.com/born-ml/cinn/internal/tensor"
)

// Sum returns the sum of all elements as float64.
func (cpu *CPUBackend) Sum(x *tensor.RawTensor) float64 {
	switch x.DType() {
	case tensor.Float32:
		return sum32(x.AsFloat32())
	case tensor.Float64:
		return sum64(x.AsFloat64())
	}
	return 0
}

// channelDims validates a [batch, channels, spatial...] tensor and returns
// (batch, channels, spatial block size).
func channelDims(op string, x *tensor.RawTensor) (n, c, sp int) {
	shape := x.Shape()
	if len(shape) < 3 {
		panic(fmt.Sprintf("%s: need [batch, channels, spatial...] tensor, got %v", op, shape))
	}
	n, c = shape[0], shape[1]
	sp = 1
	for _, d := range shape[2:] {
		sp *= d
	}
	return n, c, sp
}

// MulChannel multiplies each channel of x by the matching element of scale.
// scale must be 1-D with length equal to x's channel count.
func (cpu *CPUBackend) MulChannel(x, scale *tensor.RawTensor) *tensor.RawTensor {
	n, c, sp := channelDims("mulchannel", x)
	if len(scale.Shape()) != 1 || scale.Shape()[0] != c {
		panic(fmt.Sprintf("mulchannel: scale shape %v does not match %d channels", scale.Shape(), c))
	}
	out := tensor.MustRaw(x.Shape(), x.DType(), cpu.device)
	switch x.DType() {
	case tensor.Float32:
		xd, sd, od := x.AsFloat32(), scale.AsFloat32(), out.AsFloat32()
		for i := 0; i < n; i++ {
			for j := 0; j < c; j++ {
				base := (i*c + j) * sp
				s := sd[j]
				for k := 0; k < sp; k++ {
					od[base+k] = xd[base+k] * s
				}
			}
		}
	case tensor.Float64:
		xd, sd, od := x.AsFloat64(), scale.AsFloat64(), out.AsFloat64()
		for i := 0; i < n; i++ {
			for j := 0; j < c; j++ {
				base := (i*c + j) * sp
				s := sd[j]
				for k := 0; k < sp; k++ {
					od[base+k] = xd[base+k] * s
				}
			}
		}
	}
	return out
}

// AddChannel adds the matching element of shift to each channel of x.
func (cpu *CPUBackend) AddChannel(x, shift *tensor.RawTensor) *tensor.RawTensor {
	n, c, sp := channelDims("addchannel", x)
	if len(shift.Shape()) != 1 || shift.Shape()[0] != c {
		panic(fmt.Sprintf("addchannel: shift shape %v does not match %d channels", shift.Shape(), c))
	}
	out := tensor.MustRaw(x.Shape(), x.DType(), cpu.device)
	switch x.DType() {
	case tensor.Float32:
		xd, sd, od := x.AsFloat32(), shift.AsFloat32(), out.AsFloat32()
		for i := 0; i < n; i++ {
			for j := 0; j < c; j++ {
				base := (i*c + j) * sp
				s := sd[j]
				for k := 0; k < sp; k++ {
					od[base+k] = xd[base+k] + s
				}
			}
		}
	case tensor.Float64:
		xd, sd, od := x.AsFloat64(), shift.AsFloat64(), out.AsFloat64()
		for i := 0; i < n; i++ {
			for j := 0; j < c; j++ {
				base := (i*c + j) * sp
				s := sd[j]
				for k := 0; k < sp; k++ {
					od[base+k] = xd[base+k] + s
				}
			}
		}
	}
	return out
}

// SumChannels reduces over batch and spatial axes, returning a 1-D tensor
// with one entry per channel.
func (cpu *CPUBackend) SumChannels(x *tensor.RawTensor) *tensor.RawTensor {
	n, c, sp := channelDims("sumchannels", x)
	out := tensor.MustRaw(tensor.Shape{c}, x.DType(), cpu.device)
	switch x.DType() {
	case tensor.Float32:
		xd, od := x.AsFloat32(), out.AsFloat32()
		for i := 0; i < n; i++ {
			for j := 0; j < c; j++ {
				base := (i*c + j) * sp
				var s float32
				for k := 0; k < sp; k++ {
					s += xd[base+k]
				}
				od[j] += s
			}
		}
	case tensor.Float64:
		xd, od := x.AsFloat64(), out.AsFloat64()
		for i := 0; i < n; i++ {
			for j := 0; j < c; j++ {
				base := (i*c + j) * sp
				var s float64
				for k := 0; k < sp; k++ {
					s += xd[base+k]
				}
				od[j] += s
			}
		}
	}
	return out
}
