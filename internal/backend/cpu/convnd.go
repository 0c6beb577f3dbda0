package cpu

import (
	"fmt"

	"github.com/born-ml/cinn/internal/tensor"
)

// convGeom holds the shared index geometry of a convolution call.
type convGeom struct {
	batch, cin, cout   int
	inDims, outDims    []int
	kernel, stride     int
	padding            int
	inSp, outSp, kerSp int
	inStrides          []int
	outStrides         []int
	spatial            int
}

func convGeometry(op string, input, weight *tensor.RawTensor, stride, padding int) convGeom {
	inShape := input.Shape()
	wShape := weight.Shape()
	ndim := len(inShape)
	if ndim != 4 && ndim != 5 {
		panic(fmt.Sprintf("%s: need 4D or 5D input [batch, channels, spatial...], got %v", op, inShape))
	}
	if len(wShape) != ndim {
		panic(fmt.Sprintf("%s: weight rank %d does not match input rank %d", op, len(wShape), ndim))
	}
	if wShape[1] != inShape[1] {
		panic(fmt.Sprintf("%s: input channels %d != weight channels %d", op, inShape[1], wShape[1]))
	}
	if stride <= 0 || padding < 0 {
		panic(fmt.Sprintf("%s: invalid stride %d / padding %d", op, stride, padding))
	}
	kernel := wShape[2]
	for _, k := range wShape[2:] {
		if k != kernel {
			panic(fmt.Sprintf("%s: anisotropic kernels unsupported, got %v", op, wShape[2:]))
		}
	}

	g := convGeom{
		batch:   inShape[0],
		cin:     inShape[1],
		cout:    wShape[0],
		inDims:  inShape[2:],
		kernel:  kernel,
		stride:  stride,
		padding: padding,
		spatial: ndim - 2,
	}
	g.outDims = make([]int, g.spatial)
	for i, d := range g.inDims {
		out := (d+2*padding-kernel)/stride + 1
		if out <= 0 {
			panic(fmt.Sprintf("%s: kernel %d does not fit input extent %d with padding %d", op, kernel, d, padding))
		}
		g.outDims[i] = out
	}
	g.inSp, g.outSp, g.kerSp = 1, 1, 1
	for i := 0; i < g.spatial; i++ {
		g.inSp *= g.inDims[i]
		g.outSp *= g.outDims[i]
		g.kerSp *= kernel
	}
	g.inStrides = tensor.Shape(g.inDims).ComputeStrides()
	g.outStrides = tensor.Shape(g.outDims).ComputeStrides()
	return g
}

// decompose writes the multi-index of flat into idx using strides.
func decompose(flat int, strides, idx []int) {
	for d := range idx {
		idx[d] = flat / strides[d]
		flat %= strides[d]
	}
}

// inputOffset maps an output position and kernel position to the flat input
// spatial offset, or -1 when the tap lands in the padding.
func (g *convGeom) inputOffset(outIdx, kerIdx []int) int {
	off := 0
	for d := 0; d < g.spatial; d++ {
		p := outIdx[d]*g.stride - g.padding + kerIdx[d]
		if p < 0 || p >= g.inDims[d] {
			return -1
		}
		off += p * g.inStrides[d]
	}
	return off
}

// ConvND performs an N-dimensional convolution (2 or 3 spatial dims) with a
// cubic kernel, single stride and symmetric zero padding.
//
// input [N, Cin, S...], weight [Cout, Cin, K...], bias [Cout] or nil.
func (cpu *CPUBackend) ConvND(input, weight, bias *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	if input.DType() != tensor.Float32 || weight.DType() != tensor.Float32 {
		panic("convnd: float32 tensors required")
	}
	g := convGeometry("convnd", input, weight, stride, padding)
	if bias != nil && (len(bias.Shape()) != 1 || bias.Shape()[0] != g.cout) {
		panic(fmt.Sprintf("convnd: bias shape %v does not match %d output channels", bias.Shape(), g.cout))
	}

	outShape := append(tensor.Shape{g.batch, g.cout}, g.outDims...)
	out := tensor.MustRaw(outShape, tensor.Float32, cpu.device)

	in := input.AsFloat32()
	w := weight.AsFloat32()
	od := out.AsFloat32()
	var bd []float32
	if bias != nil {
		bd = bias.AsFloat32()
	}

	outIdx := make([]int, g.spatial)
	kerIdx := make([]int, g.spatial)
	kerStrides := make([]int, g.spatial)
	kerStrides[g.spatial-1] = 1
	for d := g.spatial - 2; d >= 0; d-- {
		kerStrides[d] = kerStrides[d+1] * g.kernel
	}

	for n := 0; n < g.batch; n++ {
		for co := 0; co < g.cout; co++ {
			outBase := (n*g.cout + co) * g.outSp
			wBase := co * g.cin * g.kerSp
			for op := 0; op < g.outSp; op++ {
				decompose(op, g.outStrides, outIdx)
				var acc float32
				if bd != nil {
					acc = bd[co]
				}
				for ci := 0; ci < g.cin; ci++ {
					inBase := (n*g.cin + ci) * g.inSp
					wc := wBase + ci*g.kerSp
					for kp := 0; kp < g.kerSp; kp++ {
						decompose(kp, kerStrides, kerIdx)
						inOff := g.inputOffset(outIdx, kerIdx)
						if inOff < 0 {
							continue
						}
						acc += in[inBase+inOff] * w[wc+kp]
					}
				}
				od[outBase+op] = acc
			}
		}
	}
	return out
}
