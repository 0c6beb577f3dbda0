package cpu

import (
	"fmt"

	"github.com/born-ml/cinn/internal/tensor"
)

// normalizeDim resolves negative dims and validates the range.
func normalizeDim(op string, dim, ndim int) int {
	if dim < 0 {
		dim = ndim + dim
	}
	if dim < 0 || dim >= ndim {
		panic(fmt.Sprintf("%s: dimension %d out of range for %dD tensor", op, dim, ndim))
	}
	return dim
}

// splitSizes returns (outer, inner) byte-block sizes around dim.
func splitSizes(shape tensor.Shape, dim, elemSize int) (outer, inner int) {
	outer = 1
	for _, d := range shape[:dim] {
		outer *= d
	}
	inner = elemSize
	for _, d := range shape[dim+1:] {
		inner *= d
	}
	return outer, inner
}

// Cat concatenates tensors along the specified dimension.
// All tensors must share dtype and every dimension except dim.
func (cpu *CPUBackend) Cat(tensors []*tensor.RawTensor, dim int) *tensor.RawTensor {
	if len(tensors) == 0 {
		panic("cat: at least one tensor required")
	}
	first := tensors[0]
	ndim := len(first.Shape())
	dim = normalizeDim("cat", dim, ndim)

	totalDim := 0
	for i, t := range tensors {
		shape := t.Shape()
		if len(shape) != ndim {
			panic(fmt.Sprintf("cat: tensor %d has %d dims, expected %d", i, len(shape), ndim))
		}
		if t.DType() != first.DType() {
			panic(fmt.Sprintf("cat: tensor %d has dtype %v, expected %v", i, t.DType(), first.DType()))
		}
		for d := 0; d < ndim; d++ {
			if d == dim {
				totalDim += shape[d]
			} else if shape[d] != first.Shape()[d] {
				panic(fmt.Sprintf("cat: tensor %d dimension %d is %d, expected %d", i, d, shape[d], first.Shape()[d]))
			}
		}
	}

	outShape := first.Shape().Clone()
	outShape[dim] = totalDim
	out := tensor.MustRaw(outShape, first.DType(), cpu.device)

	elemSize := first.DType().Size()
	outer, inner := splitSizes(outShape, dim, elemSize)
	dst := out.Bytes()
	rowBytes := totalDim * inner
	for o := 0; o < outer; o++ {
		off := o * rowBytes
		for _, t := range tensors {
			n := t.Shape()[dim] * inner
			copy(dst[off:off+n], t.Bytes()[o*n:(o+1)*n])
			off += n
		}
	}
	return out
}

// Narrow returns a copy of the slice [start, start+length) along dim.
func (cpu *CPUBackend) Narrow(x *tensor.RawTensor, dim, start, length int) *tensor.RawTensor {
	shape := x.Shape()
	dim = normalizeDim("narrow", dim, len(shape))
	if start < 0 || length <= 0 || start+length > shape[dim] {
		panic(fmt.Sprintf("narrow: range [%d, %d) invalid for dimension of size %d", start, start+length, shape[dim]))
	}

	outShape := shape.Clone()
	outShape[dim] = length
	out := tensor.MustRaw(outShape, x.DType(), cpu.device)

	elemSize := x.DType().Size()
	outer, inner := splitSizes(shape, dim, elemSize)
	src, dst := x.Bytes(), out.Bytes()
	srcRow := shape[dim] * inner
	dstRow := length * inner
	for o := 0; o < outer; o++ {
		copy(dst[o*dstRow:(o+1)*dstRow], src[o*srcRow+start*inner:o*srcRow+(start+length)*inner])
	}
	return out
}

// Chunk splits x into n equal parts along dim.
func (cpu *CPUBackend) Chunk(x *tensor.RawTensor, n, dim int) []*tensor.RawTensor {
	shape := x.Shape()
	dim = normalizeDim("chunk", dim, len(shape))
	if n <= 0 || shape[dim]%n != 0 {
		panic(fmt.Sprintf("chunk: cannot split dimension of size %d into %d parts", shape[dim], n))
	}
	size := shape[dim] / n
	out := make([]*tensor.RawTensor, n)
	for i := 0; i < n; i++ {
		out[i] = cpu.Narrow(x, dim, i*size, size)
	}
	return out
}

// Reshape returns a copy of x with a new shape holding the same elements.
func (cpu *CPUBackend) Reshape(x *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	return x.WithShape(shape)
}

// SpaceToDepth trades spatial resolution for channel depth by a factor of 2
// along every spatial axis: [N, C, H, W] -> [N, 4C, H/2, W/2] in 2D and
// [N, C, D, H, W] -> [N, 8C, D/2, H/2, W/2] in 3D.
//
// With interleave false the squeezed channels are grouped by source channel
// (oc = c*factor + offset); with interleave true they are grouped by spatial
// offset (oc = offset*C + c). Both orderings are exact bijections.
func (cpu *CPUBackend) SpaceToDepth(x *tensor.RawTensor, interleave bool) *tensor.RawTensor {
	return cpu.squeezeMove(x, interleave, false)
}

// DepthToSpace is the exact inverse of SpaceToDepth.
func (cpu *CPUBackend) DepthToSpace(x *tensor.RawTensor, interleave bool) *tensor.RawTensor {
	return cpu.squeezeMove(x, interleave, true)
}

func (cpu *CPUBackend) squeezeMove(x *tensor.RawTensor, interleave, invert bool) *tensor.RawTensor {
	shape := x.Shape()
	ndim := len(shape)
	if ndim != 4 && ndim != 5 {
		panic(fmt.Sprintf("squeeze: need 4D or 5D [batch, channels, spatial...] tensor, got %v", shape))
	}
	spatialDims := ndim - 2
	factor := 1 << spatialDims

	n := shape[0]
	var cFine int           // channel count on the un-squeezed side
	var fine, coarse []int  // spatial extents on each side
	if invert {
		if shape[1]%factor != 0 {
			panic(fmt.Sprintf("squeeze: channel count %d not divisible by factor %d", shape[1], factor))
		}
		cFine = shape[1] / factor
		coarse = shape[2:]
		fine = make([]int, spatialDims)
		for i, d := range coarse {
			fine[i] = d * 2
		}
	} else {
		cFine = shape[1]
		fine = shape[2:]
		coarse = make([]int, spatialDims)
		for i, d := range fine {
			if d%2 != 0 {
				panic(fmt.Sprintf("squeeze: spatial extent %d is odd in shape %v", d, shape))
			}
			coarse[i] = d / 2
		}
	}

	var outShape tensor.Shape
	if invert {
		outShape = append(tensor.Shape{n, cFine}, fine...)
	} else {
		outShape = append(tensor.Shape{n, cFine * factor}, coarse...)
	}
	out := tensor.MustRaw(outShape, x.DType(), cpu.device)

	elemSize := x.DType().Size()
	src, dst := x.Bytes(), out.Bytes()

	fineStrides := tensor.Shape(fine).ComputeStrides()
	coarseStrides := tensor.Shape(coarse).ComputeStrides()
	fineSp := 1
	for _, d := range fine {
		fineSp *= d
	}
	coarseSp := fineSp / factor

	idx := make([]int, spatialDims)
	for b := 0; b < n; b++ {
		for c := 0; c < cFine; c++ {
			fineBase := (b*cFine + c) * fineSp
			for p := 0; p < fineSp; p++ {
				// Decompose the fine spatial index into coarse position
				// and offset bits.
				rem := p
				offset := 0
				coarsePos := 0
				for d := 0; d < spatialDims; d++ {
					idx[d] = rem / fineStrides[d]
					rem %= fineStrides[d]
					offset = offset<<1 | idx[d]&1
					coarsePos += (idx[d] / 2) * coarseStrides[d]
				}
				oc := c*factor + offset
				if interleave {
					oc = offset*cFine + c
				}
				coarseIdx := (b*(cFine*factor)+oc)*coarseSp + coarsePos
				fineIdx := fineBase + p
				if invert {
					copy(dst[fineIdx*elemSize:(fineIdx+1)*elemSize], src[coarseIdx*elemSize:(coarseIdx+1)*elemSize])
				} else {
					copy(dst[coarseIdx*elemSize:(coarseIdx+1)*elemSize], src[fineIdx*elemSize:(fineIdx+1)*elemSize])
				}
			}
		}
	}
	return out
}
