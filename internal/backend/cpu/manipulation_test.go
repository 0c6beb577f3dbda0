package cpu

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/born-ml/cinn/internal/tensor"
)

func TestCat(t *testing.T) {
	backend := New()
	a := raw32(t, []float32{1, 2, 3, 4}, tensor.Shape{2, 2})
	b := raw32(t, []float32{5, 6}, tensor.Shape{2, 1})

	out := backend.Cat([]*tensor.RawTensor{a, b}, 1)
	assert.Equal(t, tensor.Shape{2, 3}, out.Shape())
	assert.Equal(t, []float32{1, 2, 5, 3, 4, 6}, out.AsFloat32())

	out = backend.Cat([]*tensor.RawTensor{a, a}, 0)
	assert.Equal(t, tensor.Shape{4, 2}, out.Shape())
	assert.Equal(t, []float32{1, 2, 3, 4, 1, 2, 3, 4}, out.AsFloat32())
}

func TestCatNegativeDim(t *testing.T) {
	backend := New()
	a := raw32(t, []float32{1, 2}, tensor.Shape{1, 2})
	out := backend.Cat([]*tensor.RawTensor{a, a}, -1)
	assert.Equal(t, tensor.Shape{1, 4}, out.Shape())
	assert.Equal(t, []float32{1, 2, 1, 2}, out.AsFloat32())
}

func TestNarrow(t *testing.T) {
	backend := New()
	a := raw32(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})

	out := backend.Narrow(a, 1, 1, 2)
	assert.Equal(t, tensor.Shape{2, 2}, out.Shape())
	assert.Equal(t, []float32{2, 3, 5, 6}, out.AsFloat32())

	out = backend.Narrow(a, 0, 1, 1)
	assert.Equal(t, tensor.Shape{1, 3}, out.Shape())
	assert.Equal(t, []float32{4, 5, 6}, out.AsFloat32())
}

func TestNarrowOutOfRangePanics(t *testing.T) {
	backend := New()
	a := raw32(t, []float32{1, 2, 3}, tensor.Shape{3})
	assert.Panics(t, func() { backend.Narrow(a, 0, 2, 2) })
}

func TestChunk(t *testing.T) {
	backend := New()
	a := raw32(t, []float32{1, 2, 3, 4, 5, 6, 7, 8}, tensor.Shape{2, 4})

	parts := backend.Chunk(a, 2, 1)
	assert.Len(t, parts, 2)
	assert.Equal(t, []float32{1, 2, 5, 6}, parts[0].AsFloat32())
	assert.Equal(t, []float32{3, 4, 7, 8}, parts[1].AsFloat32())

	// Chunk then Cat is the identity.
	back := backend.Cat(parts, 1)
	assert.Equal(t, a.AsFloat32(), back.AsFloat32())
}

func TestChunkUnevenPanics(t *testing.T) {
	backend := New()
	a := raw32(t, []float32{1, 2, 3}, tensor.Shape{3})
	assert.Panics(t, func() { backend.Chunk(a, 2, 0) })
}

func TestReshape(t *testing.T) {
	backend := New()
	a := raw32(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	out := backend.Reshape(a, tensor.Shape{3, 2})
	assert.Equal(t, tensor.Shape{3, 2}, out.Shape())
	assert.Equal(t, a.AsFloat32(), out.AsFloat32())
}

func TestSpaceToDepth2DKnown(t *testing.T) {
	backend := New()
	// One 4x4 channel numbered row-major.
	data := make([]float32, 16)
	for i := range data {
		data[i] = float32(i)
	}
	x := raw32(t, data, tensor.Shape{1, 1, 4, 4})

	out := backend.SpaceToDepth(x, false)
	assert.Equal(t, tensor.Shape{1, 4, 2, 2}, out.Shape())

	// Channel order is offset bits (dy, dx): (0,0), (0,1), (1,0), (1,1).
	od := out.AsFloat32()
	assert.Equal(t, []float32{0, 2, 8, 10}, od[0:4], "offset (0,0)")
	assert.Equal(t, []float32{1, 3, 9, 11}, od[4:8], "offset (0,1)")
	assert.Equal(t, []float32{4, 6, 12, 14}, od[8:12], "offset (1,0)")
	assert.Equal(t, []float32{5, 7, 13, 15}, od[12:16], "offset (1,1)")
}

func TestSpaceToDepthChannelOrdering(t *testing.T) {
	backend := New()
	// Two channels of a 2x2 image: block ordering keeps the four offsets of
	// channel 0 first, interleave groups by offset.
	data := []float32{
		0, 1, 2, 3, // channel 0
		10, 11, 12, 13, // channel 1
	}
	x := raw32(t, data, tensor.Shape{1, 2, 2, 2})

	block := backend.SpaceToDepth(x, false)
	assert.Equal(t, []float32{0, 1, 2, 3, 10, 11, 12, 13}, block.AsFloat32())

	inter := backend.SpaceToDepth(x, true)
	assert.Equal(t, []float32{0, 10, 1, 11, 2, 12, 3, 13}, inter.AsFloat32())
}

func TestSpaceToDepthRoundtrip(t *testing.T) {
	backend := New()
	rng := rand.New(rand.NewSource(1))

	shapes := []tensor.Shape{
		{2, 3, 4, 6},
		{1, 1, 8, 8},
		{2, 2, 4, 4, 4},
	}
	for _, shape := range shapes {
		for _, interleave := range []bool{false, true} {
			data := make([]float32, shape.NumElements())
			for i := range data {
				data[i] = rng.Float32()
			}
			x := raw32(t, data, shape)

			down := backend.SpaceToDepth(x, interleave)
			up := backend.DepthToSpace(down, interleave)
			assert.Equal(t, shape, up.Shape())
			assert.Equal(t, data, up.AsFloat32(), "shape %v interleave %v", shape, interleave)
		}
	}
}

func TestSpaceToDepth3DShape(t *testing.T) {
	backend := New()
	x := raw32(t, make([]float32, 2*3*4*4*4), tensor.Shape{2, 3, 4, 4, 4})
	out := backend.SpaceToDepth(x, false)
	assert.Equal(t, tensor.Shape{2, 24, 2, 2, 2}, out.Shape())
}

func TestSpaceToDepthOddExtentPanics(t *testing.T) {
	backend := New()
	x := raw32(t, make([]float32, 9), tensor.Shape{1, 1, 3, 3})
	assert.Panics(t, func() { backend.SpaceToDepth(x, false) })
}
