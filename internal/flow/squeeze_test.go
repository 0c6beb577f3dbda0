package flow

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/born-ml/cinn/internal/backend/cpu"
	"github.com/born-ml/cinn/internal/tensor"
)

func TestSqueezeFactor(t *testing.T) {
	backend := cpu.New()
	assert.Equal(t, 4, NewSqueeze[*cpu.CPUBackend](2, SqueezeBlock, backend).Factor())
	assert.Equal(t, 8, NewSqueeze[*cpu.CPUBackend](3, SqueezeBlock, backend).Factor())
}

func TestSqueezeShapes(t *testing.T) {
	backend := cpu.New()
	sq := NewSqueeze[*cpu.CPUBackend](2, SqueezeBlock, backend)

	x := tensor.Zeros[float32](tensor.Shape{2, 3, 8, 4}, backend)
	y := sq.Forward(x)
	assert.Equal(t, tensor.Shape{2, 12, 4, 2}, y.Shape())
	assert.Equal(t, tensor.Shape{2, 3, 8, 4}, sq.Inverse(y).Shape())
}

func TestSqueezeRoundtrip(t *testing.T) {
	backend := cpu.New()
	rng := rand.New(rand.NewSource(5))

	for _, variant := range []SqueezeVariant{SqueezeBlock, SqueezeInterleave} {
		sq2 := NewSqueeze[*cpu.CPUBackend](2, variant, backend)
		x := randTensor(tensor.Shape{2, 3, 6, 4}, rng, backend)
		assert.Equal(t, x.Data(), sq2.Inverse(sq2.Forward(x)).Data())

		sq3 := NewSqueeze[*cpu.CPUBackend](3, variant, backend)
		v := randTensor(tensor.Shape{2, 2, 4, 4, 4}, rng, backend)
		assert.Equal(t, v.Data(), sq3.Inverse(sq3.Forward(v)).Data())
	}
}

func TestSqueezeIsPermutation(t *testing.T) {
	backend := cpu.New()
	sq := NewSqueeze[*cpu.CPUBackend](2, SqueezeBlock, backend)

	x := randTensor(tensor.Shape{1, 1, 4, 4}, rand.New(rand.NewSource(6)), backend)
	y := sq.Forward(x)

	seen := make(map[float32]int)
	for _, v := range x.Data() {
		seen[v]++
	}
	for _, v := range y.Data() {
		seen[v]--
	}
	for v, count := range seen {
		assert.Zero(t, count, "element %v not preserved", v)
	}
}

func TestSqueezeRankMismatchPanics(t *testing.T) {
	backend := cpu.New()
	sq := NewSqueeze[*cpu.CPUBackend](3, SqueezeBlock, backend)
	x := tensor.Zeros[float32](tensor.Shape{1, 1, 4, 4}, backend)
	assert.Panics(t, func() { sq.Forward(x) })
}

func TestSqueezeInvalidDimsPanics(t *testing.T) {
	backend := cpu.New()
	assert.Panics(t, func() { NewSqueeze[*cpu.CPUBackend](1, SqueezeBlock, backend) })
}
