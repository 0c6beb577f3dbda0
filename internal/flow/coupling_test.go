package flow

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	xrand "golang.org/x/exp/rand"

	"github.com/born-ml/cinn/internal/backend/cpu"
	"github.com/born-ml/cinn/internal/tensor"
)

var testStages = [3]ConvStage{
	{Kernel: 3, Padding: 1, Stride: 1},
	{Kernel: 1, Padding: 0, Stride: 1},
	{Kernel: 3, Padding: 1, Stride: 1},
}

func newTestCoupling(channels, condChannels int, backend *cpu.CPUBackend) *Coupling[*cpu.CPUBackend] {
	return NewCoupling("test", channels, condChannels, 8, 2, testStages, ReLU, ClampTanh, 2.0, backend)
}

// jitter perturbs parameters so the subnet is no longer the identity.
func jitter(params []*Parameter[*cpu.CPUBackend], rng *rand.Rand, scale float32) {
	for _, p := range params {
		data := p.Tensor().Data()
		for i := range data {
			data[i] += float32(rng.NormFloat64()) * scale
		}
	}
}

func TestCouplingIdentityAtInit(t *testing.T) {
	backend := cpu.New()
	cp := newTestCoupling(4, 2, backend)
	rng := rand.New(rand.NewSource(1))

	x := randTensor(tensor.Shape{2, 4, 4, 4}, rng, backend)
	cond := randTensor(tensor.Shape{2, 2, 4, 4}, rng, backend)

	// The output projection is zero initialized, so a fresh layer computes
	// s = 0, t = 0.
	y, logdet := cp.Forward(x, cond)
	assert.Equal(t, x.Data(), y.Data())
	assert.Zero(t, logdet)
}

func TestCouplingFirstHalfPassesThrough(t *testing.T) {
	backend := cpu.New()
	cp := newTestCoupling(4, 2, backend)
	rng := rand.New(rand.NewSource(2))
	jitter(cp.Parameters(), rng, 0.1)

	x := randTensor(tensor.Shape{1, 4, 4, 4}, rng, backend)
	cond := randTensor(tensor.Shape{1, 2, 4, 4}, rng, backend)

	y, _ := cp.Forward(x, cond)
	// Channels 0..1 are the untouched half.
	assert.Equal(t, x.Data()[:2*16], y.Data()[:2*16])
}

func TestCouplingRoundtrip(t *testing.T) {
	backend := cpu.New()
	rng := rand.New(rand.NewSource(3))

	for _, nl := range []ScaleNonlinearity{ClampTanh, ClampAtan} {
		cp := NewCoupling("test", 4, 2, 8, 2, testStages, LeakyReLU, nl, 2.0, backend)
		jitter(cp.Parameters(), rng, 0.1)

		x := randTensor(tensor.Shape{2, 4, 4, 4}, rng, backend)
		cond := randTensor(tensor.Shape{2, 2, 4, 4}, rng, backend)

		y, _ := cp.Forward(x, cond)
		back := cp.Inverse(y, cond)
		assert.Less(t, maxAbsDiff(x.Data(), back.Data()), 1e-4, "nonlinearity %v", nl)
	}
}

func TestCouplingOddChannelSplit(t *testing.T) {
	backend := cpu.New()
	rng := rand.New(rand.NewSource(4))

	// 5 channels bisect into 2 + 3.
	cp := newTestCoupling(5, 1, backend)
	jitter(cp.Parameters(), rng, 0.1)

	x := randTensor(tensor.Shape{1, 5, 4, 4}, rng, backend)
	cond := randTensor(tensor.Shape{1, 1, 4, 4}, rng, backend)

	y, _ := cp.Forward(x, cond)
	back := cp.Inverse(y, cond)
	assert.Less(t, maxAbsDiff(x.Data(), back.Data()), 1e-4)
}

// TestCouplingLogdet measures the diagonal Jacobian entries directly: the
// transform is affine in x2 for fixed (x1, cond), so a unit step in one x2
// element changes the matching y2 element by exactly exp(s) at that position.
func TestCouplingLogdet(t *testing.T) {
	backend := cpu.New()
	rng := rand.New(rand.NewSource(5))
	cp := newTestCoupling(2, 1, backend)
	jitter(cp.Parameters(), rng, 0.2)

	x := randTensor(tensor.Shape{1, 2, 2, 2}, rng, backend)
	cond := randTensor(tensor.Shape{1, 1, 2, 2}, rng, backend)

	y, logdet := cp.Forward(x, cond)

	sum := 0.0
	data := x.Data()
	for i := 4; i < 8; i++ { // x2 occupies channel 1, elements 4..7
		orig := data[i]
		data[i] = orig + 1
		bumped, _ := cp.Forward(x, cond)
		data[i] = orig
		slope := float64(bumped.Data()[i] - y.Data()[i])
		require.Greater(t, slope, 0.0)
		sum += math.Log(slope)
	}
	assert.InDelta(t, sum, logdet, 1e-3)
}

func TestCouplingBackward(t *testing.T) {
	backend := cpu.New()
	rng := rand.New(rand.NewSource(6))
	// SiLU keeps the subnet differentiable everywhere (finite differences
	// across a ReLU kink are invalid) and the seeded source pins the
	// initialization independent of test ordering.
	cp := newCoupling("test", 4, 2, 8, 2, testStages, SiLU, ClampTanh, 2.0, xrand.NewSource(6), backend)
	jitter(cp.Parameters(), rng, 0.1)

	xShape := tensor.Shape{1, 4, 4, 4}
	cShape := tensor.Shape{1, 2, 4, 4}
	x := randTensor(xShape, rng, backend)
	cond := randTensor(cShape, rng, backend)

	y, _ := cp.Forward(x, cond)
	dy := y.Clone() // gradient of 0.5*sum(y^2)

	dx, xr, dcond := cp.Backward(dy, y, cond)
	assert.Less(t, maxAbsDiff(x.Data(), xr.Data()), 1e-4)

	loss := func() float64 {
		out, _ := cp.Forward(x, cond)
		sum := 0.0
		for _, v := range out.Data() {
			sum += 0.5 * float64(v) * float64(v)
		}
		return sum
	}

	const h = 1e-2
	checkFD := func(name string, data []float32, grad []float32, indices []int) {
		for _, i := range indices {
			orig := data[i]
			data[i] = orig + h
			up := loss()
			data[i] = orig - h
			down := loss()
			data[i] = orig
			fd := (up - down) / (2 * h)
			tol := 5e-2 * math.Max(1, math.Abs(fd))
			assert.InDelta(t, fd, float64(grad[i]), tol, "%s[%d]", name, i)
		}
	}

	idx := []int{0, 7, 20, 33, 50, 63}
	checkFD("dx", x.Data(), dx.Data(), idx)
	checkFD("dcond", cond.Data(), dcond.Data(), []int{0, 5, 13, 21, 31})
}

func TestCouplingTooFewChannelsPanics(t *testing.T) {
	backend := cpu.New()
	assert.Panics(t, func() { newTestCoupling(1, 1, backend) })
}

func TestCouplingSpatialMismatchPanics(t *testing.T) {
	backend := cpu.New()
	cp := newTestCoupling(4, 2, backend)
	x := tensor.Zeros[float32](tensor.Shape{1, 4, 4, 4}, backend)
	cond := tensor.Zeros[float32](tensor.Shape{1, 2, 8, 8}, backend)
	assert.Panics(t, func() { cp.Forward(x, cond) })
}
