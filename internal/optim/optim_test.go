package optim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/cinn/internal/backend/cpu"
	"github.com/born-ml/cinn/internal/flow"
	"github.com/born-ml/cinn/internal/tensor"
)

func newParam(t *testing.T, name string, values []float32, backend *cpu.CPUBackend) *flow.Parameter[*cpu.CPUBackend] {
	t.Helper()
	tt, err := tensor.FromSlice(values, tensor.Shape{len(values)}, backend)
	require.NoError(t, err)
	return flow.NewParameter(name, tt)
}

func setGrad(t *testing.T, p *flow.Parameter[*cpu.CPUBackend], values []float32, backend *cpu.CPUBackend) {
	t.Helper()
	g, err := tensor.FromSlice(values, tensor.Shape{len(values)}, backend)
	require.NoError(t, err)
	p.ZeroGrad()
	p.AddGrad(g)
}

func TestSGDStep(t *testing.T) {
	backend := cpu.New()
	p := newParam(t, "w", []float32{1, 2, 3}, backend)
	setGrad(t, p, []float32{1, -1, 0.5}, backend)

	opt := NewSGD([]*flow.Parameter[*cpu.CPUBackend]{p}, SGDConfig{LR: 0.1})
	opt.Step()

	want := []float32{0.9, 2.1, 2.95}
	for i, v := range p.Tensor().Data() {
		assert.InDelta(t, want[i], v, 1e-6)
	}
}

func TestSGDSkipsNilGrad(t *testing.T) {
	backend := cpu.New()
	p := newParam(t, "w", []float32{1, 2}, backend)

	opt := NewSGD([]*flow.Parameter[*cpu.CPUBackend]{p}, SGDConfig{LR: 0.1})
	opt.Step()
	assert.Equal(t, []float32{1, 2}, p.Tensor().Data())
}

func TestSGDMomentum(t *testing.T) {
	backend := cpu.New()
	p := newParam(t, "w", []float32{0}, backend)

	opt := NewSGD([]*flow.Parameter[*cpu.CPUBackend]{p}, SGDConfig{LR: 1, Momentum: 0.5})

	// Constant gradient 1: velocity 1, then 1.5.
	setGrad(t, p, []float32{1}, backend)
	opt.Step()
	assert.InDelta(t, -1.0, p.Tensor().Data()[0], 1e-6)

	setGrad(t, p, []float32{1}, backend)
	opt.Step()
	assert.InDelta(t, -2.5, p.Tensor().Data()[0], 1e-6)
}

func TestSGDZeroGrad(t *testing.T) {
	backend := cpu.New()
	p := newParam(t, "w", []float32{1}, backend)
	setGrad(t, p, []float32{1}, backend)

	opt := NewSGD([]*flow.Parameter[*cpu.CPUBackend]{p}, SGDConfig{})
	opt.ZeroGrad()
	assert.Nil(t, p.Grad())
}

func TestAdamFirstStep(t *testing.T) {
	backend := cpu.New()
	p := newParam(t, "w", []float32{1, 1}, backend)
	setGrad(t, p, []float32{0.5, -2}, backend)

	opt := NewAdam([]*flow.Parameter[*cpu.CPUBackend]{p}, AdamConfig{LR: 0.001})
	opt.Step()

	// With bias correction the first update is lr * g / (|g| + eps), i.e.
	// a signed step of about lr.
	data := p.Tensor().Data()
	assert.InDelta(t, 1-0.001, data[0], 1e-5)
	assert.InDelta(t, 1+0.001, data[1], 1e-5)
}

func TestAdamConverges(t *testing.T) {
	backend := cpu.New()
	p := newParam(t, "w", []float32{5}, backend)

	opt := NewAdam([]*flow.Parameter[*cpu.CPUBackend]{p}, AdamConfig{LR: 0.1})

	// Minimize (w - 2)^2 by supplying its gradient.
	for i := 0; i < 500; i++ {
		w := p.Tensor().Data()[0]
		setGrad(t, p, []float32{2 * (w - 2)}, backend)
		opt.Step()
	}
	assert.InDelta(t, 2.0, p.Tensor().Data()[0], 0.05)
}

func TestAdamDefaults(t *testing.T) {
	backend := cpu.New()
	p := newParam(t, "w", []float32{1}, backend)
	setGrad(t, p, []float32{1}, backend)

	opt := NewAdam([]*flow.Parameter[*cpu.CPUBackend]{p}, AdamConfig{})
	opt.Step()

	// Default lr 0.001.
	assert.InDelta(t, 0.999, p.Tensor().Data()[0], 1e-5)
	assert.False(t, math.IsNaN(float64(p.Tensor().Data()[0])))
}
