package flow

import (
	"github.com/born-ml/cinn/internal/tensor"
)

// Parameter is a trainable tensor with a manually accumulated gradient.
//
// The adjoint pass accumulates into Grad with AddGrad; optimizers read Grad
// and call ZeroGrad between steps. Accumulation is not synchronized: a
// network instance supports one in-flight call at a time.
type Parameter[B tensor.Backend] struct {
	name   string
	tensor *tensor.Tensor[float32, B]
	grad   *tensor.Tensor[float32, B]
}

// NewParameter creates a parameter around an initialized tensor.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return &Parameter[B]{name: name, tensor: t}
}

// Name returns the parameter name.
func (p *Parameter[B]) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter[B]) Tensor() *tensor.Tensor[float32, B] {
	return p.tensor
}

// Grad returns the accumulated gradient, or nil before the first backward
// pass.
func (p *Parameter[B]) Grad() *tensor.Tensor[float32, B] {
	return p.grad
}

// AddGrad accumulates g into the parameter gradient.
func (p *Parameter[B]) AddGrad(g *tensor.Tensor[float32, B]) {
	if p.grad == nil {
		p.grad = g.Clone()
		return
	}
	p.grad = p.grad.Add(g)
}

// ZeroGrad clears the accumulated gradient.
func (p *Parameter[B]) ZeroGrad() {
	p.grad = nil
}
