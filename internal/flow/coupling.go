package flow

import (
	"fmt"

	"golang.org/x/exp/rand"

	"github.com/born-ml/cinn/internal/tensor"
)

// Coupling is a conditional affine coupling layer.
//
// The input is bisected along the channel axis into x1 and x2. A learned
// subnet of x1 and the conditioning tensor produces a soft-clamped log-scale
// s and a shift t, and
//
//	y1 = x1
//	y2 = x2 * exp(s) + t
//
// which is exactly invertible for any subnet, since the inverse can
// recompute (s, t) from y1 = x1 and the conditioning tensor. The
// log-determinant is sum(s).
type Coupling[B tensor.Backend] struct {
	net          *subnet[B]
	channels     int
	c1, c2       int
	condChannels int
	clamp        float32
	nonlinearity ScaleNonlinearity
	backend      B
}

// NewCoupling creates a coupling layer for the given data and conditioning
// channel widths, initializing subnet weights from the process-global
// random source.
func NewCoupling[B tensor.Backend](name string, channels, condChannels, hidden, spatialDims int, stages [3]ConvStage, act Activation, nl ScaleNonlinearity, clamp float32, backend B) *Coupling[B] {
	return newCoupling[B](name, channels, condChannels, hidden, spatialDims, stages, act, nl, clamp, nil, backend)
}

// newCoupling is NewCoupling with an explicit source for the subnet weight
// initialization, so network construction can be made reproducible.
func newCoupling[B tensor.Backend](name string, channels, condChannels, hidden, spatialDims int, stages [3]ConvStage, act Activation, nl ScaleNonlinearity, clamp float32, src rand.Source, backend B) *Coupling[B] {
	if channels < 2 {
		panic(fmt.Sprintf("coupling: need at least 2 channels to bisect, got %d", channels))
	}
	c1 := channels / 2
	c2 := channels - c1
	return &Coupling[B]{
		net:          newSubnet(name+".subnet", c1+condChannels, hidden, 2*c2, spatialDims, stages, act, src, backend),
		channels:     channels,
		c1:           c1,
		c2:           c2,
		condChannels: condChannels,
		clamp:        clamp,
		nonlinearity: nl,
		backend:      backend,
	}
}

// Channels returns the data channel width the layer was constructed for.
func (cp *Coupling[B]) Channels() int {
	return cp.channels
}

// Parameters returns the subnet parameters.
func (cp *Coupling[B]) Parameters() []*Parameter[B] {
	return cp.net.parameters()
}

func (cp *Coupling[B]) check(op string, x, cond *tensor.RawTensor) {
	if len(x.Shape()) < 3 || x.Shape()[1] != cp.channels {
		panic(fmt.Sprintf("coupling %s: tensor shape %v does not match %d channels", op, x.Shape(), cp.channels))
	}
	if cond.Shape()[1] != cp.condChannels {
		panic(fmt.Sprintf("coupling %s: conditioning shape %v does not match %d channels", op, cond.Shape(), cp.condChannels))
	}
	if x.Shape()[0] != cond.Shape()[0] {
		panic(fmt.Sprintf("coupling %s: batch mismatch, data %v vs conditioning %v", op, x.Shape(), cond.Shape()))
	}
	for d := 2; d < len(x.Shape()); d++ {
		if x.Shape()[d] != cond.Shape()[d] {
			panic(fmt.Sprintf("coupling %s: spatial mismatch, data %v vs conditioning %v", op, x.Shape(), cond.Shape()))
		}
	}
}

// scaleShift runs the subnet on cat(x1, cond) and returns the clamped
// log-scale and shift. With keep set, the subnet caches activations for a
// later backward call; sRaw is the pre-clamp subnet output half.
func (cp *Coupling[B]) scaleShift(x1, cond *tensor.RawTensor, keep bool) (sRaw, s, t *tensor.RawTensor) {
	be := cp.backend
	h := be.Cat([]*tensor.RawTensor{x1, cond}, 1)
	out := cp.net.forward(h, keep)
	parts := be.Chunk(out, 2, 1)
	sRaw, t = parts[0], parts[1]

	s = sRaw.Clone()
	data := s.AsFloat32()
	for i, v := range data {
		data[i] = softClamp(cp.nonlinearity, cp.clamp, v)
	}
	return sRaw, s, t
}

// Forward applies the coupling transform and returns (y, logdet).
func (cp *Coupling[B]) Forward(x *tensor.Tensor[float32, B], cond *tensor.Tensor[float32, B]) (*tensor.Tensor[float32, B], float64) {
	cp.check("forward", x.Raw(), cond.Raw())
	be := cp.backend

	x1 := be.Narrow(x.Raw(), 1, 0, cp.c1)
	x2 := be.Narrow(x.Raw(), 1, cp.c1, cp.c2)
	_, s, t := cp.scaleShift(x1, cond.Raw(), false)

	y2 := be.Add(be.Mul(x2, be.Exp(s)), t)
	y := be.Cat([]*tensor.RawTensor{x1, y2}, 1)
	return tensor.New[float32, B](y, be), be.Sum(s)
}

// Inverse exactly undoes Forward for the same conditioning tensor.
func (cp *Coupling[B]) Inverse(y *tensor.Tensor[float32, B], cond *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	cp.check("inverse", y.Raw(), cond.Raw())
	be := cp.backend

	x1 := be.Narrow(y.Raw(), 1, 0, cp.c1)
	y2 := be.Narrow(y.Raw(), 1, cp.c1, cp.c2)
	_, s, t := cp.scaleShift(x1, cond.Raw(), false)

	x2 := be.Mul(be.Sub(y2, t), be.Exp(be.Neg(s)))
	x := be.Cat([]*tensor.RawTensor{x1, x2}, 1)
	return tensor.New[float32, B](x, be)
}

// Backward propagates the adjoint through the layer. Given the output
// gradient dy, the output value y and the conditioning tensor, it returns
// the input gradient, the reconstructed input, and the gradient with
// respect to the conditioning tensor. Subnet parameter gradients are
// accumulated as a side effect.
func (cp *Coupling[B]) Backward(dy, y *tensor.Tensor[float32, B], cond *tensor.Tensor[float32, B]) (dx, x, dcond *tensor.Tensor[float32, B]) {
	return cp.backward(dy, y, cond, false)
}

// backward implements Backward. With nllGrad set it injects the gradient of
// the negated log-determinant, d(-logdet)/ds = -1 per element, before the
// clamp derivative, so the subnet also accumulates the likelihood term.
func (cp *Coupling[B]) backward(dy, y *tensor.Tensor[float32, B], cond *tensor.Tensor[float32, B], nllGrad bool) (dx, x, dcond *tensor.Tensor[float32, B]) {
	cp.check("backward", y.Raw(), cond.Raw())
	cp.check("backward", dy.Raw(), cond.Raw())
	be := cp.backend

	x1 := be.Narrow(y.Raw(), 1, 0, cp.c1)
	y2 := be.Narrow(y.Raw(), 1, cp.c1, cp.c2)
	dy1 := be.Narrow(dy.Raw(), 1, 0, cp.c1)
	dy2 := be.Narrow(dy.Raw(), 1, cp.c1, cp.c2)

	sRaw, s, t := cp.scaleShift(x1, cond.Raw(), true)
	x2 := be.Mul(be.Sub(y2, t), be.Exp(be.Neg(s)))

	// Value-path chain rule: y2 = x2*exp(s) + t with (s, t) functions of
	// (x1, cond) through the subnet.
	dx2 := be.Mul(dy2, be.Exp(s))
	ds := be.Mul(dy2, be.Sub(y2, t)) // dy2 * x2 * exp(s)
	dsRaw := ds.Clone()
	{
		data := dsRaw.AsFloat32()
		raw := sRaw.AsFloat32()
		for i := range data {
			if nllGrad {
				data[i] -= 1
			}
			data[i] *= softClampDerivative(cp.nonlinearity, cp.clamp, raw[i])
		}
	}
	dnet := be.Cat([]*tensor.RawTensor{dsRaw, dy2}, 1)
	dh := cp.net.backward(dnet)

	dx1 := be.Add(dy1, be.Narrow(dh, 1, 0, cp.c1))
	dcondRaw := be.Narrow(dh, 1, cp.c1, cp.condChannels)

	dxRaw := be.Cat([]*tensor.RawTensor{dx1, dx2}, 1)
	xRaw := be.Cat([]*tensor.RawTensor{x1, x2}, 1)
	return tensor.New[float32, B](dxRaw, be), tensor.New[float32, B](xRaw, be), tensor.New[float32, B](dcondRaw, be)
}
