package flow

import (
	"fmt"

	"github.com/born-ml/cinn/internal/tensor"
)

// ActNorm is an invertible per-channel affine normalization:
//
//	y = exp(s_c) * x + b_c
//
// Both parameters start at zero, so a fresh layer is the identity. The
// log-determinant is data independent: spatialElems * batch * sum(s).
//
// A layer is constructed for a fixed channel width and rejects tensors of
// any other width.
type ActNorm[B tensor.Backend] struct {
	logScale   *Parameter[B] // [channels]
	bias       *Parameter[B] // [channels]
	channels   int
	withLogdet bool
	backend    B
}

// NewActNorm creates an ActNorm layer for the given channel width.
// withLogdet controls whether Forward reports a log-determinant; the
// conditioning-path instance runs with it disabled.
func NewActNorm[B tensor.Backend](name string, channels int, withLogdet bool, backend B) *ActNorm[B] {
	shape := tensor.Shape{channels}
	return &ActNorm[B]{
		logScale:   NewParameter(name+".log_scale", tensor.Zeros[float32](shape, backend)),
		bias:       NewParameter(name+".bias", tensor.Zeros[float32](shape, backend)),
		channels:   channels,
		withLogdet: withLogdet,
		backend:    backend,
	}
}

// Channels returns the channel width the layer was constructed for.
func (a *ActNorm[B]) Channels() int {
	return a.channels
}

// Parameters returns the trainable parameters.
func (a *ActNorm[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{a.logScale, a.bias}
}

func (a *ActNorm[B]) check(op string, t *tensor.Tensor[float32, B]) {
	shape := t.Shape()
	if len(shape) < 3 || shape[1] != a.channels {
		panic(fmt.Sprintf("actnorm %s: tensor shape %v does not match %d channels", op, shape, a.channels))
	}
}

// Forward applies the affine map and returns (y, logdet). logdet is zero
// when the layer was built without log-determinant reporting.
func (a *ActNorm[B]) Forward(x *tensor.Tensor[float32, B]) (*tensor.Tensor[float32, B], float64) {
	a.check("forward", x)
	be := a.backend
	scale := be.Exp(a.logScale.Tensor().Raw())
	y := be.AddChannel(be.MulChannel(x.Raw(), scale), a.bias.Tensor().Raw())

	var logdet float64
	if a.withLogdet {
		elems := x.NumElements() / a.channels // batch * spatial positions
		logdet = float64(elems) * a.logScale.Tensor().Sum()
	}
	return tensor.New[float32, B](y, be), logdet
}

// Inverse exactly undoes Forward.
func (a *ActNorm[B]) Inverse(y *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	a.check("inverse", y)
	be := a.backend
	negBias := be.Neg(a.bias.Tensor().Raw())
	invScale := be.Exp(be.Neg(a.logScale.Tensor().Raw()))
	x := be.MulChannel(be.AddChannel(y.Raw(), negBias), invScale)
	return tensor.New[float32, B](x, be)
}

// Backward propagates the adjoint through the layer: given the gradient dy
// at the output and the output value y, it returns (dx, x) and accumulates
// the parameter gradients
//
//	dL/db_c = sum(dy_c)
//	dL/ds_c = sum(dy_c * (y_c - b_c))
func (a *ActNorm[B]) Backward(dy, y *tensor.Tensor[float32, B]) (dx, x *tensor.Tensor[float32, B]) {
	return a.backward(dy, y, false)
}

// backward implements Backward. With nllGrad set it additionally folds the
// gradient of the negated log-determinant into the scale parameter:
// d(-logdet)/ds_c = -elems, a constant per channel.
func (a *ActNorm[B]) backward(dy, y *tensor.Tensor[float32, B], nllGrad bool) (dx, x *tensor.Tensor[float32, B]) {
	a.check("backward", y)
	a.check("backward", dy)
	be := a.backend

	negBias := be.Neg(a.bias.Tensor().Raw())
	centered := be.AddChannel(y.Raw(), negBias) // y - b = x * exp(s)
	invScale := be.Exp(be.Neg(a.logScale.Tensor().Raw()))
	xRaw := be.MulChannel(centered, invScale)

	scale := be.Exp(a.logScale.Tensor().Raw())
	dxRaw := be.MulChannel(dy.Raw(), scale)

	gradBias := be.SumChannels(dy.Raw())
	gradScale := be.SumChannels(be.Mul(dy.Raw(), centered))
	if nllGrad && a.withLogdet {
		elems := y.NumElements() / a.channels
		gradScale = be.AddScalar(gradScale, -float64(elems))
	}
	a.bias.AddGrad(tensor.New[float32, B](gradBias, be))
	a.logScale.AddGrad(tensor.New[float32, B](gradScale, be))

	return tensor.New[float32, B](dxRaw, be), tensor.New[float32, B](xRaw, be)
}
