package flow

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	"github.com/born-ml/cinn/internal/tensor"
)

// convStage is one convolution of the coupling subnet.
type convStage[B tensor.Backend] struct {
	weight  *Parameter[B] // [out, in, k...]
	bias    *Parameter[B] // [out]
	kernel  int
	padding int
	backend B
}

func newConvStage[B tensor.Backend](name string, in, out, kernel, padding, spatialDims int, zeroInit bool, src rand.Source, backend B) *convStage[B] {
	wShape := tensor.Shape{out, in}
	for i := 0; i < spatialDims; i++ {
		wShape = append(wShape, kernel)
	}
	var w *tensor.Tensor[float32, B]
	if zeroInit {
		w = tensor.Zeros[float32](wShape, backend)
	} else {
		kerSp := 1
		for i := 0; i < spatialDims; i++ {
			kerSp *= kernel
		}
		bound := math.Sqrt(6.0 / float64((in+out)*kerSp))
		w = tensor.UniformFrom[float32](wShape, -bound, bound, src, backend)
	}
	return &convStage[B]{
		weight:  NewParameter(name+".weight", w),
		bias:    NewParameter(name+".bias", tensor.Zeros[float32](tensor.Shape{out}, backend)),
		kernel:  kernel,
		padding: padding,
		backend: backend,
	}
}

func (c *convStage[B]) forward(in *tensor.RawTensor) *tensor.RawTensor {
	return c.backend.ConvND(in, c.weight.Tensor().Raw(), c.bias.Tensor().Raw(), 1, c.padding)
}

// backward accumulates weight/bias gradients and returns the input gradient.
func (c *convStage[B]) backward(in, gradOut *tensor.RawTensor) *tensor.RawTensor {
	gradIn, gradW, gradB := c.backend.ConvNDBackward(in, c.weight.Tensor().Raw(), gradOut, 1, c.padding)
	c.weight.AddGrad(tensor.New[float32, B](gradW, c.backend))
	c.bias.AddGrad(tensor.New[float32, B](gradB, c.backend))
	return gradIn
}

// subnetCache holds the activations of one forward pass, consumed by the
// manual backward pass.
type subnetCache struct {
	input   *tensor.RawTensor
	mixPre  *tensor.RawTensor
	h0      *tensor.RawTensor
	aPre    *tensor.RawTensor
	aAct    *tensor.RawTensor
	bPre    *tensor.RawTensor
	bAct    *tensor.RawTensor
	h1      *tensor.RawTensor
}

// subnet is the learned map of a coupling layer: a 1x1 mixing convolution,
// a residual block of three convolution stages, and a zero-initialized
// output projection so a fresh coupling layer is the identity.
type subnet[B tensor.Backend] struct {
	mix  *convStage[B] // 1x1, in -> hidden
	resA *convStage[B] // hidden -> hidden
	resB *convStage[B] // hidden -> hidden
	resC *convStage[B] // hidden -> hidden
	proj *convStage[B] // 1x1, hidden -> out, zero-init
	act  Activation

	inChannels, outChannels int
	cache                   *subnetCache
	backend                 B
}

func newSubnet[B tensor.Backend](name string, in, hidden, out, spatialDims int, stages [3]ConvStage, act Activation, src rand.Source, backend B) *subnet[B] {
	return &subnet[B]{
		mix:         newConvStage(name+".mix", in, hidden, 1, 0, spatialDims, false, src, backend),
		resA:        newConvStage(name+".res.0", hidden, hidden, stages[0].Kernel, stages[0].Padding, spatialDims, false, src, backend),
		resB:        newConvStage(name+".res.1", hidden, hidden, stages[1].Kernel, stages[1].Padding, spatialDims, false, src, backend),
		resC:        newConvStage(name+".res.2", hidden, hidden, stages[2].Kernel, stages[2].Padding, spatialDims, false, src, backend),
		proj:        newConvStage(name+".proj", hidden, out, 1, 0, spatialDims, true, src, backend),
		act:         act,
		inChannels:  in,
		outChannels: out,
		backend:     backend,
	}
}

func (s *subnet[B]) parameters() []*Parameter[B] {
	var out []*Parameter[B]
	for _, st := range []*convStage[B]{s.mix, s.resA, s.resB, s.resC, s.proj} {
		out = append(out, st.weight, st.bias)
	}
	return out
}

// applyAct returns act(x) element-wise.
func applyAct(a Activation, x *tensor.RawTensor) *tensor.RawTensor {
	out := x.Clone()
	data := out.AsFloat32()
	for i, v := range data {
		data[i] = actForward(a, v)
	}
	return out
}

// chainAct returns grad * act'(pre) element-wise.
func chainAct(a Activation, grad, pre *tensor.RawTensor) *tensor.RawTensor {
	out := grad.Clone()
	data := out.AsFloat32()
	preData := pre.AsFloat32()
	for i := range data {
		data[i] *= actDerivative(a, preData[i])
	}
	return out
}

// forward runs the subnet. With keep set, intermediate activations are
// cached for a following backward call.
func (s *subnet[B]) forward(x *tensor.RawTensor, keep bool) *tensor.RawTensor {
	if x.Shape()[1] != s.inChannels {
		panic(fmt.Sprintf("subnet: input has %d channels, constructed for %d", x.Shape()[1], s.inChannels))
	}
	mixPre := s.mix.forward(x)
	h0 := applyAct(s.act, mixPre)
	aPre := s.resA.forward(h0)
	aAct := applyAct(s.act, aPre)
	bPre := s.resB.forward(aAct)
	bAct := applyAct(s.act, bPre)
	cOut := s.resC.forward(bAct)
	h1 := s.backend.Add(h0, cOut)
	out := s.proj.forward(h1)

	if keep {
		s.cache = &subnetCache{
			input: x, mixPre: mixPre, h0: h0,
			aPre: aPre, aAct: aAct, bPre: bPre, bAct: bAct, h1: h1,
		}
	} else {
		s.cache = nil
	}
	return out
}

// backward propagates the output gradient through the cached forward pass,
// accumulating all stage parameter gradients, and returns the gradient with
// respect to the subnet input. Requires a prior forward(x, true).
func (s *subnet[B]) backward(gradOut *tensor.RawTensor) *tensor.RawTensor {
	if s.cache == nil {
		panic("subnet: backward without cached forward pass")
	}
	cc := s.cache
	s.cache = nil
	be := s.backend

	dh1 := s.proj.backward(cc.h1, gradOut)
	// h1 = h0 + resC(bAct): the gradient splits into the skip path and the
	// residual path.
	dbAct := s.resC.backward(cc.bAct, dh1)
	dbPre := chainAct(s.act, dbAct, cc.bPre)
	daAct := s.resB.backward(cc.aAct, dbPre)
	daPre := chainAct(s.act, daAct, cc.aPre)
	dh0 := be.Add(dh1, s.resA.backward(cc.h0, daPre))
	dmixPre := chainAct(s.act, dh0, cc.mixPre)
	return s.mix.backward(cc.input, dmixPre)
}
