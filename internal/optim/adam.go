package optim

import (
	"github.com/chewxy/math32"

	"github.com/born-ml/cinn/internal/flow"
	"github.com/born-ml/cinn/internal/tensor"
)

// Adam implements the Adam optimizer (Kingma & Ba, 2015) with bias
// correction.
type Adam[B tensor.Backend] struct {
	params []*flow.Parameter[B]
	lr     float32
	beta1  float32
	beta2  float32
	eps    float32
	step   int

	m map[*flow.Parameter[B]][]float32 // first moment
	v map[*flow.Parameter[B]][]float32 // second moment
}

// AdamConfig holds Adam hyperparameters.
type AdamConfig struct {
	LR    float32 // learning rate (default 0.001)
	Beta1 float32 // first-moment decay (default 0.9)
	Beta2 float32 // second-moment decay (default 0.999)
	Eps   float32 // numerical stability constant (default 1e-8)
}

// NewAdam creates an Adam optimizer over the given parameters.
func NewAdam[B tensor.Backend](params []*flow.Parameter[B], config AdamConfig) *Adam[B] {
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Beta1 == 0 {
		config.Beta1 = 0.9
	}
	if config.Beta2 == 0 {
		config.Beta2 = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}
	return &Adam[B]{
		params: params,
		lr:     config.LR,
		beta1:  config.Beta1,
		beta2:  config.Beta2,
		eps:    config.Eps,
		m:      make(map[*flow.Parameter[B]][]float32),
		v:      make(map[*flow.Parameter[B]][]float32),
	}
}

// Step applies one Adam update in place.
func (a *Adam[B]) Step() {
	a.step++
	bc1 := 1 - math32.Pow(a.beta1, float32(a.step))
	bc2 := 1 - math32.Pow(a.beta2, float32(a.step))

	for _, p := range a.params {
		grad := p.Grad()
		if grad == nil {
			continue
		}
		data := p.Tensor().Data()
		gd := grad.Data()

		m, ok := a.m[p]
		if !ok {
			m = make([]float32, len(data))
			a.m[p] = m
		}
		v, ok := a.v[p]
		if !ok {
			v = make([]float32, len(data))
			a.v[p] = v
		}

		for i := range data {
			g := gd[i]
			m[i] = a.beta1*m[i] + (1-a.beta1)*g
			v[i] = a.beta2*v[i] + (1-a.beta2)*g*g
			mHat := m[i] / bc1
			vHat := v[i] / bc2
			data[i] -= a.lr * mHat / (math32.Sqrt(vHat) + a.eps)
		}
	}
}

// ZeroGrad clears all parameter gradients.
func (a *Adam[B]) ZeroGrad() {
	zeroGrads(a.params)
}
