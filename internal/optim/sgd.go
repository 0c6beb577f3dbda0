package optim

import (
	"github.com/born-ml/cinn/internal/flow"
	"github.com/born-ml/cinn/internal/tensor"
)

// SGD implements stochastic gradient descent with optional momentum.
//
// Without momentum:
//
//	param -= lr * grad
//
// With momentum:
//
//	velocity = momentum * velocity + grad
//	param -= lr * velocity
type SGD[B tensor.Backend] struct {
	params     []*flow.Parameter[B]
	lr         float32
	momentum   float32
	velocities map[*flow.Parameter[B]][]float32
}

// SGDConfig holds SGD hyperparameters.
type SGDConfig struct {
	LR       float32 // learning rate (default 0.01)
	Momentum float32 // momentum factor in [0, 1)
}

// NewSGD creates an SGD optimizer over the given parameters.
func NewSGD[B tensor.Backend](params []*flow.Parameter[B], config SGDConfig) *SGD[B] {
	if config.LR == 0 {
		config.LR = 0.01
	}
	return &SGD[B]{
		params:     params,
		lr:         config.LR,
		momentum:   config.Momentum,
		velocities: make(map[*flow.Parameter[B]][]float32),
	}
}

// Step applies one SGD update in place.
func (s *SGD[B]) Step() {
	for _, p := range s.params {
		grad := p.Grad()
		if grad == nil {
			continue
		}
		data := p.Tensor().Data()
		gd := grad.Data()
		if s.momentum == 0 {
			for i := range data {
				data[i] -= s.lr * gd[i]
			}
			continue
		}
		vel, ok := s.velocities[p]
		if !ok {
			vel = make([]float32, len(data))
			s.velocities[p] = vel
		}
		for i := range data {
			vel[i] = s.momentum*vel[i] + gd[i]
			data[i] -= s.lr * vel[i]
		}
	}
}

// ZeroGrad clears all parameter gradients.
func (s *SGD[B]) ZeroGrad() {
	zeroGrads(s.params)
}
