// Package optim implements optimizers over flow parameters.
//
// The flow's adjoint pass accumulates gradients on each Parameter; an
// optimizer consumes them with Step and the caller clears them with
// ZeroGrad between iterations.
package optim

import (
	"github.com/born-ml/cinn/internal/flow"
	"github.com/born-ml/cinn/internal/tensor"
)

// Optimizer is the common interface of parameter-update rules.
type Optimizer[B tensor.Backend] interface {
	// Step applies one update using the gradients currently accumulated
	// on the parameters. Parameters with a nil gradient are skipped.
	Step()

	// ZeroGrad clears the gradients of all managed parameters.
	ZeroGrad()
}

// zeroGrads clears the gradient of every parameter.
func zeroGrads[B tensor.Backend](params []*flow.Parameter[B]) {
	for _, p := range params {
		p.ZeroGrad()
	}
}
