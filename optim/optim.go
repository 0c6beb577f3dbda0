// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides optimizers for training flow networks with the
// manually accumulated gradients of the adjoint pass.
package optim

import (
	"github.com/born-ml/cinn/internal/flow"
	"github.com/born-ml/cinn/internal/optim"
	"github.com/born-ml/cinn/internal/tensor"
)

// Optimizer is the interface all optimizers implement.
type Optimizer[B tensor.Backend] = optim.Optimizer[B]

// SGD is stochastic gradient descent with optional momentum.
type SGD[B tensor.Backend] = optim.SGD[B]

// SGDConfig holds SGD hyperparameters.
type SGDConfig = optim.SGDConfig

// Adam is the Adam optimizer.
type Adam[B tensor.Backend] = optim.Adam[B]

// AdamConfig holds Adam hyperparameters.
type AdamConfig = optim.AdamConfig

// NewSGD creates an SGD optimizer over the given parameters.
func NewSGD[B tensor.Backend](params []*flow.Parameter[B], config SGDConfig) *SGD[B] {
	return optim.NewSGD[B](params, config)
}

// NewAdam creates an Adam optimizer over the given parameters.
func NewAdam[B tensor.Backend](params []*flow.Parameter[B], config AdamConfig) *Adam[B] {
	return optim.NewAdam[B](params, config)
}
