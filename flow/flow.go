// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package flow provides the public API of the cinn conditional normalizing
// flow: a multiscale, exactly invertible transform in the Glow family with
// a hand-written adjoint pass.
//
// Example:
//
//	backend := cpu.New()
//	net, err := flow.New[*cpu.Backend](flow.Config{
//	    InChannels:    1,
//	    CondChannels:  1,
//	    Scales:        2,
//	    StepsPerScale: 4,
//	    Multiscale:    true,
//	}, backend)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	z, logdet, err := net.Forward(x, c)
package flow

import (
	"github.com/born-ml/cinn/internal/flow"
	"github.com/born-ml/cinn/internal/tensor"
)

// Config holds the construction-time configuration of a Network.
type Config = flow.Config

// ConvStage is a (kernel, padding, stride) triple configuring one subnet
// convolution stage.
type ConvStage = flow.ConvStage

// ScaleNonlinearity selects the coupling scale soft clamp.
type ScaleNonlinearity = flow.ScaleNonlinearity

// Scale nonlinearity constants.
const (
	ClampTanh ScaleNonlinearity = flow.ClampTanh
	ClampAtan ScaleNonlinearity = flow.ClampAtan
)

// Activation selects the coupling subnet activation.
type Activation = flow.Activation

// Activation constants.
const (
	ReLU      Activation = flow.ReLU
	LeakyReLU Activation = flow.LeakyReLU
	SiLU      Activation = flow.SiLU
)

// SqueezeVariant selects the squeeze channel ordering.
type SqueezeVariant = flow.SqueezeVariant

// Squeeze variant constants.
const (
	SqueezeBlock      SqueezeVariant = flow.SqueezeBlock
	SqueezeInterleave SqueezeVariant = flow.SqueezeInterleave
)

// Network is the multiscale flow orchestrator.
type Network[B tensor.Backend] = flow.Network[B]

// Parameter is a trainable tensor with a manually accumulated gradient.
type Parameter[B tensor.Backend] = flow.Parameter[B]

// ActNorm is the invertible per-channel affine normalization layer.
type ActNorm[B tensor.Backend] = flow.ActNorm[B]

// Coupling is the conditional affine coupling layer.
type Coupling[B tensor.Backend] = flow.Coupling[B]

// Squeeze is the space-to-depth operator.
type Squeeze[B tensor.Backend] = flow.Squeeze[B]

// New constructs a Network for the given configuration.
func New[B tensor.Backend](cfg Config, backend B) (*Network[B], error) {
	return flow.New[B](cfg, backend)
}

// NewActNorm creates a standalone ActNorm layer.
func NewActNorm[B tensor.Backend](name string, channels int, withLogdet bool, backend B) *ActNorm[B] {
	return flow.NewActNorm[B](name, channels, withLogdet, backend)
}

// NewCoupling creates a standalone conditional coupling layer.
func NewCoupling[B tensor.Backend](name string, channels, condChannels, hidden, spatialDims int, stages [3]ConvStage, act Activation, nl ScaleNonlinearity, clamp float32, backend B) *Coupling[B] {
	return flow.NewCoupling[B](name, channels, condChannels, hidden, spatialDims, stages, act, nl, clamp, backend)
}

// NewSqueeze creates a standalone squeeze operator.
func NewSqueeze[B tensor.Backend](spatialDims int, variant SqueezeVariant, backend B) *Squeeze[B] {
	return flow.NewSqueeze[B](spatialDims, variant, backend)
}
