// Package flow implements a conditional multiscale normalizing flow in the
// Glow family: an exactly invertible map from a data tensor X and a
// conditioning tensor C to a latent tensor ZX plus a log-determinant, with a
// hand-written adjoint pass instead of a generic autodiff engine.
package flow

import (
	"fmt"
)

// ScaleNonlinearity selects the soft clamp applied to the coupling scale.
type ScaleNonlinearity int

// Supported scale nonlinearities.
const (
	// ClampTanh computes clamp * tanh(s/clamp).
	ClampTanh ScaleNonlinearity = iota
	// ClampAtan computes clamp * (2/pi) * atan(s/clamp).
	ClampAtan
)

// Activation selects the coupling subnet activation.
type Activation int

// Supported subnet activations.
const (
	ReLU Activation = iota
	LeakyReLU
	SiLU
)

// SqueezeVariant selects the channel ordering of the squeeze operator.
type SqueezeVariant int

// Supported squeeze variants.
const (
	// SqueezeBlock groups squeezed channels by source channel.
	SqueezeBlock SqueezeVariant = iota
	// SqueezeInterleave groups squeezed channels by spatial offset.
	SqueezeInterleave
)

// ConvStage is one convolution stage of the coupling subnet's residual
// block: a (kernel, padding, stride) triple.
type ConvStage struct {
	Kernel  int
	Padding int
	Stride  int
}

// Config holds the construction-time configuration of a Network.
type Config struct {
	// InChannels is the channel count of the data tensor X.
	InChannels int
	// CondChannels is the channel count of the conditioning tensor C.
	CondChannels int
	// Hidden is the channel width of the coupling subnets.
	Hidden int
	// Scales is the number of scales L.
	Scales int
	// StepsPerScale is the number of flow steps K within each scale.
	StepsPerScale int
	// SpatialDims is 2 for [N, C, H, W] data or 3 for [N, C, D, H, W].
	SpatialDims int
	// Multiscale enables the per-scale squeeze and channel split. When
	// disabled, a single squeeze is applied before the first scale and no
	// splitting occurs, so every scale runs at InChannels * factor.
	Multiscale bool
	// Clamp bounds the coupling log-scale to (-Clamp, Clamp).
	Clamp float32
	// ScaleNonlinearity selects the coupling scale soft clamp.
	ScaleNonlinearity ScaleNonlinearity
	// Activation selects the coupling subnet activation.
	Activation Activation
	// Stages configures the three convolution stages of the subnet's
	// residual block. Strides must be 1 and padding must preserve the
	// spatial extents, since coupling layers may not change shape.
	Stages [3]ConvStage
	// SqueezeVariant selects the squeeze channel ordering.
	SqueezeVariant SqueezeVariant
	// Seed seeds the coupling subnet weight initialization, making
	// construction reproducible. Zero draws from the process-global
	// source instead.
	Seed uint64
}

// withDefaults fills the zero values of optional fields.
func (c Config) withDefaults() Config {
	if c.Hidden == 0 {
		c.Hidden = 64
	}
	if c.SpatialDims == 0 {
		c.SpatialDims = 2
	}
	if c.Clamp == 0 {
		c.Clamp = 2.0
	}
	zero := ConvStage{}
	if c.Stages[0] == zero && c.Stages[1] == zero && c.Stages[2] == zero {
		c.Stages = [3]ConvStage{
			{Kernel: 3, Padding: 1, Stride: 1},
			{Kernel: 1, Padding: 0, Stride: 1},
			{Kernel: 3, Padding: 1, Stride: 1},
		}
	}
	return c
}

// validate rejects configurations the traversal cannot run with.
func (c Config) validate() error {
	if c.Scales < 1 {
		return fmt.Errorf("flow: scale count %d, need at least 1", c.Scales)
	}
	if c.StepsPerScale < 1 {
		return fmt.Errorf("flow: steps per scale %d, need at least 1", c.StepsPerScale)
	}
	if c.InChannels < 1 || c.CondChannels < 1 {
		return fmt.Errorf("flow: channel counts must be positive, got in=%d cond=%d", c.InChannels, c.CondChannels)
	}
	if c.SpatialDims != 2 && c.SpatialDims != 3 {
		return fmt.Errorf("flow: spatial dims must be 2 or 3, got %d", c.SpatialDims)
	}
	if c.Hidden < 1 {
		return fmt.Errorf("flow: hidden width %d, need at least 1", c.Hidden)
	}
	for i, st := range c.Stages {
		if st.Stride != 1 {
			return fmt.Errorf("flow: subnet stage %d stride %d, coupling subnets require stride 1", i, st.Stride)
		}
		if st.Kernel < 1 || st.Kernel%2 == 0 {
			return fmt.Errorf("flow: subnet stage %d kernel %d, need odd kernel", i, st.Kernel)
		}
		if st.Padding != (st.Kernel-1)/2 {
			return fmt.Errorf("flow: subnet stage %d padding %d does not preserve shape for kernel %d", i, st.Padding, st.Kernel)
		}
	}
	return nil
}

// squeezeFactor returns the channel multiplication factor of one squeeze:
// 4 for 2D data, 8 for 3D.
func (c Config) squeezeFactor() int {
	return 1 << c.SpatialDims
}
