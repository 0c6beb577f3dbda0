package flow

import (
	"fmt"

	"github.com/born-ml/cinn/internal/tensor"
)

// Squeeze is the parameter-free space-to-depth operator: it halves every
// spatial extent and multiplies the channel count by 4 (2D) or 8 (3D).
// It is a pure permutation of elements and therefore exactly invertible.
type Squeeze[B tensor.Backend] struct {
	spatialDims int
	interleave  bool
	backend     B
}

// NewSqueeze creates a squeeze operator for the given dimensionality and
// channel-ordering variant.
func NewSqueeze[B tensor.Backend](spatialDims int, variant SqueezeVariant, backend B) *Squeeze[B] {
	if spatialDims != 2 && spatialDims != 3 {
		panic(fmt.Sprintf("squeeze: spatial dims must be 2 or 3, got %d", spatialDims))
	}
	return &Squeeze[B]{
		spatialDims: spatialDims,
		interleave:  variant == SqueezeInterleave,
		backend:     backend,
	}
}

// Factor returns the channel multiplication factor (4 in 2D, 8 in 3D).
func (s *Squeeze[B]) Factor() int {
	return 1 << s.spatialDims
}

// Forward trades spatial resolution for channel depth.
func (s *Squeeze[B]) Forward(t *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	s.checkRank(t)
	return tensor.New[float32, B](s.backend.SpaceToDepth(t.Raw(), s.interleave), s.backend)
}

// Inverse exactly undoes Forward.
func (s *Squeeze[B]) Inverse(t *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	s.checkRank(t)
	return tensor.New[float32, B](s.backend.DepthToSpace(t.Raw(), s.interleave), s.backend)
}

func (s *Squeeze[B]) checkRank(t *tensor.Tensor[float32, B]) {
	if len(t.Shape()) != s.spatialDims+2 {
		panic(fmt.Sprintf("squeeze: tensor shape %v does not match %d spatial dims", t.Shape(), s.spatialDims))
	}
}
