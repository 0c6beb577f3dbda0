package flow

import (
	"fmt"

	"golang.org/x/exp/rand"

	"github.com/born-ml/cinn/internal/tensor"
)

// scaleWidth is the channel configuration of one scale, derived once at
// construction time.
type scaleWidth struct {
	in   int // data channels entering the scale's flow steps
	cond int // conditioning channels at the scale
}

// Network is the multiscale orchestrator: an L x K grid of
// (ActNorm, Coupling) flow steps plus one ActNorm dedicated to the
// conditioning tensor, threaded with squeeze and split operations.
//
// Forward encodes (X, C) into a latent ZX of X's shape plus a
// log-determinant, recording the shapes of the split-off latent fragments.
// Inverse exactly undoes the traversal, and Backward mirrors Inverse while
// carrying an output-space gradient through every layer.
//
// A Network instance supports one in-flight call at a time: Forward records
// the latent layout that Inverse and Backward read, and parameter-gradient
// accumulation is unsynchronized. Serialize access externally when sharing
// an instance.
type Network[B tensor.Backend] struct {
	cfg       Config
	actnorms  [][]*ActNorm[B]  // [scale][step]
	couplings [][]*Coupling[B] // [scale][step]
	condNorm  *ActNorm[B]
	squeeze   *Squeeze[B]
	widths    []scaleWidth
	latents   []tensor.Shape // recorded split layout; nil until first Forward
	backend   B
}

// New constructs a Network for the given configuration. The channel width
// of every grid entry is derived here, once; Forward must encounter exactly
// these widths or the layers reject the input.
func New[B tensor.Backend](cfg Config, backend B) (*Network[B], error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	n := &Network[B]{
		cfg:      cfg,
		squeeze:  NewSqueeze[B](cfg.SpatialDims, cfg.SqueezeVariant, backend),
		condNorm: NewActNorm("cond_norm", cfg.CondChannels, false, backend),
		backend:  backend,
	}

	var src rand.Source
	if cfg.Seed != 0 {
		src = rand.NewSource(cfg.Seed)
	}

	factor := cfg.squeezeFactor()
	nIn, nCond := cfg.InChannels, cfg.CondChannels
	if !cfg.Multiscale {
		// One squeeze before the first scale; every scale runs at the
		// same width and nothing is split off.
		nIn *= factor
		nCond *= factor
	}

	n.widths = make([]scaleWidth, cfg.Scales)
	n.actnorms = make([][]*ActNorm[B], cfg.Scales)
	n.couplings = make([][]*Coupling[B], cfg.Scales)
	for i := 0; i < cfg.Scales; i++ {
		if cfg.Multiscale {
			nIn *= factor
			nCond *= factor
		}
		n.widths[i] = scaleWidth{in: nIn, cond: nCond}
		n.actnorms[i] = make([]*ActNorm[B], cfg.StepsPerScale)
		n.couplings[i] = make([]*Coupling[B], cfg.StepsPerScale)
		for j := 0; j < cfg.StepsPerScale; j++ {
			name := fmt.Sprintf("scale_%d.step_%d", i, j)
			n.actnorms[i][j] = NewActNorm(name+".actnorm", nIn, true, backend)
			n.couplings[i][j] = newCoupling(name+".coupling", nIn, nCond, cfg.Hidden, cfg.SpatialDims, cfg.Stages, cfg.Activation, cfg.ScaleNonlinearity, cfg.Clamp, src, backend)
		}
		if cfg.Multiscale && i < cfg.Scales-1 {
			nIn /= 2
		}
	}
	return n, nil
}

// Config returns the configuration the network was constructed with
// (defaults filled in).
func (n *Network[B]) Config() Config {
	return n.cfg
}

// ScaleWidths returns the (data, conditioning) channel width of each scale.
func (n *Network[B]) ScaleWidths() [][2]int {
	out := make([][2]int, len(n.widths))
	for i, w := range n.widths {
		out[i] = [2]int{w.in, w.cond}
	}
	return out
}

// Parameters returns every trainable parameter: the conditioning ActNorm
// followed by the grid in scale-major, step-minor order.
func (n *Network[B]) Parameters() []*Parameter[B] {
	params := n.condNorm.Parameters()
	for i := range n.actnorms {
		for j := range n.actnorms[i] {
			params = append(params, n.actnorms[i][j].Parameters()...)
			params = append(params, n.couplings[i][j].Parameters()...)
		}
	}
	return params
}

// ZeroGrad clears every parameter gradient.
func (n *Network[B]) ZeroGrad() {
	for _, p := range n.Parameters() {
		p.ZeroGrad()
	}
}

// squeezeDepth is the number of squeezes the traversal applies.
func (n *Network[B]) squeezeDepth() int {
	if n.cfg.Multiscale {
		return n.cfg.Scales
	}
	return 1
}

// validateInput checks the data/conditioning pair against the constructed
// configuration before any layer is touched.
func (n *Network[B]) validateInput(op string, xShape, cShape tensor.Shape) error {
	rank := n.cfg.SpatialDims + 2
	if len(xShape) != rank {
		return fmt.Errorf("flow %s: data shape %v, expected %d dimensions for %dD data", op, xShape, rank, n.cfg.SpatialDims)
	}
	if len(cShape) != rank {
		return fmt.Errorf("flow %s: conditioning shape %v, expected %d dimensions", op, cShape, rank)
	}
	if xShape[1] != n.cfg.InChannels {
		return fmt.Errorf("flow %s: data has %d channels, network constructed for %d", op, xShape[1], n.cfg.InChannels)
	}
	if cShape[1] != n.cfg.CondChannels {
		return fmt.Errorf("flow %s: conditioning has %d channels, network constructed for %d", op, cShape[1], n.cfg.CondChannels)
	}
	if xShape[0] != cShape[0] {
		return fmt.Errorf("flow %s: batch mismatch, data %d vs conditioning %d", op, xShape[0], cShape[0])
	}
	div := 1 << n.squeezeDepth()
	for d := 2; d < rank; d++ {
		if xShape[d] != cShape[d] {
			return fmt.Errorf("flow %s: spatial mismatch, data %v vs conditioning %v", op, xShape, cShape)
		}
		if xShape[d]%div != 0 {
			return fmt.Errorf("flow %s: spatial extent %d not divisible by %d (2^squeezes)", op, xShape[d], div)
		}
	}
	return nil
}

// Forward encodes the data tensor x with conditioning c into a latent of
// x's shape plus the accumulated log-determinant. When multiscale is
// enabled it records the shapes of the per-scale latent fragments for
// Inverse/Backward.
func (n *Network[B]) Forward(x, c *tensor.Tensor[float32, B]) (*tensor.Tensor[float32, B], float64, error) {
	if err := n.validateInput("forward", x.Shape(), c.Shape()); err != nil {
		return nil, 0, err
	}
	origShape := x.Shape().Clone()
	batch := origShape[0]

	cc, _ := n.condNorm.Forward(c)
	logdet := 0.0

	if !n.cfg.Multiscale {
		x = n.squeeze.Forward(x)
		cc = n.squeeze.Forward(cc)
	}

	fragments := make([]*tensor.Tensor[float32, B], 0, n.cfg.Scales-1)
	layout := make([]tensor.Shape, 0, n.cfg.Scales-1)
	for i := 0; i < n.cfg.Scales; i++ {
		if n.cfg.Multiscale {
			x = n.squeeze.Forward(x)
			cc = n.squeeze.Forward(cc)
		}
		for j := 0; j < n.cfg.StepsPerScale; j++ {
			var ld float64
			x, ld = n.actnorms[i][j].Forward(x)
			logdet += ld
			x, ld = n.couplings[i][j].Forward(x, cc)
			logdet += ld
		}
		if n.cfg.Multiscale && i < n.cfg.Scales-1 {
			halves := x.Chunk(2, 1)
			fragments = append(fragments, halves[0])
			layout = append(layout, halves[0].Shape().Clone())
			x = halves[1]
		}
	}

	var z *tensor.Tensor[float32, B]
	if n.cfg.Multiscale {
		flat := make([]*tensor.Tensor[float32, B], 0, len(fragments)+1)
		for _, f := range fragments {
			flat = append(flat, f.Reshape(batch, f.NumElements()/batch))
		}
		flat = append(flat, x.Reshape(batch, x.NumElements()/batch))
		z = tensor.Cat(flat, 1).Reshape(origShape...)
		n.latents = layout
	} else {
		z = n.squeeze.Inverse(x)
	}
	return z, logdet, nil
}

// ForwardC replicates the conditioning path of Forward: the conditioning
// ActNorm followed by the traversal's squeezes, with no split and no
// log-determinant. Inverse and Backward use it to re-derive the
// conditioning state for a C that never passed through Forward.
func (n *Network[B]) ForwardC(c *tensor.Tensor[float32, B]) (*tensor.Tensor[float32, B], error) {
	rank := n.cfg.SpatialDims + 2
	if len(c.Shape()) != rank || c.Shape()[1] != n.cfg.CondChannels {
		return nil, fmt.Errorf("flow forwardc: conditioning shape %v, expected %d dimensions with %d channels", c.Shape(), rank, n.cfg.CondChannels)
	}
	cc, _ := n.condNorm.Forward(c)
	for i := 0; i < n.squeezeDepth(); i++ {
		cc = n.squeeze.Forward(cc)
	}
	return cc, nil
}

// LatentLayout returns a copy of the recorded split-fragment shapes, or nil
// if no Forward call has populated them. The layout is only meaningful for
// multiscale networks.
func (n *Network[B]) LatentLayout() []tensor.Shape {
	if n.latents == nil {
		return nil
	}
	out := make([]tensor.Shape, len(n.latents))
	for i, s := range n.latents {
		out[i] = s.Clone()
	}
	return out
}

// patchLayout returns a copy of layout with every batch field set to batch.
// The stored layout is never mutated; fragment content for the new batch
// comes from slicing the incoming latent itself.
func patchLayout(layout []tensor.Shape, batch int) []tensor.Shape {
	out := make([]tensor.Shape, len(layout))
	for i, s := range layout {
		out[i] = s.Clone()
		out[i][0] = batch
	}
	return out
}

// splitLatent slices a latent of the original data shape back into the
// per-scale fragments and the final continuing tensor.
func (n *Network[B]) splitLatent(op string, z *tensor.Tensor[float32, B], layout []tensor.Shape) ([]*tensor.Tensor[float32, B], *tensor.Tensor[float32, B], error) {
	zShape := z.Shape()
	batch := zShape[0]
	total := z.NumElements() / batch
	flat := z.Reshape(batch, total)

	fragments := make([]*tensor.Tensor[float32, B], len(layout))
	offset := 0
	for i, s := range layout {
		size := s.NumElements() / batch
		if offset+size > total {
			return nil, nil, fmt.Errorf("flow %s: latent layout exceeds latent size (%d > %d elements per sample)", op, offset+size, total)
		}
		fragments[i] = flat.Narrow(1, offset, size).Reshape(s...)
		offset += size
	}

	// The final continuing tensor's shape is fully determined by the
	// construction-time widths and the latent's spatial extents.
	finalShape := tensor.Shape{batch, n.widths[len(n.widths)-1].in}
	div := 1 << n.cfg.Scales
	for d := 2; d < len(zShape); d++ {
		finalShape = append(finalShape, zShape[d]/div)
	}
	if want := finalShape.NumElements() / batch; total-offset != want {
		return nil, nil, fmt.Errorf("flow %s: latent layout leaves %d elements per sample, final scale needs %d", op, total-offset, want)
	}
	final := flat.Narrow(1, offset, total-offset).Reshape(finalShape...)
	return fragments, final, nil
}

// layoutFor resolves the split layout for a call: the recorded layout,
// batch-patched to the incoming latent. Fails when no Forward has recorded
// one yet.
func (n *Network[B]) layoutFor(op string, batch int) ([]tensor.Shape, error) {
	if !n.cfg.Multiscale {
		return nil, nil
	}
	if n.latents == nil {
		return nil, fmt.Errorf("flow %s: no recorded latent layout; run Forward first or use the WithLayout variant", op)
	}
	return patchLayout(n.latents, batch), nil
}

// Inverse reconstructs X from a latent and a conditioning tensor, exactly
// undoing Forward's traversal in reverse order. It consumes the layout
// recorded by the last Forward call, patched to the latent's batch size.
func (n *Network[B]) Inverse(z, c *tensor.Tensor[float32, B]) (*tensor.Tensor[float32, B], error) {
	layout, err := n.layoutFor("inverse", z.Shape()[0])
	if err != nil {
		return nil, err
	}
	return n.InverseWithLayout(z, c, layout)
}

// InverseWithLayout is Inverse with an explicit split layout, for callers
// that thread the layout as a value instead of relying on the recorded one.
// The layout is ignored for single-scale (non-multiscale) networks.
func (n *Network[B]) InverseWithLayout(z, c *tensor.Tensor[float32, B], layout []tensor.Shape) (*tensor.Tensor[float32, B], error) {
	if err := n.validateInput("inverse", z.Shape(), c.Shape()); err != nil {
		return nil, err
	}
	cc, err := n.ForwardC(c)
	if err != nil {
		return nil, err
	}

	var fragments []*tensor.Tensor[float32, B]
	x := z
	if n.cfg.Multiscale {
		layout = patchLayout(layout, z.Shape()[0])
		if len(layout) != n.cfg.Scales-1 {
			return nil, fmt.Errorf("flow inverse: layout has %d fragments, expected %d", len(layout), n.cfg.Scales-1)
		}
		fragments, x, err = n.splitLatent("inverse", z, layout)
		if err != nil {
			return nil, err
		}
	} else {
		x = n.squeeze.Forward(z)
	}

	for i := n.cfg.Scales - 1; i >= 0; i-- {
		if n.cfg.Multiscale && i < n.cfg.Scales-1 {
			x = tensor.Cat([]*tensor.Tensor[float32, B]{fragments[i], x}, 1)
		}
		for j := n.cfg.StepsPerScale - 1; j >= 0; j-- {
			x = n.couplings[i][j].Inverse(x, cc)
			x = n.actnorms[i][j].Inverse(x)
		}
		if n.cfg.Multiscale {
			x = n.squeeze.Inverse(x)
			cc = n.squeeze.Inverse(cc)
		}
	}
	if !n.cfg.Multiscale {
		x = n.squeeze.Inverse(x)
	}
	return x, nil
}

// Backward is the manual adjoint pass: given an output-space gradient dz,
// the latent z it belongs to and the conditioning tensor c, it walks the
// traversal in reverse carrying (gradient, value) pairs and returns the
// input-space gradient, the reconstructed input, and the accumulated
// conditioning gradient. Layer parameter gradients are accumulated as a
// side effect; the conditioning path is re-derived via ForwardC rather
// than differentiated through.
func (n *Network[B]) Backward(dz, z, c *tensor.Tensor[float32, B]) (dx, x, dc *tensor.Tensor[float32, B], err error) {
	layout, err := n.layoutFor("backward", z.Shape()[0])
	if err != nil {
		return nil, nil, nil, err
	}
	return n.BackwardWithLayout(dz, z, c, layout)
}

// BackwardNLL is Backward with the gradient of the negated log-determinant
// folded in at every layer. With dz set to z it accumulates the exact
// parameter gradient of the per-batch negative log-likelihood
//
//	0.5 * sum(z^2) - logdet
//
// in one pass, which is the training objective of a conditional flow.
func (n *Network[B]) BackwardNLL(dz, z, c *tensor.Tensor[float32, B]) (dx, x, dc *tensor.Tensor[float32, B], err error) {
	layout, err := n.layoutFor("backward", z.Shape()[0])
	if err != nil {
		return nil, nil, nil, err
	}
	return n.backwardWithLayout(dz, z, c, layout, true)
}

// BackwardWithLayout is Backward with an explicit split layout.
func (n *Network[B]) BackwardWithLayout(dz, z, c *tensor.Tensor[float32, B], layout []tensor.Shape) (dx, x, dc *tensor.Tensor[float32, B], err error) {
	return n.backwardWithLayout(dz, z, c, layout, false)
}

func (n *Network[B]) backwardWithLayout(dz, z, c *tensor.Tensor[float32, B], layout []tensor.Shape, nllGrad bool) (dx, x, dc *tensor.Tensor[float32, B], err error) {
	if err := n.validateInput("backward", z.Shape(), c.Shape()); err != nil {
		return nil, nil, nil, err
	}
	if !dz.Shape().Equal(z.Shape()) {
		return nil, nil, nil, fmt.Errorf("flow backward: gradient shape %v does not match latent shape %v", dz.Shape(), z.Shape())
	}
	cc, err := n.ForwardC(c)
	if err != nil {
		return nil, nil, nil, err
	}

	var fragZ, fragDz []*tensor.Tensor[float32, B]
	x, dx = z, dz
	if n.cfg.Multiscale {
		layout = patchLayout(layout, z.Shape()[0])
		if len(layout) != n.cfg.Scales-1 {
			return nil, nil, nil, fmt.Errorf("flow backward: layout has %d fragments, expected %d", len(layout), n.cfg.Scales-1)
		}
		fragZ, x, err = n.splitLatent("backward", z, layout)
		if err != nil {
			return nil, nil, nil, err
		}
		fragDz, dx, err = n.splitLatent("backward", dz, layout)
		if err != nil {
			return nil, nil, nil, err
		}
	} else {
		x = n.squeeze.Forward(z)
		dx = n.squeeze.Forward(dz)
	}

	dcTotal := tensor.Zeros[float32](cc.Shape(), n.backend)
	for i := n.cfg.Scales - 1; i >= 0; i-- {
		if n.cfg.Multiscale && i < n.cfg.Scales-1 {
			x = tensor.Cat([]*tensor.Tensor[float32, B]{fragZ[i], x}, 1)
			dx = tensor.Cat([]*tensor.Tensor[float32, B]{fragDz[i], dx}, 1)
		}
		for j := n.cfg.StepsPerScale - 1; j >= 0; j-- {
			var dcStep *tensor.Tensor[float32, B]
			dx, x, dcStep = n.couplings[i][j].backward(dx, x, cc, nllGrad)
			dcTotal = dcTotal.Add(dcStep)
			dx, x = n.actnorms[i][j].backward(dx, x, nllGrad)
		}
		if n.cfg.Multiscale {
			x = n.squeeze.Inverse(x)
			dx = n.squeeze.Inverse(dx)
			cc = n.squeeze.Inverse(cc)
			dcTotal = n.squeeze.Inverse(dcTotal)
		}
	}
	if !n.cfg.Multiscale {
		x = n.squeeze.Inverse(x)
		dx = n.squeeze.Inverse(dx)
		cc = n.squeeze.Inverse(cc)
		dcTotal = n.squeeze.Inverse(dcTotal)
	}

	// Finalize the conditioning gradient through the conditioning ActNorm;
	// the reconstructed C is a byproduct and is discarded.
	dc, _ = n.condNorm.Backward(dcTotal, cc)
	return dx, x, dc, nil
}
