package tensor

// Backend defines the interface compute backends must implement.
//
// All binary element-wise operations require operands of identical shape and
// dtype; backends panic on violations (shape errors are programmer errors at
// this level, surfaced immediately).
//
// Convolution and squeeze operations work on [batch, channels, spatial...]
// tensors with 2 or 3 spatial dimensions.
type Backend interface {
	// Element-wise binary operations (same shape, same dtype)
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor
	Div(a, b *RawTensor) *RawTensor

	// Scalar operations
	AddScalar(x *RawTensor, s float64) *RawTensor
	MulScalar(x *RawTensor, s float64) *RawTensor

	// Element-wise math
	Exp(x *RawTensor) *RawTensor
	Log(x *RawTensor) *RawTensor
	Tanh(x *RawTensor) *RawTensor
	Sqrt(x *RawTensor) *RawTensor
	Neg(x *RawTensor) *RawTensor

	// Per-channel operations on [batch, channels, spatial...] tensors.
	// scale/shift are 1-D tensors of length channels.
	MulChannel(x, scale *RawTensor) *RawTensor
	AddChannel(x, shift *RawTensor) *RawTensor
	// SumChannels reduces over every axis except the channel axis,
	// returning a 1-D tensor of length channels.
	SumChannels(x *RawTensor) *RawTensor

	// Reductions
	Sum(x *RawTensor) float64

	// Manipulation
	Cat(tensors []*RawTensor, dim int) *RawTensor
	Narrow(x *RawTensor, dim, start, length int) *RawTensor
	Chunk(x *RawTensor, n, dim int) []*RawTensor
	Reshape(x *RawTensor, shape Shape) *RawTensor

	// Squeeze (space-to-depth) with factor 2 along every spatial axis.
	// interleave selects the channel ordering of the squeezed tensor.
	SpaceToDepth(x *RawTensor, interleave bool) *RawTensor
	DepthToSpace(x *RawTensor, interleave bool) *RawTensor

	// N-dimensional convolution (2 or 3 spatial dims).
	// input [N, Cin, S...], weight [Cout, Cin, K...], bias [Cout] or nil.
	ConvND(input, weight, bias *RawTensor, stride, padding int) *RawTensor
	// ConvNDBackward returns gradients with respect to input, weight and
	// bias for the given output gradient.
	ConvNDBackward(input, weight, gradOut *RawTensor, stride, padding int) (gradIn, gradW, gradB *RawTensor)

	// Metadata
	Name() string
	Device() Device
}
