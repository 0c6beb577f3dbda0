package cpu

import (
	"fmt"

	"github.com/born-ml/cinn/internal/tensor"
)

// ConvNDBackward computes the gradients of a ConvND call with respect to its
// input, weight and bias, given the gradient of the output.
//
// Shapes mirror ConvND: input [N, Cin, S...], weight [Cout, Cin, K...],
// gradOut [N, Cout, O...]. gradB is always returned; callers of bias-free
// convolutions ignore it.
func (cpu *CPUBackend) ConvNDBackward(input, weight, gradOut *tensor.RawTensor, stride, padding int) (gradIn, gradW, gradB *tensor.RawTensor) {
	if input.DType() != tensor.Float32 || weight.DType() != tensor.Float32 || gradOut.DType() != tensor.Float32 {
		panic("convnd backward: float32 tensors required")
	}
	g := convGeometry("convnd backward", input, weight, stride, padding)

	wantOut := append(tensor.Shape{g.batch, g.cout}, g.outDims...)
	if !gradOut.Shape().Equal(wantOut) {
		panic(fmt.Sprintf("convnd backward: gradOut shape %v, expected %v", gradOut.Shape(), wantOut))
	}

	gradIn = tensor.MustRaw(input.Shape(), tensor.Float32, cpu.device)
	gradW = tensor.MustRaw(weight.Shape(), tensor.Float32, cpu.device)
	gradB = tensor.MustRaw(tensor.Shape{g.cout}, tensor.Float32, cpu.device)

	in := input.AsFloat32()
	w := weight.AsFloat32()
	gout := gradOut.AsFloat32()
	gin := gradIn.AsFloat32()
	gw := gradW.AsFloat32()
	gb := gradB.AsFloat32()

	outIdx := make([]int, g.spatial)
	kerIdx := make([]int, g.spatial)
	kerStrides := make([]int, g.spatial)
	kerStrides[g.spatial-1] = 1
	for d := g.spatial - 2; d >= 0; d-- {
		kerStrides[d] = kerStrides[d+1] * g.kernel
	}

	for n := 0; n < g.batch; n++ {
		for co := 0; co < g.cout; co++ {
			outBase := (n*g.cout + co) * g.outSp
			wBase := co * g.cin * g.kerSp
			for op := 0; op < g.outSp; op++ {
				gv := gout[outBase+op]
				if gv == 0 {
					continue
				}
				decompose(op, g.outStrides, outIdx)
				gb[co] += gv
				for ci := 0; ci < g.cin; ci++ {
					inBase := (n*g.cin + ci) * g.inSp
					wc := wBase + ci*g.kerSp
					for kp := 0; kp < g.kerSp; kp++ {
						decompose(kp, kerStrides, kerIdx)
						inOff := g.inputOffset(outIdx, kerIdx)
						if inOff < 0 {
							continue
						}
						gin[inBase+inOff] += w[wc+kp] * gv
						gw[wc+kp] += in[inBase+inOff] * gv
					}
				}
			}
		}
	}
	return gradIn, gradW, gradB
}
