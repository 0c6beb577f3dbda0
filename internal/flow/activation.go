package flow

import "github.com/chewxy/math32"

const leakySlope = 0.01

// actForward applies the activation to a pre-activation value.
func actForward(a Activation, x float32) float32 {
	switch a {
	case ReLU:
		if x > 0 {
			return x
		}
		return 0
	case LeakyReLU:
		if x > 0 {
			return x
		}
		return leakySlope * x
	case SiLU:
		return x / (1 + math32.Exp(-x))
	default:
		panic("flow: unknown activation")
	}
}

// actDerivative returns d(act)/dx at the pre-activation value x.
func actDerivative(a Activation, x float32) float32 {
	switch a {
	case ReLU:
		if x > 0 {
			return 1
		}
		return 0
	case LeakyReLU:
		if x > 0 {
			return 1
		}
		return leakySlope
	case SiLU:
		s := 1 / (1 + math32.Exp(-x))
		return s * (1 + x*(1-s))
	default:
		panic("flow: unknown activation")
	}
}

// softClamp applies the scale nonlinearity, bounding the log-scale to
// (-clamp, clamp).
func softClamp(nl ScaleNonlinearity, clamp, x float32) float32 {
	switch nl {
	case ClampTanh:
		return clamp * math32.Tanh(x/clamp)
	case ClampAtan:
		return clamp * (2 / math32.Pi) * math32.Atan(x/clamp)
	default:
		panic("flow: unknown scale nonlinearity")
	}
}

// softClampDerivative returns d(softClamp)/dx at x.
func softClampDerivative(nl ScaleNonlinearity, clamp, x float32) float32 {
	switch nl {
	case ClampTanh:
		t := math32.Tanh(x / clamp)
		return 1 - t*t
	case ClampAtan:
		u := x / clamp
		return (2 / math32.Pi) / (1 + u*u)
	default:
		panic("flow: unknown scale nonlinearity")
	}
}
