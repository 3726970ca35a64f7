package network

import (
	"fmt"
	"math"

	"connect4/utils"
)

type Activation string

const (
	Sigmoid        Activation = "sigmoid"
	Tanh           Activation = "tanh"
	LeakyRectifier Activation = "leaky-rectifier"
	Softmax        Activation = "softmax"
)

const leakySlope = 0.01

// logFloor keeps cross-entropy finite when an output saturates.
const logFloor = 1e-12

func ParseActivation(s string) (Activation, error) {
	switch a := Activation(s); a {
	case Sigmoid, Tanh, LeakyRectifier, Softmax:
		return a, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownActivation, s)
	}
}

// apply overwrites pre-activations z with the layer's outputs.
func (a Activation) apply(z []float64) {
	switch a {
	case Sigmoid:
		for i, v := range z {
			z[i] = 1 / (1 + math.Exp(-v))
		}
	case Tanh:
		for i, v := range z {
			z[i] = math.Tanh(v)
		}
	case LeakyRectifier:
		for i, v := range z {
			if v < 0 {
				z[i] = leakySlope * v
			}
		}
	case Softmax:
		utils.Softmax(z)
	default:
		panic(fmt.Sprintf("unknown activation %q", a))
	}
}

// scaleByDerivative multiplies each delta by the activation's slope, expressed
// in terms of the layer's output y.
func (a Activation) scaleByDerivative(y, delta []float64) {
	switch a {
	case Sigmoid, Softmax:
		for i, v := range y {
			delta[i] *= v * (1 - v)
		}
	case Tanh:
		for i, v := range y {
			delta[i] *= 1 - v*v
		}
	case LeakyRectifier:
		for i, v := range y {
			if v < 0 {
				delta[i] *= leakySlope
			}
		}
	}
}

// outputDelta writes the error signal at the output pre-activations into delta
// and returns the sample's loss. Sigmoid, softmax and tanh outputs are paired
// with their cross-entropy so the signal reduces to y - t; the leaky rectifier
// uses squared error.
func (a Activation) outputDelta(y, target, delta []float64) float64 {
	loss := 0.0
	switch a {
	case Softmax:
		for i := range y {
			delta[i] = y[i] - target[i]
			loss -= target[i] * math.Log(math.Max(y[i], logFloor))
		}
	case Sigmoid:
		for i := range y {
			delta[i] = y[i] - target[i]
			loss -= target[i]*math.Log(math.Max(y[i], logFloor)) + (1-target[i])*math.Log(math.Max(1-y[i], logFloor))
		}
	case Tanh:
		for i := range y {
			delta[i] = y[i] - target[i]
			p, q := (1+y[i])/2, (1+target[i])/2
			loss -= q*math.Log(math.Max(p, logFloor)) + (1-q)*math.Log(math.Max(1-p, logFloor))
		}
	default:
		for i := range y {
			diff := y[i] - target[i]
			loss += diff * diff / 2
			delta[i] = diff
		}
		a.scaleByDerivative(y, delta)
	}
	return loss
}
