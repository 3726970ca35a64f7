package network

import (
	"math"

	"golang.org/x/exp/rand"
)

// core is a fully connected network whose parameters live in one flat slice.
// Layer l stores its weights at wOff[l] and its biases at bOff[l]; node
// activations for a forward pass live in a caller-owned buffer at nOff[l].
type core struct {
	sizes       []int
	activations []Activation
	params      []float64
	wOff, bOff  []int
	nOff        []int
	nodes       int
}

func newCore(sizes []int, activations []Activation) *core {
	c := &core{
		sizes:       append([]int(nil), sizes...),
		activations: append([]Activation(nil), activations...),
		wOff:        make([]int, len(sizes)-1),
		bOff:        make([]int, len(sizes)-1),
		nOff:        make([]int, len(sizes)),
	}
	offset := 0
	for l := 0; l < len(sizes)-1; l++ {
		c.wOff[l] = offset
		offset += sizes[l] * sizes[l+1]
		c.bOff[l] = offset
		offset += sizes[l+1]
	}
	c.params = make([]float64, offset)
	for l, n := range sizes {
		c.nOff[l] = c.nodes
		c.nodes += n
	}
	return c
}

// randomize draws weights uniformly from the Glorot range. Biases start at zero.
func (c *core) randomize(rng *rand.Rand) {
	for l := 0; l < len(c.sizes)-1; l++ {
		in, out := c.sizes[l], c.sizes[l+1]
		limit := math.Sqrt(6 / float64(in+out))
		w := c.params[c.wOff[l] : c.wOff[l]+in*out]
		for i := range w {
			w[i] = (2*rng.Float64() - 1) * limit
		}
	}
}

func (c *core) clone() *core {
	d := *c
	d.params = append([]float64(nil), c.params...)
	return &d
}

func (c *core) layers() int {
	return len(c.sizes) - 1
}

func (c *core) inputSize() int {
	return c.sizes[0]
}

func (c *core) outputSize() int {
	return c.sizes[len(c.sizes)-1]
}

func (c *core) output(buf []float64) []float64 {
	last := len(c.sizes) - 1
	return buf[c.nOff[last] : c.nOff[last]+c.sizes[last]]
}

// forward evaluates input into buf, which must hold c.nodes values.
func (c *core) forward(input, buf []float64) {
	copy(buf, input)
	for l := 0; l < c.layers(); l++ {
		in, out := c.sizes[l], c.sizes[l+1]
		x := buf[c.nOff[l] : c.nOff[l]+in]
		y := buf[c.nOff[l+1] : c.nOff[l+1]+out]
		w := c.params[c.wOff[l] : c.wOff[l]+in*out]
		b := c.params[c.bOff[l] : c.bOff[l]+out]
		for j := 0; j < out; j++ {
			sum := b[j]
			row := w[j*in : (j+1)*in]
			for i, v := range x {
				sum += row[i] * v
			}
			y[j] = sum
		}
		c.activations[l].apply(y)
	}
}

// backward accumulates the gradient of one forward pass into grad and returns
// the sample loss. delta is scratch space the size of buf.
func (c *core) backward(buf, target, grad, delta []float64) float64 {
	last := c.layers()
	loss := c.activations[last-1].outputDelta(c.output(buf), target, delta[c.nOff[last]:c.nOff[last]+c.sizes[last]])

	for l := last - 1; l >= 0; l-- {
		in, out := c.sizes[l], c.sizes[l+1]
		x := buf[c.nOff[l] : c.nOff[l]+in]
		dy := delta[c.nOff[l+1] : c.nOff[l+1]+out]
		w := c.params[c.wOff[l] : c.wOff[l]+in*out]
		gw := grad[c.wOff[l] : c.wOff[l]+in*out]
		gb := grad[c.bOff[l] : c.bOff[l]+out]

		for j, d := range dy {
			gb[j] += d
			row := gw[j*in : (j+1)*in]
			for i, v := range x {
				row[i] += d * v
			}
		}

		if l == 0 {
			break
		}
		dx := delta[c.nOff[l] : c.nOff[l]+in]
		for i := range dx {
			dx[i] = 0
		}
		for j, d := range dy {
			row := w[j*in : (j+1)*in]
			for i, v := range row {
				dx[i] += v * d
			}
		}
		c.activations[l-1].scaleByDerivative(x, dx)
	}
	return loss
}

func (c *core) weights() Weights {
	w := Weights{
		Sizes:       append([]int(nil), c.sizes...),
		Activations: append([]Activation(nil), c.activations...),
		Weights:     make([][]float64, c.layers()),
		Biases:      make([][]float64, c.layers()),
	}
	for l := 0; l < c.layers(); l++ {
		in, out := c.sizes[l], c.sizes[l+1]
		w.Weights[l] = append([]float64(nil), c.params[c.wOff[l]:c.wOff[l]+in*out]...)
		w.Biases[l] = append([]float64(nil), c.params[c.bOff[l]:c.bOff[l]+out]...)
	}
	return w
}

// setWeights copies w into the flat parameters. The caller validates shape.
func (c *core) setWeights(w Weights) {
	for l := 0; l < c.layers(); l++ {
		copy(c.params[c.wOff[l]:], w.Weights[l])
		copy(c.params[c.bOff[l]:], w.Biases[l])
	}
}

// clipGradient bounds every component of g to [-limit, limit] and zeroes
// non-finite entries.
func clipGradient(g []float64, limit float64) {
	for i, v := range g {
		switch {
		case math.IsNaN(v) || math.IsInf(v, 0):
			g[i] = 0
		case v > limit:
			g[i] = limit
		case v < -limit:
			g[i] = -limit
		}
	}
}
