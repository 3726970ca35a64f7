package network

import (
	"fmt"
	"math"
	"runtime"
	"sync"
)

// Resilient step-size constants.
const (
	stepGrowth   = 1.2
	stepShrink   = 0.5
	maxStep      = 50.0
	minStep      = 1e-6
	initialStep  = 0.01
	signEpsilon  = 1e-18
	minPerWorker = 16
)

// AdaptiveStep keeps a per-parameter step size that grows while the gradient
// sign holds and shrinks when it flips. Gradients are computed in parallel on
// read-only copies of the network.
type AdaptiveStep struct {
	base
	core      *core
	workers   int
	steps     []float64
	prevGrad  []float64
	prevDelta []float64
}

func NewAdaptiveStep(cfg Config) *AdaptiveStep {
	c := newCore(cfg.Sizes, cfg.Activations)
	c.randomize(newRand(cfg.Seed))
	return newAdaptiveStep(c, cfg.Workers, cfg.CacheSize, false)
}

func newAdaptiveStep(c *core, workers, cacheSize int, trained bool) *AdaptiveStep {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	a := &AdaptiveStep{
		core:      c,
		workers:   workers,
		steps:     make([]float64, len(c.params)),
		prevGrad:  make([]float64, len(c.params)),
		prevDelta: make([]float64, len(c.params)),
	}
	for i := range a.steps {
		a.steps[i] = initialStep
	}
	a.init(cacheSize, trained)
	return a
}

func (a *AdaptiveStep) sealed() {}

func (a *AdaptiveStep) Kind() Kind {
	return KindAdaptiveStep
}

func (a *AdaptiveStep) Sizes() []int {
	return append([]int(nil), a.core.sizes...)
}

func (a *AdaptiveStep) Calculate(input []float64) []float64 {
	checkInput(a.core, input)
	buf := make([]float64, a.core.nodes)
	a.core.forward(input, buf)
	return append([]float64(nil), a.core.output(buf)...)
}

func (a *AdaptiveStep) CalculateCached(fingerprint string, input func() []float64) []float64 {
	return a.cached(fingerprint, input, a.Calculate)
}

func (a *AdaptiveStep) Train(inputs, targets [][]float64) float64 {
	n := len(inputs)
	if n == 0 {
		return 0
	}
	if len(targets) != n {
		panic(fmt.Sprintf("%d inputs but %d targets", n, len(targets)))
	}

	workers := min(a.workers, max(1, n/minPerWorker))
	chunk := (n + workers - 1) / workers
	grads := make([][]float64, workers)
	losses := make([]float64, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo, hi := w*chunk, min((w+1)*chunk, n)
		if lo >= hi {
			continue
		}
		wg.Add(1)
		go func(w, lo, hi int) {
			defer wg.Done()
			replica := a.core.clone()
			grad := make([]float64, len(replica.params))
			buf := make([]float64, replica.nodes)
			delta := make([]float64, replica.nodes)
			for k := lo; k < hi; k++ {
				replica.forward(inputs[k], buf)
				losses[w] += replica.backward(buf, targets[k], grad, delta)
			}
			grads[w] = grad
		}(w, lo, hi)
	}
	wg.Wait()

	grad := make([]float64, len(a.core.params))
	loss := 0.0
	for w, g := range grads {
		loss += losses[w]
		for i, v := range g {
			grad[i] += v
		}
	}
	for i := range grad {
		grad[i] /= float64(n)
	}
	clipGradient(grad, GradientClip)

	a.update(grad)
	a.cache.clear()
	return loss / float64(n)
}

func (a *AdaptiveStep) update(grad []float64) {
	params := a.core.params
	for i, g := range grad {
		product := g * a.prevGrad[i]
		switch {
		case product > signEpsilon:
			a.steps[i] = math.Min(a.steps[i]*stepGrowth, maxStep)
			a.prevDelta[i] = -sign(g) * a.steps[i]
			params[i] += a.prevDelta[i]
			a.prevGrad[i] = g
		case product < -signEpsilon:
			a.steps[i] = math.Max(a.steps[i]*stepShrink, minStep)
			params[i] -= a.prevDelta[i]
			a.prevDelta[i] = 0
			a.prevGrad[i] = 0
		default:
			a.prevDelta[i] = -sign(g) * a.steps[i]
			params[i] += a.prevDelta[i]
			a.prevGrad[i] = g
		}
	}
}

func (a *AdaptiveStep) Clone() Function {
	c := newAdaptiveStep(a.core.clone(), a.workers, a.cache.capacity, a.Trained())
	copy(c.steps, a.steps)
	copy(c.prevGrad, a.prevGrad)
	copy(c.prevDelta, a.prevDelta)
	return c
}

func (a *AdaptiveStep) Weights() Weights {
	return a.core.weights()
}

func (a *AdaptiveStep) SetWeights(w Weights) error {
	if err := compatible(w, a.core); err != nil {
		return err
	}
	a.core.setWeights(w)
	a.cache.clear()
	return nil
}

func (a *AdaptiveStep) Save(path string) error {
	return save(path, a.Kind(), a.Trained(), a.core.weights(), 0, 0, 0)
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
