package network

import (
	"fmt"
	"math"
	"sync/atomic"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
)

// Adaptive moment constants.
const (
	beta1       = 0.9
	beta2       = 0.999
	adamEpsilon = 1e-8
)

type denseLayer struct {
	weights    blas64.General // out x in
	biases     blas64.Vector
	activation Activation

	// first and second moment estimates, same layout as the parameters
	mw, vw []float64
	mb, vb []float64
}

func newDenseLayer(in, out int, activation Activation) denseLayer {
	return denseLayer{
		weights:    blas64.General{Rows: out, Cols: in, Stride: in, Data: make([]float64, in*out)},
		biases:     blas64.Vector{N: out, Inc: 1, Data: make([]float64, out)},
		activation: activation,
		mw:         make([]float64, in*out),
		vw:         make([]float64, in*out),
		mb:         make([]float64, out),
		vb:         make([]float64, out),
	}
}

// BatchGradient trains on shuffled minibatches with dense matrix kernels and
// applies one bias-corrected adaptive-moment step per epoch. Single-sample
// inference reads a flattened mirror of the matrices.
type BatchGradient struct {
	base
	layers       []denseLayer
	mirror       *core
	batchSize    int
	learningRate float64
	step         int
	seed         uint64
	rng          *rand.Rand
	clones       atomic.Uint64
}

func NewBatchGradient(cfg Config) *BatchGradient {
	mirror := newCore(cfg.Sizes, cfg.Activations)
	mirror.randomize(newRand(cfg.Seed))
	b := newBatchGradient(mirror, cfg.BatchSize, cfg.LearningRate, cfg.Seed, cfg.CacheSize, false)
	return b
}

func newBatchGradient(mirror *core, batchSize int, learningRate float64, seed uint64, cacheSize int, trained bool) *BatchGradient {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if learningRate <= 0 {
		learningRate = DefaultLearningRate
	}
	b := &BatchGradient{
		mirror:       mirror,
		batchSize:    batchSize,
		learningRate: learningRate,
		seed:         seed,
		rng:          newRand(seed),
	}
	for l := 0; l < mirror.layers(); l++ {
		b.layers = append(b.layers, newDenseLayer(mirror.sizes[l], mirror.sizes[l+1], mirror.activations[l]))
	}
	b.loadMirror()
	b.init(cacheSize, trained)
	return b
}

func (b *BatchGradient) sealed() {}

func (b *BatchGradient) Kind() Kind {
	return KindBatchGradient
}

func (b *BatchGradient) Sizes() []int {
	return append([]int(nil), b.mirror.sizes...)
}

func (b *BatchGradient) Calculate(input []float64) []float64 {
	checkInput(b.mirror, input)
	buf := make([]float64, b.mirror.nodes)
	b.mirror.forward(input, buf)
	return append([]float64(nil), b.mirror.output(buf)...)
}

func (b *BatchGradient) CalculateCached(fingerprint string, input func() []float64) []float64 {
	return b.cached(fingerprint, input, b.Calculate)
}

// pass holds per-sample activations and error signals, one vector per layer
// boundary.
type pass struct {
	outputs []blas64.Vector
	deltas  []blas64.Vector
}

func (b *BatchGradient) newPass() pass {
	sizes := b.mirror.sizes
	p := pass{outputs: make([]blas64.Vector, len(sizes)), deltas: make([]blas64.Vector, len(sizes))}
	for l, n := range sizes {
		p.outputs[l] = blas64.Vector{N: n, Inc: 1, Data: make([]float64, n)}
		p.deltas[l] = blas64.Vector{N: n, Inc: 1, Data: make([]float64, n)}
	}
	return p
}

func (b *BatchGradient) forward(input []float64, p pass) {
	copy(p.outputs[0].Data, input)
	for l, layer := range b.layers {
		y := p.outputs[l+1]
		copy(y.Data, layer.biases.Data)
		blas64.Gemv(blas.NoTrans, 1, layer.weights, p.outputs[l], 1, y)
		layer.activation.apply(y.Data)
	}
}

// backward accumulates one sample's gradient into gw and gb.
func (b *BatchGradient) backward(target []float64, p pass, gw []blas64.General, gb []blas64.Vector) float64 {
	last := len(b.layers)
	loss := b.layers[last-1].activation.outputDelta(p.outputs[last].Data, target, p.deltas[last].Data)
	for l := last - 1; l >= 0; l-- {
		layer := b.layers[l]
		dy := p.deltas[l+1]
		blas64.Ger(1, dy, p.outputs[l], gw[l])
		blas64.Axpy(1, dy, gb[l])
		if l == 0 {
			break
		}
		dx := p.deltas[l]
		blas64.Gemv(blas.Trans, 1, layer.weights, dy, 0, dx)
		b.layers[l-1].activation.scaleByDerivative(p.outputs[l].Data, dx.Data)
	}
	return loss
}

func (b *BatchGradient) gradients() ([]blas64.General, []blas64.Vector) {
	gw := make([]blas64.General, len(b.layers))
	gb := make([]blas64.Vector, len(b.layers))
	for l, layer := range b.layers {
		gw[l] = blas64.General{Rows: layer.weights.Rows, Cols: layer.weights.Cols, Stride: layer.weights.Cols,
			Data: make([]float64, len(layer.weights.Data))}
		gb[l] = blas64.Vector{N: layer.biases.N, Inc: 1, Data: make([]float64, layer.biases.N)}
	}
	return gw, gb
}

func (b *BatchGradient) Train(inputs, targets [][]float64) float64 {
	n := len(inputs)
	if n == 0 {
		return 0
	}
	if len(targets) != n {
		panic(fmt.Sprintf("%d inputs but %d targets", n, len(targets)))
	}

	order := b.rng.Perm(n)
	epochW, epochB := b.gradients()
	batchW, batchB := b.gradients()
	p := b.newPass()
	loss := 0.0
	batches := 0

	for start := 0; start < n; start += b.batchSize {
		end := min(start+b.batchSize, n)
		for l := range batchW {
			clear(batchW[l].Data)
			clear(batchB[l].Data)
		}
		for _, k := range order[start:end] {
			b.forward(inputs[k], p)
			loss += b.backward(targets[k], p, batchW, batchB)
		}
		scale := 1 / float64(end-start)
		for l := range batchW {
			blas64.Axpy(scale, flat(batchW[l].Data), flat(epochW[l].Data))
			blas64.Axpy(scale, batchB[l], epochB[l])
		}
		batches++
	}

	for l := range epochW {
		blas64.Scal(1/float64(batches), flat(epochW[l].Data))
		blas64.Scal(1/float64(batches), epochB[l])
		clipGradient(epochW[l].Data, GradientClip)
		clipGradient(epochB[l].Data, GradientClip)
	}
	b.adam(epochW, epochB)
	b.syncMirror()
	b.cache.clear()
	return loss / float64(n)
}

func (b *BatchGradient) adam(gw []blas64.General, gb []blas64.Vector) {
	b.step++
	c1 := 1 - math.Pow(beta1, float64(b.step))
	c2 := 1 - math.Pow(beta2, float64(b.step))
	for l := range b.layers {
		layer := &b.layers[l]
		adamStep(layer.weights.Data, gw[l].Data, layer.mw, layer.vw, b.learningRate, c1, c2)
		adamStep(layer.biases.Data, gb[l].Data, layer.mb, layer.vb, b.learningRate, c1, c2)
	}
}

func adamStep(params, grad, m, v []float64, rate, c1, c2 float64) {
	for i, g := range grad {
		m[i] = beta1*m[i] + (1-beta1)*g
		v[i] = beta2*v[i] + (1-beta2)*g*g
		params[i] -= rate * (m[i] / c1) / (math.Sqrt(v[i]/c2) + adamEpsilon)
	}
}

// syncMirror copies the matrices into the flat inference copy. Every mutation
// of the matrices must be followed by a sync.
func (b *BatchGradient) syncMirror() {
	for l, layer := range b.layers {
		copy(b.mirror.params[b.mirror.wOff[l]:], layer.weights.Data)
		copy(b.mirror.params[b.mirror.bOff[l]:], layer.biases.Data)
	}
}

func (b *BatchGradient) loadMirror() {
	for l := range b.layers {
		layer := &b.layers[l]
		copy(layer.weights.Data, b.mirror.params[b.mirror.wOff[l]:b.mirror.bOff[l]])
		copy(layer.biases.Data, b.mirror.params[b.mirror.bOff[l]:b.mirror.bOff[l]+layer.biases.N])
	}
}

// Clone gives the copy its own shuffle seed, derived from this network's seed
// and the number of clones taken so far.
func (b *BatchGradient) Clone() Function {
	seed := deriveSeed(b.seed, b.clones.Add(1))
	c := newBatchGradient(b.mirror.clone(), b.batchSize, b.learningRate, seed, b.cache.capacity, b.Trained())
	c.step = b.step
	for l := range b.layers {
		copy(c.layers[l].mw, b.layers[l].mw)
		copy(c.layers[l].vw, b.layers[l].vw)
		copy(c.layers[l].mb, b.layers[l].mb)
		copy(c.layers[l].vb, b.layers[l].vb)
	}
	return c
}

func (b *BatchGradient) Weights() Weights {
	return b.mirror.weights()
}

func (b *BatchGradient) SetWeights(w Weights) error {
	if err := compatible(w, b.mirror); err != nil {
		return err
	}
	b.mirror.setWeights(w)
	b.loadMirror()
	b.cache.clear()
	return nil
}

func (b *BatchGradient) Save(path string) error {
	return save(path, b.Kind(), b.Trained(), b.mirror.weights(), b.batchSize, b.learningRate, b.seed)
}

func flat(data []float64) blas64.Vector {
	return blas64.Vector{N: len(data), Inc: 1, Data: data}
}

// deriveSeed mixes a parent seed and a counter with the splitmix64 finalizer.
func deriveSeed(seed, n uint64) uint64 {
	z := seed + n*0x9e3779b97f4a7c15
	z = (z ^ z>>30) * 0xbf58476d1ce4e5b9
	z = (z ^ z>>27) * 0x94d049bb133111eb
	return z ^ z>>31
}
