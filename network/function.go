package network

import (
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/exp/rand"
)

// Kind tags the two learned function variants.
type Kind string

const (
	KindAdaptiveStep  Kind = "adaptive-step"
	KindBatchGradient Kind = "batch-gradient"
)

var (
	ErrUnknownKind       = errors.New("unknown network kind")
	ErrUnknownActivation = errors.New("unknown activation")
	ErrShapeMismatch     = errors.New("network shape mismatch")
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindAdaptiveStep, KindBatchGradient:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Function is a trainable map from an encoded board to an output vector. The
// set of implementations is closed: AdaptiveStep and BatchGradient.
//
// Calculate and CalculateCached may be called concurrently. Train, SetWeights
// and SetTrained must not run concurrently with anything else on the same
// value; give each goroutine its own Clone instead.
type Function interface {
	Kind() Kind
	Sizes() []int
	Calculate(input []float64) []float64
	// CalculateCached returns the memoised output for fingerprint. input is
	// only called on a miss. The returned slice must not be modified.
	CalculateCached(fingerprint string, input func() []float64) []float64
	// Train runs one epoch over the samples and returns the mean sample error.
	Train(inputs, targets [][]float64) float64
	Clone() Function
	Weights() Weights
	SetWeights(w Weights) error
	// Trained reports whether search may trust this function over rollouts.
	Trained() bool
	SetTrained(trained bool)
	Save(path string) error

	sealed()
}

type Config struct {
	Kind         Kind
	Sizes        []int
	Activations  []Activation
	Seed         uint64
	CacheSize    int
	Workers      int     // adaptive step gradient goroutines
	BatchSize    int     // batch gradient minibatch size
	LearningRate float64 // batch gradient step size
}

const (
	DefaultCacheSize    = 1 << 16
	DefaultBatchSize    = 64
	DefaultLearningRate = 1e-3
	GradientClip        = 5.0
)

func New(cfg Config) (Function, error) {
	if err := validateShape(cfg.Sizes, cfg.Activations); err != nil {
		return nil, err
	}
	switch cfg.Kind {
	case KindAdaptiveStep:
		return NewAdaptiveStep(cfg), nil
	case KindBatchGradient:
		return NewBatchGradient(cfg), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
}

// PolicyConfig describes a network from an encoded board to a distribution
// over columns.
func PolicyConfig(kind Kind, inputs, hidden, columns int) Config {
	return Config{
		Kind:        kind,
		Sizes:       []int{inputs, hidden, columns},
		Activations: []Activation{Tanh, Softmax},
	}
}

// ValueConfig describes a network from an encoded board to a single value in
// [-1, 1] from the last mover's perspective.
func ValueConfig(kind Kind, inputs, hidden int) Config {
	return Config{
		Kind:        kind,
		Sizes:       []int{inputs, hidden, 1},
		Activations: []Activation{Tanh, Tanh},
	}
}

// base carries what both variants share: the trained flag and the inference cache.
type base struct {
	trained atomic.Bool
	cache   *cache
}

func (b *base) init(cacheSize int, trained bool) {
	if cacheSize == 0 {
		cacheSize = DefaultCacheSize
	}
	b.cache = newCache(cacheSize)
	b.trained.Store(trained)
}

func (b *base) Trained() bool {
	return b.trained.Load()
}

func (b *base) SetTrained(trained bool) {
	b.trained.Store(trained)
}

func (b *base) cached(fingerprint string, input func() []float64, calculate func([]float64) []float64) []float64 {
	if out, ok := b.cache.get(fingerprint); ok {
		return out
	}
	out := calculate(input())
	b.cache.put(fingerprint, out)
	return out
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

func checkInput(c *core, input []float64) {
	if len(input) != c.inputSize() {
		panic(fmt.Sprintf("network input has %d values, want %d", len(input), c.inputSize()))
	}
}
