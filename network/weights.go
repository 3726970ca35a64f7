package network

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// Weights is a deep snapshot of a network's parameters. Layer l maps
// Sizes[l] inputs to Sizes[l+1] outputs; its weights are row-major with one
// row per output.
type Weights struct {
	Sizes       []int
	Activations []Activation
	Weights     [][]float64
	Biases      [][]float64
}

func (w Weights) Clone() Weights {
	c := Weights{
		Sizes:       append([]int(nil), w.Sizes...),
		Activations: append([]Activation(nil), w.Activations...),
		Weights:     make([][]float64, len(w.Weights)),
		Biases:      make([][]float64, len(w.Biases)),
	}
	for l := range w.Weights {
		c.Weights[l] = append([]float64(nil), w.Weights[l]...)
	}
	for l := range w.Biases {
		c.Biases[l] = append([]float64(nil), w.Biases[l]...)
	}
	return c
}

func (w Weights) Validate() error {
	if err := validateShape(w.Sizes, w.Activations); err != nil {
		return err
	}
	layers := len(w.Sizes) - 1
	if len(w.Weights) != layers || len(w.Biases) != layers {
		return fmt.Errorf("%w: %d weight and %d bias layers for %d layers", ErrShapeMismatch, len(w.Weights), len(w.Biases), layers)
	}
	for l := 0; l < layers; l++ {
		in, out := w.Sizes[l], w.Sizes[l+1]
		if len(w.Weights[l]) != in*out {
			return fmt.Errorf("%w: layer %d has %d weights, want %d", ErrShapeMismatch, l, len(w.Weights[l]), in*out)
		}
		if len(w.Biases[l]) != out {
			return fmt.Errorf("%w: layer %d has %d biases, want %d", ErrShapeMismatch, l, len(w.Biases[l]), out)
		}
	}
	return nil
}

func validateShape(sizes []int, activations []Activation) error {
	if len(sizes) < 2 {
		return fmt.Errorf("%w: need at least an input and an output layer", ErrShapeMismatch)
	}
	for l, n := range sizes {
		if n <= 0 {
			return fmt.Errorf("%w: layer %d has size %d", ErrShapeMismatch, l, n)
		}
	}
	if len(activations) != len(sizes)-1 {
		return fmt.Errorf("%w: %d activations for %d layers", ErrShapeMismatch, len(activations), len(sizes)-1)
	}
	for _, a := range activations {
		if _, err := ParseActivation(string(a)); err != nil {
			return err
		}
	}
	return nil
}

// compatible checks that w can be loaded into c without reshaping.
func compatible(w Weights, c *core) error {
	if err := w.Validate(); err != nil {
		return err
	}
	if !slices.Equal(w.Sizes, c.sizes) || !slices.Equal(w.Activations, c.activations) {
		return fmt.Errorf("%w: got %v %v, want %v %v", ErrShapeMismatch, w.Sizes, w.Activations, c.sizes, c.activations)
	}
	return nil
}
