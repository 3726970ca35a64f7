package network

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

type fileFormat struct {
	Kind         Kind         `json:"kind"`
	Trained      bool         `json:"trained"`
	Sizes        []int        `json:"sizes"`
	Activations  []Activation `json:"activations"`
	Weights      [][]float64  `json:"weights"`
	Biases       [][]float64  `json:"biases,omitempty"`
	BatchSize    int          `json:"batch_size,omitempty"`
	LearningRate float64      `json:"learning_rate,omitempty"`
	Seed         uint64       `json:"seed,omitempty"`
}

func save(path string, kind Kind, trained bool, w Weights, batchSize int, learningRate float64, seed uint64) error {
	f := fileFormat{
		Kind:         kind,
		Trained:      trained,
		Sizes:        w.Sizes,
		Activations:  w.Activations,
		Weights:      w.Weights,
		Biases:       w.Biases,
		BatchSize:    batchSize,
		LearningRate: learningRate,
		Seed:         seed,
	}
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to encode network: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write network: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace network file: %w", err)
	}
	return nil
}

// Load reads a network written by Save. A missing file yields a nil Function
// and no error. Missing biases load as zeros.
func Load(path string) (Function, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read network: %w", err)
	}

	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode network %s: %w", path, err)
	}
	if _, err := ParseKind(string(f.Kind)); err != nil {
		return nil, err
	}
	if err := validateShape(f.Sizes, f.Activations); err != nil {
		return nil, err
	}
	if f.Biases == nil {
		f.Biases = make([][]float64, len(f.Sizes)-1)
		for l := range f.Biases {
			f.Biases[l] = make([]float64, f.Sizes[l+1])
		}
	}
	w := Weights{Sizes: f.Sizes, Activations: f.Activations, Weights: f.Weights, Biases: f.Biases}
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("network %s: %w", path, err)
	}

	c := newCore(f.Sizes, f.Activations)
	c.setWeights(w)
	switch f.Kind {
	case KindAdaptiveStep:
		return newAdaptiveStep(c, 0, 0, f.Trained), nil
	default:
		return newBatchGradient(c, f.BatchSize, f.LearningRate, f.Seed, 0, f.Trained), nil
	}
}
