package training

import (
	"context"
	"errors"
	"fmt"
	"math"

	"connect4/network"
	"connect4/replay"

	"github.com/rs/zerolog/log"
)

const (
	DefaultMaxSteps = 200
	DefaultWindow   = 5
	DefaultPatience = 3
)

var ErrEmptyDataset = errors.New("empty training dataset")

type Config struct {
	MaxSteps int
	Window   int
	Patience int
}

// ObjectiveResult describes how training went for one learned function.
type ObjectiveResult struct {
	Steps  int
	Best   float64 // moving average at the restored snapshot
	Last   float64 // moving average after the final step
	Frozen bool
}

type Result struct {
	Steps  int
	Policy ObjectiveResult
	Value  ObjectiveResult
}

// Engine trains a policy and a value function side by side and stops each one
// once its moving-average error keeps rising.
type Engine struct {
	maxSteps int
	window   int
	patience int
}

func NewEngine(cfg Config) *Engine {
	e := &Engine{ // Default values
		maxSteps: DefaultMaxSteps,
		window:   DefaultWindow,
		patience: DefaultPatience,
	}
	if cfg.MaxSteps > 0 {
		e.maxSteps = cfg.MaxSteps
	}
	if cfg.Window > 0 {
		e.window = cfg.Window
	}
	if cfg.Patience > 0 {
		e.patience = cfg.Patience
	}
	return e
}

// Train runs at most MaxSteps epochs. Each step trains every objective that
// has not frozen. When training ends, each function gets back the weights it
// had at its lowest moving average and is marked trained.
//
// A cancelled context stops training between steps and returns ctx.Err();
// the snapshots are restored but the functions are not marked trained.
func (e *Engine) Train(ctx context.Context, policy, value network.Function, dataset replay.Dataset) (Result, error) {
	if dataset.Len() == 0 {
		return Result{}, ErrEmptyDataset
	}

	objectives := []*objective{
		newObjective("policy", policy, dataset.Inputs, dataset.Policies, e.window),
		newObjective("value", value, dataset.Inputs, dataset.Values, e.window),
	}

	var result Result
	var err error
	for result.Steps < e.maxSteps {
		if err = ctx.Err(); err != nil {
			break
		}
		active := 0
		for _, o := range objectives {
			if o.frozen {
				continue
			}
			active++
			o.step(e.patience)
		}
		if active == 0 {
			break
		}
		result.Steps++
	}

	for _, o := range objectives {
		if restoreErr := o.restore(); restoreErr != nil {
			return result, restoreErr
		}
		if err == nil {
			o.fn.SetTrained(true)
		}
	}
	result.Policy = objectives[0].result()
	result.Value = objectives[1].result()

	log.Debug().
		Int("steps", result.Steps).
		Float64("policy_error", result.Policy.Best).
		Bool("policy_frozen", result.Policy.Frozen).
		Float64("value_error", result.Value.Best).
		Bool("value_frozen", result.Value.Frozen).
		Msg("training finished")

	return result, err
}

type objective struct {
	name     string
	fn       network.Function
	inputs   [][]float64
	targets  [][]float64
	window   []float64 // ring of recent errors
	next     int
	filled   int
	previous float64
	last     float64
	rising   int
	frozen   bool
	steps    int
	best     float64
	snapshot network.Weights
}

func newObjective(name string, fn network.Function, inputs, targets [][]float64, window int) *objective {
	return &objective{
		name:     name,
		fn:       fn,
		inputs:   inputs,
		targets:  targets,
		window:   make([]float64, window),
		previous: math.NaN(),
		last:     math.NaN(),
		best:     math.Inf(1),
		snapshot: fn.Weights(),
	}
}

func (o *objective) step(patience int) {
	loss := o.fn.Train(o.inputs, o.targets)
	o.steps++

	o.window[o.next] = loss
	o.next = (o.next + 1) % len(o.window)
	o.filled = min(o.filled+1, len(o.window))
	sum := 0.0
	for _, v := range o.window[:o.filled] {
		sum += v
	}
	avg := sum / float64(o.filled)
	o.last = avg

	switch {
	case math.IsNaN(o.previous) || avg < o.previous:
		o.snapshot = o.fn.Weights()
		o.best = avg
		o.rising = 0
	case avg > o.previous:
		o.rising++
		if o.rising >= patience {
			o.frozen = true
			log.Debug().Str("objective", o.name).Int("step", o.steps).Float64("average", avg).Msg("error rising, freezing")
		}
	}
	o.previous = avg
}

func (o *objective) restore() error {
	if err := o.fn.SetWeights(o.snapshot); err != nil {
		return fmt.Errorf("failed to restore %s snapshot: %w", o.name, err)
	}
	return nil
}

func (o *objective) result() ObjectiveResult {
	return ObjectiveResult{
		Steps:  o.steps,
		Best:   o.best,
		Last:   o.last,
		Frozen: o.frozen,
	}
}
