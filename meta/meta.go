// meta/meta.go
package meta

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"

	"connect4/network"

	"gopkg.in/yaml.v3"
)

// ITERATIONS defines the number of MCTS iterations per move.
const ITERATIONS = 1000

// EXPLORATION defines the UCB1/PUCT exploration constant.
const EXPLORATION = 1.4

// TEMPERATURE_MOVES defines how many opening moves are sampled in self-play.
const TEMPERATURE_MOVES = 10

// HIDDEN_SIZE defines the width of the hidden layer of both networks.
const HIDDEN_SIZE = 64

type Config struct {
	LogLevel string `yaml:"log_level"`
	Seed     uint64 `yaml:"seed"` // 0 seeds from the clock

	// Search
	Iterations       int     `yaml:"iterations"`
	Exploration      float64 `yaml:"exploration"`
	TemperatureMoves int     `yaml:"temperature_moves"`

	// Networks
	NetworkKind     network.Kind `yaml:"network_kind"`
	HiddenSize      int          `yaml:"hidden_size"`
	CacheSize       int          `yaml:"cache_size"`
	LearningRate    float64      `yaml:"learning_rate"`
	BatchSize       int          `yaml:"batch_size"`
	GradientWorkers int          `yaml:"gradient_workers"`

	// Training
	MaxSteps        int `yaml:"max_steps"`
	Window          int `yaml:"window"`
	Patience        int `yaml:"patience"`
	TrainingSamples int `yaml:"training_samples"`
	MaxBufferSize   int `yaml:"max_buffer_size"`

	// Arena
	Workers               int     `yaml:"workers"`
	SelfPlayGames         int     `yaml:"self_play_games"`
	EvaluationGames       int     `yaml:"evaluation_games"`
	PoolSize              int     `yaml:"pool_size"`
	MaxLives              int     `yaml:"max_lives"`
	DeepLearningThreshold float64 `yaml:"deep_learning_threshold"`
	FloorThreshold        float64 `yaml:"floor_threshold"`
	Z                     float64 `yaml:"z"`
}

func Default() Config {
	return Config{
		LogLevel:              "info",
		Iterations:            ITERATIONS,
		Exploration:           EXPLORATION,
		TemperatureMoves:      TEMPERATURE_MOVES,
		NetworkKind:           network.KindBatchGradient,
		HiddenSize:            HIDDEN_SIZE,
		CacheSize:             network.DefaultCacheSize,
		LearningRate:          network.DefaultLearningRate,
		BatchSize:             network.DefaultBatchSize,
		GradientWorkers:       runtime.NumCPU(),
		MaxSteps:              200,
		Window:                5,
		Patience:              3,
		TrainingSamples:       4096,
		MaxBufferSize:         50000,
		Workers:               runtime.NumCPU(),
		SelfPlayGames:         64,
		EvaluationGames:       40,
		PoolSize:              5,
		MaxLives:              3,
		DeepLearningThreshold: 0.55,
		FloorThreshold:        0.35,
		Z:                     1.96,
	}
}

// Load reads a YAML config on top of the defaults. A missing file yields the
// defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	positive := map[string]int{
		"iterations":       c.Iterations,
		"hidden_size":      c.HiddenSize,
		"max_steps":        c.MaxSteps,
		"window":           c.Window,
		"patience":         c.Patience,
		"training_samples": c.TrainingSamples,
		"max_buffer_size":  c.MaxBufferSize,
		"workers":          c.Workers,
		"self_play_games":  c.SelfPlayGames,
		"pool_size":        c.PoolSize,
	}
	for name, v := range positive {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}
	if c.EvaluationGames < 2 {
		errs = append(errs, fmt.Errorf("evaluation_games must be at least 2, got %d", c.EvaluationGames))
	}
	if c.TemperatureMoves < 0 || c.MaxLives < 0 {
		errs = append(errs, errors.New("temperature_moves and max_lives must not be negative"))
	}
	if c.Exploration <= 0 {
		errs = append(errs, fmt.Errorf("exploration must be positive, got %v", c.Exploration))
	}
	if _, err := network.ParseKind(string(c.NetworkKind)); err != nil {
		errs = append(errs, err)
	}
	for name, v := range map[string]float64{
		"deep_learning_threshold": c.DeepLearningThreshold,
		"floor_threshold":         c.FloorThreshold,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must lie in [0, 1], got %v", name, v))
		}
	}
	if c.Z < 0 {
		errs = append(errs, fmt.Errorf("z must not be negative, got %v", c.Z))
	}
	return errors.Join(errs...)
}
