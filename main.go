package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"connect4/agent"
	"connect4/arena"
	"connect4/experiments"
	"connect4/experiments/metrics"
	"connect4/meta"
	"connect4/replay"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/exp/rand"
)

const bufferFile = "replay.parquet"

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML config")
	dataDir := flag.String("data", "data", "Directory for agents, the replay buffer and metrics")
	cycles := flag.Int("cycles", 0, "Number of arena cycles to run, 0 runs until interrupted")
	experiment := flag.String("experiment", "", "Run an experiment instead of training: iterations or throughput")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})

	cfg, err := meta.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Msgf("unknown log level %q", cfg.LogLevel)
	}
	zerolog.SetGlobalLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch *experiment {
	case "":
	case "iterations":
		if err := experiments.RunIterationExperiment(ctx, cfg, filepath.Join(*dataDir, "experiments")); err != nil {
			log.Fatal().Err(err).Msg("experiment failed")
		}
		return
	case "throughput":
		if err := experiments.RunThroughputExperiment(ctx, cfg, filepath.Join(*dataDir, "experiments")); err != nil {
			log.Fatal().Err(err).Msg("experiment failed")
		}
		return
	default:
		log.Fatal().Msgf("unknown experiment %q", *experiment)
	}

	if err := train(ctx, cfg, *dataDir, *cycles); err != nil {
		log.Fatal().Err(err).Msg("training failed")
	}
}

func train(ctx context.Context, cfg meta.Config, dir string, cycles int) error {
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	rng := rand.New(rand.NewSource(seed))

	champions, err := agent.LoadCatalog(dir)
	if err != nil {
		return err
	}
	if len(champions) == 0 {
		first, err := agent.Generate(cfg, rng.Uint64())
		if err != nil {
			return err
		}
		champions = []*agent.Agent{first}
		log.Info().Msgf("starting from untrained agent %s", first)
	} else {
		log.Info().Msgf("loaded %d agents, newest %s", len(champions), champions[len(champions)-1])
	}

	buffer, err := replay.Load(filepath.Join(dir, bufferFile), cfg.MaxBufferSize)
	if err != nil {
		return err
	}
	log.Info().Msgf("replay buffer holds %d samples", buffer.Len())

	writer, err := metrics.NewWriter(filepath.Join(dir, "metrics"))
	if err != nil {
		return err
	}

	coordinator, err := arena.NewCoordinator(cfg, champions, buffer, arena.WithWriter(writer), arena.WithRand(rng))
	if err != nil {
		return err
	}

	for cycle := 1; cycles == 0 || cycle <= cycles; cycle++ {
		report, err := coordinator.RunCycle(ctx)
		if err != nil {
			return err
		}
		if err := save(dir, coordinator); err != nil {
			return err
		}
		if report.Cancelled {
			log.Info().Msg("interrupted, state saved")
			return nil
		}
		log.Info().Msgf("cycle %d %s in %s, teacher %s, lives %d",
			report.Cycle, report.Outcome, report.Duration.Round(time.Millisecond), coordinator.Teacher(), report.Lives)
	}
	return nil
}

// save writes the champion pool and the replay buffer. A pending challenger
// is not kept across runs.
func save(dir string, c *arena.Coordinator) error {
	if err := agent.SaveCatalog(dir, c.Pool().Agents()); err != nil {
		return err
	}
	return c.Buffer().Save(filepath.Join(dir, bufferFile))
}
