package experiments

import (
	"context"
	"fmt"
	"path/filepath"

	"connect4/agent"
	"connect4/engine"
	"connect4/experiments/metrics"
	"connect4/meta"
	"connect4/searcher"

	"github.com/rs/zerolog/log"
	"golang.org/x/exp/rand"
)

const NumGames = 20 // Per match up

var iterationConfigs = []metrics.AgentConfig{
	{ID: 1, Iterations: 100, Exploration: meta.EXPLORATION},
	{ID: 2, Iterations: 250, Exploration: meta.EXPLORATION},
	{ID: 3, Iterations: 500, Exploration: meta.EXPLORATION},
	{ID: 4, Iterations: 1000, Exploration: meta.EXPLORATION},
	{ID: 5, Iterations: 2000, Exploration: meta.EXPLORATION},
}

// RunIterationExperiment pairs rollout-only agents of growing search budgets
// against a fixed baseline and writes the results under dir.
func RunIterationExperiment(ctx context.Context, cfg meta.Config, dir string) error {
	baseline := metrics.AgentConfig{ID: 0, Iterations: cfg.Iterations, Exploration: cfg.Exploration}
	// Each matchup pairs the baseline agent against an iteration agent
	matchUps := [][]metrics.AgentConfig{}
	for _, config := range iterationConfigs {
		matchUps = append(matchUps, []metrics.AgentConfig{baseline, config})
	}

	_, _, err := runExperiment(ctx, cfg, filepath.Join(dir, "iterations"), append(iterationConfigs, baseline), matchUps, NumGames)
	return err
}

func runExperiment(ctx context.Context, cfg meta.Config, dir string, configs []metrics.AgentConfig, matchUps [][]metrics.AgentConfig, numGames int) ([]metrics.GameRecord, []metrics.MoveRecord, error) {
	name := filepath.Base(dir)
	rng := rand.New(rand.NewSource(cfg.Seed))
	// Run a number of games for each matchup
	count := 0
	gameRecords := []metrics.GameRecord{}
	moveRecords := []metrics.MoveRecord{}

	log.Info().Msgf("starting %s experiment...", name)

	for mi, matchup := range matchUps {
		config1 := matchup[0]
		config2 := matchup[1]

		log.Info().Msgf("starting matchup %d of %d between agent1=%+v and agent2=%+v...", mi+1, len(matchUps), config1, config2)

		for i := 0; i < numGames; i++ {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
			// Alternate the starting agent to cancel the first-move advantage
			first, second := config1, config2
			if i%2 == 1 {
				first, second = config2, config1
			}
			result, err := runGame(ctx, cfg, first, second, rng)
			if err != nil {
				return nil, nil, fmt.Errorf("matchup %d game %d: %w", mi+1, i+1, err)
			}
			count++
			gameRecords = append(gameRecords, metrics.GameRecord{
				ID:         count,
				Agent1:     first.ID,
				Agent2:     second.ID,
				GameMetric: result.Game,
			})
			for _, mm := range result.MoveMetrics {
				moveRecords = append(moveRecords, metrics.MoveRecord{
					Game:       count,
					MoveMetric: mm,
				})
			}

			log.Info().Msgf("completed matchup %d of %d game %d with winner: %s", mi+1, len(matchUps), i+1, result.Winner)
		}
		log.Info().Msgf("completed matchup %d of %d", mi+1, len(matchUps))
	}

	log.Info().Msgf("completed %s experiment", name)

	if err := store(dir, configs, gameRecords, moveRecords); err != nil {
		return nil, nil, err
	}
	return gameRecords, moveRecords, nil
}

func store(dir string, configs []metrics.AgentConfig, gameRecords []metrics.GameRecord, moveRecords []metrics.MoveRecord) error {
	// Store experiment metadata
	writer, err := metrics.NewWriter(dir)
	if err != nil {
		return fmt.Errorf("failed to create experiment writer: %w", err)
	}

	err = writer.WriteAgentConfigs(configs)
	if err != nil {
		return fmt.Errorf("failed to store agent configs: %w", err)
	}
	log.Info().Msg("stored agent configs")

	// Store experiment results
	err = writer.WriteGameRecords(gameRecords)
	if err != nil {
		return fmt.Errorf("failed to write game records: %w", err)
	}
	log.Info().Msg("stored game records")

	err = writer.WriteMoveRecords(moveRecords)
	if err != nil {
		return fmt.Errorf("failed to write move records: %w", err)
	}
	log.Info().Msg("stored move records")
	return nil
}

// runGame plays one game between two freshly generated agents.
func runGame(ctx context.Context, cfg meta.Config, config1, config2 metrics.AgentConfig, rng *rand.Rand) (engine.Result, error) {
	player1, err := createPlayer(cfg, config1, rng)
	if err != nil {
		return engine.Result{}, err
	}
	player2, err := createPlayer(cfg, config2, rng)
	if err != nil {
		return engine.Result{}, err
	}
	return engine.NewMatch(player1, player2).Run(ctx)
}

func createPlayer(cfg meta.Config, config metrics.AgentConfig, rng *rand.Rand) (agent.Player, error) {
	cfg.Exploration = config.Exploration
	a, err := agent.Generate(cfg, rng.Uint64())
	if err != nil {
		return nil, err
	}
	if config.Guided {
		a.Policy.SetTrained(true)
		a.Value.SetTrained(true)
	}

	options := []searcher.Option{searcher.WithRand(rand.New(rand.NewSource(rng.Uint64())))}
	if config.Iterations > 0 {
		options = append(options, searcher.WithIterations(config.Iterations))
	}
	options = append(options, searcher.WithMetrics())
	return agent.NewEvaluationPlayer(a, options...), nil
}
