package experiments

import (
	"context"
	"path/filepath"
	"time"

	"connect4/experiments/metrics"
	"connect4/meta"

	"github.com/rs/zerolog/log"
)

// RunThroughputExperiment measures search speed: every matchup uses the same
// config for both players for the same playing strength and similar game
// length.
func RunThroughputExperiment(ctx context.Context, cfg meta.Config, dir string) error {
	const numGames = 2 // Per match up
	configs := []metrics.AgentConfig{
		{ID: 1, Iterations: 250, Exploration: cfg.Exploration},
		{ID: 2, Iterations: 1000, Exploration: cfg.Exploration},
		{ID: 3, Iterations: 250, Exploration: cfg.Exploration, Guided: true},
		{ID: 4, Iterations: 1000, Exploration: cfg.Exploration, Guided: true},
	}
	matchUps := [][]metrics.AgentConfig{}
	for _, config := range configs {
		matchUps = append(matchUps, []metrics.AgentConfig{config, config})
	}

	games, moves, err := runExperiment(ctx, cfg, filepath.Join(dir, "throughput"), configs, matchUps, numGames)
	if err != nil {
		return err
	}
	for id, rate := range EpisodesPerSecond(games, moves) {
		log.Info().Int("agent", id).Float64("episodes_per_second", rate).Msg("throughput")
	}
	return nil
}

// EpisodesPerSecond averages search throughput over move records, keyed by
// the searching agent's config id.
func EpisodesPerSecond(games []metrics.GameRecord, moves []metrics.MoveRecord) map[int]float64 {
	agents := make(map[int][2]int, len(games))
	for _, g := range games {
		agents[g.ID] = [2]int{g.Agent1, g.Agent2}
	}
	episodes := map[int]int{}
	durations := map[int]time.Duration{}
	for _, m := range moves {
		pair, ok := agents[m.Game]
		if !ok || m.Player < 1 || m.Player > 2 {
			continue
		}
		id := pair[m.Player-1]
		episodes[id] += m.Episodes
		durations[id] += m.Duration
	}
	rates := make(map[int]float64, len(episodes))
	for id, n := range episodes {
		if d := durations[id].Seconds(); d > 0 {
			rates[id] = float64(n) / d
		}
	}
	return rates
}
