package agent

import (
	"connect4/experiments/metrics"
	"connect4/game"
	"connect4/searcher"
)

// Player picks moves for one side of a game.
type Player interface {
	// FindMove returns the column to play in state, where previous made the
	// last move. ok is false when the game is already over.
	FindMove(state game.State, previous game.Player, movesPlayed int) (column int, ok bool, metric metrics.SearchMetric)
}

type evaluationPlayer struct {
	mcts        *searcher.MCTS
	exploration float64
}

// NewEvaluationPlayer returns a player for arena games: it always plays the
// move with the best win rate.
func NewEvaluationPlayer(a *Agent, options ...searcher.Option) Player {
	options = append(options, searcher.WithNetworks(a.Policy, a.Value))
	return &evaluationPlayer{
		mcts:        searcher.NewMCTS(options...),
		exploration: a.Exploration,
	}
}

func (p *evaluationPlayer) FindMove(state game.State, previous game.Player, movesPlayed int) (int, bool, metrics.SearchMetric) {
	column, ok := p.mcts.BestMove(state, previous, p.exploration, movesPlayed, true)
	return column, ok, p.mcts.LastMetric()
}

type trainingPlayer struct {
	mcts        *searcher.MCTS
	exploration float64
}

// NewTrainingPlayer returns a player for self-play. Early moves are sampled
// by visit count and every search's root policy goes to telemetry.
func NewTrainingPlayer(a *Agent, telemetry searcher.Telemetry, options ...searcher.Option) Player {
	options = append(options,
		searcher.WithNetworks(a.Policy, a.Value),
		searcher.WithTelemetry(telemetry),
	)
	return &trainingPlayer{
		mcts:        searcher.NewMCTS(options...),
		exploration: a.Exploration,
	}
}

func (p *trainingPlayer) FindMove(state game.State, previous game.Player, movesPlayed int) (int, bool, metrics.SearchMetric) {
	column, ok := p.mcts.BestMove(state, previous, p.exploration, movesPlayed, false)
	return column, ok, p.mcts.LastMetric()
}
