package engine

import (
	"context"
	"errors"

	"connect4/experiments/metrics"
	"connect4/game"
)

const MaxMoves = game.Cells

var ErrIllegalMove = errors.New("illegal move")

type Engine interface {
	// Run plays a game until a player connects four or the board fills up
	Run(ctx context.Context) (Result, error)
}

type Result struct {
	Winner      game.Player // None for a draw
	Columns     []int
	Game        metrics.GameMetric
	MoveMetrics []metrics.MoveMetric
}
