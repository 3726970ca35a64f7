package engine

import (
	"context"
	"testing"

	"connect4/agent"
	"connect4/experiments/metrics"
	"connect4/game"
	"connect4/network"
	"connect4/searcher"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

// scriptedPlayer plays a fixed list of columns and records what it was told.
type scriptedPlayer struct {
	columns   []int
	previous  []game.Player
	moves     []int
	afterMove func()
}

func (p *scriptedPlayer) FindMove(state game.State, previous game.Player, movesPlayed int) (int, bool, metrics.SearchMetric) {
	p.previous = append(p.previous, previous)
	p.moves = append(p.moves, movesPlayed)
	column := p.columns[0]
	p.columns = p.columns[1:]
	if p.afterMove != nil {
		p.afterMove()
	}
	return column, true, metrics.SearchMetric{Episodes: 1}
}

func TestMatchRun(t *testing.T) {
	t.Run("first player wins a vertical line", func(t *testing.T) {
		first := &scriptedPlayer{columns: []int{0, 0, 0, 0}}
		second := &scriptedPlayer{columns: []int{1, 1, 1}}
		result, err := NewMatch(first, second).Run(context.Background())
		require.NoError(t, err)
		require.Equal(t, game.First, result.Winner)
		require.Equal(t, []int{0, 1, 0, 1, 0, 1, 0}, result.Columns)
		require.Equal(t, 7, result.Game.TotalMoves)
		require.Equal(t, int(game.First), result.Game.Winner)
		require.Len(t, result.MoveMetrics, 7)
		require.Equal(t, int(game.Second), result.MoveMetrics[1].Player)
		require.Equal(t, 1, result.MoveMetrics[1].Column)

		require.Equal(t, []game.Player{game.None, game.Second, game.Second, game.Second}, first.previous)
		require.Equal(t, []game.Player{game.First, game.First, game.First}, second.previous)
		require.Equal(t, []int{0, 2, 4, 6}, first.moves)
	})

	t.Run("full board is a draw", func(t *testing.T) {
		// Column-major filling order that never lines up four.
		order := []int{
			0, 1, 0, 1, 0, 1, 1, 0, 1, 0, 1, 0,
			2, 3, 2, 3, 2, 3, 3, 2, 3, 2, 3, 2,
			4, 5, 4, 5, 4, 5, 5, 4, 5, 4, 5, 4,
			6, 6, 6, 6, 6, 6,
		}
		first, second := &scriptedPlayer{}, &scriptedPlayer{}
		for i, c := range order {
			if i%2 == 0 {
				first.columns = append(first.columns, c)
			} else {
				second.columns = append(second.columns, c)
			}
		}
		match := NewMatch(first, second)
		result, err := match.Run(context.Background())
		require.NoError(t, err)
		require.Equal(t, game.None, result.Winner)
		require.Equal(t, game.Cells, result.Game.TotalMoves)
		require.True(t, match.State().Full())
	})

	t.Run("illegal move is an error", func(t *testing.T) {
		first := &scriptedPlayer{columns: []int{0, 0, 0, 0}}
		second := &scriptedPlayer{columns: []int{0, 0, 7}}
		_, err := NewMatch(first, second).Run(context.Background())
		require.ErrorIs(t, err, ErrIllegalMove)
	})

	t.Run("cancellation stops before the next move", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		first := &scriptedPlayer{columns: []int{0, 0, 0, 0}}
		second := &scriptedPlayer{columns: []int{1, 1, 1}, afterMove: cancel}
		result, err := NewMatch(first, second).Run(ctx)
		require.ErrorIs(t, err, context.Canceled)
		require.Equal(t, []int{0, 1}, result.Columns)
		require.Equal(t, game.None, result.Winner)
	})

	t.Run("search players finish a game", func(t *testing.T) {
		newAgent := func(seed uint64) *agent.Agent {
			policyCfg := network.PolicyConfig(network.KindAdaptiveStep, game.EncodedBits, 4, game.Columns)
			policyCfg.Seed = seed
			policy, err := network.New(policyCfg)
			require.NoError(t, err)
			valueCfg := network.ValueConfig(network.KindAdaptiveStep, game.EncodedBits, 4)
			valueCfg.Seed = seed
			value, err := network.New(valueCfg)
			require.NoError(t, err)
			return agent.New(1.4, policy, value)
		}
		first := agent.NewEvaluationPlayer(newAgent(1), searcher.WithIterations(30),
			searcher.WithRand(rand.New(rand.NewSource(1))), searcher.WithMetrics())
		second := agent.NewEvaluationPlayer(newAgent(2), searcher.WithIterations(30),
			searcher.WithRand(rand.New(rand.NewSource(2))), searcher.WithMetrics())

		match := NewMatch(first, second)
		result, err := match.Run(context.Background())
		require.NoError(t, err)
		require.NotEmpty(t, result.Columns)
		if result.Winner == game.None {
			require.True(t, match.State().Full())
		} else {
			require.True(t, match.State().HasWon(result.Winner))
		}
		for _, m := range result.MoveMetrics {
			require.Equal(t, 30, m.Episodes)
		}
	})
}
