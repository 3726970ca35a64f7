package engine

import (
	"context"
	"fmt"
	"time"

	"connect4/agent"
	"connect4/experiments/metrics"
	"connect4/game"
	"connect4/utils"

	"github.com/rs/zerolog/log"
)

// Match runs one game between two players in the same process. First moves
// first.
type Match struct {
	state   *game.Board
	players [2]agent.Player
}

func NewMatch(first, second agent.Player) *Match {
	if first == nil || second == nil {
		panic("need two players")
	}
	return &Match{
		state:   game.NewBoard(),
		players: [2]agent.Player{first, second},
	}
}

// State is the board as the game currently stands.
func (m *Match) State() *game.Board {
	return m.state
}

// Run executes the game loop until there is a winner or the board is full.
// The context is checked before every move; a cancelled game returns the
// moves played so far with ctx.Err().
func (m *Match) Run(ctx context.Context) (Result, error) {
	result := Result{
		Game: metrics.GameMetric{
			StartingPlayer: int(game.First),
			StartTime:      time.Now(),
		},
	}
	finish := func() {
		result.Game.EndTime = time.Now()
		result.Game.Duration = result.Game.EndTime.Sub(result.Game.StartTime)
		result.Game.TotalMoves = len(result.Columns)
		result.Game.Winner = int(result.Winner)
	}

	previous := game.None
	player := game.First
	for step := 1; step <= MaxMoves; step++ {
		if err := ctx.Err(); err != nil {
			finish()
			return result, err
		}
		legal := m.state.LegalColumns()
		if len(legal) == 0 {
			break
		}

		column, ok, metric := m.players[player-game.First].FindMove(m.state, previous, len(result.Columns))
		if !ok || utils.FindIndex(legal, column) < 0 {
			finish()
			return result, fmt.Errorf("%w: %s chose column %d at step %d", ErrIllegalMove, player, column, step)
		}
		m.state.Place(column, player)
		result.Columns = append(result.Columns, column)
		result.MoveMetrics = append(result.MoveMetrics, metrics.MoveMetric{
			Step:         step,
			Player:       int(player),
			Column:       column,
			SearchMetric: metric,
		})

		if m.state.HasWon(player) {
			result.Winner = player
			break
		}
		previous, player = player, player.Opponent()
	}

	finish()
	log.Debug().Int("moves", len(result.Columns)).Str("winner", result.Winner.String()).Msg("game over")
	return result, nil
}
