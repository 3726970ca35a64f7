package searcher

import (
	"math"
	"testing"

	"connect4/game"

	"github.com/stretchr/testify/require"
)

type mockEvaluator struct {
	output  []float64
	trained bool
	calls   int
}

func (m *mockEvaluator) CalculateCached(fingerprint string, input func() []float64) []float64 {
	m.calls++
	if len(input()) != game.EncodedBits {
		panic("unexpected input size")
	}
	return m.output
}

func (m *mockEvaluator) Trained() bool {
	return m.trained
}

type mockTelemetry struct {
	fingerprints []string
	policies     [][]float64
}

func (m *mockTelemetry) RecordMove(fingerprint string, policy []float64) {
	m.fingerprints = append(m.fingerprints, fingerprint)
	m.policies = append(m.policies, policy)
}

func uniformPrior() []float64 {
	p := make([]float64, game.Columns)
	for i := range p {
		p[i] = 1.0 / game.Columns
	}
	return p
}

func TestBestMove(t *testing.T) {
	t.Run("takes an immediate win", func(t *testing.T) {
		m := NewMCTS(WithIterations(200), WithRand(newTestRand()))
		column, ok := m.BestMove(board(t, 0, 0, 1, 1, 2, 2), game.Second, 1.4, 6, true)
		require.True(t, ok)
		require.Equal(t, 3, column, "Should complete the bottom row")
	})

	t.Run("blocks an immediate loss", func(t *testing.T) {
		m := NewMCTS(WithIterations(3000), WithRand(newTestRand()))
		column, ok := m.BestMove(board(t, 0, 6, 1, 6, 2), game.First, 1.4, 5, true)
		require.True(t, ok)
		require.Equal(t, 3, column, "Should block the open end of First's row")
	})

	t.Run("full board has no move", func(t *testing.T) {
		b := game.NewBoard()
		pattern := [game.Rows]string{"XXOOXXO", "OOXXOOX", "XXOOXXO", "OOXXOOX", "XXOOXXO", "OOXXOOX"}
		for row := 0; row < game.Rows; row++ {
			for col := 0; col < game.Columns; col++ {
				player := game.Second
				if pattern[row][col] == 'X' {
					player = game.First
				}
				require.True(t, b.Place(col, player))
			}
		}
		m := NewMCTS(WithIterations(10))
		column, ok := m.BestMove(b, game.Second, 1.4, game.Cells, true)
		require.False(t, ok)
		require.Equal(t, NoMove, column)
	})

	t.Run("finished game has no move", func(t *testing.T) {
		m := NewMCTS(WithIterations(10))
		column, ok := m.BestMove(board(t, 0, 1, 0, 1, 0, 1, 0), game.First, 1.4, 7, true)
		require.False(t, ok)
		require.Equal(t, NoMove, column)
	})

	t.Run("empty board with no previous player", func(t *testing.T) {
		m := NewMCTS(WithIterations(50), WithRand(newTestRand()))
		column, ok := m.BestMove(game.NewBoard(), game.None, 1.4, 0, true)
		require.True(t, ok)
		require.GreaterOrEqual(t, column, 0)
		require.Less(t, column, game.Columns)
	})

	t.Run("sampled move is legal", func(t *testing.T) {
		b := board(t, 0, 0, 0, 0, 0, 0)
		m := NewMCTS(WithIterations(100), WithRand(newTestRand()), WithTemperatureMoves(10))
		for i := 0; i < 5; i++ {
			m.Reset()
			column, ok := m.BestMove(b, game.Second, 1.4, 0, false)
			require.True(t, ok)
			require.NotEqual(t, 0, column, "Should never pick the full column")
		}
	})
}

func TestSearchStatistics(t *testing.T) {
	t.Run("visits and values stay bounded", func(t *testing.T) {
		m := NewMCTS(WithIterations(300), WithRand(newTestRand()))
		m.findRoot(board(t, 3, 3), game.Second)
		for i := 0; i < 300; i++ {
			m.simulate(1.4)
		}

		tr := m.tree
		root := tr.get(tr.root)
		require.Equal(t, 300, root.visits)
		sum := 0
		for _, ch := range root.children {
			sum += tr.get(ch).visits
		}
		require.LessOrEqual(t, sum, root.visits)
		for i := range tr.nodes {
			n := &tr.nodes[i]
			require.LessOrEqual(t, math.Abs(n.wins), float64(n.visits)+1e-9, "Should keep |wins| <= visits")
			if n.parent.isValid() {
				require.LessOrEqual(t, n.visits, tr.get(n.parent).visits)
			}
		}
	})
}

func TestTelemetry(t *testing.T) {
	t.Run("records the root visit distribution", func(t *testing.T) {
		telemetry := &mockTelemetry{}
		b := board(t, 0, 0, 0, 0, 0, 0)
		m := NewMCTS(WithIterations(100), WithRand(newTestRand()), WithTelemetry(telemetry))
		_, ok := m.BestMove(b, game.Second, 1.4, 6, true)
		require.True(t, ok)

		require.Equal(t, []string{b.Fingerprint()}, telemetry.fingerprints)
		policy := telemetry.policies[0]
		require.Len(t, policy, game.Columns)
		require.Equal(t, 0.0, policy[0], "Should give the full column no share")
		sum := 0.0
		for _, p := range policy {
			sum += p
		}
		require.InDelta(t, 1.0, sum, 1e-12)
	})
}

func TestTreeReuse(t *testing.T) {
	t.Run("reuses the subtree after both players move", func(t *testing.T) {
		m := NewMCTS(WithIterations(300), WithRand(newTestRand()), WithMetrics())
		b := game.NewBoard()
		column, ok := m.BestMove(b, game.Second, 1.4, 0, true)
		require.True(t, ok)
		require.False(t, m.LastMetric().IsTreeReused)
		require.Equal(t, 300, m.LastMetric().Episodes)

		b.Place(column, game.First)
		reply, ok := m.BestMove(b, game.First, 1.4, 1, true)
		require.True(t, ok)
		require.True(t, m.LastMetric().IsTreeReused, "Should find the position among the kept children")

		b.Place(reply, game.Second)
		_, ok = m.BestMove(b, game.Second, 1.4, 2, true)
		require.True(t, ok)
		require.True(t, m.LastMetric().IsTreeReused)
	})

	t.Run("unrelated position starts a fresh tree", func(t *testing.T) {
		m := NewMCTS(WithIterations(50), WithRand(newTestRand()), WithMetrics())
		_, ok := m.BestMove(game.NewBoard(), game.Second, 1.4, 0, true)
		require.True(t, ok)
		_, ok = m.BestMove(board(t, 6, 6, 6), game.First, 1.4, 3, true)
		require.True(t, ok)
		require.False(t, m.LastMetric().IsTreeReused)
	})
}

func TestGuidedSearch(t *testing.T) {
	t.Run("untrained functions are ignored", func(t *testing.T) {
		policy := &mockEvaluator{output: uniformPrior()}
		value := &mockEvaluator{output: []float64{0.3}}
		m := NewMCTS(WithIterations(50), WithRand(newTestRand()), WithNetworks(policy, value), WithMetrics())
		_, ok := m.BestMove(game.NewBoard(), game.Second, 1.4, 0, true)
		require.True(t, ok)
		require.Zero(t, policy.calls)
		require.Zero(t, value.calls)
		require.False(t, m.LastMetric().Guided)
	})

	t.Run("trained functions replace rollouts", func(t *testing.T) {
		policy := &mockEvaluator{output: uniformPrior(), trained: true}
		value := &mockEvaluator{output: []float64{0.3}, trained: true}
		m := NewMCTS(WithIterations(50), WithRand(newTestRand()), WithNetworks(policy, value), WithMetrics())
		_, ok := m.BestMove(game.NewBoard(), game.Second, 2.0, 0, true)
		require.True(t, ok)
		require.NotZero(t, policy.calls)
		require.NotZero(t, value.calls)
		require.Zero(t, m.LastMetric().FullPlayouts, "Should not roll out when a value function is trusted")
		require.True(t, m.LastMetric().Guided)
	})

	t.Run("guided selection short-circuits to a win", func(t *testing.T) {
		prior := make([]float64, game.Columns)
		prior[6] = 1
		policy := &mockEvaluator{output: prior, trained: true}
		value := &mockEvaluator{output: []float64{0}, trained: true}
		m := NewMCTS(WithIterations(100), WithRand(newTestRand()), WithNetworks(policy, value))
		column, ok := m.BestMove(board(t, 0, 0, 1, 1, 2, 2), game.Second, 2.0, 6, true)
		require.True(t, ok)
		require.Equal(t, 3, column)
	})
}
