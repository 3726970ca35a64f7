package arena

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"connect4/agent"
	"connect4/experiments/metrics"
	"connect4/game"
	"connect4/meta"
	"connect4/network"
	"connect4/replay"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func TestDecide(t *testing.T) {
	thresholds := Thresholds{DeepLearning: 0.55, Floor: 0.35, Z: 1.96}

	t.Run("strong challenger is promoted", func(t *testing.T) {
		e := Evaluation{
			AsFirst:  Tally{Wins: 70, Losses: 30},
			AsSecond: Tally{Wins: 65, Losses: 35},
		}
		d := Decide(e, 0.5, thresholds)

		margin := 1.96 * math.Sqrt(0.5*0.5/100)
		require.InDelta(t, 0.098, margin, 1e-12)
		require.InDelta(t, margin, d.Margin, 1e-12)
		require.InDelta(t, 0.70, d.ChallengerBest, 1e-12)
		require.InDelta(t, 0.65, d.ChallengerWorst, 1e-12)
		require.Greater(t, d.ChallengerWorst-d.Margin, 0.5)
		require.True(t, d.Promote)
	})

	t.Run("one-sided wins are rejected", func(t *testing.T) {
		e := Evaluation{
			AsFirst:  Tally{Wins: 95, Losses: 5},
			AsSecond: Tally{Wins: 30, Losses: 70},
		}
		require.False(t, Decide(e, 0.2, thresholds).Promote, "Should fail the floor on the weak seat")
	})

	t.Run("best seat must clear the deep learning threshold", func(t *testing.T) {
		e := Evaluation{
			AsFirst:  Tally{Wins: 54, Losses: 46},
			AsSecond: Tally{Wins: 54, Losses: 46},
		}
		require.False(t, Decide(e, 0.1, thresholds).Promote)
	})

	t.Run("worst seat must beat the teacher by the margin", func(t *testing.T) {
		e := Evaluation{
			AsFirst:  Tally{Wins: 70, Losses: 30},
			AsSecond: Tally{Wins: 55, Losses: 45},
		}
		require.False(t, Decide(e, 0.5, thresholds).Promote)
	})

	t.Run("draws count half", func(t *testing.T) {
		require.Equal(t, 0.75, Tally{Wins: 1, Draws: 1}.Rate())
		require.Equal(t, 0.0, Tally{}.Rate())
		require.Equal(t, Tally{Wins: 3, Draws: 2, Losses: 1}, Tally{Wins: 1, Draws: 2, Losses: 3}.Reverse())
	})

	t.Run("teacher worst comes from the reversed tallies", func(t *testing.T) {
		e := Evaluation{
			AsFirst:  Tally{Wins: 6, Losses: 4},
			AsSecond: Tally{Wins: 3, Draws: 2, Losses: 5},
		}
		require.InDelta(t, 0.4, e.TeacherWorst(), 1e-12)
	})

	t.Run("no games never promotes", func(t *testing.T) {
		d := Decide(Evaluation{AsFirst: Tally{Wins: 10}}, 0.5, thresholds)
		require.False(t, d.Promote)
		require.True(t, math.IsInf(d.Margin, 1))
	})
}

func newAgent(t *testing.T, seed uint64) *agent.Agent {
	t.Helper()
	policyCfg := network.PolicyConfig(network.KindBatchGradient, game.EncodedBits, 4, game.Columns)
	policyCfg.Seed = seed
	policy, err := network.New(policyCfg)
	require.NoError(t, err)
	valueCfg := network.ValueConfig(network.KindAdaptiveStep, game.EncodedBits, 4)
	valueCfg.Seed = seed
	value, err := network.New(valueCfg)
	require.NoError(t, err)
	return agent.New(1.4, policy, value)
}

func smallConfig() meta.Config {
	cfg := meta.Default()
	cfg.Iterations = 8
	cfg.HiddenSize = 4
	cfg.Workers = 2
	cfg.GradientWorkers = 1
	cfg.SelfPlayGames = 3
	cfg.EvaluationGames = 4
	cfg.TrainingSamples = 64
	cfg.MaxBufferSize = 500
	cfg.MaxSteps = 3
	cfg.PoolSize = 3
	cfg.MaxLives = 3
	return cfg
}

func TestPool(t *testing.T) {
	t.Run("evicts the oldest member", func(t *testing.T) {
		p := NewPool(2)
		a, b, c := newAgent(t, 1), newAgent(t, 2), newAgent(t, 3)
		require.Nil(t, p.Add(a))
		require.Nil(t, p.Add(b))
		require.Same(t, a, p.Add(c))
		require.Equal(t, []*agent.Agent{b, c}, p.Agents())
		require.Same(t, c, p.Newest())
		require.Same(t, b, p.At(0))
	})

	t.Run("empty pool", func(t *testing.T) {
		require.Nil(t, NewPool(1).Newest())
		require.Panics(t, func() { NewPool(0) })
	})
}

func TestLives(t *testing.T) {
	champions := []*agent.Agent{newAgent(t, 1), newAgent(t, 2), newAgent(t, 3)}

	t.Run("challenger works through older champions", func(t *testing.T) {
		c, err := NewCoordinator(smallConfig(), champions, replay.NewBuffer(10))
		require.NoError(t, err)
		require.Same(t, champions[2], c.Teacher())
		require.Equal(t, 2, c.Lives())

		challenger := champions[2].Derive()
		require.Equal(t, Advanced, c.apply(true, challenger))
		require.Same(t, champions[1], c.Teacher())
		require.Same(t, challenger, c.Pending())
		require.Equal(t, 1, c.Lives())

		require.Equal(t, Advanced, c.apply(true, challenger))
		require.Same(t, champions[0], c.Teacher())
		require.Same(t, challenger, c.Pending())
		require.Equal(t, 0, c.Lives())

		require.Equal(t, Promoted, c.apply(true, challenger))
		require.Same(t, challenger, c.Teacher(), "Should promote the agent that beat every champion")
		require.Same(t, challenger, c.Pool().Newest())
		require.Equal(t, 3, c.Pool().Len(), "Should evict the oldest champion")
		require.Nil(t, c.Pending())
		require.Equal(t, 2, c.Lives())
	})

	t.Run("a loss resets the teacher", func(t *testing.T) {
		c, err := NewCoordinator(smallConfig(), champions, replay.NewBuffer(10))
		require.NoError(t, err)
		challenger := champions[2].Derive()
		require.Equal(t, Advanced, c.apply(true, challenger))
		require.Equal(t, Rejected, c.apply(false, challenger))
		require.Same(t, champions[2], c.Teacher())
		require.Equal(t, 2, c.Lives())
		require.Nil(t, c.Pending())
	})

	t.Run("a different agent cannot take over a pending run", func(t *testing.T) {
		c, err := NewCoordinator(smallConfig(), champions, replay.NewBuffer(10))
		require.NoError(t, err)
		require.Equal(t, Advanced, c.apply(true, champions[2].Derive()))
		require.Panics(t, func() { c.apply(true, champions[2].Derive()) })
	})

	t.Run("lives are capped", func(t *testing.T) {
		cfg := smallConfig()
		cfg.MaxLives = 1
		c, err := NewCoordinator(cfg, champions, replay.NewBuffer(10))
		require.NoError(t, err)
		require.Equal(t, 1, c.Lives())
	})

	t.Run("single champion promotes directly", func(t *testing.T) {
		c, err := NewCoordinator(smallConfig(), champions[:1], replay.NewBuffer(10))
		require.NoError(t, err)
		require.Equal(t, 0, c.Lives())
		challenger := champions[0].Derive()
		require.Equal(t, Promoted, c.apply(true, challenger))
		require.Same(t, challenger, c.Teacher())
	})
}

func TestNewCoordinator(t *testing.T) {
	t.Run("needs a champion", func(t *testing.T) {
		_, err := NewCoordinator(smallConfig(), nil, replay.NewBuffer(10))
		require.Error(t, err)
	})

	t.Run("rejects invalid config", func(t *testing.T) {
		cfg := smallConfig()
		cfg.Workers = 0
		_, err := NewCoordinator(cfg, []*agent.Agent{newAgent(t, 1)}, replay.NewBuffer(10))
		require.Error(t, err)
	})
}

func TestRunCycle(t *testing.T) {
	t.Run("plays, trains and evaluates", func(t *testing.T) {
		dir := t.TempDir()
		writer, err := metrics.NewWriter(dir)
		require.NoError(t, err)
		cfg := smallConfig()
		buffer := replay.NewBuffer(cfg.MaxBufferSize)
		champion := newAgent(t, 1)
		c, err := NewCoordinator(cfg, []*agent.Agent{champion}, buffer,
			WithWriter(writer), WithRand(rand.New(rand.NewSource(5))))
		require.NoError(t, err)

		report, err := c.RunCycle(context.Background())
		require.NoError(t, err)
		require.False(t, report.Cancelled)
		require.Equal(t, 1, report.Cycle)
		require.Equal(t, cfg.SelfPlayGames, report.SelfPlay.Games)
		require.Zero(t, report.SelfPlay.Failed)
		require.Positive(t, buffer.Len())
		require.Equal(t, buffer.Len(), report.BufferSize)

		require.Equal(t, champion.ID, report.Challenger.Lineage)
		require.Equal(t, 1, report.Challenger.Generation)
		require.True(t, report.Challenger.Trained())
		require.False(t, champion.Trained(), "Should train a copy of the champion")

		require.Equal(t, cfg.EvaluationGames/2, report.Evaluation.AsFirst.Games())
		require.Equal(t, cfg.EvaluationGames/2, report.Evaluation.AsSecond.Games())
		require.Contains(t, []string{Promoted, Rejected}, report.Outcome)
		if report.Outcome == Promoted {
			require.Same(t, report.Challenger, c.Teacher())
		} else {
			require.Same(t, champion, c.Teacher())
		}

		data, err := os.ReadFile(filepath.Join(dir, "generations.csv"))
		require.NoError(t, err)
		require.Contains(t, string(data), report.Challenger.ID)
	})

	t.Run("pending challenger is evaluated without retraining", func(t *testing.T) {
		cfg := smallConfig()
		champions := []*agent.Agent{newAgent(t, 1), newAgent(t, 2)}
		buffer := replay.NewBuffer(cfg.MaxBufferSize)
		c, err := NewCoordinator(cfg, champions, buffer, WithRand(rand.New(rand.NewSource(3))))
		require.NoError(t, err)
		pending := champions[1].Derive()
		require.Equal(t, Advanced, c.apply(true, pending))

		report, err := c.RunCycle(context.Background())
		require.NoError(t, err)
		require.Same(t, pending, report.Challenger)
		require.Same(t, champions[0], report.Teacher)
		require.Zero(t, report.SelfPlay.Games, "Should skip self-play")
		require.Zero(t, report.Training.Steps, "Should skip training")
		require.Zero(t, buffer.Len())
		require.Equal(t, cfg.EvaluationGames/2, report.Evaluation.AsFirst.Games())
		require.Contains(t, []string{Promoted, Rejected}, report.Outcome)
		if report.Outcome == Promoted {
			require.Same(t, pending, c.Pool().Newest())
		} else {
			require.Same(t, champions[1], c.Teacher())
		}
		require.Nil(t, c.Pending())
	})

	t.Run("cancelled cycle reports without error", func(t *testing.T) {
		buffer := replay.NewBuffer(100)
		c, err := NewCoordinator(smallConfig(), []*agent.Agent{newAgent(t, 1)}, buffer)
		require.NoError(t, err)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		report, err := c.RunCycle(ctx)
		require.NoError(t, err)
		require.True(t, report.Cancelled)
		require.Equal(t, Cancelled, report.Outcome)
		require.Zero(t, buffer.Len())
		require.Equal(t, 1, c.Pool().Len())
	})
}
