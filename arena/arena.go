package arena

import (
	"context"
	"errors"
	"fmt"
	"time"

	"connect4/agent"
	"connect4/engine"
	"connect4/experiments/metrics"
	"connect4/game"
	"connect4/meta"
	"connect4/replay"
	"connect4/searcher"
	"connect4/training"

	"github.com/rs/zerolog/log"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
)

// Cycle outcomes.
const (
	Promoted  = "promoted"  // challenger joined the pool
	Advanced  = "advanced"  // challenger beat the teacher and moves on to an older champion
	Rejected  = "rejected"  // challenger lost
	Cancelled = "cancelled" // cycle stopped early
)

type Option func(c *Coordinator)

func WithWriter(writer *metrics.Writer) Option {
	return func(c *Coordinator) {
		c.writer = writer
	}
}

func WithRand(rng *rand.Rand) Option {
	return func(c *Coordinator) {
		if rng != nil {
			c.rng = rng
		}
	}
}

// Coordinator runs self-play, training, evaluation and promotion cycles
// against a pool of champions. RunCycle must not be called concurrently.
type Coordinator struct {
	cfg        meta.Config
	thresholds Thresholds
	trainer    *training.Engine
	pool       *Pool
	buffer     *replay.Buffer
	writer     *metrics.Writer
	rng        *rand.Rand

	teacher int          // pool index of the current opponent
	lives   int          // older champions a challenger must still beat
	pending *agent.Agent // challenger that has beaten at least one champion
	cycle   int
}

// SelfPlayResult counts the games of one self-play phase.
type SelfPlayResult struct {
	Games  int
	Failed int
}

type Report struct {
	Cycle      int
	Challenger *agent.Agent
	Teacher    *agent.Agent
	SelfPlay   SelfPlayResult
	BufferSize int
	Training   training.Result
	Evaluation Evaluation
	Decision   Decision
	Outcome    string
	Lives      int
	Cancelled  bool
	Duration   time.Duration
}

// NewCoordinator starts from champions, oldest first. The newest champion is
// the first teacher.
func NewCoordinator(cfg meta.Config, champions []*agent.Agent, buffer *replay.Buffer, options ...Option) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid arena config: %w", err)
	}
	if len(champions) == 0 {
		return nil, errors.New("arena needs at least one champion")
	}
	if buffer == nil {
		return nil, errors.New("arena needs a replay buffer")
	}

	c := &Coordinator{
		cfg: cfg,
		thresholds: Thresholds{
			DeepLearning: cfg.DeepLearningThreshold,
			Floor:        cfg.FloorThreshold,
			Z:            cfg.Z,
		},
		trainer: training.NewEngine(training.Config{
			MaxSteps: cfg.MaxSteps,
			Window:   cfg.Window,
			Patience: cfg.Patience,
		}),
		pool:   NewPool(cfg.PoolSize),
		buffer: buffer,
	}
	for _, a := range champions {
		c.pool.Add(a)
	}
	for _, option := range options {
		option(c)
	}
	if c.rng == nil {
		c.rng = rand.New(rand.NewSource(uint64(time.Now().UnixNano())))
	}
	c.resetTeacher()
	return c, nil
}

func (c *Coordinator) Pool() *Pool {
	return c.pool
}

func (c *Coordinator) Teacher() *agent.Agent {
	return c.pool.At(c.teacher)
}

func (c *Coordinator) Buffer() *replay.Buffer {
	return c.buffer
}

func (c *Coordinator) Lives() int {
	return c.lives
}

// Pending is the challenger working through older champions, or nil.
func (c *Coordinator) Pending() *agent.Agent {
	return c.pending
}

func (c *Coordinator) resetTeacher() {
	c.teacher = c.pool.Len() - 1
	c.lives = min(c.pool.Len()-1, c.cfg.MaxLives)
	c.pending = nil
}

// RunCycle plays one generation. A cancelled context ends the cycle at the
// next game or move boundary and yields a report with Cancelled set and a nil
// error; games already merged into the buffer stay there.
func (c *Coordinator) RunCycle(ctx context.Context) (Report, error) {
	start := time.Now()
	c.cycle++
	report := Report{Cycle: c.cycle, Teacher: c.Teacher()}
	cancelled := func() (Report, error) {
		report.Cancelled = true
		report.Outcome = Cancelled
		report.Lives = c.lives
		report.Duration = time.Since(start)
		log.Info().Msgf("cycle %d cancelled", c.cycle)
		return report, nil
	}

	challenger := c.pending
	if challenger != nil {
		log.Info().Msgf("cycle %d: %s continues against older champions, %d lives left", c.cycle, challenger, c.lives)
	} else {
		champion := c.pool.Newest()
		log.Info().Msgf("cycle %d: self-play with %s", c.cycle, champion)
		selfPlay, err := c.selfPlay(ctx, champion)
		report.SelfPlay = selfPlay
		if ctx.Err() != nil {
			return cancelled()
		}
		if err != nil {
			return report, err
		}

		challenger = champion.Derive()
		samples := c.buffer.SampleNewestPlusRandomBackfill(c.cfg.TrainingSamples, c.rng)
		log.Info().Msgf("cycle %d: training %s on %d samples", c.cycle, challenger, len(samples))
		report.Training, err = c.trainer.Train(ctx, challenger.Policy, challenger.Value, c.buffer.Dataset(samples))
		if ctx.Err() != nil {
			return cancelled()
		}
		if err != nil {
			return report, fmt.Errorf("failed to train challenger: %w", err)
		}
	}
	report.Challenger = challenger
	report.BufferSize = c.buffer.Len()

	teacher := c.Teacher()
	log.Info().Msgf("cycle %d: evaluating %s against %s", c.cycle, challenger, teacher)
	evaluation, err := c.evaluate(ctx, challenger, teacher)
	report.Evaluation = evaluation
	if ctx.Err() != nil {
		return cancelled()
	}
	if err != nil {
		return report, err
	}

	report.Decision = Decide(report.Evaluation, report.Evaluation.TeacherWorst(), c.thresholds)
	report.Outcome = c.apply(report.Decision.Promote, challenger)
	report.Lives = c.lives
	report.Duration = time.Since(start)

	log.Info().
		Int("cycle", c.cycle).
		Str("outcome", report.Outcome).
		Str("as_first", report.Evaluation.AsFirst.String()).
		Str("as_second", report.Evaluation.AsSecond.String()).
		Float64("best", report.Decision.ChallengerBest).
		Float64("worst", report.Decision.ChallengerWorst).
		Float64("teacher_worst", report.Decision.TeacherWorst).
		Float64("margin", report.Decision.Margin).
		Int("lives", c.lives).
		Msg("cycle complete")

	if c.writer != nil {
		if err := c.writer.AppendGenerationRecord(record(report)); err != nil {
			return report, err
		}
	}
	return report, nil
}

// apply moves the challenger through the pool after an evaluation. A pending
// challenger keeps facing older champions until it runs out of lives or loses.
func (c *Coordinator) apply(won bool, challenger *agent.Agent) string {
	if c.pending != nil && c.pending != challenger {
		panic(fmt.Sprintf("challenger %s evaluated while %s is pending", challenger, c.pending))
	}
	if !won {
		c.resetTeacher()
		return Rejected
	}
	if c.lives > 0 {
		c.lives--
		c.teacher--
		c.pending = challenger
		return Advanced
	}
	if evicted := c.pool.Add(challenger); evicted != nil {
		log.Info().Msgf("champion %s left the pool", evicted)
	}
	c.resetTeacher()
	return Promoted
}

// selfPlay has every worker play games between two copies of the champion
// and merge each finished game into the shared buffer.
func (c *Coordinator) selfPlay(ctx context.Context, champion *agent.Agent) (SelfPlayResult, error) {
	c.buffer.BeginNewEntries()
	workers := min(c.cfg.Workers, c.cfg.SelfPlayGames)
	results := make([]SelfPlayResult, workers)
	failures := make([][]error, workers)
	seeds := c.seeds(workers)

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			me := champion.Clone()
			rng := rand.New(rand.NewSource(seeds[w]))
			for i := w; i < c.cfg.SelfPlayGames; i += workers {
				if err := ctx.Err(); err != nil {
					return err
				}
				err := c.selfPlayGame(ctx, me, rng)
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if err != nil {
					log.Warn().Int("worker", w).Int("game", i).Err(err).Msg("self-play game failed")
					results[w].Failed++
					failures[w] = append(failures[w], err)
					continue
				}
				results[w].Games++
			}
			return nil
		})
	}
	err := g.Wait()

	var total SelfPlayResult
	var errs []error
	for w := range results {
		total.Games += results[w].Games
		total.Failed += results[w].Failed
		errs = append(errs, failures[w]...)
	}
	if err != nil {
		return total, err
	}
	log.Info().Msgf("self-play finished %d games (%d failed), buffer holds %d samples", total.Games, total.Failed, c.buffer.Len())
	if total.Games == 0 {
		return total, fmt.Errorf("no self-play game completed: %w", errors.Join(errs...))
	}
	return total, nil
}

func (c *Coordinator) selfPlayGame(ctx context.Context, champion *agent.Agent, rng *rand.Rand) (err error) {
	private := replay.NewBuffer(engine.MaxMoves)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("self-play panic: %v", r)
		}
		if err != nil {
			private.DiscardGame()
		}
	}()

	player := agent.NewTrainingPlayer(champion, private,
		searcher.WithIterations(c.cfg.Iterations),
		searcher.WithTemperatureMoves(c.cfg.TemperatureMoves),
		searcher.WithRand(rng),
	)
	result, err := engine.NewMatch(player, player).Run(ctx)
	if err != nil {
		return err
	}
	if err := private.CommitGame(result.Winner); err != nil {
		return err
	}
	c.buffer.MergeFrom(private)
	return nil
}

// evaluate splits the evaluation games between the two seatings and plays
// them on all workers.
func (c *Coordinator) evaluate(ctx context.Context, challenger, teacher *agent.Agent) (Evaluation, error) {
	games := c.cfg.EvaluationGames
	asFirst := games / 2
	workers := min(c.cfg.Workers, games)
	results := make([]Evaluation, workers)
	seeds := c.seeds(workers)

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			mine, theirs := challenger.Clone(), teacher.Clone()
			rng := rand.New(rand.NewSource(seeds[w]))
			for i := w; i < games; i += workers {
				if err := ctx.Err(); err != nil {
					return err
				}
				seat := game.Second
				if i < asFirst {
					seat = game.First
				}
				winner, err := c.evaluationGame(ctx, mine, theirs, seat, rng)
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if err != nil {
					log.Warn().Int("worker", w).Int("game", i).Err(err).Msg("evaluation game failed")
					continue
				}
				tally := &results[w].AsSecond
				if seat == game.First {
					tally = &results[w].AsFirst
				}
				switch winner {
				case game.None:
					tally.Draws++
				case seat:
					tally.Wins++
				default:
					tally.Losses++
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Evaluation{}, err
	}

	var total Evaluation
	for _, r := range results {
		total.AsFirst = total.AsFirst.add(r.AsFirst)
		total.AsSecond = total.AsSecond.add(r.AsSecond)
	}
	return total, nil
}

func (c *Coordinator) evaluationGame(ctx context.Context, challenger, teacher *agent.Agent, seat game.Player, rng *rand.Rand) (winner game.Player, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("evaluation panic: %v", r)
		}
	}()

	options := []searcher.Option{searcher.WithIterations(c.cfg.Iterations), searcher.WithRand(rng)}
	first := agent.NewEvaluationPlayer(challenger, options...)
	second := agent.NewEvaluationPlayer(teacher, options...)
	if seat == game.Second {
		first, second = second, first
	}
	result, err := engine.NewMatch(first, second).Run(ctx)
	if err != nil {
		return game.None, err
	}
	return result.Winner, nil
}

func (c *Coordinator) seeds(n int) []uint64 {
	seeds := make([]uint64, n)
	for i := range seeds {
		seeds[i] = c.rng.Uint64()
	}
	return seeds
}

func record(r Report) metrics.GenerationRecord {
	rec := metrics.GenerationRecord{
		Cycle:           r.Cycle,
		SelfPlayGames:   r.SelfPlay.Games,
		FailedGames:     r.SelfPlay.Failed,
		BufferSize:      r.BufferSize,
		TrainingSteps:   r.Training.Steps,
		PolicyError:     r.Training.Policy.Best,
		ValueError:      r.Training.Value.Best,
		ChallengerBest:  r.Decision.ChallengerBest,
		ChallengerWorst: r.Decision.ChallengerWorst,
		TeacherWorst:    r.Decision.TeacherWorst,
		Margin:          r.Decision.Margin,
		Outcome:         r.Outcome,
		Lives:           r.Lives,
		Duration:        r.Duration,
	}
	if r.Challenger != nil {
		rec.Challenger = r.Challenger.ID
		rec.Generation = r.Challenger.Generation
	}
	if r.Teacher != nil {
		rec.Teacher = r.Teacher.ID
	}
	return rec
}
