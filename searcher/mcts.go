package searcher

import (
	"fmt"
	"math"
	"time"

	"connect4/experiments/metrics"
	"connect4/game"
	"connect4/utils"

	"golang.org/x/exp/rand"
)

type Option func(m *MCTS)

// Evaluator is a learned function consulted during search.
type Evaluator interface {
	CalculateCached(fingerprint string, input func() []float64) []float64
	Trained() bool
}

// Telemetry receives the root visit distribution after every search.
type Telemetry interface {
	RecordMove(fingerprint string, policy []float64)
}

// MCTS searches one game at a time and keeps its tree between moves. It is
// not safe for concurrent use.
type MCTS struct {
	iterations       int
	temperatureMoves int
	policy           Evaluator
	value            Evaluator
	telemetry        Telemetry
	rng              *rand.Rand
	tree             *tree
	metrics          metrics.Collector
	metric           metrics.SearchMetric
}

func WithIterations(iterations int) Option {
	return func(m *MCTS) {
		if iterations > 0 {
			m.iterations = iterations
		}
	}
}

func WithTemperatureMoves(moves int) Option {
	return func(m *MCTS) {
		if moves >= 0 {
			m.temperatureMoves = moves
		}
	}
}

// WithNetworks attaches a policy and a value function. The policy steers
// selection once it reports Trained; the value replaces rollouts once both do.
func WithNetworks(policy, value Evaluator) Option {
	return func(m *MCTS) {
		m.policy = policy
		m.value = value
	}
}

func WithTelemetry(telemetry Telemetry) Option {
	return func(m *MCTS) {
		m.telemetry = telemetry
	}
}

func WithRand(rng *rand.Rand) Option {
	return func(m *MCTS) {
		if rng != nil {
			m.rng = rng
		}
	}
}

func WithMetrics() Option {
	return func(m *MCTS) {
		m.metrics = metrics.NewCollector()
	}
}

func NewMCTS(options ...Option) *MCTS {
	m := &MCTS{ // Default values
		iterations:       DefaultIterations,
		temperatureMoves: DefaultTemperatureMoves,
		metrics:          metrics.NewDummyCollector(),
	}
	for _, option := range options {
		option(m)
	}
	if m.rng == nil {
		m.rng = rand.New(rand.NewSource(uint64(time.Now().UnixNano())))
	}
	return m
}

// BestMove searches state, where previous is the player who made the last
// move (None before the first move), and returns the column to play.
// It returns NoMove and false when the game is already over.
//
// Play is greedy by win rate when deterministic is set or movesPlayed has
// reached the temperature horizon; otherwise the move is sampled in
// proportion to root visit counts.
func (m *MCTS) BestMove(state game.State, previous game.Player, exploration float64, movesPlayed int, deterministic bool) (int, bool) {
	if previous == game.None {
		previous = game.Second
	}
	m.metrics.Start(m.iterations, m.guided())
	m.findRoot(state, previous)

	root := m.tree.get(m.tree.root)
	if root.won || len(root.state.LegalColumns()) == 0 {
		m.metric = m.metrics.Complete()
		return NoMove, false
	}

	for i := 0; i < m.iterations; i++ {
		m.simulate(exploration)
		m.metrics.AddEpisode()
	}

	if m.telemetry != nil {
		m.telemetry.RecordMove(m.tree.get(m.tree.root).fingerprint, m.rootPolicy())
	}

	var chosen handle
	if deterministic || movesPlayed >= m.temperatureMoves {
		chosen = m.robustChild()
	} else {
		chosen = m.sampleChild()
	}
	column := m.tree.get(chosen).move
	m.tree.reroot(chosen)
	m.metric = m.metrics.Complete()
	return column, true
}

// LastMetric describes the most recent search.
func (m *MCTS) LastMetric() metrics.SearchMetric {
	return m.metric
}

func (m *MCTS) Telemetry() Telemetry {
	return m.telemetry
}

// Reset drops the search tree.
func (m *MCTS) Reset() {
	m.tree = nil
}

func (m *MCTS) guided() bool {
	return m.policy != nil && m.policy.Trained()
}

// valued reports whether leaf evaluation uses the value function instead of
// rollouts. Both functions must be trusted.
func (m *MCTS) valued() bool {
	return m.guided() && m.value != nil && m.value.Trained()
}

func (m *MCTS) findRoot(state game.State, previous game.Player) {
	if m.tree != nil {
		if h := m.tree.find(state.Fingerprint()); h.isValid() {
			if h != m.tree.root {
				m.tree.reroot(h)
			}
			m.metrics.SetTreeReused(true)
			return
		}
	}
	m.tree = newTree(state.Copy(), previous)
	m.metrics.SetTreeReused(false)
}

func (m *MCTS) simulate(c float64) {
	t := m.tree
	h := t.root
	for {
		n := t.get(h)
		if !n.expanded || n.terminal {
			break
		}
		h = m.selectChild(h, c)
	}

	if !t.get(h).expanded {
		if children := t.expand(h); len(children) > 0 {
			h = children[m.rng.Intn(len(children))]
		}
	}
	t.backpropagate(h, m.evaluate(h))
}

func (m *MCTS) selectChild(h handle, c float64) handle {
	t := m.tree
	n := t.get(h)
	best := nilNode
	bestScore := math.Inf(-1)

	if m.guided() {
		prior := m.policy.CalculateCached(n.fingerprint, encoder(n.fingerprint))
		policy := newPUCT(c, n.visits)
		for _, ch := range n.children {
			child := t.get(ch)
			if child.won {
				return ch
			}
			child.score = policy.evaluate(child.wins, child.visits, prior[child.move])
			if child.score > bestScore {
				best, bestScore = ch, child.score
			}
		}
		return best
	}

	policy := newUCB1(c, n.visits)
	for _, ch := range n.children {
		child := t.get(ch)
		child.score = policy.evaluate(child.wins, child.visits)
		if math.IsInf(child.score, 1) {
			return ch
		}
		if child.score > bestScore {
			best, bestScore = ch, child.score
		}
	}
	return best
}

// evaluate scores h from the perspective of the player who moved into it.
func (m *MCTS) evaluate(h handle) float64 {
	n := m.tree.get(h)
	if n.won {
		return Win
	}
	if n.terminal || len(n.state.LegalColumns()) == 0 {
		return Draw
	}
	if m.valued() {
		v := m.value.CalculateCached(n.fingerprint, encoder(n.fingerprint))[0]
		return utils.Clamp(v, Loss, Win)
	}
	return m.rollout(n.state, n.mover)
}

// rollout plays uniformly random moves to the end of the game.
func (m *MCTS) rollout(state game.State, mover game.Player) float64 {
	state = state.Copy()
	player := mover
	for {
		columns := state.LegalColumns()
		if len(columns) == 0 {
			m.metrics.AddFullPlayout()
			return Draw
		}
		player = player.Opponent()
		state.Place(columns[m.rng.Intn(len(columns))], player)
		if state.HasWon(player) {
			m.metrics.AddFullPlayout()
			if player == mover {
				return Win
			}
			return Loss
		}
	}
}

// rootPolicy is the visit share of each column at the root.
func (m *MCTS) rootPolicy() []float64 {
	t := m.tree
	policy := make([]float64, game.Columns)
	total := 0
	for _, ch := range t.get(t.root).children {
		child := t.get(ch)
		policy[child.move] = float64(child.visits)
		total += child.visits
	}
	if total > 0 {
		for i := range policy {
			policy[i] /= float64(total)
		}
	}
	return policy
}

// robustChild picks the visited root child with the best win rate. An
// immediate win takes precedence; otherwise the first child with the top
// rate is kept.
func (m *MCTS) robustChild() handle {
	t := m.tree
	best := nilNode
	bestRate := math.Inf(-1)
	for _, ch := range t.get(t.root).children {
		child := t.get(ch)
		if child.won {
			return ch
		}
		if child.visits == 0 {
			continue
		}
		if rate := child.wins / float64(child.visits); rate > bestRate {
			best, bestRate = ch, rate
		}
	}
	if !best.isValid() {
		panic(fmt.Sprintf("no visited child at root %s", t.get(t.root).fingerprint))
	}
	return best
}

func (m *MCTS) sampleChild() handle {
	t := m.tree
	children := t.get(t.root).children
	visits := make([]float64, len(children))
	for i, ch := range children {
		visits[i] = float64(t.get(ch).visits)
	}
	return children[sample(adjustTemperature(visits, 1.0), m.rng)]
}

func adjustTemperature(visits []float64, temperature float64) []float64 {
	// Compute temperature-adjusted move probabilities
	exponent := 1.0 / temperature
	adjusted := make([]float64, len(visits))
	for i, v := range visits {
		adjusted[i] = math.Pow(v, exponent)
	}
	utils.Normalize(adjusted)
	return adjusted
}

func sample(probs []float64, rng *rand.Rand) int {
	sampled := rng.Float64()
	cumulative := 0.0
	last := 0
	for i, p := range probs {
		if p <= 0 {
			continue
		}
		last = i
		cumulative += p
		if sampled < cumulative {
			return i
		}
	}
	return last // Fallback in case of rounding errors
}

// encoder defers decoding a fingerprint until a cache miss needs the input.
func encoder(fingerprint string) func() []float64 {
	return func() []float64 {
		input, err := game.DecodeFingerprint(fingerprint)
		if err != nil {
			panic(fmt.Sprintf("search produced a bad fingerprint: %v", err))
		}
		return input
	}
}
