package replay

import (
	"fmt"
	"sync"

	"connect4/game"
	"connect4/utils"

	"golang.org/x/exp/rand"
)

// PolicyFloor keeps recorded policy targets strictly positive.
const PolicyFloor = 1e-4

// Outcome counts finished games through a position, from the perspective of
// the side that made the last move into it.
type Outcome struct {
	Wins   int
	Draws  int
	Losses int
}

func (o Outcome) Total() int {
	return o.Wins + o.Draws + o.Losses
}

// Value is (wins - losses) / total, or zero when no game has been counted.
func (o Outcome) Value() float64 {
	total := o.Total()
	if total == 0 {
		return 0
	}
	return float64(o.Wins-o.Losses) / float64(total)
}

func (o Outcome) add(other Outcome) Outcome {
	return Outcome{Wins: o.Wins + other.Wins, Draws: o.Draws + other.Draws, Losses: o.Losses + other.Losses}
}

// Sample is one committed training example.
type Sample struct {
	Fingerprint string
	Board       []float64
	Policy      []float64
	Outcome     Outcome
}

type pending struct {
	fingerprint string
	policy      []float64
}

// Buffer is a bounded FIFO of samples plus per-position outcome tallies.
// Moves recorded during a game stay private until CommitGame. All methods are
// safe for concurrent use, but a game in progress belongs to one goroutine:
// give each self-play worker its own Buffer and MergeFrom it when done.
type Buffer struct {
	mu       sync.RWMutex
	capacity int
	samples  []Sample // ring, oldest at head once full
	head     int
	tallies  map[string]Outcome
	refs     map[string]int // held samples per fingerprint
	game     []pending
	fresh    int
}

func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		panic(fmt.Sprintf("replay buffer capacity must be positive, got %d", capacity))
	}
	return &Buffer{
		capacity: capacity,
		samples:  make([]Sample, 0, min(capacity, 1024)),
		tallies:  make(map[string]Outcome),
		refs:     make(map[string]int),
	}
}

// RecordMove stores a search policy for the current game. The policy is
// floor-clamped and renormalised.
func (b *Buffer) RecordMove(fingerprint string, policy []float64) {
	p := make([]float64, len(policy))
	for i, v := range policy {
		p[i] = max(v, PolicyFloor)
	}
	utils.Normalize(p)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.game = append(b.game, pending{fingerprint: fingerprint, policy: p})
}

// CommitGame turns the current game's moves into samples. winner is None for
// a draw. Fails without committing anything if a recorded fingerprint is
// malformed.
func (b *Buffer) CommitGame(winner game.Player) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	boards := make([]game.Packed, len(b.game))
	for i, move := range b.game {
		p, err := game.ParseFingerprint(move.fingerprint)
		if err != nil {
			return fmt.Errorf("failed to commit game: %w", err)
		}
		boards[i] = p
	}

	for i, move := range b.game {
		tally := b.tallies[move.fingerprint].add(result(boards[i].LastPlayer(), winner))
		b.tallies[move.fingerprint] = tally
		b.push(Sample{
			Fingerprint: move.fingerprint,
			Board:       game.Decode(boards[i]),
			Policy:      move.policy,
			Outcome:     tally,
		})
	}
	b.game = nil
	return nil
}

func result(perspective, winner game.Player) Outcome {
	switch winner {
	case game.None:
		return Outcome{Draws: 1}
	case perspective:
		return Outcome{Wins: 1}
	default:
		return Outcome{Losses: 1}
	}
}

// DiscardGame drops the current game's moves.
func (b *Buffer) DiscardGame() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.game = nil
}

// BeginNewEntries marks the start of a generation; samples committed after
// this call are the newest entries.
func (b *Buffer) BeginNewEntries() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fresh = 0
}

// push appends s, overwriting the oldest sample once the buffer is full. A
// tally is dropped with the last sample that refers to it. Caller holds mu.
func (b *Buffer) push(s Sample) {
	b.refs[s.Fingerprint]++
	if len(b.samples) < b.capacity {
		b.samples = append(b.samples, s)
	} else {
		evicted := b.samples[b.head].Fingerprint
		if b.refs[evicted]--; b.refs[evicted] == 0 {
			delete(b.refs, evicted)
			delete(b.tallies, evicted)
		}
		b.samples[b.head] = s
		b.head = (b.head + 1) % b.capacity
	}
	b.fresh = min(b.fresh+1, len(b.samples))
}

// at returns the i-th held sample, oldest first. Caller holds mu.
func (b *Buffer) at(i int) Sample {
	return b.samples[(b.head+i)%len(b.samples)]
}

// ordered copies the held samples, oldest first. Caller holds mu.
func (b *Buffer) ordered() []Sample {
	out := make([]Sample, 0, len(b.samples))
	out = append(out, b.samples[b.head:]...)
	return append(out, b.samples[:b.head]...)
}

func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.samples)
}

func (b *Buffer) Capacity() int {
	return b.capacity
}

// Fresh is the number of samples committed since BeginNewEntries that are
// still held.
func (b *Buffer) Fresh() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.fresh
}

func (b *Buffer) Outcome(fingerprint string) Outcome {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.tallies[fingerprint]
}

// Snapshot returns a copy of the held samples, oldest first.
func (b *Buffer) Snapshot() []Sample {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ordered()
}

// SampleNewestPlusRandomBackfill returns every entry committed since
// BeginNewEntries, newest first, then backfills up to count with older entries.
// The backfill is drawn without replacement when enough older entries exist and
// with replacement otherwise. The result may exceed count when there are more
// newest entries than count.
func (b *Buffer) SampleNewestPlusRandomBackfill(count int, rng *rand.Rand) []Sample {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.samples) == 0 {
		return nil
	}
	out := make([]Sample, 0, max(count, b.fresh))
	split := len(b.samples) - b.fresh
	for i := len(b.samples) - 1; i >= split; i-- {
		out = append(out, b.at(i))
	}

	need := count - len(out)
	switch {
	case need <= 0:
	case split >= need:
		for _, i := range rng.Perm(split)[:need] {
			out = append(out, b.at(i))
		}
	default:
		// Too few older entries: draw with replacement, from the whole buffer
		// when nothing older exists.
		pool := split
		if pool == 0 {
			pool = len(b.samples)
		}
		for range need {
			out = append(out, b.at(rng.Intn(pool)))
		}
	}
	return out
}

// SampleUniformRandom draws count samples uniformly with replacement.
func (b *Buffer) SampleUniformRandom(count int, rng *rand.Rand) []Sample {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if count <= 0 || len(b.samples) == 0 {
		return nil
	}
	out := make([]Sample, count)
	for i := range out {
		out[i] = b.at(rng.Intn(len(b.samples)))
	}
	return out
}

// MergeFrom appends other's committed samples and adds its tallies. Merged
// samples count as newest entries. other is left unchanged and should not be
// merged twice.
func (b *Buffer) MergeFrom(other *Buffer) {
	if other == b {
		return
	}
	other.mu.RLock()
	samples := other.ordered()
	tallies := make(map[string]Outcome, len(other.tallies))
	for fp, o := range other.tallies {
		tallies[fp] = o
	}
	other.mu.RUnlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	for fp, o := range tallies {
		b.tallies[fp] = b.tallies[fp].add(o)
	}
	for _, s := range samples {
		s.Outcome = b.tallies[s.Fingerprint]
		b.push(s)
	}
}

// Dataset is a training set laid out for the learned functions.
type Dataset struct {
	Inputs   [][]float64
	Policies [][]float64
	Values   [][]float64
}

func (d Dataset) Len() int {
	return len(d.Inputs)
}

// Dataset builds training targets for samples. Value targets use the current
// tally of each position, which may include games committed after the sample.
func (b *Buffer) Dataset(samples []Sample) Dataset {
	b.mu.RLock()
	defer b.mu.RUnlock()

	d := Dataset{
		Inputs:   make([][]float64, len(samples)),
		Policies: make([][]float64, len(samples)),
		Values:   make([][]float64, len(samples)),
	}
	for i, s := range samples {
		outcome, ok := b.tallies[s.Fingerprint]
		if !ok {
			outcome = s.Outcome
		}
		d.Inputs[i] = s.Board
		d.Policies[i] = s.Policy
		d.Values[i] = []float64{outcome.Value()}
	}
	return d
}
