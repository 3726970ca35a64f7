package agent

import (
	"fmt"

	"connect4/game"
	"connect4/meta"
	"connect4/network"

	"github.com/google/uuid"
)

// Agent is a named pair of learned functions plus the exploration factor its
// searches use.
type Agent struct {
	ID          string
	Generation  int
	Lineage     string // ID of the agent this one was trained from
	Exploration float64
	Policy      network.Function
	Value       network.Function
}

func New(exploration float64, policy, value network.Function) *Agent {
	if policy == nil || value == nil {
		panic("agent needs both a policy and a value function")
	}
	return &Agent{
		ID:          uuid.NewString(),
		Exploration: exploration,
		Policy:      policy,
		Value:       value,
	}
}

// Generate creates an untrained agent with the network shapes and optimizer
// settings of cfg. Both networks derive their weights from seed.
func Generate(cfg meta.Config, seed uint64) (*Agent, error) {
	policyCfg := network.PolicyConfig(cfg.NetworkKind, game.EncodedBits, cfg.HiddenSize, game.Columns)
	valueCfg := network.ValueConfig(cfg.NetworkKind, game.EncodedBits, cfg.HiddenSize)
	for i, c := range []*network.Config{&policyCfg, &valueCfg} {
		c.Seed = seed + uint64(i)
		c.CacheSize = cfg.CacheSize
		c.Workers = cfg.GradientWorkers
		c.BatchSize = cfg.BatchSize
		c.LearningRate = cfg.LearningRate
	}
	policy, err := network.New(policyCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create policy: %w", err)
	}
	value, err := network.New(valueCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create value: %w", err)
	}
	return New(cfg.Exploration, policy, value), nil
}

// Derive returns a successor with a fresh identity and cloned functions, ready
// to be trained.
func (a *Agent) Derive() *Agent {
	return &Agent{
		ID:          uuid.NewString(),
		Generation:  a.Generation + 1,
		Lineage:     a.ID,
		Exploration: a.Exploration,
		Policy:      a.Policy.Clone(),
		Value:       a.Value.Clone(),
	}
}

// Clone keeps the identity but gives the copy its own functions, so it can be
// searched from another goroutine.
func (a *Agent) Clone() *Agent {
	c := *a
	c.Policy = a.Policy.Clone()
	c.Value = a.Value.Clone()
	return &c
}

// Trained reports whether both functions are trusted by search.
func (a *Agent) Trained() bool {
	return a.Policy.Trained() && a.Value.Trained()
}

func (a *Agent) String() string {
	id := a.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("gen%d/%s", a.Generation, id)
}
