package arena

import (
	"fmt"

	"connect4/agent"
)

// Pool holds champions in the order they were admitted. When full, admitting
// another evicts the oldest.
type Pool struct {
	capacity int
	agents   []*agent.Agent
}

func NewPool(capacity int) *Pool {
	if capacity <= 0 {
		panic(fmt.Sprintf("pool capacity must be positive, got %d", capacity))
	}
	return &Pool{capacity: capacity}
}

// Add admits a as the newest member and returns the evicted member, if any.
func (p *Pool) Add(a *agent.Agent) *agent.Agent {
	p.agents = append(p.agents, a)
	if len(p.agents) <= p.capacity {
		return nil
	}
	evicted := p.agents[0]
	p.agents = append(p.agents[:0:0], p.agents[1:]...)
	return evicted
}

func (p *Pool) Len() int {
	return len(p.agents)
}

func (p *Pool) Capacity() int {
	return p.capacity
}

// At returns the i-th member, oldest first.
func (p *Pool) At(i int) *agent.Agent {
	return p.agents[i]
}

func (p *Pool) Newest() *agent.Agent {
	if len(p.agents) == 0 {
		return nil
	}
	return p.agents[len(p.agents)-1]
}

// Agents returns the members, oldest first.
func (p *Pool) Agents() []*agent.Agent {
	return append([]*agent.Agent(nil), p.agents...)
}
