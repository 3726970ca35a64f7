package metrics

import (
	"sync/atomic"
	"time"
)

type SearchMetric struct {
	Iterations   int
	Guided       bool // learned functions steered the search
	Duration     time.Duration
	Episodes     int
	FullPlayouts int
	IsTreeReused bool
}

type MoveMetric struct {
	Step   int
	Player int
	Column int
	SearchMetric
}

type GameMetric struct {
	StartingPlayer int
	Winner         int // 0 for a draw
	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
	TotalMoves     int
}

type Collector interface {
	Start(iterations int, guided bool)
	SetTreeReused(value bool)
	AddFullPlayout()
	AddEpisode()
	Complete() SearchMetric
}

type collector struct {
	iterations   int
	guided       bool
	startTime    time.Time
	episodes     atomic.Int32
	fullPlayouts atomic.Int32
	isTreeReused atomic.Bool
}

func NewCollector() Collector {
	return &collector{}
}

func (m *collector) SetTreeReused(value bool) {
	m.isTreeReused.Store(value)
}

func (m *collector) Start(iterations int, guided bool) {
	m.startTime = time.Now()
	m.iterations = iterations
	m.guided = guided
	m.episodes.Store(0)
	m.fullPlayouts.Store(0)
}

func (m *collector) AddFullPlayout() {
	m.fullPlayouts.Add(1)
}

func (m *collector) AddEpisode() {
	m.episodes.Add(1)
}

func (m *collector) Complete() SearchMetric {
	return SearchMetric{
		Iterations:   m.iterations,
		Guided:       m.guided,
		Duration:     time.Since(m.startTime),
		Episodes:     int(m.episodes.Load()),
		FullPlayouts: int(m.fullPlayouts.Load()),
		IsTreeReused: m.isTreeReused.Load(),
	}
}

type dummyCollector struct{}

func NewDummyCollector() Collector {
	return &dummyCollector{}
}

func (m *dummyCollector) Start(iterations int, guided bool) {}
func (m *dummyCollector) SetTreeReused(value bool)          {}
func (m *dummyCollector) AddFullPlayout()                   {}
func (m *dummyCollector) AddEpisode()                       {}
func (m *dummyCollector) Complete() SearchMetric            { return SearchMetric{} }
