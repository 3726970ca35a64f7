package arena

import (
	"fmt"
	"math"
)

// Tally counts evaluation games from one side's point of view.
type Tally struct {
	Wins   int
	Draws  int
	Losses int
}

func (t Tally) Games() int {
	return t.Wins + t.Draws + t.Losses
}

// Rate is the score per game with half credit for draws, or 0 before any game.
func (t Tally) Rate() float64 {
	n := t.Games()
	if n == 0 {
		return 0
	}
	return (float64(t.Wins) + 0.5*float64(t.Draws)) / float64(n)
}

// Reverse is the same games seen from the opponent.
func (t Tally) Reverse() Tally {
	return Tally{Wins: t.Losses, Draws: t.Draws, Losses: t.Wins}
}

func (t Tally) add(other Tally) Tally {
	return Tally{Wins: t.Wins + other.Wins, Draws: t.Draws + other.Draws, Losses: t.Losses + other.Losses}
}

func (t Tally) String() string {
	return fmt.Sprintf("%d/%d/%d", t.Wins, t.Draws, t.Losses)
}

// Evaluation holds the challenger's results for each seat.
type Evaluation struct {
	AsFirst  Tally
	AsSecond Tally
}

func (e Evaluation) Best() float64 {
	return max(e.AsFirst.Rate(), e.AsSecond.Rate())
}

func (e Evaluation) Worst() float64 {
	return min(e.AsFirst.Rate(), e.AsSecond.Rate())
}

// TeacherWorst is the opponent's lower rate over the two seats.
func (e Evaluation) TeacherWorst() float64 {
	return min(e.AsFirst.Reverse().Rate(), e.AsSecond.Reverse().Rate())
}

type Thresholds struct {
	DeepLearning float64 // the best seat must score above this
	Floor        float64 // the worst seat must score above this
	Z            float64 // normal quantile for the confidence margin
}

type Decision struct {
	Promote         bool
	ChallengerBest  float64
	ChallengerWorst float64
	TeacherWorst    float64
	Margin          float64
}

// Decide accepts the challenger when its better seat clears the deep learning
// threshold, its worse seat beats teacherWorst by a confidence margin, and its
// worse seat clears the floor. The margin is z*sqrt(p(1-p)/n) with p the
// teacher's worst rate and n the games played in the smaller seat.
func Decide(e Evaluation, teacherWorst float64, th Thresholds) Decision {
	d := Decision{
		ChallengerBest:  e.Best(),
		ChallengerWorst: e.Worst(),
		TeacherWorst:    teacherWorst,
		Margin:          math.Inf(1),
	}
	n := min(e.AsFirst.Games(), e.AsSecond.Games())
	if n == 0 {
		return d
	}
	p := teacherWorst
	d.Margin = th.Z * math.Sqrt(p*(1-p)/float64(n))
	d.Promote = d.ChallengerBest > th.DeepLearning &&
		d.ChallengerWorst-d.Margin > teacherWorst &&
		d.ChallengerWorst > th.Floor
	return d
}
