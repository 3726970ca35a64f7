package searcher

import "math"

// ucb1 scores children with q/n + c*sqrt(ln(N)/n), where N is the parent's visits.
type ucb1 struct {
	c    float64
	logN float64
}

func newUCB1(c float64, N int) ucb1 {
	if N == 0 {
		panic("N cannot be 0")
	}
	return ucb1{c: c, logN: math.Log(float64(N))}
}

func (u ucb1) evaluate(q float64, n int) float64 {
	// Prioritize unexplored nodes
	if n == 0 {
		return math.Inf(1)
	}
	return q/float64(n) + u.c*math.Sqrt(u.logN/float64(n))
}

// puct scores children with q/n + c*P*sqrt(N/(1+n)), using the learned prior P.
type puct struct {
	c float64
	N float64
}

func newPUCT(c float64, N int) puct {
	return puct{c: c, N: float64(N)}
}

func (p puct) evaluate(q float64, n int, prior float64) float64 {
	mean := 0.0
	if n > 0 {
		mean = q / float64(n)
	}
	return mean + p.c*prior*math.Sqrt(p.N/(1+float64(n)))
}
