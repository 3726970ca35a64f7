package utils

import (
	"math"

	"golang.org/x/exp/constraints"
)

func FindIndex[T comparable](slice []T, item T) int {
	for i, v := range slice {
		if v == item {
			return i
		}
	}
	return -1
}

func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Argmax returns the index of the first largest value, or -1 for an empty slice.
func Argmax(values []float64) int {
	best := -1
	for i, v := range values {
		if best < 0 || v > values[best] {
			best = i
		}
	}
	return best
}

func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Normalize scales values in place to sum to one. A zero or non-finite sum
// yields the uniform distribution.
func Normalize(values []float64) {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	if sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		for i := range values {
			values[i] = 1 / float64(len(values))
		}
		return
	}
	for i := range values {
		values[i] /= sum
	}
}

// Softmax overwrites values with their max-shifted softmax.
func Softmax(values []float64) {
	if len(values) == 0 {
		return
	}
	peak := values[0]
	for _, v := range values[1:] {
		if v > peak {
			peak = v
		}
	}
	for i, v := range values {
		values[i] = math.Exp(v - peak)
	}
	Normalize(values)
}
