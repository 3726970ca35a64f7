package utils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFindIndex(t *testing.T) {
	require.Equal(t, 2, FindIndex([]int{4, 5, 6}, 6))
	require.Equal(t, -1, FindIndex([]int{4, 5, 6}, 7))
}

func TestArgmax(t *testing.T) {
	t.Run("first of equal maxima wins", func(t *testing.T) {
		require.Equal(t, 1, Argmax([]float64{0.1, 0.5, 0.5}))
	})

	t.Run("empty", func(t *testing.T) {
		require.Equal(t, -1, Argmax(nil))
	})
}

func TestSoftmax(t *testing.T) {
	t.Run("sums to one with large logits", func(t *testing.T) {
		v := []float64{1000, 1001, 999}
		Softmax(v)
		require.InDelta(t, 1.0, v[0]+v[1]+v[2], 1e-12)
		require.Greater(t, v[1], v[0])
	})

	t.Run("non-finite input falls back to uniform", func(t *testing.T) {
		v := []float64{math.NaN(), 1, 2}
		Softmax(v)
		for _, x := range v {
			require.InDelta(t, 1.0/3, x, 1e-12)
		}
	})
}

func TestClamp(t *testing.T) {
	require.Equal(t, 1.0, Clamp(3.0, -1.0, 1.0))
	require.Equal(t, -1, Clamp(-5, -1, 1))
	require.Equal(t, 0.5, Clamp(0.5, 0.0, 1.0))
}
