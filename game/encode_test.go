package game

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPack(t *testing.T) {
	t.Run("empty board", func(t *testing.T) {
		p := NewBoard().Pack()
		require.NoError(t, p.Validate())
		for i := 0; i < Cells; i++ {
			require.Equal(t, None, p.Cell(i))
		}
		require.Equal(t, Second, p.LastPlayer(), "Should report Second before the first move")
		require.Len(t, NewBoard().Fingerprint(), 32)
	})

	t.Run("last mover bit", func(t *testing.T) {
		b := play(t, 3)
		require.Equal(t, First, b.Pack().LastPlayer())
		b.Place(2, Second)
		require.Equal(t, Second, b.Pack().LastPlayer())
	})

	t.Run("same cells different last mover have different fingerprints", func(t *testing.T) {
		a := NewBoard()
		a.Place(0, First)
		a.Place(1, Second)
		b := NewBoard()
		b.Place(1, Second)
		b.Place(0, First)
		require.NotEqual(t, a.Fingerprint(), b.Fingerprint())
	})
}

func TestEncodeRoundTrip(t *testing.T) {
	t.Run("decode then encode restores the packed bits", func(t *testing.T) {
		b := play(t, 3, 3, 4, 2, 6, 0, 0, 1)
		p := b.Pack()
		v := Decode(p)
		require.Len(t, v, EncodedBits)
		q, err := Encode(v)
		require.NoError(t, err)
		require.Equal(t, p, q)
	})

	t.Run("fingerprint parses back to the board", func(t *testing.T) {
		b := play(t, 3, 3, 4, 2, 6, 0, 0, 1)
		p, err := ParseFingerprint(b.Fingerprint())
		require.NoError(t, err)
		c, err := FromPacked(p)
		require.NoError(t, err)
		require.Equal(t, b.String(), c.String())
		require.Equal(t, b.LastPlayer(), c.LastPlayer())
		require.Equal(t, b.Moves(), c.Moves())
		require.Equal(t, b.LegalColumns(), c.LegalColumns())
	})

	t.Run("one-hot triples sum to one", func(t *testing.T) {
		v := Decode(play(t, 1, 2, 3).Pack())
		for i := 0; i < Cells; i++ {
			require.Equal(t, 1.0, v[3*i]+v[3*i+1]+v[3*i+2], "Should set exactly one bit for cell %d", i)
		}
	})
}

func TestParseFingerprint(t *testing.T) {
	t.Run("rejects wrong length", func(t *testing.T) {
		_, err := ParseFingerprint("abc")
		require.ErrorIs(t, err, ErrMalformedFingerprint)
	})

	t.Run("rejects non-hex", func(t *testing.T) {
		_, err := ParseFingerprint("zz" + NewBoard().Fingerprint()[2:])
		require.ErrorIs(t, err, ErrMalformedFingerprint)
	})

	t.Run("rejects cells without exactly one bit", func(t *testing.T) {
		_, err := ParseFingerprint("00000000000000000000000000000000")
		require.ErrorIs(t, err, ErrMalformedFingerprint)
	})

	t.Run("rejects wrong vector length", func(t *testing.T) {
		_, err := Encode(make([]float64, 10))
		require.ErrorIs(t, err, ErrEncodedLength)
	})
}

func TestEncode(t *testing.T) {
	t.Run("rejects values other than zero and one", func(t *testing.T) {
		for _, x := range []float64{0.7, -3, math.NaN(), 2} {
			v := Decode(NewBoard().Pack())
			v[0] = x
			_, err := Encode(v)
			require.ErrorIs(t, err, ErrEncodedValue, "Should reject %v", x)
		}
	})

	t.Run("rejects a cell with two bits", func(t *testing.T) {
		v := Decode(NewBoard().Pack())
		v[1] = 1
		_, err := Encode(v)
		require.ErrorIs(t, err, ErrEncodedValue)
		require.ErrorIs(t, err, ErrMalformedFingerprint)
	})

	t.Run("rejects all zeros", func(t *testing.T) {
		_, err := Encode(make([]float64, EncodedBits))
		require.ErrorIs(t, err, ErrEncodedValue)
	})
}
