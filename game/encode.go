package game

import (
	"errors"
	"fmt"
	"strconv"
)

// Each cell is three one-hot bits [empty, first, second]; one extra bit is set
// when First made the last move.
const (
	EncodedBits  = 3*Cells + 1
	lastMoverBit = 3 * Cells
)

var (
	ErrMalformedFingerprint = errors.New("malformed fingerprint")
	ErrEncodedLength        = errors.New("encoded board has wrong length")
	ErrEncodedValue         = errors.New("encoded board is not a valid 0/1 vector")
)

// Packed holds the 127 encoded bits, low word first.
type Packed [2]uint64

func (p Packed) bit(i int) bool {
	return p[i/64]>>(uint(i)%64)&1 == 1
}

func (p *Packed) set(i int) {
	p[i/64] |= 1 << (uint(i) % 64)
}

// String is the fingerprint: the high word then the low word as 32 hex digits.
func (p Packed) String() string {
	return fmt.Sprintf("%016x%016x", p[1], p[0])
}

// LastPlayer reads the last-mover bit. An empty board reports Second, the side
// that notionally moved before First.
func (p Packed) LastPlayer() Player {
	if p.bit(lastMoverBit) {
		return First
	}
	return Second
}

// Cell returns the occupant of cell i. Call Validate first on untrusted input.
func (p Packed) Cell(i int) Player {
	for k := 0; k < 3; k++ {
		if p.bit(3*i + k) {
			return Player(k)
		}
	}
	return None
}

func (p Packed) Validate() error {
	if p[1]>>(EncodedBits-64) != 0 {
		return fmt.Errorf("%w: bits set above %d", ErrMalformedFingerprint, EncodedBits)
	}
	for i := 0; i < Cells; i++ {
		set := 0
		for k := 0; k < 3; k++ {
			if p.bit(3*i + k) {
				set++
			}
		}
		if set != 1 {
			return fmt.Errorf("%w: cell %d has %d bits set", ErrMalformedFingerprint, i, set)
		}
	}
	return nil
}

// Decode expands the packed bits into the network input vector.
func Decode(p Packed) []float64 {
	v := make([]float64, EncodedBits)
	for i := range v {
		if p.bit(i) {
			v[i] = 1
		}
	}
	return v
}

// Encode packs a 0/1 input vector. Every value must be exactly 0 or 1 and
// every cell must have exactly one bit set.
func Encode(v []float64) (Packed, error) {
	var p Packed
	if len(v) != EncodedBits {
		return p, fmt.Errorf("%w: got %d, want %d", ErrEncodedLength, len(v), EncodedBits)
	}
	for i, x := range v {
		switch x {
		case 0:
		case 1:
			p.set(i)
		default:
			return Packed{}, fmt.Errorf("%w: bit %d is %v", ErrEncodedValue, i, x)
		}
	}
	if err := p.Validate(); err != nil {
		return Packed{}, fmt.Errorf("%w: %w", ErrEncodedValue, err)
	}
	return p, nil
}

func ParseFingerprint(s string) (Packed, error) {
	var p Packed
	if len(s) != 32 {
		return p, fmt.Errorf("%w: length %d", ErrMalformedFingerprint, len(s))
	}
	hi, err := strconv.ParseUint(s[:16], 16, 64)
	if err != nil {
		return p, fmt.Errorf("%w: %v", ErrMalformedFingerprint, err)
	}
	lo, err := strconv.ParseUint(s[16:], 16, 64)
	if err != nil {
		return p, fmt.Errorf("%w: %v", ErrMalformedFingerprint, err)
	}
	p = Packed{lo, hi}
	if err := p.Validate(); err != nil {
		return Packed{}, err
	}
	return p, nil
}

// DecodeFingerprint parses a fingerprint straight into a network input vector.
func DecodeFingerprint(s string) ([]float64, error) {
	p, err := ParseFingerprint(s)
	if err != nil {
		return nil, err
	}
	return Decode(p), nil
}
