package game

import (
	"fmt"
	"strings"
)

const (
	Columns       = 7
	Rows          = 6
	Cells         = Columns * Rows
	ConnectLength = 4
)

// Board is a 7x6 gravity grid. Row 0 is the bottom row.
type Board struct {
	cells   [Cells]Player
	heights [Columns]int
	last    Player
	moves   int
}

func NewBoard() *Board {
	return &Board{}
}

func (b *Board) Place(column int, player Player) bool {
	if column < 0 || column >= Columns || player == None {
		return false
	}
	row := b.heights[column]
	if row >= Rows {
		return false
	}
	b.cells[row*Columns+column] = player
	b.heights[column]++
	b.last = player
	b.moves++
	return true
}

func (b *Board) At(row, column int) Player {
	if row < 0 || row >= Rows || column < 0 || column >= Columns {
		return None
	}
	return b.cells[row*Columns+column]
}

func (b *Board) LegalColumns() []int {
	columns := make([]int, 0, Columns)
	for c := 0; c < Columns; c++ {
		if b.heights[c] < Rows {
			columns = append(columns, c)
		}
	}
	return columns
}

func (b *Board) Full() bool {
	return b.moves == Cells
}

// LastPlayer is the side that placed the most recent piece, None on an empty board.
func (b *Board) LastPlayer() Player {
	return b.last
}

func (b *Board) Moves() int {
	return b.moves
}

var directions = [4][2]int{{0, 1}, {1, 0}, {1, 1}, {1, -1}}

func (b *Board) HasWon(player Player) bool {
	if player == None || b.moves < 2*ConnectLength-1 {
		return false
	}
	for row := 0; row < Rows; row++ {
		for col := 0; col < Columns; col++ {
			if b.cells[row*Columns+col] != player {
				continue
			}
			for _, d := range directions {
				if b.run(row, col, d[0], d[1], player) >= ConnectLength {
					return true
				}
			}
		}
	}
	return false
}

func (b *Board) run(row, col, dr, dc int, player Player) int {
	n := 0
	for n < ConnectLength && b.At(row+n*dr, col+n*dc) == player {
		n++
	}
	return n
}

func (b *Board) Copy() State {
	c := *b
	return &c
}

func (b *Board) Pack() Packed {
	var p Packed
	for i, cell := range b.cells {
		p.set(3*i + int(cell))
	}
	if b.last == First {
		p.set(lastMoverBit)
	}
	return p
}

func (b *Board) Fingerprint() string {
	return b.Pack().String()
}

// FromPacked rebuilds a board from its packed form. Pieces must rest on
// the bottom row or on another piece.
func FromPacked(p Packed) (*Board, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	b := &Board{}
	counts := [3]int{}
	for i := 0; i < Cells; i++ {
		cell := p.Cell(i)
		b.cells[i] = cell
		counts[cell]++
	}
	for col := 0; col < Columns; col++ {
		for row := 0; row < Rows; row++ {
			if b.cells[row*Columns+col] == None {
				break
			}
			b.heights[col]++
		}
		for row := b.heights[col]; row < Rows; row++ {
			if b.cells[row*Columns+col] != None {
				return nil, fmt.Errorf("%w: floating piece in column %d", ErrMalformedFingerprint, col)
			}
		}
	}
	b.moves = counts[First] + counts[Second]
	if b.moves > 0 {
		b.last = p.LastPlayer()
	}
	return b, nil
}

// String renders the board top row first, using X for First and O for Second.
func (b *Board) String() string {
	var sb strings.Builder
	for row := Rows - 1; row >= 0; row-- {
		for col := 0; col < Columns; col++ {
			switch b.At(row, col) {
			case First:
				sb.WriteByte('X')
			case Second:
				sb.WriteByte('O')
			default:
				sb.WriteByte('.')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
