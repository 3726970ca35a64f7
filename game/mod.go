package game

// Player identifies a side. None marks empty cells and drawn games.
type Player int8

const (
	None Player = iota
	First
	Second
)

// Opponent returns the other side. None has no opponent.
func (p Player) Opponent() Player {
	switch p {
	case First:
		return Second
	case Second:
		return First
	default:
		return None
	}
}

func (p Player) String() string {
	switch p {
	case First:
		return "first"
	case Second:
		return "second"
	default:
		return "none"
	}
}

// State is everything the searcher needs from a game position.
// Copy must return a state that can be mutated without affecting the receiver.
type State interface {
	// Place drops a piece for player into column. Returns false if the column is
	// out of range or full.
	Place(column int, player Player) bool
	HasWon(player Player) bool
	LegalColumns() []int
	Copy() State
	Fingerprint() string
}
