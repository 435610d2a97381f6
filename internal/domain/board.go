package domain

import "errors"

// Mark is the content of a board cell. Marks are numeric so that line
// sums and the sign-flipping search work on the same representation.
type Mark int8

const (
	Empty Mark = 0
	X     Mark = 1  // human, moves first
	O     Mark = -1 // engine
)

// Opponent returns the other player's mark.
func (m Mark) Opponent() Mark { return -m }

func (m Mark) String() string {
	switch m {
	case X:
		return "X"
	case O:
		return "O"
	default:
		return "empty"
	}
}

// Outcome classifies a board position.
type Outcome int

const (
	InProgress Outcome = iota
	XWins
	OWins
	Draw
)

func (o Outcome) String() string {
	switch o {
	case XWins:
		return "x wins"
	case OWins:
		return "o wins"
	case Draw:
		return "draw"
	default:
		return "in progress"
	}
}

// Errors returned by board operations.
var (
	ErrOutOfBounds   = errors.New("out of bounds")
	ErrOccupied      = errors.New("cell occupied")
	ErrNothingToUndo = errors.New("nothing to undo")
)

// Lines lists the 8 winning triples: rows, columns, diagonals.
var Lines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// Board is a fixed 3x3 grid stored row-major (index = row*3 + col),
// with a history of occupied indices so moves can be taken back in
// strict LIFO order. Apply and Undo are the only mutation paths, which
// is what makes undo exact and tentative search exploration safe.
type Board struct {
	cells   [9]Mark
	history []int
}

// NewBoard returns an empty board.
func NewBoard() *Board { return &Board{} }

// Apply occupies cell idx for mark. The board is unchanged on error.
func (b *Board) Apply(idx int, mark Mark) error {
	if idx < 0 || idx > 8 {
		return ErrOutOfBounds
	}
	if b.cells[idx] != Empty {
		return ErrOccupied
	}
	b.cells[idx] = mark
	b.history = append(b.history, idx)
	return nil
}

// Undo vacates the most recently occupied cell.
func (b *Board) Undo() error {
	if len(b.history) == 0 {
		return ErrNothingToUndo
	}
	last := b.history[len(b.history)-1]
	b.history = b.history[:len(b.history)-1]
	b.cells[last] = Empty
	return nil
}

// At returns the mark at cell idx.
func (b *Board) At(idx int) Mark { return b.cells[idx] }

// Cells returns a copy of the grid.
func (b *Board) Cells() [9]Mark { return b.cells }

// Moves returns the number of moves currently on the board.
func (b *Board) Moves() int { return len(b.history) }

// History returns a copy of the occupied indices, oldest first.
func (b *Board) History() []int {
	return append([]int(nil), b.history...)
}

// EmptyCells returns the currently empty indices in ascending order.
func (b *Board) EmptyCells() []int {
	out := make([]int, 0, 9)
	for i, c := range b.cells {
		if c == Empty {
			out = append(out, i)
		}
	}
	return out
}

// Outcome classifies the current position. Each line is summed: +3
// means three X marks, -3 three O marks. With no decisive line the
// game is a draw once the board is full.
func (b *Board) Outcome() Outcome {
	for _, ln := range Lines {
		switch b.cells[ln[0]] + b.cells[ln[1]] + b.cells[ln[2]] {
		case 3:
			return XWins
		case -3:
			return OWins
		}
	}
	for _, c := range b.cells {
		if c == Empty {
			return InProgress
		}
	}
	return Draw
}

// Reset clears the grid and the history.
func (b *Board) Reset() {
	b.cells = [9]Mark{}
	b.history = b.history[:0]
}

// Clone returns an independent copy of the board and its history.
func (b *Board) Clone() *Board {
	c := &Board{cells: b.cells}
	c.history = append([]int(nil), b.history...)
	return c
}
