package engine

import (
	"sort"

	"github.com/calmgrid/tictactoe/internal/domain"
)

var corners = [4]int{0, 2, 6, 8}

// evaluate is the depth-cutoff heuristic: center and corner control plus
// open two-in-a-row lines, computed for the engine's side and flipped to
// the side to move. The weights are tuned values; changing them changes
// how the engine plays at partial depth.
func (e *Engine) evaluate(b *domain.Board, mover domain.Mark) int {
	us := e.player
	them := us.Opponent()
	score := 0
	switch b.At(4) {
	case us:
		score += 3
	case them:
		score -= 3
	}
	for _, c := range corners {
		switch b.At(c) {
		case us:
			score += 2
		case them:
			score -= 2
		}
	}
	for _, ln := range domain.Lines {
		switch b.At(ln[0]) + b.At(ln[1]) + b.At(ln[2]) {
		case 2 * us: // two of ours and an empty: a win next move
			score += 40
		case 2 * them: // opponent threat we must block
			score -= 35
		}
	}
	if mover != us {
		score = -score
	}
	return score
}

// movePriority ranks cells for expansion: center, then corners, then
// edges. Trying strong cells first tightens the alpha-beta window early.
func movePriority(idx int) int {
	switch idx {
	case 4:
		return 100
	case 0, 2, 6, 8:
		return 50
	default:
		return 10
	}
}

// orderedMoves returns the empty cells sorted by descending priority,
// ties kept in ascending index order.
func orderedMoves(b *domain.Board) []int {
	moves := b.EmptyCells()
	sort.SliceStable(moves, func(i, j int) bool {
		return movePriority(moves[i]) > movePriority(moves[j])
	})
	return moves
}
