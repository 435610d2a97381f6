// Package engine picks moves for the computer player using depth-limited
// negamax search with alpha-beta pruning, static move ordering and a
// heuristic evaluation at the depth cutoff.
package engine

import (
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/calmgrid/tictactoe/internal/domain"
)

const (
	// winScore is the base score of a decided position; the remaining
	// search depth is added on top so that nearer wins (and farther
	// losses) score better.
	winScore = 1000

	// infinity bounds the alpha-beta window. Any value comfortably
	// above winScore+maxSearchDepth works.
	infinity = 1 << 20

	minSearchDepth = 1
	maxSearchDepth = 9
)

// ErrNoLegalMove is returned when ChooseMove is called on a full board.
var ErrNoLegalMove = errors.New("no legal move")

// Engine chooses moves for one side. It keeps no state between searches
// beyond the configured depth, but a search mutates the board it is
// given, so an Engine must own the board for the whole call.
type Engine struct {
	player   domain.Mark
	maxDepth int
}

// New returns an engine playing the given mark at full search depth.
func New(player domain.Mark) *Engine {
	return &Engine{player: player, maxDepth: maxSearchDepth}
}

// Player returns the mark the engine plays.
func (e *Engine) Player() domain.Mark { return e.player }

// MaxDepth returns the configured search depth.
func (e *Engine) MaxDepth() int { return e.maxDepth }

// SetMaxDepth sets the search depth, clamped to [1, 9]. At depth 9 the
// search always reaches true terminal states and never loses; lower
// depths fall back to the heuristic sooner.
func (e *Engine) SetMaxDepth(d int) {
	if d < minSearchDepth {
		d = minSearchDepth
	}
	if d > maxSearchDepth {
		d = maxSearchDepth
	}
	e.maxDepth = d
}

type searchStats struct {
	nodes   int
	cutoffs int
}

// ChooseMove returns the index of the best cell for the engine's side.
// The board is explored through tentative apply/undo pairs and restored
// to its input state before ChooseMove returns. The first move reaching
// the maximum score in ordering priority wins ties.
func (e *Engine) ChooseMove(b *domain.Board) (int, error) {
	moves := orderedMoves(b)
	if len(moves) == 0 {
		return 0, ErrNoLegalMove
	}
	start := time.Now()
	stats := &searchStats{}
	alpha, beta := -infinity, infinity
	best := -infinity
	bestMove := moves[0]
	for _, idx := range moves {
		_ = b.Apply(idx, e.player)
		score := -e.negamax(b, e.maxDepth-1, -beta, -alpha, e.player.Opponent(), stats)
		_ = b.Undo()
		if score > best {
			best = score
			bestMove = idx
		}
		if score > alpha {
			alpha = score
		}
	}
	log.Debug().
		Int("move", bestMove).
		Int("score", best).
		Int("depth", e.maxDepth).
		Int("nodes", stats.nodes).
		Int("cutoffs", stats.cutoffs).
		Dur("elapsed", time.Since(start)).
		Msg("search done")
	return bestMove, nil
}

// negamax scores the position from the perspective of the side to move,
// fail-soft within the [alpha, beta] window. A decided position always
// belongs to the side that just moved, so it scores against the mover.
// Every tentative move is undone before the next sibling is tried,
// including on a cutoff, so the board is never left inconsistent.
func (e *Engine) negamax(b *domain.Board, depth, alpha, beta int, mover domain.Mark, stats *searchStats) int {
	stats.nodes++
	switch b.Outcome() {
	case domain.XWins, domain.OWins:
		return -(winScore + depth)
	case domain.Draw:
		return 0
	}
	if depth == 0 {
		return e.evaluate(b, mover)
	}
	best := -infinity
	for _, idx := range orderedMoves(b) {
		_ = b.Apply(idx, mover)
		v := -e.negamax(b, depth-1, -beta, -alpha, mover.Opponent(), stats)
		_ = b.Undo()
		if v > best {
			best = v
		}
		if v > alpha {
			alpha = v
		}
		if alpha >= beta {
			stats.cutoffs++
			break
		}
	}
	return best
}
