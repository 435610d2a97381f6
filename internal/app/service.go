package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/calmgrid/tictactoe/internal/domain"
	"github.com/calmgrid/tictactoe/internal/engine"
)

// Errors exposed by the service layer.
var (
	ErrNotFound    = errors.New("game not found")
	ErrNotYourTurn = errors.New("not your turn")
	ErrGameOver    = errors.New("game over")
)

// Snapshot is the immutable view of a game handed to renderers and
// returned to callers. The live board never leaves the service.
type Snapshot struct {
	ID        string
	Board     [9]domain.Mark
	Outcome   domain.Outcome
	HumanTurn bool
	Thinking  bool
	Depth     int
	Created   time.Time
	Updated   time.Time
}

// gameState is the in-memory state tracked per game. The board and the
// engine are only ever touched with the service mutex held, so a search
// owns the board exclusively for its whole duration.
type gameState struct {
	id        string
	board     *domain.Board
	ai        *engine.Engine
	humanTurn bool
	thinking  bool
	created   time.Time
	updated   time.Time
}

func (g *gameState) snapshot() Snapshot {
	return Snapshot{
		ID:        g.id,
		Board:     g.board.Cells(),
		Outcome:   g.board.Outcome(),
		HumanTurn: g.humanTurn,
		Thinking:  g.thinking,
		Depth:     g.ai.MaxDepth(),
		Created:   g.created,
		Updated:   g.updated,
	}
}

type subscriber struct {
	ch        chan []byte
	closeOnce sync.Once
}

func (s *subscriber) close() { s.closeOnce.Do(func() { close(s.ch) }) }

// Service manages games and subscribers. The human plays X and always
// moves first; the engine replies as O on a background goroutine and
// the result is pushed to subscribers when it lands.
type Service struct {
	mu           sync.Mutex
	games        map[string]*gameState
	subs         map[string]map[*subscriber]struct{}
	render       func(Snapshot) []byte
	defaultDepth int
}

// NewService creates a service whose games start at the given engine
// depth (clamped to [1, 9] per game).
func NewService(defaultDepth int) *Service {
	return NewServiceWithRenderer(defaultDepth, func(Snapshot) []byte { return nil })
}

// NewServiceWithRenderer allows injecting a renderer for broadcast payloads.
func NewServiceWithRenderer(defaultDepth int, renderer func(Snapshot) []byte) *Service {
	if renderer == nil {
		renderer = func(Snapshot) []byte { return nil }
	}
	return &Service{
		games:        make(map[string]*gameState),
		subs:         make(map[string]map[*subscriber]struct{}),
		render:       renderer,
		defaultDepth: defaultDepth,
	}
}

// SetRenderer replaces the broadcast renderer function.
func (s *Service) SetRenderer(renderer func(Snapshot) []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if renderer == nil {
		s.render = func(Snapshot) []byte { return nil }
		return
	}
	s.render = renderer
}

// Create creates and registers a new game with the human to move.
func (s *Service) Create() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	now := time.Now()
	ai := engine.New(domain.O)
	ai.SetMaxDepth(s.defaultDepth)
	gs := &gameState{
		id:        id,
		board:     domain.NewBoard(),
		ai:        ai,
		humanTurn: true,
		created:   now,
		updated:   now,
	}
	s.games[id] = gs
	log.Debug().Str("game", id).Int("depth", ai.MaxDepth()).Msg("game created")
	return gs.snapshot(), nil
}

// Get returns a snapshot of the game if present.
func (s *Service) Get(id string) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gs, ok := s.games[id]
	if !ok {
		return Snapshot{}, false
	}
	return gs.snapshot(), true
}

// Play applies the human move at cell idx. On success the move is
// broadcast immediately and, if the game is still open, the engine's
// reply is computed in the background and broadcast when applied; the
// turn indicator blocks further human input until then.
func (s *Service) Play(id string, idx int) (Snapshot, error) {
	s.mu.Lock()
	gs, ok := s.games[id]
	if !ok {
		s.mu.Unlock()
		return Snapshot{}, ErrNotFound
	}
	if gs.board.Outcome() != domain.InProgress {
		snap := gs.snapshot()
		s.mu.Unlock()
		return snap, ErrGameOver
	}
	if !gs.humanTurn || gs.thinking {
		snap := gs.snapshot()
		s.mu.Unlock()
		return snap, ErrNotYourTurn
	}
	if err := gs.board.Apply(idx, domain.X); err != nil {
		snap := gs.snapshot()
		s.mu.Unlock()
		return snap, err
	}
	gs.humanTurn = false
	gs.updated = time.Now()
	if gs.board.Outcome() == domain.InProgress {
		gs.thinking = true
		go s.engineReply(gs)
	}
	snap := gs.snapshot()
	s.mu.Unlock()
	s.broadcast(id, snap)
	return snap, nil
}

// engineReply runs the search and applies the chosen move. It is only
// scheduled for games that are still in progress.
func (s *Service) engineReply(gs *gameState) {
	s.mu.Lock()
	move, err := gs.ai.ChooseMove(gs.board)
	if err != nil {
		gs.thinking = false
		s.mu.Unlock()
		log.Error().Err(err).Str("game", gs.id).Msg("engine had no move")
		return
	}
	if err := gs.board.Apply(move, domain.O); err != nil {
		gs.thinking = false
		s.mu.Unlock()
		log.Error().Err(err).Str("game", gs.id).Int("move", move).Msg("engine move rejected")
		return
	}
	gs.thinking = false
	gs.humanTurn = true
	gs.updated = time.Now()
	snap := gs.snapshot()
	s.mu.Unlock()
	s.broadcast(gs.id, snap)
}

// Undo takes back one ply and flips the turn indicator, so taking back
// a full human+engine exchange is two calls. Rejected mid-search.
func (s *Service) Undo(id string) (Snapshot, error) {
	s.mu.Lock()
	gs, ok := s.games[id]
	if !ok {
		s.mu.Unlock()
		return Snapshot{}, ErrNotFound
	}
	if gs.thinking {
		snap := gs.snapshot()
		s.mu.Unlock()
		return snap, ErrNotYourTurn
	}
	if err := gs.board.Undo(); err != nil {
		snap := gs.snapshot()
		s.mu.Unlock()
		return snap, err
	}
	gs.humanTurn = !gs.humanTurn
	gs.updated = time.Now()
	snap := gs.snapshot()
	s.mu.Unlock()
	s.broadcast(id, snap)
	return snap, nil
}

// Restart clears the board with the human to move again.
func (s *Service) Restart(id string) (Snapshot, error) {
	s.mu.Lock()
	gs, ok := s.games[id]
	if !ok {
		s.mu.Unlock()
		return Snapshot{}, ErrNotFound
	}
	if gs.thinking {
		snap := gs.snapshot()
		s.mu.Unlock()
		return snap, ErrNotYourTurn
	}
	gs.board.Reset()
	gs.humanTurn = true
	gs.updated = time.Now()
	snap := gs.snapshot()
	s.mu.Unlock()
	s.broadcast(id, snap)
	return snap, nil
}

// SetDifficulty sets the game's engine search depth, clamped to [1, 9].
func (s *Service) SetDifficulty(id string, depth int) (Snapshot, error) {
	s.mu.Lock()
	gs, ok := s.games[id]
	if !ok {
		s.mu.Unlock()
		return Snapshot{}, ErrNotFound
	}
	gs.ai.SetMaxDepth(depth)
	gs.updated = time.Now()
	snap := gs.snapshot()
	s.mu.Unlock()
	s.broadcast(id, snap)
	return snap, nil
}

// Subscribe registers a subscriber for a game. Returns a channel of
// rendered payloads and an unsubscribe func.
func (s *Service) Subscribe(ctx context.Context, id string) (<-chan []byte, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[id]; !ok {
		return nil, nil, ErrNotFound
	}
	set := s.subs[id]
	if set == nil {
		set = make(map[*subscriber]struct{})
		s.subs[id] = set
	}
	sub := &subscriber{ch: make(chan []byte, 1)}
	set[sub] = struct{}{}

	unsubOnce := &sync.Once{}
	unsub := func() {
		unsubOnce.Do(func() {
			s.mu.Lock()
			if set, ok := s.subs[id]; ok {
				delete(set, sub)
			}
			s.mu.Unlock()
			sub.close()
		})
	}
	go func() {
		<-ctx.Done()
		unsub()
	}()
	return sub.ch, unsub, nil
}

// broadcast renders a snapshot and fans it out to the game's
// subscribers. Slow subscribers are closed and dropped.
func (s *Service) broadcast(id string, snap Snapshot) {
	s.mu.Lock()
	subs := s.copySubsLocked(id)
	payload := s.render(snap)
	s.mu.Unlock()

	var toDrop []*subscriber
	for sub := range subs {
		select {
		case sub.ch <- payload:
		default:
			// drop slow subscriber
			sub.close()
			toDrop = append(toDrop, sub)
		}
	}
	if len(toDrop) > 0 {
		s.mu.Lock()
		for _, sub := range toDrop {
			if set, ok := s.subs[id]; ok {
				delete(set, sub)
			}
		}
		s.mu.Unlock()
	}
}

func (s *Service) copySubsLocked(id string) map[*subscriber]struct{} {
	out := make(map[*subscriber]struct{})
	if set, ok := s.subs[id]; ok {
		for k := range set {
			out[k] = struct{}{}
		}
	}
	return out
}
