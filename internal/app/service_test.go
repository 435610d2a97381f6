package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/calmgrid/tictactoe/internal/domain"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.Disabled)
	os.Exit(m.Run())
}

// minimal renderer for tests: encode the number of marks on the board
func testRenderer(snap Snapshot) []byte {
	n := 0
	for _, c := range snap.Board {
		if c != domain.Empty {
			n++
		}
	}
	return []byte(fmt.Sprintf("marks=%d", n))
}

func marks(snap Snapshot) int {
	n := 0
	for _, c := range snap.Board {
		if c != domain.Empty {
			n++
		}
	}
	return n
}

// waitForReply polls until the engine's answer has landed and the turn
// is back with the human.
func waitForReply(t *testing.T, s *Service, id string) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		snap, ok := s.Get(id)
		if !ok {
			t.Fatalf("game %s disappeared", id)
		}
		if !snap.Thinking && snap.HumanTurn {
			return snap
		}
		if snap.Outcome != domain.InProgress && !snap.Thinking {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("engine reply did not arrive; snapshot %+v", snap)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestCreateAndGet(t *testing.T) {
	s := NewServiceWithRenderer(9, testRenderer)
	snap, err := s.Create()
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if snap.ID == "" {
		t.Fatalf("expected non-empty game ID")
	}
	if !snap.HumanTurn || snap.Thinking {
		t.Fatalf("expected human to move first, got %+v", snap)
	}
	if snap.Depth != 9 {
		t.Fatalf("expected default depth 9, got %d", snap.Depth)
	}
	if snap.Created.IsZero() || snap.Updated.IsZero() {
		t.Fatalf("expected timestamps to be set")
	}
	got, ok := s.Get(snap.ID)
	if !ok || got.ID != snap.ID {
		t.Fatalf("Get should find created game")
	}
}

func TestPlayTriggersEngineReply(t *testing.T) {
	s := NewServiceWithRenderer(9, testRenderer)
	snap, _ := s.Create()

	after, err := s.Play(snap.ID, 0)
	if err != nil {
		t.Fatalf("Play error: %v", err)
	}
	if after.Board[0] != domain.X {
		t.Fatalf("expected X at 0, got %v", after.Board[0])
	}
	if after.HumanTurn {
		t.Fatalf("turn must pass to the engine after a human move")
	}

	final := waitForReply(t, s, snap.ID)
	if marks(final) != 2 {
		t.Fatalf("expected exactly one engine reply, board %v", final.Board)
	}
	// full-depth engine answers a corner opening with the center
	if final.Board[4] != domain.O {
		t.Fatalf("expected O in the center, board %v", final.Board)
	}
}

func TestPlayRejectsWhileThinking(t *testing.T) {
	s := NewServiceWithRenderer(9, testRenderer)
	snap, _ := s.Create()

	// freeze the game mid-search without racing a real goroutine
	s.mu.Lock()
	s.games[snap.ID].thinking = true
	s.mu.Unlock()

	if _, err := s.Play(snap.ID, 0); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("expected ErrNotYourTurn, got %v", err)
	}
	if _, err := s.Undo(snap.ID); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("expected ErrNotYourTurn from Undo, got %v", err)
	}
	if _, err := s.Restart(snap.ID); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("expected ErrNotYourTurn from Restart, got %v", err)
	}
}

func TestPlayRejectsFinishedGame(t *testing.T) {
	s := NewServiceWithRenderer(9, testRenderer)
	snap, _ := s.Create()

	// finish the game directly: X takes the top row
	s.mu.Lock()
	gs := s.games[snap.ID]
	for _, idx := range []int{0, 1, 2} {
		if err := gs.board.Apply(idx, domain.X); err != nil {
			s.mu.Unlock()
			t.Fatalf("setup apply failed: %v", err)
		}
	}
	s.mu.Unlock()

	if _, err := s.Play(snap.ID, 5); !errors.Is(err, ErrGameOver) {
		t.Fatalf("expected ErrGameOver, got %v", err)
	}
}

func TestPlayInvalidMoves(t *testing.T) {
	s := NewServiceWithRenderer(9, testRenderer)
	snap, _ := s.Create()

	if _, err := s.Play(snap.ID, -1); !errors.Is(err, domain.ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds, got %v", err)
	}
	if _, err := s.Play(snap.ID, 9); !errors.Is(err, domain.ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds, got %v", err)
	}

	if _, err := s.Play(snap.ID, 0); err != nil {
		t.Fatalf("Play error: %v", err)
	}
	waitForReply(t, s, snap.ID)
	if _, err := s.Play(snap.ID, 0); !errors.Is(err, domain.ErrOccupied) {
		t.Fatalf("expected ErrOccupied, got %v", err)
	}

	if _, err := s.Play("nope", 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUndoFlipsTurn(t *testing.T) {
	s := NewServiceWithRenderer(9, testRenderer)
	snap, _ := s.Create()

	if _, err := s.Undo(snap.ID); !errors.Is(err, domain.ErrNothingToUndo) {
		t.Fatalf("expected ErrNothingToUndo on fresh game, got %v", err)
	}

	if _, err := s.Play(snap.ID, 0); err != nil {
		t.Fatalf("Play error: %v", err)
	}
	waitForReply(t, s, snap.ID)

	// first undo removes the engine's move and hands it the turn
	after, err := s.Undo(snap.ID)
	if err != nil {
		t.Fatalf("Undo error: %v", err)
	}
	if marks(after) != 1 || after.HumanTurn {
		t.Fatalf("expected 1 mark and engine turn, got %+v", after)
	}
	// second undo removes the human move
	after, err = s.Undo(snap.ID)
	if err != nil {
		t.Fatalf("Undo error: %v", err)
	}
	if marks(after) != 0 || !after.HumanTurn {
		t.Fatalf("expected empty board and human turn, got %+v", after)
	}
}

func TestRestart(t *testing.T) {
	s := NewServiceWithRenderer(9, testRenderer)
	snap, _ := s.Create()
	if _, err := s.Play(snap.ID, 0); err != nil {
		t.Fatalf("Play error: %v", err)
	}
	waitForReply(t, s, snap.ID)

	after, err := s.Restart(snap.ID)
	if err != nil {
		t.Fatalf("Restart error: %v", err)
	}
	if marks(after) != 0 || !after.HumanTurn || after.Outcome != domain.InProgress {
		t.Fatalf("expected fresh game, got %+v", after)
	}
}

func TestSetDifficultyClamps(t *testing.T) {
	s := NewServiceWithRenderer(9, testRenderer)
	snap, _ := s.Create()

	after, err := s.SetDifficulty(snap.ID, 42)
	if err != nil {
		t.Fatalf("SetDifficulty error: %v", err)
	}
	if after.Depth != 9 {
		t.Fatalf("expected clamp to 9, got %d", after.Depth)
	}
	after, _ = s.SetDifficulty(snap.ID, 0)
	if after.Depth != 1 {
		t.Fatalf("expected clamp to 1, got %d", after.Depth)
	}
	after, _ = s.SetDifficulty(snap.ID, 3)
	if after.Depth != 3 {
		t.Fatalf("expected depth 3, got %d", after.Depth)
	}
	if _, err := s.SetDifficulty("nope", 3); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSubscribeReceivesBroadcasts(t *testing.T) {
	s := NewServiceWithRenderer(9, testRenderer)
	snap, _ := s.Create()

	if _, err := s.Play(snap.ID, 0); err != nil {
		t.Fatalf("Play error: %v", err)
	}
	waitForReply(t, s, snap.ID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, unsub, err := s.Subscribe(ctx, snap.ID)
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}
	defer unsub()

	// a single broadcast after subscribing: undo the engine's move
	if _, err := s.Undo(snap.ID); err != nil {
		t.Fatalf("Undo error: %v", err)
	}
	select {
	case payload, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed unexpectedly")
		}
		if string(payload) != "marks=1" {
			t.Fatalf("expected marks=1 payload, got %q", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no broadcast received")
	}
}

func TestSubscribeUnknownGame(t *testing.T) {
	s := NewServiceWithRenderer(9, testRenderer)
	_, _, err := s.Subscribe(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
