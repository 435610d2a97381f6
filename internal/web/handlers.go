package web

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/calmgrid/tictactoe/internal/app"
	"github.com/calmgrid/tictactoe/internal/domain"
)

type handlers struct {
	svc *app.Service
	tpl *templates
}

func statusLine(snap app.Snapshot) string {
	switch snap.Outcome {
	case domain.XWins:
		return "You win!"
	case domain.OWins:
		return "The engine wins."
	case domain.Draw:
		return "Draw."
	}
	if snap.Thinking || !snap.HumanTurn {
		return "Engine thinking..."
	}
	return "Your turn (X)"
}

func (h *handlers) renderBoard(snap app.Snapshot, errMsg string) []byte {
	data := boardData{
		ID:     snap.ID,
		Cells:  snap.Board,
		Status: statusLine(snap),
		Depth:  snap.Depth,
		Error:  errMsg,
	}
	return renderTemplate(h.tpl.board, "", data)
}

func (h *handlers) index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(renderTemplate(h.tpl.index, "base", nil))
}

func (h *handlers) create(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Create()
	if err != nil {
		http.Error(w, "failed to create", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/game/"+snap.ID, http.StatusSeeOther)
}

func (h *handlers) view(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, ok := h.svc.Get(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	data := struct {
		ID        string
		BoardHTML template.HTML
	}{ID: snap.ID, BoardHTML: template.HTML(h.renderBoard(snap, ""))}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(renderTemplate(h.tpl.game, "base", data))
}

// errorMessage maps service and board errors to what the board fragment
// shows inline.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, app.ErrNotYourTurn):
		return "Engine is thinking"
	case errors.Is(err, app.ErrGameOver):
		return "Game is over"
	case errors.Is(err, domain.ErrOccupied):
		return "Cell is occupied"
	case errors.Is(err, domain.ErrOutOfBounds):
		return "Out of bounds"
	case errors.Is(err, domain.ErrNothingToUndo):
		return "Nothing to undo"
	default:
		return "Invalid move"
	}
}

func (h *handlers) writeFragment(w http.ResponseWriter, r *http.Request, snap app.Snapshot, err error) {
	if err != nil && errors.Is(err, app.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	var errMsg string
	if err != nil {
		errMsg = errorMessage(err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(h.renderBoard(snap, errMsg))
}

func (h *handlers) play(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	_ = r.ParseForm()
	idx, convErr := strconv.Atoi(r.Form.Get("cell"))
	if convErr != nil {
		idx = -1 // let the board reject it
	}
	snap, err := h.svc.Play(id, idx)
	h.writeFragment(w, r, snap, err)
}

func (h *handlers) undo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, err := h.svc.Undo(id)
	h.writeFragment(w, r, snap, err)
}

func (h *handlers) restart(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, err := h.svc.Restart(id)
	h.writeFragment(w, r, snap, err)
}

func (h *handlers) difficulty(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	_ = r.ParseForm()
	depth, convErr := strconv.Atoi(r.Form.Get("depth"))
	if convErr != nil {
		depth = 9
	}
	snap, err := h.svc.SetDifficulty(id, depth)
	h.writeFragment(w, r, snap, err)
}

var heartbeatInterval = 15 * time.Second

func (h *handlers) events(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	// In tests or non-EventSource requests, just acknowledge headers and return
	if r.Header.Get("Accept") != "text/event-stream" {
		w.WriteHeader(http.StatusOK)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusOK)
		return
	}
	ctx := r.Context()
	ch, unsub, err := h.svc.Subscribe(ctx, id)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer unsub()
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	flusher.Flush()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = io.WriteString(w, ": ping\n\n")
			flusher.Flush()
		case b, ok := <-ch:
			if !ok {
				return
			}
			_, _ = io.WriteString(w, "event: board\n")
			// SSE data must be line-framed; the fragment spans lines
			for _, line := range bytes.Split(b, []byte("\n")) {
				_, _ = fmt.Fprintf(w, "data: %s\n", line)
			}
			_, _ = io.WriteString(w, "\n")
			flusher.Flush()
		}
	}
}
