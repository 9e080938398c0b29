package broadcast

import (
	"sync"

	"github.com/b00ls0ck3t/Polyglot/internal/models"
)

// History keeps the most recent translated turns for late joiners to
// fetch over the pull endpoint. The push stream never replays.
type History struct {
	mu  sync.Mutex
	buf []models.TranslatedTurn
	max int
}

// NewHistory creates a ring holding at most max turns.
func NewHistory(max int) *History {
	if max < 1 {
		max = 1
	}
	return &History{max: max}
}

// Add appends a turn, evicting the oldest past capacity.
func (h *History) Add(turn models.TranslatedTurn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.buf = append(h.buf, turn)
	if len(h.buf) > h.max {
		h.buf = h.buf[len(h.buf)-h.max:]
	}
}

// Clear drops every retained turn.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf = nil
}

// Snapshot returns the retained turns, oldest first.
func (h *History) Snapshot() []models.TranslatedTurn {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]models.TranslatedTurn, len(h.buf))
	copy(out, h.buf)
	return out
}
