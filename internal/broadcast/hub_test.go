package broadcast

import (
	"fmt"
	"testing"

	"github.com/b00ls0ck3t/Polyglot/internal/models"
)

func envelope(id string) models.Envelope {
	return models.Envelope{
		Type: models.EventTranslation,
		Translation: &models.TranslatedTurn{
			Turn: models.BufferedTurn{ID: id, Text: "ahoj"},
		},
	}
}

func TestHub_PublishReachesAllSubscribers(t *testing.T) {
	h := NewHub()
	a := h.Subscribe()
	b := h.Subscribe()
	defer h.Unsubscribe(a)
	defer h.Unsubscribe(b)

	h.Publish(envelope("turn-0"))

	for _, s := range []*Subscriber{a, b} {
		select {
		case env := <-s.Events():
			if env.Translation.Turn.ID != "turn-0" {
				t.Errorf("unexpected envelope for %s: %+v", s.ID(), env)
			}
		default:
			t.Errorf("subscriber %s received nothing", s.ID())
		}
	}
}

func TestHub_NoReplayForLateJoiners(t *testing.T) {
	h := NewHub()
	h.Publish(envelope("before"))

	s := h.Subscribe()
	defer h.Unsubscribe(s)

	select {
	case env := <-s.Events():
		t.Errorf("late joiner must not see earlier events, got %+v", env)
	default:
	}

	h.Publish(envelope("after"))
	select {
	case env := <-s.Events():
		if env.Translation.Turn.ID != "after" {
			t.Errorf("unexpected envelope: %+v", env)
		}
	default:
		t.Error("expected event published after subscribe")
	}
}

func TestHub_SlowSubscriberDoesNotBlockOthers(t *testing.T) {
	h := NewHub()
	slow := h.Subscribe()
	fast := h.Subscribe()
	defer h.Unsubscribe(slow)
	defer h.Unsubscribe(fast)

	// Overflow the slow subscriber's buffer without draining it.
	for i := 0; i < defaultSubscriberBuffer+10; i++ {
		h.Publish(envelope(fmt.Sprintf("turn-%d", i)))
		<-fast.Events()
	}

	if got := len(slow.Events()); got != defaultSubscriberBuffer {
		t.Errorf("expected slow subscriber capped at %d, got %d", defaultSubscriberBuffer, got)
	}
}

func TestHub_UnsubscribeClosesStream(t *testing.T) {
	h := NewHub()
	s := h.Subscribe()
	h.Unsubscribe(s)

	if _, ok := <-s.Events(); ok {
		t.Error("expected closed event stream")
	}
	if h.Len() != 0 {
		t.Errorf("expected empty hub, got %d", h.Len())
	}

	// Double unsubscribe is a no-op.
	h.Unsubscribe(s)
}

func TestHub_DropIsolatesOthers(t *testing.T) {
	h := NewHub()
	bad := h.Subscribe()
	good := h.Subscribe()
	defer h.Unsubscribe(good)

	h.Drop(bad)
	h.Publish(envelope("turn-0"))

	select {
	case env := <-good.Events():
		if env.Translation.Turn.ID != "turn-0" {
			t.Errorf("unexpected envelope: %+v", env)
		}
	default:
		t.Error("surviving subscriber received nothing")
	}
}

func TestHistory_RingEviction(t *testing.T) {
	h := NewHistory(3)
	for i := 0; i < 5; i++ {
		h.Add(models.TranslatedTurn{Turn: models.BufferedTurn{ID: fmt.Sprintf("turn-%d", i)}})
	}

	snap := h.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 retained turns, got %d", len(snap))
	}
	for i, turn := range snap {
		if want := fmt.Sprintf("turn-%d", i+2); turn.Turn.ID != want {
			t.Errorf("expected %s at position %d, got %s", want, i, turn.Turn.ID)
		}
	}
}

func TestHistory_Clear(t *testing.T) {
	h := NewHistory(10)
	for i := 0; i < 3; i++ {
		h.Add(models.TranslatedTurn{Turn: models.BufferedTurn{ID: fmt.Sprintf("turn-%d", i)}})
	}

	h.Clear()
	if got := len(h.Snapshot()); got != 0 {
		t.Fatalf("expected empty history after clear, got %d turns", got)
	}

	// The ring keeps working after a clear.
	h.Add(models.TranslatedTurn{Turn: models.BufferedTurn{ID: "turn-after"}})
	snap := h.Snapshot()
	if len(snap) != 1 || snap[0].Turn.ID != "turn-after" {
		t.Errorf("unexpected history after clear: %+v", snap)
	}
}

func TestHistory_SnapshotIsCopy(t *testing.T) {
	h := NewHistory(10)
	h.Add(models.TranslatedTurn{Turn: models.BufferedTurn{ID: "turn-0"}})

	snap := h.Snapshot()
	snap[0].Turn.ID = "mutated"

	if h.Snapshot()[0].Turn.ID != "turn-0" {
		t.Error("snapshot mutation must not affect history")
	}
}
