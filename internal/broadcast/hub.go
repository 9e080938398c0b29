// Package broadcast fans translated events out to display subscribers.
// Subscribers only see events published after they join; a slow
// subscriber loses events rather than stalling the rest.
package broadcast

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/b00ls0ck3t/Polyglot/internal/models"
	"github.com/b00ls0ck3t/Polyglot/internal/observability/logging"
	"github.com/b00ls0ck3t/Polyglot/internal/observability/metrics"
)

const defaultSubscriberBuffer = 32

// Subscriber is one attached display client.
type Subscriber struct {
	id string
	ch chan models.Envelope
}

// ID returns the subscriber's identifier, used in logs.
func (s *Subscriber) ID() string { return s.id }

// Events returns the subscriber's event stream. Closed on unsubscribe.
func (s *Subscriber) Events() <-chan models.Envelope { return s.ch }

// Hub is the subscriber registry.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]*Subscriber
	bufSize int
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		subs:    make(map[string]*Subscriber),
		bufSize: defaultSubscriberBuffer,
		logger:  logging.WithComponent("broadcast"),
		metrics: metrics.DefaultMetrics,
	}
}

// Subscribe attaches a new subscriber. It receives only events
// published after this call returns.
func (h *Hub) Subscribe() *Subscriber {
	s := &Subscriber{
		id: uuid.NewString(),
		ch: make(chan models.Envelope, h.bufSize),
	}

	h.mu.Lock()
	h.subs[s.id] = s
	n := len(h.subs)
	h.mu.Unlock()

	h.metrics.SubscribersActive.Set(float64(n))
	h.logger.Info().Str("subscriberId", s.id).Int("active", n).Msg("Subscriber attached")
	return s
}

// Unsubscribe detaches a subscriber and closes its stream. Safe to
// call for an already removed subscriber.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	_, ok := h.subs[s.id]
	if ok {
		delete(h.subs, s.id)
	}
	n := len(h.subs)
	h.mu.Unlock()

	if !ok {
		return
	}
	close(s.ch)
	h.metrics.SubscribersActive.Set(float64(n))
	h.logger.Info().Str("subscriberId", s.id).Int("active", n).Msg("Subscriber detached")
}

// Drop removes a subscriber that failed, counting it separately from
// voluntary disconnects.
func (h *Hub) Drop(s *Subscriber) {
	h.metrics.SubscribersDropped.Inc()
	h.Unsubscribe(s)
}

// Publish delivers the event to every current subscriber. A subscriber
// with a full buffer misses this event; the others are unaffected.
func (h *Hub) Publish(env models.Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, s := range h.subs {
		select {
		case s.ch <- env:
		default:
			h.logger.Debug().Str("subscriberId", s.id).Msg("Subscriber buffer full, event skipped")
		}
	}
}

// Len returns the number of attached subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
