package server

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/b00ls0ck3t/Polyglot/internal/broadcast"
	"github.com/b00ls0ck3t/Polyglot/internal/events"
	"github.com/b00ls0ck3t/Polyglot/internal/models"
	"github.com/b00ls0ck3t/Polyglot/internal/observability/logging"
)

const relayQueueDepth = 16

// Relay connects the ingest surface to the translation pipeline. Units
// go straight to subscribers as live captions; turns queue for the
// translation loop, blocking the ingest reader when full.
type Relay struct {
	hub       *broadcast.Hub
	publisher *events.Publisher
	turns     chan models.BufferedTurn
	logger    zerolog.Logger
}

// NewRelay creates a relay publishing through hub and mirroring onto
// publisher.
func NewRelay(hub *broadcast.Hub, publisher *events.Publisher) *Relay {
	return &Relay{
		hub:       hub,
		publisher: publisher,
		turns:     make(chan models.BufferedTurn, relayQueueDepth),
		logger:    logging.WithComponent("relay"),
	}
}

// Turns returns the queue of turns awaiting translation.
func (r *Relay) Turns() <-chan models.BufferedTurn {
	return r.turns
}

// Close ends the turn queue once the ingest surface is done.
func (r *Relay) Close() {
	close(r.turns)
}

// IngestUnit pushes a live caption to subscribers. Best-effort: the
// Kafka mirror may fail without affecting display.
func (r *Relay) IngestUnit(ctx context.Context, unit models.SpeechUnit) {
	r.hub.Publish(models.Envelope{Type: models.EventUnit, Unit: &unit})
	if err := r.publisher.PublishUnit(ctx, unit); err != nil {
		r.logger.Warn().Err(err).Str("sessionId", unit.SessionID).Msg("Unit mirror failed")
	}
}

// IngestTurn queues a turn for translation, blocking while the queue
// is full.
func (r *Relay) IngestTurn(ctx context.Context, turn models.BufferedTurn) error {
	select {
	case r.turns <- turn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FanOut consumes translated turns, pushing each to subscribers, the
// history ring, and the Kafka mirror. Returns when the input closes.
func (r *Relay) FanOut(ctx context.Context, translated <-chan models.TranslatedTurn, history *broadcast.History) {
	for turn := range translated {
		history.Add(turn)
		r.hub.Publish(models.Envelope{Type: models.EventTranslation, Translation: &turn})
		if err := r.publisher.PublishTurn(ctx, turn); err != nil {
			r.logger.Warn().Err(err).Str("turnId", turn.Turn.ID).Msg("Turn mirror failed")
		}
	}
}
