// Package delivery carries flushed turns from the audio side to the
// translation side over a bounded, ordered queue. Turns are never
// dropped: a full queue blocks the producer. Per-chunk display units
// ride the same connection but are droppable under load.
package delivery

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/b00ls0ck3t/Polyglot/internal/models"
	"github.com/b00ls0ck3t/Polyglot/internal/observability/logging"
	"github.com/b00ls0ck3t/Polyglot/internal/observability/metrics"
)

// Writer sends one envelope to the translation side. Implementations
// own their transport and retry internally; Write returns only on
// success or context cancellation.
type Writer interface {
	Write(ctx context.Context, env models.Envelope) error
}

// Channel is the bounded conduit between the turn buffer and the wire.
type Channel struct {
	writer  Writer
	queue   chan models.Envelope
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewChannel creates a delivery channel with the given queue depth.
func NewChannel(depth int, writer Writer) (*Channel, error) {
	if depth < 1 {
		return nil, fmt.Errorf("queue depth must be at least 1, got %d", depth)
	}
	if writer == nil {
		return nil, fmt.Errorf("writer cannot be nil")
	}
	return &Channel{
		writer:  writer,
		queue:   make(chan models.Envelope, depth),
		logger:  logging.WithComponent("delivery"),
		metrics: metrics.DefaultMetrics,
	}, nil
}

// Enqueue queues a flushed turn, blocking while the queue is full.
// Implements the turn buffer's sink.
func (c *Channel) Enqueue(ctx context.Context, turn models.BufferedTurn) error {
	env := models.Envelope{Type: models.EventTurn, Turn: &turn}

	select {
	case c.queue <- env:
	default:
		c.metrics.DeliveryBackpressure.Inc()
		c.logger.Warn().Str("turnId", turn.ID).Msg("Delivery queue full, blocking flush")
		select {
		case c.queue <- env:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.metrics.DeliveryQueueDepth.Set(float64(len(c.queue)))
	return nil
}

// EnqueueUnit queues a live-caption unit without blocking. Returns
// false when the queue was full and the unit was dropped.
func (c *Channel) EnqueueUnit(unit models.SpeechUnit) bool {
	select {
	case c.queue <- models.Envelope{Type: models.EventUnit, Unit: &unit}:
		c.metrics.DeliveryQueueDepth.Set(float64(len(c.queue)))
		return true
	default:
		return false
	}
}

// Close signals that no more envelopes will be enqueued. Run drains
// what remains and returns.
func (c *Channel) Close() {
	close(c.queue)
}

// Run consumes the queue in order, writing each envelope to the wire.
// Returns nil once the queue is closed and drained.
func (c *Channel) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-c.queue:
			if !ok {
				c.logger.Info().Msg("Delivery queue drained")
				return nil
			}
			c.metrics.DeliveryQueueDepth.Set(float64(len(c.queue)))
			if err := c.writer.Write(ctx, env); err != nil {
				return fmt.Errorf("write envelope: %w", err)
			}
		}
	}
}
