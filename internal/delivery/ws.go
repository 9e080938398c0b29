package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/b00ls0ck3t/Polyglot/internal/models"
	"github.com/b00ls0ck3t/Polyglot/internal/observability/logging"
	"github.com/b00ls0ck3t/Polyglot/internal/observability/metrics"
)

// WSWriter delivers envelopes over a WebSocket connection, reconnecting
// with capped exponential backoff. A Write that survives a reconnect is
// re-sent, so delivery is at-least-once.
type WSWriter struct {
	endpoint string
	delay    time.Duration
	maxDelay time.Duration

	conn    *websocket.Conn
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewWSWriter creates a WebSocket delivery writer. No connection is
// opened until the first Write.
func NewWSWriter(endpoint string, delay, maxDelay time.Duration) (*WSWriter, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}
	if delay <= 0 {
		return nil, fmt.Errorf("reconnect delay must be positive, got %v", delay)
	}
	if maxDelay < delay {
		return nil, fmt.Errorf("max reconnect delay %v below initial delay %v", maxDelay, delay)
	}
	return &WSWriter{
		endpoint: endpoint,
		delay:    delay,
		maxDelay: maxDelay,
		logger:   logging.WithComponent("delivery_ws"),
		metrics:  metrics.DefaultMetrics,
	}, nil
}

// Write sends one envelope, dialing and redialing as needed. Only
// context cancellation makes it give up. Backoff grows across both
// dial and write failures and resets per envelope.
func (w *WSWriter) Write(ctx context.Context, env models.Envelope) error {
	backoff := w.delay
	for {
		if w.conn == nil {
			if err := w.dial(ctx); err != nil {
				w.logger.Warn().Err(err).Dur("backoff", backoff).Msg("Delivery dial failed")
				if err := sleep(ctx, backoff); err != nil {
					return err
				}
				backoff = min(backoff*2, w.maxDelay)
				continue
			}
		}

		if err := w.conn.WriteJSON(env); err != nil {
			w.logger.Warn().Err(err).Dur("backoff", backoff).Msg("Delivery write failed, reconnecting")
			w.conn.Close()
			w.conn = nil
			// A peer that accepts dials but rejects writes must not
			// produce a hot reconnect loop.
			if err := sleep(ctx, backoff); err != nil {
				return err
			}
			backoff = min(backoff*2, w.maxDelay)
			continue
		}
		return nil
	}
}

func (w *WSWriter) dial(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.endpoint, nil)
	if err != nil {
		w.metrics.DeliveryReconnects.Inc()
		return fmt.Errorf("dial %s: %w", w.endpoint, err)
	}
	w.logger.Info().Str("endpoint", w.endpoint).Msg("Delivery connection established")
	w.conn = conn
	return nil
}

// Close tears down the connection if one is open.
func (w *WSWriter) Close() error {
	if w.conn == nil {
		return nil
	}
	err := w.conn.Close()
	w.conn = nil
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
