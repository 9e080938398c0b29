package translate

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/b00ls0ck3t/Polyglot/internal/models"
	"github.com/b00ls0ck3t/Polyglot/internal/observability/logging"
	"github.com/b00ls0ck3t/Polyglot/internal/observability/metrics"
)

const defaultRetryDelay = 500 * time.Millisecond

// BatcherConfig contains retry parameters for the translation loop.
type BatcherConfig struct {
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// Batcher translates turns one at a time, in arrival order. A turn
// whose retries are exhausted is emitted untranslated and marked
// failed; emission order always matches input order.
type Batcher struct {
	cfg        BatcherConfig
	translator Translator
	out        chan models.TranslatedTurn
	logger     zerolog.Logger
	metrics    *metrics.Metrics
}

// NewBatcher creates a translation batcher.
func NewBatcher(cfg BatcherConfig, translator Translator) (*Batcher, error) {
	if translator == nil {
		return nil, fmt.Errorf("translator cannot be nil")
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive, got %v", cfg.Timeout)
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries cannot be negative, got %d", cfg.MaxRetries)
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	return &Batcher{
		cfg:        cfg,
		translator: translator,
		out:        make(chan models.TranslatedTurn),
		logger:     logging.WithComponent("translate"),
		metrics:    metrics.DefaultMetrics,
	}, nil
}

// Translated returns the output stream. Closed after Run returns.
func (b *Batcher) Translated() <-chan models.TranslatedTurn {
	return b.out
}

// Run consumes turns until the input closes or the context is
// cancelled. One provider call per turn per attempt, serialized.
func (b *Batcher) Run(ctx context.Context, turns <-chan models.BufferedTurn) error {
	defer close(b.out)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case turn, ok := <-turns:
			if !ok {
				b.logger.Info().Msg("Turn stream ended")
				return nil
			}
			result := b.translateTurn(ctx, turn)
			select {
			case b.out <- result:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// translateTurn runs the bounded retry loop for one turn.
func (b *Batcher) translateTurn(ctx context.Context, turn models.BufferedTurn) models.TranslatedTurn {
	logger := b.logger.With().Str("turnId", turn.ID).Str("sessionId", turn.SessionID).Logger()

	result := models.TranslatedTurn{Turn: turn}
	start := time.Now()
	defer func() {
		result.TranslateMillis = time.Since(start).Milliseconds()
	}()

	delay := b.cfg.RetryDelay
	var lastErr error
	for attempt := 0; attempt <= b.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			b.metrics.TranslateRetries.Inc()
			if err := sleep(ctx, delay); err != nil {
				break
			}
			delay *= 2
		}

		tctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
		callStart := time.Now()
		translated, err := b.translator.Translate(tctx, turn.Text)
		cancel()
		b.metrics.RecordTranslation(b.translator.Name(), time.Since(callStart).Seconds())

		if err == nil {
			result.Translation = translated
			return result
		}
		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			break
		}
		logger.Warn().Err(err).Int("attempt", attempt+1).Msg("Translation attempt failed")
	}

	logger.Error().Err(lastErr).Msg("Translation exhausted, emitting source text")
	b.metrics.TranslateFailed.Inc()
	result.Failed = true
	return result
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
