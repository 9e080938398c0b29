// Package turnbuffer accumulates ordered speech units into speaker
// turns. A turn stays open while consecutive units share a speaker and
// closes on exactly one trigger: a speaker change, the time budget, the
// size budget, sustained silence, or session end.
package turnbuffer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/b00ls0ck3t/Polyglot/internal/models"
	"github.com/b00ls0ck3t/Polyglot/internal/observability/logging"
	"github.com/b00ls0ck3t/Polyglot/internal/observability/metrics"
)

// ErrClosed is returned when units arrive after the buffer was closed.
var ErrClosed = errors.New("turn buffer closed")

// Sink receives flushed turns. Enqueue may block when the downstream
// queue is full; the buffer waits rather than dropping turns.
type Sink interface {
	Enqueue(ctx context.Context, turn models.BufferedTurn) error
}

// Config contains turn accumulation parameters.
type Config struct {
	SessionID    string
	TimeBudget   time.Duration
	SizeBudget   int
	SilenceFlush time.Duration
}

type state int

const (
	stateIdle state = iota
	stateAccumulating
)

// Buffer is the per-session turn accumulator. Safe for concurrent use,
// though units must already arrive in sequence order.
type Buffer struct {
	mu   sync.Mutex
	cfg  Config
	sink Sink

	st      state
	speaker string
	parts   []string
	units   int
	start   time.Time
	end     time.Time
	silence time.Duration
	closed  bool

	metrics *metrics.Metrics
}

// NewBuffer creates a turn buffer flushing into sink.
func NewBuffer(cfg Config, sink Sink) (*Buffer, error) {
	if cfg.SessionID == "" {
		return nil, fmt.Errorf("session ID cannot be empty")
	}
	if cfg.TimeBudget <= 0 {
		return nil, fmt.Errorf("time budget must be positive, got %v", cfg.TimeBudget)
	}
	if cfg.SizeBudget <= 0 {
		return nil, fmt.Errorf("size budget must be positive, got %d", cfg.SizeBudget)
	}
	if cfg.SilenceFlush <= 0 {
		return nil, fmt.Errorf("silence flush must be positive, got %v", cfg.SilenceFlush)
	}
	if sink == nil {
		return nil, fmt.Errorf("sink cannot be nil")
	}
	return &Buffer{
		cfg:     cfg,
		sink:    sink,
		metrics: metrics.DefaultMetrics,
	}, nil
}

// Add feeds the next speech unit through the state machine. Empty units
// never open a turn but advance silence tracking inside one.
func (b *Buffer) Add(ctx context.Context, unit models.SpeechUnit) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	if unit.IsEmpty() {
		if b.st != stateAccumulating {
			return nil
		}
		b.silence += unit.Duration
		if b.silence >= b.cfg.SilenceFlush {
			return b.flush(ctx, models.FlushSilence)
		}
		return nil
	}

	// An unresolved speaker inherits the open turn's label so a
	// transient diarization failure cannot split a turn.
	speaker := unit.Speaker
	if speaker == "" {
		if b.st == stateAccumulating {
			speaker = b.speaker
		} else {
			speaker = models.UnknownSpeaker
		}
	}

	if b.st == stateAccumulating && speaker != b.speaker {
		if err := b.flush(ctx, models.FlushSpeakerChange); err != nil {
			return err
		}
	}

	if b.st == stateIdle {
		b.st = stateAccumulating
		b.speaker = speaker
		b.start = unit.Timestamp
	}
	b.parts = append(b.parts, unit.Text)
	b.units++
	b.end = unit.Timestamp.Add(unit.Duration)
	b.silence = 0

	if b.end.Sub(b.start) >= b.cfg.TimeBudget {
		return b.flush(ctx, models.FlushTimeBudget)
	}
	if utf8.RuneCountInString(b.text()) >= b.cfg.SizeBudget {
		return b.flush(ctx, models.FlushSizeBudget)
	}
	return nil
}

// Close flushes any open turn with the session end reason and rejects
// further units. Safe to call more than once.
func (b *Buffer) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	if b.st != stateAccumulating {
		return nil
	}
	return b.flush(ctx, models.FlushSessionEnd)
}

func (b *Buffer) text() string {
	return strings.Join(b.parts, " ")
}

// flush closes the open turn and hands it to the sink. Called with the
// lock held; the blocking Enqueue is the intended backpressure path.
// State is only reset once the sink has accepted the turn: a failed
// enqueue keeps it buffered so a later trigger, or Close with its own
// context, flushes it again.
func (b *Buffer) flush(ctx context.Context, reason models.FlushReason) error {
	turn := models.BufferedTurn{
		ID:        uuid.NewString(),
		SessionID: b.cfg.SessionID,
		Speaker:   b.speaker,
		Text:      b.text(),
		Units:     b.units,
		Start:     b.start,
		End:       b.end,
		Reason:    reason,
	}

	if err := b.sink.Enqueue(ctx, turn); err != nil {
		return fmt.Errorf("enqueue turn %s: %w", turn.ID, err)
	}

	b.st = stateIdle
	b.speaker = ""
	b.parts = nil
	b.units = 0
	b.silence = 0

	chars := utf8.RuneCountInString(turn.Text)
	b.metrics.RecordTurnFlushed(string(reason), chars, turn.End.Sub(turn.Start).Seconds())
	logger := logging.WithTurn("turnbuffer", b.cfg.SessionID, turn.ID)
	logger.Info().
		Str("speaker", turn.Speaker).
		Str("reason", string(reason)).
		Int("units", turn.Units).
		Int("chars", chars).
		Msg("Turn flushed")
	return nil
}
