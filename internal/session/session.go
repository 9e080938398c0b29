// Package session wires the audio side together: one session reads a
// PCM source, chunks it, runs inference, buffers turns, and delivers
// everything to the translation side.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/b00ls0ck3t/Polyglot/internal/audio"
	"github.com/b00ls0ck3t/Polyglot/internal/config"
	"github.com/b00ls0ck3t/Polyglot/internal/delivery"
	"github.com/b00ls0ck3t/Polyglot/internal/diarize"
	"github.com/b00ls0ck3t/Polyglot/internal/observability/logging"
	"github.com/b00ls0ck3t/Polyglot/internal/pipeline"
	"github.com/b00ls0ck3t/Polyglot/internal/stt"
	sttgoogle "github.com/b00ls0ck3t/Polyglot/internal/stt/google"
	"github.com/b00ls0ck3t/Polyglot/internal/turnbuffer"
	"github.com/b00ls0ck3t/Polyglot/internal/vad"
)

// teardownGrace bounds the session end flush and delivery drain after
// the source ends or the run context is cancelled.
const teardownGrace = 15 * time.Second

// Session is one live capture session.
type Session struct {
	ID string

	cfg         *config.Config
	transcriber stt.Transcriber
	diarizer    diarize.Diarizer
	writer      delivery.Writer
	logger      zerolog.Logger
}

// New builds a session with components selected by the configuration.
func New(ctx context.Context, cfg *config.Config) (*Session, error) {
	var transcriber stt.Transcriber
	var err error
	switch cfg.Inference.Transcriber {
	case "google":
		transcriber, err = sttgoogle.New(ctx, cfg.Inference.Language)
	default:
		transcriber, err = stt.NewWhisperClient(
			cfg.Inference.WhisperEndpoint, cfg.Inference.Language, cfg.Inference.GetTranscribeTimeout())
	}
	if err != nil {
		return nil, fmt.Errorf("create transcriber: %w", err)
	}

	var diarizer diarize.Diarizer
	if cfg.Inference.DiarizationEnabled {
		diarizer, err = diarize.NewClient(cfg.Inference.DiarizerEndpoint, cfg.Inference.GetDiarizeTimeout())
		if err != nil {
			return nil, fmt.Errorf("create diarizer: %w", err)
		}
	}

	writer, err := delivery.NewWSWriter(
		cfg.Delivery.Endpoint, cfg.Delivery.GetReconnectDelay(), cfg.Delivery.GetMaxReconnectWait())
	if err != nil {
		return nil, fmt.Errorf("create delivery writer: %w", err)
	}

	return NewWithComponents(cfg, transcriber, diarizer, writer)
}

// NewWithComponents builds a session around explicit components.
func NewWithComponents(cfg *config.Config, transcriber stt.Transcriber, diarizer diarize.Diarizer, writer delivery.Writer) (*Session, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if transcriber == nil {
		return nil, fmt.Errorf("transcriber cannot be nil")
	}
	if writer == nil {
		return nil, fmt.Errorf("delivery writer cannot be nil")
	}

	id := uuid.NewString()
	return &Session{
		ID:          id,
		cfg:         cfg,
		transcriber: transcriber,
		diarizer:    diarizer,
		writer:      writer,
		logger:      logging.WithSession("session", id),
	}, nil
}

// Run processes the PCM source until it ends or ctx is cancelled. The
// session end flush and the delivery drain always run, bounded by a
// grace period independent of ctx.
func (s *Session) Run(ctx context.Context, src io.Reader) error {
	var detector audio.Detector
	if s.cfg.Audio.VADEnabled {
		d, err := vad.NewDetector(s.cfg.Audio.VADThreshold, s.cfg.Audio.SampleRate)
		if err != nil {
			return fmt.Errorf("create detector: %w", err)
		}
		detector = d
	}

	chunker, err := audio.NewChunker(audio.ChunkerConfig{
		SampleRate:    s.cfg.Audio.SampleRate,
		ChunkDuration: s.cfg.Audio.GetChunkDuration(),
		VADEnabled:    s.cfg.Audio.VADEnabled,
	}, src, detector)
	if err != nil {
		return fmt.Errorf("create chunker: %w", err)
	}

	coordinator, err := pipeline.NewCoordinator(pipeline.Config{
		SessionID:         s.ID,
		SampleRate:        s.cfg.Audio.SampleRate,
		TranscribeTimeout: s.cfg.Inference.GetTranscribeTimeout(),
		DiarizeTimeout:    s.cfg.Inference.GetDiarizeTimeout(),
		MaxInFlight:       s.cfg.Inference.MaxInFlight,
	}, s.transcriber, s.diarizer)
	if err != nil {
		return fmt.Errorf("create coordinator: %w", err)
	}

	channel, err := delivery.NewChannel(s.cfg.Delivery.QueueDepth, s.writer)
	if err != nil {
		return fmt.Errorf("create delivery channel: %w", err)
	}

	buffer, err := turnbuffer.NewBuffer(turnbuffer.Config{
		SessionID:    s.ID,
		TimeBudget:   s.cfg.Buffer.GetTimeBudget(),
		SizeBudget:   s.cfg.Buffer.SizeBudget,
		SilenceFlush: s.cfg.Buffer.GetSilenceFlush(),
	}, channel)
	if err != nil {
		return fmt.Errorf("create turn buffer: %w", err)
	}

	s.logger.Info().
		Int("sampleRate", s.cfg.Audio.SampleRate).
		Bool("vad", s.cfg.Audio.VADEnabled).
		Bool("diarization", s.diarizer != nil).
		Msg("Session started")

	errCh := make(chan error, 2)
	go func() { errCh <- chunker.Run(ctx) }()
	go func() { errCh <- coordinator.Run(ctx, chunker.Chunks()) }()

	// The teardown context outlives ctx so the session end flush and
	// the delivery drain still happen on cancellation.
	teardownCtx, teardownCancel := context.WithTimeout(context.Background(), teardownGrace)
	defer teardownCancel()

	deliveryDone := make(chan error, 1)
	go func() { deliveryDone <- channel.Run(teardownCtx) }()

	var runErr error
	for unit := range coordinator.Units() {
		if !unit.IsEmpty() {
			channel.EnqueueUnit(unit)
		}
		if err := buffer.Add(ctx, unit); err != nil {
			runErr = fmt.Errorf("buffer unit %d: %w", unit.Seq, err)
			break
		}
	}

	if err := buffer.Close(teardownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("session end flush: %w", err)
	}
	channel.Close()
	if err := <-deliveryDone; err != nil && runErr == nil {
		runErr = fmt.Errorf("drain delivery: %w", err)
	}

	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) && runErr == nil {
			runErr = err
		}
	}

	if runErr != nil {
		s.logger.Error().Err(runErr).Msg("Session ended with error")
		return runErr
	}
	s.logger.Info().Msg("Session ended")
	return nil
}
