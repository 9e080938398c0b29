// Package pipeline coordinates per-chunk inference. Each chunk fans out
// to transcription and diarization concurrently; either capability may
// fail without losing the chunk, and merged units leave the coordinator
// in strict sequence order.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/b00ls0ck3t/Polyglot/internal/audio"
	"github.com/b00ls0ck3t/Polyglot/internal/diarize"
	"github.com/b00ls0ck3t/Polyglot/internal/inference"
	"github.com/b00ls0ck3t/Polyglot/internal/models"
	"github.com/b00ls0ck3t/Polyglot/internal/observability/logging"
	"github.com/b00ls0ck3t/Polyglot/internal/observability/metrics"
	"github.com/b00ls0ck3t/Polyglot/internal/stt"
)

const defaultMaxInFlight = 4

// Config contains coordinator parameters for one session.
type Config struct {
	SessionID         string
	SampleRate        int
	TranscribeTimeout time.Duration
	DiarizeTimeout    time.Duration
	MaxInFlight       int
}

// Coordinator runs transcription and diarization per chunk and merges
// the results into speech units.
type Coordinator struct {
	cfg         Config
	transcriber stt.Transcriber
	diarizer    diarize.Diarizer
	out         chan models.SpeechUnit
	window      *reorderWindow
	sem         chan struct{}
	metrics     *metrics.Metrics
}

// NewCoordinator creates a coordinator. diarizer may be nil, in which
// case units carry no speaker label.
func NewCoordinator(cfg Config, transcriber stt.Transcriber, diarizer diarize.Diarizer) (*Coordinator, error) {
	if cfg.SessionID == "" {
		return nil, fmt.Errorf("session ID cannot be empty")
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.TranscribeTimeout <= 0 {
		return nil, fmt.Errorf("transcribe timeout must be positive, got %v", cfg.TranscribeTimeout)
	}
	if cfg.DiarizeTimeout <= 0 {
		return nil, fmt.Errorf("diarize timeout must be positive, got %v", cfg.DiarizeTimeout)
	}
	if transcriber == nil {
		return nil, fmt.Errorf("transcriber cannot be nil")
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = defaultMaxInFlight
	}

	out := make(chan models.SpeechUnit)
	return &Coordinator{
		cfg:         cfg,
		transcriber: transcriber,
		diarizer:    diarizer,
		out:         out,
		window:      newReorderWindow(out),
		sem:         make(chan struct{}, cfg.MaxInFlight),
		metrics:     metrics.DefaultMetrics,
	}, nil
}

// Units returns the ordered output stream. Closed after Run returns.
func (c *Coordinator) Units() <-chan models.SpeechUnit {
	return c.out
}

// Run consumes chunks until the input closes or the context is
// cancelled, waits for in-flight inference, then closes the output.
func (c *Coordinator) Run(ctx context.Context, chunks <-chan audio.Chunk) error {
	logger := logging.WithSession("coordinator", c.cfg.SessionID)

	var wg sync.WaitGroup
	defer func() {
		wg.Wait()
		close(c.out)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case chunk, ok := <-chunks:
			if !ok {
				logger.Info().Msg("Chunk stream ended")
				return nil
			}

			// Silent chunks skip inference but still take a slot in
			// the sequence so downstream silence tracking sees them.
			if chunk.Empty {
				unit := models.SpeechUnit{
					SessionID: c.cfg.SessionID,
					Seq:       chunk.Seq,
					Timestamp: chunk.Start,
					Duration:  chunk.Duration,
				}
				if err := c.window.add(ctx, unit); err != nil {
					return err
				}
				continue
			}

			select {
			case c.sem <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
			wg.Add(1)
			go func(chunk audio.Chunk) {
				defer wg.Done()
				defer func() { <-c.sem }()
				unit := c.infer(ctx, chunk)
				if err := c.window.add(ctx, unit); err != nil {
					logger := logging.WithChunk("coordinator", c.cfg.SessionID, chunk.Seq)
					logger.Debug().Err(err).Msg("Dropped unit on shutdown")
				}
			}(chunk)
		}
	}
}

// infer runs both capabilities concurrently with independent timeouts.
// A transcription failure yields an empty, failure-marked unit; a
// diarization failure only loses the speaker label.
func (c *Coordinator) infer(ctx context.Context, chunk audio.Chunk) models.SpeechUnit {
	logger := logging.WithChunk("coordinator", c.cfg.SessionID, chunk.Seq)

	unit := models.SpeechUnit{
		SessionID: c.cfg.SessionID,
		Seq:       chunk.Seq,
		Timestamp: chunk.Start,
		Duration:  chunk.Duration,
	}
	in := stt.Audio{PCM: chunk.PCM, SampleRate: c.cfg.SampleRate, Duration: chunk.Duration}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		tctx, cancel := context.WithTimeout(ctx, c.cfg.TranscribeTimeout)
		defer cancel()

		start := time.Now()
		text, err := c.transcriber.Transcribe(tctx, in)
		elapsed := time.Since(start)
		unit.TranscribeMillis = elapsed.Milliseconds()
		c.metrics.RecordInference("transcribe", err, inference.ErrorType(err), elapsed.Seconds())
		if err != nil {
			logger.Warn().Err(err).Msg("Transcription failed, emitting empty unit")
			unit.TranscribeFailed = true
			return
		}
		unit.Text = text
	}()

	if c.diarizer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dctx, cancel := context.WithTimeout(ctx, c.cfg.DiarizeTimeout)
			defer cancel()

			start := time.Now()
			segments, err := c.diarizer.Diarize(dctx, chunk.PCM, c.cfg.SampleRate, chunk.Duration)
			elapsed := time.Since(start)
			unit.DiarizeMillis = elapsed.Milliseconds()
			c.metrics.RecordInference("diarize", err, inference.ErrorType(err), elapsed.Seconds())
			if err != nil {
				logger.Warn().Err(err).Msg("Diarization failed, speaker unresolved")
				return
			}
			unit.Speaker = diarize.DominantLabel(segments, chunk.Duration)
		}()
	}

	wg.Wait()
	return unit
}
