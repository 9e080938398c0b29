package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/b00ls0ck3t/Polyglot/internal/observability/logging"
	"github.com/b00ls0ck3t/Polyglot/internal/observability/metrics"
)

// Chunk is a fixed-duration slice of raw PCM16 mono audio, tagged with a
// strictly increasing sequence number. Immutable once produced.
type Chunk struct {
	Seq      uint64
	PCM      []byte // little-endian PCM16 mono
	Start    time.Time
	Duration time.Duration
	Empty    bool // classified entirely as silence
}

// Detector classifies a window of PCM16 audio as speech or silence.
type Detector interface {
	IsSpeech(pcm []byte) bool
}

// ChunkerConfig contains chunking parameters.
type ChunkerConfig struct {
	SampleRate    int
	ChunkDuration time.Duration
	VADEnabled    bool
}

// Chunker reads raw PCM16 from a source and emits fixed-duration chunks.
// The sequence is strictly increasing and gapless; silent chunks are
// marked Empty but still emitted so downstream silence tracking works.
type Chunker struct {
	cfg      ChunkerConfig
	src      io.Reader
	detector Detector
	out      chan Chunk
	metrics  *metrics.Metrics
}

// NewChunker creates a chunker over the given PCM source. detector may be
// nil, in which case every chunk is treated as speech.
func NewChunker(cfg ChunkerConfig, src io.Reader, detector Detector) (*Chunker, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.ChunkDuration <= 0 {
		return nil, fmt.Errorf("chunk duration must be positive, got %v", cfg.ChunkDuration)
	}
	return &Chunker{
		cfg:      cfg,
		src:      src,
		detector: detector,
		out:      make(chan Chunk),
		metrics:  metrics.DefaultMetrics,
	}, nil
}

// Chunks returns the output channel. It is closed when the source ends
// or the run context is cancelled.
func (c *Chunker) Chunks() <-chan Chunk {
	return c.out
}

// chunkBytes returns the byte length of one chunk of PCM16 mono audio.
func (c *Chunker) chunkBytes() int {
	samples := int(float64(c.cfg.SampleRate) * c.cfg.ChunkDuration.Seconds())
	return samples * 2
}

type readResult struct {
	buf []byte
	err error
}

// Run reads the source until EOF or cancellation, emitting chunks in
// order. A trailing partial chunk at EOF is emitted with its true,
// shorter duration. Reads happen on a separate goroutine so a source
// blocked mid-read cannot outlive a cancelled context.
func (c *Chunker) Run(ctx context.Context) error {
	logger := logging.WithComponent("chunker")
	defer close(c.out)

	size := c.chunkBytes()
	reads := make(chan readResult)
	go func() {
		for {
			buf := make([]byte, size)
			n, err := io.ReadFull(c.src, buf)
			select {
			case reads <- readResult{buf: buf[:n], err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	var seq uint64
	for {
		var r readResult
		select {
		case r = <-reads:
		case <-ctx.Done():
			return ctx.Err()
		}

		if len(r.buf) > 0 {
			chunk := c.makeChunk(seq, r.buf)
			seq++
			c.metrics.RecordChunk(chunk.Empty)
			select {
			case c.out <- chunk:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if r.err != nil {
			if errors.Is(r.err, io.EOF) || errors.Is(r.err, io.ErrUnexpectedEOF) {
				logger.Info().Uint64("chunks", seq).Msg("Audio source ended")
				return nil
			}
			return fmt.Errorf("read audio source: %w", r.err)
		}
	}
}

func (c *Chunker) makeChunk(seq uint64, pcm []byte) Chunk {
	duration := time.Duration(len(pcm)/2) * time.Second / time.Duration(c.cfg.SampleRate)
	empty := false
	if c.cfg.VADEnabled && c.detector != nil {
		empty = !c.detector.IsSpeech(pcm)
	}
	return Chunk{
		Seq:      seq,
		PCM:      pcm,
		Start:    time.Now().Add(-duration),
		Duration: duration,
		Empty:    empty,
	}
}
