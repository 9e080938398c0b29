// Command polyglot runs the audio side: it chunks a PCM source, runs
// transcription and diarization, buffers speaker turns, and delivers
// them to the translation service.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/b00ls0ck3t/Polyglot/internal/config"
	"github.com/b00ls0ck3t/Polyglot/internal/observability"
	"github.com/b00ls0ck3t/Polyglot/internal/observability/logging"
	"github.com/b00ls0ck3t/Polyglot/internal/session"
)

const wavHeaderBytes = 44

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	inputPath := flag.String("input", "-", "PCM16 mono audio source ('-' for stdin)")
	metricsAddr := flag.String("metrics-addr", "", "metrics listen address (overrides config)")
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Init(logging.DefaultConfig())
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		TimeFormat: time.RFC3339,
	})

	addr := cfg.Server.MetricsAddr
	if *metricsAddr != "" {
		addr = *metricsAddr
	}
	obs := observability.NewServer(addr)
	obs.Start()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src, err := openSource(*inputPath)
	if err != nil {
		log.Fatal().Err(err).Str("input", *inputPath).Msg("Failed to open audio source")
	}

	s, err := session.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build session")
	}
	log.Info().Str("sessionId", s.ID).Str("input", *inputPath).Msg("Starting capture session")

	runErr := s.Run(ctx, src)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	obs.Shutdown(shutdownCtx)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Fatal().Err(runErr).Msg("Session failed")
	}
}

// openSource returns a raw PCM16 reader. WAV files have their header
// skipped; everything else is treated as headerless PCM.
func openSource(path string) (io.Reader, error) {
	if path == "-" {
		return os.Stdin, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(strings.ToLower(path), ".wav") {
		if _, err := io.CopyN(io.Discard, f, wavHeaderBytes); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}
