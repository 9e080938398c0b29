// Command translated runs the translation side: it ingests turns from
// the audio service, translates them, and pushes results to display
// subscribers.
package main

import (
	"context"
	"flag"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/b00ls0ck3t/Polyglot/internal/broadcast"
	"github.com/b00ls0ck3t/Polyglot/internal/config"
	"github.com/b00ls0ck3t/Polyglot/internal/events"
	"github.com/b00ls0ck3t/Polyglot/internal/observability"
	"github.com/b00ls0ck3t/Polyglot/internal/observability/logging"
	"github.com/b00ls0ck3t/Polyglot/internal/server"
	"github.com/b00ls0ck3t/Polyglot/internal/translate"
)

const historySize = 100

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

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

	obs := observability.NewServer(cfg.Server.MetricsAddr)
	obs.Start()

	translator, err := newTranslator(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create translator")
	}

	batcher, err := translate.NewBatcher(translate.BatcherConfig{
		Timeout:    cfg.Translation.GetTimeout(),
		MaxRetries: cfg.Translation.MaxRetries,
	}, translator)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create batcher")
	}

	publisher := events.New(&events.Config{
		Enabled:    cfg.Kafka.Enabled,
		Brokers:    cfg.Kafka.Brokers,
		TopicUnits: cfg.Kafka.TopicUnits,
		TopicTurns: cfg.Kafka.TopicTurns,
		Principal:  cfg.Kafka.Principal,
	})
	defer publisher.Close()

	hub := broadcast.NewHub()
	history := broadcast.NewHistory(historySize)
	relay := server.NewRelay(hub, publisher)

	srv, err := server.New(cfg.Server.Addr, hub, history, relay)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := batcher.Run(ctx, relay.Turns()); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("Translation loop failed")
		}
	}()
	go func() {
		defer wg.Done()
		relay.FanOut(ctx, batcher.Translated(), history)
	}()

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Start() }()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
	case err := <-serveErr:
		log.Error().Err(err).Msg("Server stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	obs.Shutdown(shutdownCtx)

	relay.Close()
	wg.Wait()
}

// newTranslator selects the configured provider.
func newTranslator(cfg *config.Config) (translate.Translator, error) {
	t := cfg.Translation
	if t.Provider == "openai" {
		return translate.NewOpenAIClient(t.APIKey, "", t.SourceLang, t.TargetLang)
	}
	return translate.NewDeepLClient("", t.APIKey, t.SourceLang, t.TargetLang, t.GetTimeout())
}
