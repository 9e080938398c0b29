// Package server exposes the translation side: the ingest WebSocket
// fed by the audio side, the live subscriber stream, and the history
// pull endpoint.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/b00ls0ck3t/Polyglot/internal/broadcast"
	"github.com/b00ls0ck3t/Polyglot/internal/models"
	"github.com/b00ls0ck3t/Polyglot/internal/observability/logging"
)

// Ingestor receives envelopes arriving on the ingest connection.
type Ingestor interface {
	IngestUnit(ctx context.Context, unit models.SpeechUnit)
	IngestTurn(ctx context.Context, turn models.BufferedTurn) error
}

// Server is the translation-side HTTP/WebSocket server.
type Server struct {
	httpServer *http.Server
	hub        *broadcast.Hub
	history    *broadcast.History
	ingestor   Ingestor
	upgrader   websocket.Upgrader
	logger     zerolog.Logger
}

// New creates the server. Display clients connect cross-origin, so the
// upgrader accepts any origin.
func New(addr string, hub *broadcast.Hub, history *broadcast.History, ingestor Ingestor) (*Server, error) {
	if addr == "" {
		return nil, fmt.Errorf("listen address cannot be empty")
	}
	if hub == nil || history == nil || ingestor == nil {
		return nil, fmt.Errorf("hub, history and ingestor are required")
	}

	s := &Server{
		hub:      hub,
		history:  history,
		ingestor: ingestor,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logging.WithComponent("server"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/ingest", s.handleIngest)
		r.Get("/live", s.handleLive)
		r.Get("/history", s.handleHistory)
		r.Delete("/history", s.handleHistoryClear)
	})

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler exposes the router, used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins serving. Blocks until the listener fails or Shutdown
// is called.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("Server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleIngest accepts the audio side's delivery connection and feeds
// its envelopes into the translation pipeline. Reading stops feeding
// while the turn queue is full, which is the backpressure path back to
// the audio side.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Ingest upgrade failed")
		return
	}
	defer conn.Close()

	s.logger.Info().Str("remote", r.RemoteAddr).Msg("Ingest connection established")
	for {
		var env models.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			s.logger.Info().Err(err).Msg("Ingest connection closed")
			return
		}

		switch env.Type {
		case models.EventUnit:
			if env.Unit != nil {
				s.ingestor.IngestUnit(r.Context(), *env.Unit)
			}
		case models.EventTurn:
			if env.Turn != nil {
				if err := s.ingestor.IngestTurn(r.Context(), *env.Turn); err != nil {
					s.logger.Warn().Err(err).Str("turnId", env.Turn.ID).Msg("Turn ingest aborted")
					return
				}
			}
		default:
			s.logger.Warn().Str("type", env.Type).Msg("Unknown envelope type ignored")
		}
	}
}

// handleLive attaches a display subscriber. The subscriber sees only
// events published after it connects; earlier turns come from the
// history endpoint.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Subscriber upgrade failed")
		return
	}

	sub := s.hub.Subscribe()
	defer conn.Close()

	// Reader goroutine detects client-side close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			s.hub.Unsubscribe(sub)
			return
		case env, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := conn.WriteJSON(env); err != nil {
				s.logger.Warn().Err(err).Str("subscriberId", sub.ID()).Msg("Subscriber write failed")
				s.hub.Drop(sub)
				return
			}
		}
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"turns": s.history.Snapshot(),
	})
}

// handleHistoryClear empties the retained history and tells attached
// subscribers to reset their display.
func (s *Server) handleHistoryClear(w http.ResponseWriter, r *http.Request) {
	s.history.Clear()
	s.hub.Publish(models.Envelope{Type: models.EventClear})
	s.logger.Info().Msg("History cleared")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
