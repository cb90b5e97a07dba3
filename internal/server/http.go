package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/zeusync/homestead/internal/core/observability/log"
	"github.com/zeusync/homestead/internal/core/transport"
)

// HTTPServer exposes the websocket endpoint next to health and status
// routes on one address.
type HTTPServer struct {
	server *http.Server
	game   *Server
	ws     *transport.WebSocketListener
	logger log.Log
}

func NewHTTPServer(addr string, game *Server, ws *transport.WebSocketListener, logger log.Log) *HTTPServer {
	s := &HTTPServer{
		game:   game,
		ws:     ws,
		logger: logger.With(log.String("component", "http"), log.String("addr", addr)),
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start listens in the background. Listen errors are logged.
func (s *HTTPServer) Start() {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server failed", log.Error(err))
		}
	}()
	s.logger.Info("HTTP server started")
}

func (s *HTTPServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/ws":
		if s.ws == nil {
			http.NotFound(w, r)
			return
		}
		s.ws.ServeHTTP(w, r)
	case "/healthz":
		if !s.game.running.Load() {
			http.Error(w, "not running", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	case "/status":
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(s.game.Status()); err != nil {
			s.logger.Warn("Status write failed", log.Error(err))
		}
	default:
		http.NotFound(w, r)
	}
}
