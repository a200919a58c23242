// Package api serves the receiver's viewer page, its MJPEG streams and a
// small JSON API for session statistics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/bryanchriswhite/framerelay/internal/logger"
	"github.com/bryanchriswhite/framerelay/internal/output"
	"github.com/bryanchriswhite/framerelay/internal/stream"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Version is reported by the health endpoint
const Version = "0.1.0"

// DefaultStatsInterval is how often the stats websocket pushes an update
const DefaultStatsInterval = time.Second

// StatsSource reports the receiver's state; *stream.Receiver satisfies it
type StatsSource interface {
	Stats() stream.Stats
}

// StatsResponse is the body of GET /api/stats
type StatsResponse struct {
	Receiver stream.Stats      `json:"receiver"`
	Display  output.MJPEGStats `json:"display"`
}

// Server represents the HTTP API server
type Server struct {
	router   *mux.Router
	receiver StatsSource
	mjpeg    *output.MJPEGOutput
	upgrader websocket.Upgrader

	// StatsInterval overrides DefaultStatsInterval when set before serving
	StatsInterval time.Duration
}

// NewServer creates a new API server
func NewServer(receiver StatsSource, mjpeg *output.MJPEGOutput) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		receiver: receiver,
		mjpeg:    mjpeg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // The viewer is served from anywhere the receiver is reachable
			},
		},
		StatsInterval: DefaultStatsInterval,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/stats", s.handleStats).Methods("GET")
	api.HandleFunc("/stats/ws", s.handleStatsStream)
	api.HandleFunc("/params", s.handleParams).Methods("GET")
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	s.router.HandleFunc("/stream/{view}", s.handleStream).Methods("GET")
	s.router.HandleFunc("/snapshot/{view}.jpg", s.handleSnapshot).Methods("GET")
	s.router.HandleFunc("/", s.mjpeg.ViewerHandler()).Methods("GET")
}

// Handler returns the server's routes wrapped with CORS headers
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Listen binds addr for the display server. A bind failure wraps
// stream.ErrTransport.
func (s *Server) Listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: listen on %s: %w", stream.ErrTransport, addr, err)
	}
	return ln, nil
}

// ListenAndServe binds addr and serves until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := s.Listen(addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve handles requests on ln until ctx is cancelled, then shuts down
// gracefully. It closes ln.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	log := logger.WithComponent("api")

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	log.Info().Str("url", "http://"+displayHost(ln.Addr())).Msg("Display server started")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("display server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		// MJPEG clients hold their connections open; cut them off
		log.Debug().Err(err).Msg("Graceful shutdown timed out, closing connections")
		srv.Close()
	}
	log.Info().Msg("Display server stopped")
	return nil
}

func displayHost(addr net.Addr) string {
	s := addr.String()
	if strings.HasPrefix(s, "[::]") || strings.HasPrefix(s, "0.0.0.0") {
		if _, port, err := net.SplitHostPort(s); err == nil {
			return "localhost:" + port
		}
	}
	return s
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// HTTP Handlers

func (s *Server) stats() StatsResponse {
	return StatsResponse{
		Receiver: s.receiver.Stats(),
		Display:  s.mjpeg.Stats(),
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.stats())
}

func (s *Server) handleStatsStream(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	// The reader notices when the client goes away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	interval := s.StatsInterval
	if interval <= 0 {
		interval = DefaultStatsInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := conn.WriteJSON(s.stats()); err != nil {
			log.Debug().Err(err).Msg("WebSocket write failed")
			return
		}
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	st := s.receiver.Stats()
	writeJSON(w, map[string]interface{}{
		"params":        st.Params,
		"interpolation": st.Interpolation,
	})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	view := mux.Vars(r)["view"]
	if !s.mjpeg.HasView(view) {
		http.Error(w, fmt.Sprintf("unknown view %q", view), http.StatusNotFound)
		return
	}
	s.mjpeg.StreamHandler(view)(w, r)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	data, ok := s.mjpeg.Snapshot(mux.Vars(r)["view"])
	if !ok {
		http.Error(w, "no frame yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"status":  "healthy",
		"version": Version,
		"state":   s.receiver.Stats().State.String(),
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
