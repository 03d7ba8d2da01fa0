package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/agleyzer/abrsim/internal/bandwidth"
	"github.com/agleyzer/abrsim/internal/cluster"
	"github.com/agleyzer/abrsim/internal/diag"
	"github.com/agleyzer/abrsim/internal/player"
	"github.com/agleyzer/abrsim/internal/playlist"
)

// Publisher accepts externally measured bandwidth estimates and reports the current one.
// Both *bandwidth.AtomicMeter and *cluster.Manager implement it.
type Publisher interface {
	Publish(e bandwidth.Estimate) error
	Estimate() bandwidth.Estimate
}

// clusterStatus is implemented by publishers backed by a Raft cluster.
type clusterStatus interface {
	NodeID() string
	State() string
	LeaderAddr() string
}

// Server exposes the simulated session over HTTP
type Server struct {
	player     *player.Player
	publisher  Publisher
	port       int
	logger     *slog.Logger
	httpServer *http.Server
}

// New creates a new HTTP server
func New(p *player.Player, publisher Publisher, port int, logger *slog.Logger) *Server {
	return &Server{
		player:    p,
		publisher: publisher,
		port:      port,
		logger:    logger,
	}
}

// Handler returns the server's routes wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Register handlers
	mux.HandleFunc("/playlist.m3u8", s.handlePlaylist)
	mux.HandleFunc("/master.m3u8", s.handleMaster)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/debug", s.handleDebug)
	mux.HandleFunc("/bandwidth", s.handleBandwidth)

	return s.loggingMiddleware(mux)
}

// Start starts the HTTP server and blocks until ctx is canceled
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.Handler(),
	}

	// Start server in a goroutine
	go func() {
		s.logger.Info("starting HTTP server", "port", s.port)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()

	// Wait for context cancellation
	<-ctx.Done()

	// Graceful shutdown
	s.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(shutdownCtx)
}

// handlePlaylist serves the buffered segments as a live media playlist
func (s *Server) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	content, err := playlist.RenderBuffered(s.player.Buffered())
	if err != nil {
		s.logger.Error("failed to render playlist", "error", err)
		http.Error(w, "failed to render playlist", http.StatusInternalServerError)
		return
	}

	s.writePlaylist(w, content)
}

// handleMaster serves the variant catalog as a master playlist
func (s *Server) handleMaster(w http.ResponseWriter, r *http.Request) {
	content, err := playlist.RenderMaster(s.player.Variants())
	if err != nil {
		s.logger.Error("failed to render master playlist", "error", err)
		http.Error(w, "failed to render master playlist", http.StatusInternalServerError)
		return
	}

	s.writePlaylist(w, content)
}

func (s *Server) writePlaylist(w http.ResponseWriter, content string) {
	// Set HLS-specific headers
	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(content))
}

// handleHealth serves health check information
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "ok",
		"stats":  s.player.GetStats(),
	}

	if cs, ok := s.publisher.(clusterStatus); ok {
		health["cluster"] = map[string]interface{}{
			"node_id": cs.NodeID(),
			"state":   cs.State(),
			"leader":  cs.LeaderAddr(),
		}
	}

	writeJSON(w, http.StatusOK, health)
}

// handleDebug serves the human-readable debug block
func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(diag.Render(s.player.DebugInfo())))
}

// bandwidthResponse is the JSON body of /bandwidth.
type bandwidthResponse struct {
	Estimate      string `json:"estimate"`
	Known         bool   `json:"known"`
	BitsPerSecond int64  `json:"bits_per_second,omitempty"`
}

// handleBandwidth reports the current estimate on GET and replaces it on POST
// (form or query value "bps", e.g. "3M" or "unknown").
func (s *Server) handleBandwidth(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		e, err := bandwidth.ParseEstimate(r.FormValue("bps"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := s.publisher.Publish(e); err != nil {
			status := http.StatusServiceUnavailable
			if errors.Is(err, cluster.ErrNotLeader) {
				status = http.StatusConflict
			}
			s.logger.Warn("failed to publish estimate", "estimate", e, "error", err)
			http.Error(w, err.Error(), status)
			return
		}
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	e := s.publisher.Estimate()
	bps, known := e.BitsPerSecond()
	writeJSON(w, http.StatusOK, bandwidthResponse{
		Estimate:      e.String(),
		Known:         known,
		BitsPerSecond: bps,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap the response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)

		s.logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"status", wrapped.statusCode,
			"duration", duration,
		)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
