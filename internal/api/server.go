package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/SnapFrame/internal/app"
	"github.com/bryanchriswhite/SnapFrame/internal/capture"
	"github.com/bryanchriswhite/SnapFrame/internal/config"
	"github.com/bryanchriswhite/SnapFrame/internal/logger"
	"github.com/bryanchriswhite/SnapFrame/internal/output"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Capturer runs captures for the API.
type Capturer interface {
	DefaultRequest() (capture.Request, error)
	Capture(ctx context.Context, req capture.Request, wait time.Duration, status app.StatusFunc) (*capture.Result, error)
	Backends() []capture.BackendStatus
}

// Server represents the HTTP API server
type Server struct {
	router    *mux.Router
	capturer  Capturer
	configMgr *config.Manager
	sinks     []output.Sink
	hub       *Hub
	upgrader  websocket.Upgrader
	log       *zerolog.Logger
}

// NewServer creates a new API server. configMgr may be nil. Every successful
// capture is also written to sinks.
func NewServer(capturer Capturer, configMgr *config.Manager, sinks ...output.Sink) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		capturer:  capturer,
		configMgr: configMgr,
		sinks:     sinks,
		hub:       NewHub(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // local control API
			},
		},
		log: logger.WithComponent("api"),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/backends", s.handleBackends).Methods("GET")
	api.HandleFunc("/capture", s.handleCapture).Methods("POST")
	api.HandleFunc("/events", s.handleEvents)
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")

	s.router.PathPrefix("/").HandlerFunc(s.handleIndex)
}

// Handler returns the root handler with CORS applied.
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Hub returns the event hub status reports are published on.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start serves on port until ctx is cancelled.
func (s *Server) Start(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Msgf("Starting server on http://localhost%s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.log.Info().Msg("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.hub.Close()
		return srv.Shutdown(shutdownCtx)
	}
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Expose-Headers", "X-Capture-Origin-X, X-Capture-Origin-Y, X-Capture-Backend")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// HTTP Handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": Version,
	})
}

func (s *Server) handleBackends(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.capturer.Backends())
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s.configMgr == nil {
		http.Error(w, "No configuration loaded", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.configMgr.Get())
}

// captureBody is a capture request plus the countdown before it.
type captureBody struct {
	capture.Request
	DelaySeconds int `json:"delay_seconds"`
}

func (s *Server) decodeCapture(r *http.Request) (captureBody, error) {
	req, err := s.capturer.DefaultRequest()
	if err != nil {
		return captureBody{}, err
	}
	body := captureBody{Request: req}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		return captureBody{}, err
	}

	if body.Mode, err = capture.ParseMode(string(body.Mode)); err != nil {
		return captureBody{}, err
	}
	if body.Backend, err = capture.ParseBackendID(string(body.Backend)); err != nil {
		return captureBody{}, err
	}
	if body.DelaySeconds < 0 {
		return captureBody{}, errors.New("delay_seconds must not be negative")
	}
	return body, nil
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	format := output.FormatPNG
	if q := r.URL.Query().Get("format"); q != "" {
		f, err := output.ParseFormat(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		format = f
	}

	body, err := s.decodeCapture(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	wait := time.Duration(body.DelaySeconds) * time.Second
	res, err := s.capturer.Capture(r.Context(), body.Request, wait, s.hub.Publish)
	switch {
	case errors.Is(err, app.ErrBusy):
		writeError(w, http.StatusConflict, err)
		return
	case errors.Is(err, capture.ErrUnknownBackend), errors.Is(err, capture.ErrUnsupportedMode):
		writeError(w, http.StatusBadRequest, err)
		return
	case err != nil:
		s.log.Error().Err(err).Msg("Capture failed")
		writeError(w, http.StatusInternalServerError, err)
		return
	case res == nil:
		w.WriteHeader(http.StatusNoContent)
		return
	}

	for _, sink := range s.sinks {
		if _, err := sink.Write(r.Context(), res); err != nil {
			s.log.Warn().Err(err).Str("sink", sink.Name()).Msg("Failed to write capture")
		}
	}

	var buf bytes.Buffer
	if err := output.Encode(&buf, res.Image, format); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	h := w.Header()
	h.Set("Content-Type", format.ContentType())
	h.Set("Content-Length", strconv.Itoa(buf.Len()))
	if !res.OriginUnknown {
		h.Set("X-Capture-Origin-X", strconv.Itoa(res.OriginX))
		h.Set("X-Capture-Origin-Y", strconv.Itoa(res.OriginY))
	}
	h.Set("X-Capture-Backend", string(res.Backend))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	updates := s.hub.Subscribe()
	defer s.hub.Unsubscribe(updates)

	// Drain client frames so close messages are noticed.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case status, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(status); err != nil {
				s.log.Debug().Err(err).Msg("WebSocket write error")
				return
			}
		case <-closed:
			return
		}
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	html := `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>SnapFrame</title>
    <style>
        body { font-family: sans-serif; max-width: 720px; margin: 50px auto; color: #333; }
        code { background: #f5f5f5; padding: 2px 6px; border-radius: 3px; }
    </style>
</head>
<body>
    <h1>SnapFrame</h1>
    <p>Screenshot control API.</p>
    <ul>
        <li><a href="/api/health">/api/health</a> - Server health check</li>
        <li><a href="/api/backends">/api/backends</a> - Capture backends and availability</li>
        <li><code>POST /api/capture</code> - Take a screenshot, returns the image</li>
        <li><code>/api/events</code> - WebSocket stream of capture status</li>
    </ul>
</body>
</html>`

	if r.URL.Path == "/" {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(html))
		return
	}

	if !strings.HasPrefix(r.URL.Path, "/api") {
		http.NotFound(w, r)
	}
}
