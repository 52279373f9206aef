package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/sonde-etl/internal/domain"
	"github.com/couchcryptid/sonde-etl/internal/skewt"
)

// Skew-T canvas defaults and limits, in pixels.
const (
	defaultCanvasWidth  = 600
	defaultCanvasHeight = 320
	minCanvasSize       = 120
	maxCanvasSize       = 4096
)

// SondeStore provides read-only snapshots of tracked sondes.
type SondeStore interface {
	Snapshot(id string, withHistory bool) (domain.SondeState, bool)
	Snapshots(filter string, withHistory bool) []domain.SondeState
}

// StatusReporter exposes the outcome of the most recent ingestion cycle.
type StatusReporter interface {
	Status() domain.CycleStatus
}

// Server exposes health, readiness, metrics, and the read-only sonde API.
type Server struct {
	httpServer *http.Server
	store      SondeStore
	status     StatusReporter
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics, and /api routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, store SondeStore, status StatusReporter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		store:  store,
		status: status,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/sondes", s.handleListSondes)
	mux.HandleFunc("GET /api/sondes/{id}", s.handleGetSonde)
	mux.HandleFunc("GET /api/sondes/{id}/skewt", s.handleSkewT)
	mux.HandleFunc("GET /api/status", s.handleStatus)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type sondeList struct {
	Count  int                 `json:"count"`
	Sondes []domain.SondeState `json:"sondes"`
}

func (s *Server) handleListSondes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	withHistory, _ := strconv.ParseBool(q.Get("history"))
	sondes := s.store.Snapshots(q.Get("id"), withHistory)
	sharedobs.WriteJSON(w, http.StatusOK, sondeList{Count: len(sondes), Sondes: sondes})
}

func (s *Server) handleGetSonde(w http.ResponseWriter, r *http.Request) {
	sonde, ok := s.lookup(w, r)
	if !ok {
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, sonde)
}

func (s *Server) handleSkewT(w http.ResponseWriter, r *http.Request) {
	width, err := canvasDimension(r, "width", defaultCanvasWidth)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	height, err := canvasDimension(r, "height", defaultCanvasHeight)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sonde, ok := s.lookup(w, r)
	if !ok {
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, skewt.Build(sonde, skewt.PlotArea(width, height)))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, s.status.Status())
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (domain.SondeState, bool) {
	id := r.PathValue("id")
	sonde, ok := s.store.Snapshot(id, true)
	if !ok {
		writeError(w, http.StatusNotFound, "sonde "+strconv.Quote(id)+" is not tracked")
		return domain.SondeState{}, false
	}
	return sonde, true
}

type canvasError struct {
	param string
}

func (e canvasError) Error() string {
	return "invalid " + e.param + ": must be an integer between " +
		strconv.Itoa(minCanvasSize) + " and " + strconv.Itoa(maxCanvasSize)
}

func canvasDimension(r *http.Request, param string, fallback int) (float64, error) {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		return float64(fallback), nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < minCanvasSize || n > maxCanvasSize {
		return 0, canvasError{param: param}
	}
	return float64(n), nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": msg})
}
