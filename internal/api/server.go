// Package api serves the kiosk's local status endpoints: live scanner state
// for the browser HUD, operator controls (sync, reload, cart reset), the
// catalog debug view, Prometheus metrics, and a frame-rate chart.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smartretail/scanpos/internal/catalog"
	"github.com/smartretail/scanpos/internal/config"
	"github.com/smartretail/scanpos/internal/httputil"
	"github.com/smartretail/scanpos/internal/hud"
	"github.com/smartretail/scanpos/internal/monitoring"
	"github.com/smartretail/scanpos/internal/pipeline"
	"github.com/smartretail/scanpos/internal/stats"
	"github.com/smartretail/scanpos/internal/version"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Controller accepts out-of-band commands for the processing loop.
type Controller interface {
	Submit(cmd pipeline.Command) bool
}

// Classifier is the slice of the detector the status endpoint reports on.
type Classifier interface {
	Enabled() bool
}

// Server exposes the kiosk's local HTTP surface. It holds read-only views
// of the pipeline's state; every mutation goes through the Controller so
// the processing goroutine stays the single writer.
type Server struct {
	loop       Controller
	stats      *stats.Tracker
	overlay    *hud.Overlay
	cache      *catalog.Cache
	classifier Classifier
	cfg        *config.TuningConfig
	registry   *prometheus.Registry
}

// NewServer creates the status server.
func NewServer(loop Controller, tracker *stats.Tracker, overlay *hud.Overlay, cache *catalog.Cache, classifier Classifier, cfg *config.TuningConfig, registry *prometheus.Registry) *Server {
	return &Server{
		loop:       loop,
		stats:      tracker,
		overlay:    overlay,
		cache:      cache,
		classifier: classifier,
		cfg:        cfg,
		registry:   registry,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status, and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the route table.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/sync", s.commandHandler(pipeline.CommandSync, "catalog sync"))
	mux.HandleFunc("/api/reload", s.commandHandler(pipeline.CommandReload, "classifier reload"))
	mux.HandleFunc("/api/reset", s.commandHandler(pipeline.CommandResetGate, "cooldown reset"))
	mux.HandleFunc("/api/catalog", s.showCatalog)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/debug/charts/fps", s.fpsChart)
	return mux
}

type statusResponse struct {
	Version   string         `json:"version"`
	AIEnabled bool           `json:"ai_enabled"`
	Catalog   int            `json:"catalog_entries"`
	Stats     stats.Snapshot `json:"stats"`
	HUD       hud.State      `json:"hud"`
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, statusResponse{
		Version:   version.Version,
		AIEnabled: s.classifier.Enabled(),
		Catalog:   s.cache.Len(),
		Stats:     s.stats.Snapshot(),
		HUD:       s.overlay.Snapshot(),
	})
}

// commandHandler posts one loop command. A full command queue reports 503 so
// the operator's button can show "busy" instead of silently dropping.
func (s *Server) commandHandler(cmd pipeline.Command, what string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}
		if !s.loop.Submit(cmd) {
			httputil.WriteJSONError(w, http.StatusServiceUnavailable, what+" queue full, retry")
			return
		}
		httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": what + " requested"})
	}
}

type catalogResponse struct {
	Names  map[string]string `json:"names"`
	Labels map[string]string `json:"labels"`
}

func (s *Server) showCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	names, labels := s.cache.Snapshot()
	httputil.WriteJSONOK(w, catalogResponse{Names: names, Labels: labels})
}

type configResponse struct {
	ConfidenceAutoAccept float64 `json:"confidence_auto_accept"`
	ConfidenceSuggestion float64 `json:"confidence_suggestion"`
	ConfidenceDisplay    float64 `json:"confidence_display"`
	CooldownSameItemMS   int64   `json:"cooldown_same_item_ms"`
	CooldownDifferentMS  int64   `json:"cooldown_different_item_ms"`
	ProcessIntervalMS    int64   `json:"process_interval_ms"`
	DispatchTimeoutMS    int64   `json:"dispatch_timeout_ms"`
	MessageDurationMS    int64   `json:"message_duration_ms"`
	FrameWidth           int     `json:"frame_width"`
	FrameHeight          int     `json:"frame_height"`
	FPSWindow            int     `json:"fps_window"`
	APIURL               string  `json:"api_url"`
	SyncURL              string  `json:"sync_url"`
	InferURL             string  `json:"infer_url,omitempty"`
}

// showConfig reports the effective tuning values after defaults and
// environment overrides are applied.
func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, configResponse{
		ConfidenceAutoAccept: s.cfg.GetConfidenceAutoAccept(),
		ConfidenceSuggestion: s.cfg.GetConfidenceSuggestion(),
		ConfidenceDisplay:    s.cfg.GetConfidenceDisplay(),
		CooldownSameItemMS:   s.cfg.GetCooldownSameItem().Milliseconds(),
		CooldownDifferentMS:  s.cfg.GetCooldownDifferentItem().Milliseconds(),
		ProcessIntervalMS:    s.cfg.GetProcessInterval().Milliseconds(),
		DispatchTimeoutMS:    s.cfg.GetDispatchTimeout().Milliseconds(),
		MessageDurationMS:    s.cfg.GetMessageDuration().Milliseconds(),
		FrameWidth:           s.cfg.GetFrameWidth(),
		FrameHeight:          s.cfg.GetFrameHeight(),
		FPSWindow:            s.cfg.GetFPSWindow(),
		APIURL:               s.cfg.GetAPIURL(),
		SyncURL:              s.cfg.GetSyncURL(),
		InferURL:             s.cfg.GetInferURL(),
	})
}
