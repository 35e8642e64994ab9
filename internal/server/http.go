package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skypro1111/ladiocast/internal/audio"
	"github.com/skypro1111/ladiocast/internal/broadcast"
	"github.com/skypro1111/ladiocast/internal/config"
	"github.com/skypro1111/ladiocast/internal/directory"
	"github.com/skypro1111/ladiocast/internal/metrics"
)

// HTTPServer provides HTTP API endpoints for control and monitoring
type HTTPServer struct {
	server      *http.Server
	logger      *slog.Logger
	config      *config.Config
	broadcaster *broadcast.Broadcaster
	directory   directory.Fetcher
	metrics     *metrics.Metrics
	gatherer    prometheus.Gatherer
	hub         *EventHub
	version     string

	startTime time.Time
}

// HTTPServerConfig contains HTTP server configuration
type HTTPServerConfig struct {
	Port    int
	Address string
	Version string
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg HTTPServerConfig, logger *slog.Logger, appConfig *config.Config,
	b *broadcast.Broadcaster, dir directory.Fetcher, m *metrics.Metrics, gatherer prometheus.Gatherer) *HTTPServer {

	h := &HTTPServer{
		logger:      logger.With(slog.String("component", "http")),
		config:      appConfig,
		broadcaster: b,
		directory:   dir,
		metrics:     m,
		gatherer:    gatherer,
		hub:         NewEventHub(logger),
		version:     cfg.Version,
		startTime:   time.Now(),
	}
	h.hub.Attach(b.Notifier())

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	// No WriteTimeout: /events connections are long lived.
	h.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	return h
}

// Handler returns the routed handler
func (h *HTTPServer) Handler() http.Handler {
	return h.server.Handler
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/status", h.withMetrics("/status", h.handleStatus))
	mux.HandleFunc("/start", h.withMetrics("/start", h.handleStart))
	mux.HandleFunc("/stop", h.withMetrics("/stop", h.handleStop))
	mux.HandleFunc("/volume", h.withMetrics("/volume", h.handleVolume))
	mux.HandleFunc("/servers", h.withMetrics("/servers", h.handleServers))

	// The upgrade hijacks the connection, so no request metrics here.
	mux.Handle("/events", h.hub)

	mux.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}
		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	h.hub.Close()
	return h.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    "ladiocast",
			"version": h.version,
		},
		"broadcast": map[string]interface{}{
			"state":         h.broadcaster.State().String(),
			"event_clients": h.hub.ClientCount(),
		},
	})
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	State      string          `json:"state"`
	StateCode  int             `json:"state_code"`
	VolumeRate int             `json:"volume_rate"`
	Info       *broadcast.Info `json:"info,omitempty"`
	ListenURL  string          `json:"listen_url,omitempty"`
	OnAir      string          `json:"on_air,omitempty"`
	Stats      broadcast.Stats `json:"stats"`
	Timestamp  time.Time       `json:"timestamp"`
}

func (h *HTTPServer) status() StatusResponse {
	state := h.broadcaster.State()
	resp := StatusResponse{
		State:      state.String(),
		StateCode:  int(state),
		VolumeRate: h.broadcaster.VolumeRate(),
		Info:       h.broadcaster.Info(),
		Stats:      h.broadcaster.Stats(),
		Timestamp:  time.Now().UTC(),
	}
	if resp.Info != nil {
		resp.ListenURL = resp.Info.ListenURL()
		resp.OnAir = resp.Info.Duration().Truncate(time.Second).String()
	}
	return resp
}

// handleStatus implements the /status endpoint
func (h *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.status())
}

// handleStart implements the /start endpoint. The body may carry broadcast
// parameters; without one the configured broadcast section is used.
func (h *HTTPServer) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	params := h.config.Broadcast.Params()
	if err := json.NewDecoder(io.LimitReader(r.Body, 64*1024)).Decode(&params); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if params.Mount == "" {
		params.Mount = broadcast.RandomMount()
	}

	cfg, err := broadcast.NewConfig(params)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !h.broadcaster.Start(cfg) {
		writeError(w, http.StatusConflict, fmt.Sprintf("broadcast is %s", h.broadcaster.State()))
		return
	}

	h.logger.Info("Broadcast started via API", slog.String("mount", cfg.Mount()))
	writeJSON(w, http.StatusAccepted, h.status())
}

// handleStop implements the /stop endpoint
func (h *HTTPServer) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.broadcaster.Stop()
	h.logger.Info("Broadcast stop requested via API")
	writeJSON(w, http.StatusAccepted, h.status())
}

// handleVolume implements the /volume endpoint
func (h *HTTPServer) handleVolume(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		rate, err := strconv.Atoi(r.URL.Query().Get("rate"))
		if err != nil || rate < 0 || rate > audio.MaxVolume {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("rate must be an integer between 0 and %d", audio.MaxVolume))
			return
		}
		h.broadcaster.SetVolumeRate(rate)
		h.metrics.SetVolumeRate(h.broadcaster.VolumeRate())
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"volume_rate": h.broadcaster.VolumeRate()})
}

// handleServers implements the /servers endpoint
func (h *HTTPServer) handleServers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	list, err := h.directory.Fetch(r.Context())
	if err != nil {
		h.logger.Warn("Failed to fetch server list", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_servers": len(list),
		"timestamp":     time.Now().UTC(),
		"servers":       list.Sorted(),
	})
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": "ladiocast",
		"version": h.version,
		"endpoints": map[string]interface{}{
			"GET /":           "API documentation",
			"GET /health":     "Service health check",
			"GET /status":     "Broadcast state, info and counters",
			"POST /start":     "Start broadcasting",
			"POST /stop":      "Stop broadcasting",
			"GET|PUT /volume": "Read or set the capture gain (?rate=percent)",
			"GET /servers":    "List streaming servers",
			"GET /events":     "WebSocket feed of broadcast events",
			"GET /metrics":    "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	})
}
