package audio

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"voice-bridge/internal/application"
	"voice-bridge/internal/domain"
)

const (
	maxAudioBody   = 10 * 1024 * 1024
	maxTextBody    = 4096
	queueSize      = 10
	commandTimeout = 30 * time.Second
)

// CommandHandler answers one utterance synchronously.
type CommandHandler interface {
	Handle(ctx context.Context, text string) (string, error)
}

type HTTPConfig struct {
	Addr      string
	AuthToken string
	RateLimit int // requests per minute per client; 0 disables limiting
}

// HTTPSource serves the command API. POST /command answers inline; the
// other endpoints queue work for Assistant.Run.
type HTTPSource struct {
	cfg         HTTPConfig
	handler     CommandHandler
	server      *http.Server
	queue       chan []byte
	logger      *slog.Logger
	mu          sync.Mutex
	running     bool
	mux         *http.ServeMux
	closeOnce   sync.Once
	rateLimiter *RateLimiter
}

func NewHTTPSource(cfg HTTPConfig, handler CommandHandler, logger *slog.Logger) *HTTPSource {
	h := &HTTPSource{
		cfg:     cfg,
		handler: handler,
		queue:   make(chan []byte, queueSize),
		logger:  logger,
		mux:     http.NewServeMux(),
	}

	limit := func(next http.HandlerFunc) http.HandlerFunc { return next }
	if cfg.RateLimit > 0 {
		h.rateLimiter = NewRateLimiter(cfg.RateLimit, time.Minute)
		limit = h.rateLimiter.Middleware
	}

	h.mux.HandleFunc("POST /command", limit(h.requireBearer(h.handleCommand)))
	h.mux.HandleFunc("POST /audio", limit(h.requireBearer(h.handleAudio)))
	h.mux.HandleFunc("POST /text", limit(h.requireBearer(h.handleText)))
	h.mux.HandleFunc("POST /alexa", limit(h.handleAlexa))
	h.mux.HandleFunc("GET /health", h.handleHealth)
	return h
}

func (h *HTTPSource) Name() string {
	return "http"
}

func (h *HTTPSource) Start(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return nil
	}

	h.server = &http.Server{
		Addr:         h.cfg.Addr,
		Handler:      h.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: commandTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		h.logger.Info("HTTP command server starting", "addr", h.cfg.Addr)
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("HTTP server error", "error", err)
		}
	}()

	h.running = true
	return nil
}

func (h *HTTPSource) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return nil
	}

	if h.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := h.server.Shutdown(ctx); err != nil {
			h.logger.Warn("graceful shutdown failed, forcing close", "error", err)
			if err := h.server.Close(); err != nil {
				return fmt.Errorf("closing server: %w", err)
			}
		}
	}

	h.closeOnce.Do(func() {
		close(h.queue)
	})
	h.running = false
	return nil
}

func (h *HTTPSource) NextCommand(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case data, ok := <-h.queue:
		if !ok {
			return nil, fmt.Errorf("command queue closed")
		}
		return data, nil
	}
}

func (h *HTTPSource) Handler() http.Handler {
	return h.mux
}

// Inject queues a command as if it had arrived over HTTP.
func (h *HTTPSource) Inject(data []byte) bool {
	select {
	case h.queue <- data:
		return true
	default:
		return false
	}
}

type commandRequest struct {
	Text string `json:"text"`
}

type commandResponse struct {
	Response string `json:"response"`
}

func (h *HTTPSource) handleCommand(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req commandRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxTextBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "body must be JSON with a text field"})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "text is required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()

	reply, err := h.handler.Handle(ctx, req.Text)
	if err != nil {
		if domain.IsValidation(err) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		h.logger.Error("command failed", "text", req.Text, "error", err)
		reply = application.FallbackResponse
	}

	writeJSON(w, http.StatusOK, commandResponse{Response: reply})
}

func (h *HTTPSource) handleAudio(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	data, err := io.ReadAll(io.LimitReader(r.Body, maxAudioBody))
	if err != nil {
		h.logger.Error("reading audio body", "error", err)
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if len(data) == 0 {
		http.Error(w, "empty audio", http.StatusBadRequest)
		return
	}

	if !h.Inject(data) {
		http.Error(w, "queue full, try again", http.StatusServiceUnavailable)
		return
	}
	h.logger.Info("received audio via HTTP", "bytes", len(data))
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "received", "bytes": len(data)})
}

func (h *HTTPSource) handleText(w http.ResponseWriter, r *http.Request) {
	h.queueText(w, r, "received text command via HTTP")
}

// handleAlexa accepts the skill's shared token in a header or query string,
// since the skill cannot set Authorization.
func (h *HTTPSource) handleAlexa(w http.ResponseWriter, r *http.Request) {
	if h.cfg.AuthToken != "" {
		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if !tokenMatches(token, h.cfg.AuthToken) {
			h.logger.Warn("unauthorized alexa request", "remote_addr", r.RemoteAddr)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	h.queueText(w, r, "received command from Alexa")
}

func (h *HTTPSource) queueText(w http.ResponseWriter, r *http.Request, msg string) {
	defer r.Body.Close()

	data, err := io.ReadAll(io.LimitReader(r.Body, maxTextBody))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		http.Error(w, "empty text", http.StatusBadRequest)
		return
	}

	if !h.Inject([]byte(domain.TextCommandPrefix + text)) {
		http.Error(w, "queue full, try again", http.StatusServiceUnavailable)
		return
	}
	h.logger.Info(msg, "text", text)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "received", "text": text})
}

func (h *HTTPSource) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h.mu.Lock()
	running := h.running
	queued := len(h.queue)
	h.mu.Unlock()

	status := "ok"
	code := http.StatusOK
	if !running {
		status = "not_ready"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{"status": status, "running": running, "queue_size": queued})
}

func (h *HTTPSource) requireBearer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.cfg.AuthToken == "" {
			next(w, r)
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || !tokenMatches(token, h.cfg.AuthToken) {
			h.logger.Warn("unauthorized request", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next(w, r)
	}
}

func tokenMatches(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
