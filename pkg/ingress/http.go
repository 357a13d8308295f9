// Copyright 2024-2026 Aiku AI

package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aiku/chatrelay/pkg/relay"
)

// DefaultMaxBodyBytes bounds webhook bodies when no limit is configured.
const DefaultMaxBodyBytes = 1 << 20

// WebhookHandler accepts platform webhook deliveries on
// POST /webhooks/{platform}.
type WebhookHandler struct {
	normalizer *relay.Normalizer
	router     Router
	maxBody    int64
	enabled    map[relay.Platform]bool
	log        zerolog.Logger
}

// NewWebhookHandler creates a handler accepting events for the given
// platforms. No platforms accepts all of them.
func NewWebhookHandler(normalizer *relay.Normalizer, router Router, maxBody int64, log zerolog.Logger, platforms ...relay.Platform) *WebhookHandler {
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	if len(platforms) == 0 {
		platforms = relay.Platforms
	}
	enabled := make(map[relay.Platform]bool, len(platforms))
	for _, p := range platforms {
		enabled[p] = true
	}
	return &WebhookHandler{
		normalizer: normalizer,
		router:     router,
		maxBody:    maxBody,
		enabled:    enabled,
		log:        log.With().Str("component", "webhooks").Logger(),
	}
}

// Routes returns the chi router serving the webhook endpoints.
func (h *WebhookHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", h.HandleHealth)
	r.Post("/webhooks/{platform}", h.HandleWebhook)
	return r
}

// HandleHealth reports the platforms the listener accepts events for.
func (h *WebhookHandler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	platforms := make([]relay.Platform, 0, len(h.enabled))
	for _, p := range relay.Platforms {
		if h.enabled[p] {
			platforms = append(platforms, p)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "platforms": platforms})
}

// HandleWebhook normalizes and routes one webhook delivery. Once the body
// is read the platform always gets 200, so it does not redeliver events the
// relay chose to skip.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	platform, err := relay.ParsePlatform(chi.URLParam(r, "platform"))
	if err != nil || !h.enabled[platform] {
		http.Error(w, "unknown platform", http.StatusNotFound)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if !json.Valid(body) {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	log := h.log.With().Str("platform", string(platform)).Logger()
	start := time.Now()
	msg, err := h.normalizer.Normalize(platform, body)
	// Deliveries finish even if the platform closes the connection.
	out := dispatch(context.WithoutCancel(r.Context()), h.router, log, msg, err)
	log.Debug().
		Str("status", out.Status).
		Str("message_id", out.MessageID).
		Dur("duration", time.Since(start)).
		Msg("Handled webhook")

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		log.Warn().Err(err).Msg("Failed to write webhook response")
	}
}

// Server runs the webhook listener.
type Server struct {
	server *http.Server
	log    zerolog.Logger
}

// NewServer creates a listener on addr serving handler.
func NewServer(addr string, handler http.Handler, log zerolog.Logger) *Server {
	return &Server{
		server: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		log: log.With().Str("component", "listener").Logger(),
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.server.Addr).Msg("Starting webhook listener")
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info().Msg("Webhook listener stopped")
	return nil
}
