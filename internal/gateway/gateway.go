// ABOUTME: Gateway construction, route registration, and server lifecycle.
// ABOUTME: Owns the session registry and blob store; serves agent and controller routes.

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/musterhq/muster/internal/auth"
	"github.com/musterhq/muster/internal/blob"
	"github.com/musterhq/muster/internal/config"
	"github.com/musterhq/muster/internal/session"
)

// Gateway is the rendezvous server: agents register and poll on the
// /api routes, the controller drives them through the /admin routes.
type Gateway struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *session.Registry
	blobs    *blob.Store
	verifier *auth.Verifier
	handler  http.Handler
}

// New creates a gateway from configuration: an empty session registry, a
// blob store rooted at the configured upload directory, and, when an
// admin secret is configured, bearer-token protection for the controller
// routes.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	registry := session.New(session.Options{
		TTL:           cfg.Sessions.TTL,
		SweepInterval: cfg.Sessions.SweepInterval,
		TokenLen:      cfg.Sessions.TokenLen,
		Logger:        logger.With("component", "session"),
	})

	blobs, err := blob.NewStore(cfg.Storage.UploadDir, cfg.Storage.IndexPath, logger)
	if err != nil {
		registry.Close()
		return nil, fmt.Errorf("creating blob store: %w", err)
	}

	g := &Gateway{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		blobs:    blobs,
	}

	if cfg.Auth.AdminSecret != "" {
		g.verifier, err = auth.NewVerifier([]byte(cfg.Auth.AdminSecret))
		if err != nil {
			g.Close()
			return nil, fmt.Errorf("creating token verifier: %w", err)
		}
	}

	g.handler = g.routes()
	return g, nil
}

// routes builds the HTTP mux. Agent routes are always open (agents
// authenticate by knowing a live session id); controller routes are
// wrapped with bearer-token auth when a secret is configured.
func (g *Gateway) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", g.handleHealth)

	// Agent API
	mux.HandleFunc("POST /api/register", g.handleRegister)
	mux.HandleFunc("POST /api/poll", g.handlePoll)
	mux.HandleFunc("POST /api/result", g.handleResult)
	mux.HandleFunc("POST /api/upload", g.handleUpload)
	mux.HandleFunc("POST /api/chat/send", g.handleChatSend)
	mux.HandleFunc("GET /api/chat/history/{id}", g.handleChatHistory)

	// Controller API
	admin := func(h http.HandlerFunc) http.Handler {
		if g.verifier == nil {
			return h
		}
		return auth.Middleware(g.verifier)(h)
	}
	mux.Handle("GET /admin/list", admin(g.handleAdminList))
	mux.Handle("POST /admin/command", admin(g.handleAdminCommand))
	mux.Handle("GET /admin/response/{cmd_id}", admin(g.handleAdminResponse))
	mux.Handle("GET /admin/files", admin(g.handleAdminFiles))
	mux.Handle("GET /admin/download_file/{name}", admin(g.handleAdminDownload))
	mux.Handle("GET /admin/stream_frame/{id}", admin(g.handleAdminStreamFrame))
	mux.Handle("GET /admin/stream_status/{id}", admin(g.handleAdminStreamStatus))

	return mux
}

// Handler returns the gateway's HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// Run serves the gateway until ctx is cancelled, then shuts down
// gracefully.
func (g *Gateway) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              g.cfg.Server.HTTPAddr,
		Handler:           g.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("http server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		g.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

// Close releases the gateway's resources.
func (g *Gateway) Close() {
	g.registry.Close()
	if err := g.blobs.Close(); err != nil {
		g.logger.Warn("closing blob store", "error", err)
	}
}

// handleHealth handles GET /healthz.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON encodes v as the JSON response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError sends a JSON error body with the given status.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON decodes the request body into v. An empty body decodes to
// the zero value so the per-field checks report the missing field instead
// of a generic parse error.
func decodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
