package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/agentctl/internal/auth"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var ErrListenAddrRequired = errors.New("observability: status listen address required")

// StatusSource reports the agent's startup state for /status.
type StatusSource interface {
	StatusSnapshot() any
}

// StatusServer is a hosted service exposing /healthz, /status and /metrics.
type StatusServer struct {
	addr      string
	source    StatusSource
	logger    zerolog.Logger
	validator auth.Validator
	started   time.Time
	router    chi.Router
}

type StatusOption func(*StatusServer)

// WithValidator requires a bearer token on /status and /metrics.
func WithValidator(v auth.Validator) StatusOption {
	return func(s *StatusServer) { s.validator = v }
}

func NewStatusServer(addr string, source StatusSource, logger zerolog.Logger, opts ...StatusOption) *StatusServer {
	RegisterMetrics()
	s := &StatusServer{
		addr:    strings.TrimSpace(addr),
		source:  source,
		logger:  logger,
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *StatusServer) Name() string {
	return "status-server"
}

// Handler exposes the router for tests and embedding.
func (s *StatusServer) Handler() http.Handler {
	return s.router
}

func (s *StatusServer) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(s.logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"uptime": time.Since(s.started).String(),
		})
	})
	r.Group(func(r chi.Router) {
		if s.validator != nil {
			r.Use(auth.Middleware(s.validator))
		}
		r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
			if s.source == nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "status unavailable"})
				return
			}
			writeJSON(w, http.StatusOK, s.source.StatusSnapshot())
		})
		r.Handle("/metrics", promhttp.Handler())
	})
	return r
}

// Run serves until ctx is cancelled.
func (s *StatusServer) Run(ctx context.Context) error {
	if s.addr == "" {
		return ErrListenAddrRequired
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("observability.StatusServer.Run listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
