package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"feeshare/core"
	"feeshare/core/events"
	"feeshare/services/feeshared/journal"
	"feeshare/services/feeshared/middleware"
)

// Journal is the event store surface served by the API.
type Journal interface {
	List(ctx context.Context, filter journal.Filter) ([]journal.Entry, error)
	Replay(ctx context.Context) (*events.Totals, error)
	Subscribe(buffer int) *journal.Subscription
	Health() journal.Health
}

// Config wires the HTTP API.
type Config struct {
	Service     string
	Node        *core.Node
	Journal     Journal
	Auth        middleware.AuthConfig
	RateLimit   middleware.RateLimit
	CORSOrigins []string
	Logger      *slog.Logger
	// Metrics serves /metrics. Defaults to the global Prometheus registry.
	Metrics http.Handler
	// StreamBuffer sizes each websocket subscriber's live buffer.
	StreamBuffer int
}

// Server exposes the node over HTTP.
type Server struct {
	node         *core.Node
	journal      Journal
	logger       *slog.Logger
	handler      http.Handler
	streamBuffer int
}

// New builds the router.
func New(cfg Config) (*Server, error) {
	if cfg.Node == nil {
		return nil, errors.New("server: node required")
	}
	if cfg.Journal == nil {
		return nil, errors.New("server: journal required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	streamBuffer := cfg.StreamBuffer
	if streamBuffer <= 0 {
		streamBuffer = defaultStreamBuffer
	}
	s := &Server{
		node:         cfg.Node,
		journal:      cfg.Journal,
		logger:       logger.With(slog.String("component", "server")),
		streamBuffer: streamBuffer,
	}

	obs := middleware.NewObservability(cfg.Service, logger)
	auth := middleware.NewAuthenticator(cfg.Auth, logger)
	limiter := middleware.NewRateLimiter(cfg.RateLimit, logger)

	r := chi.NewRouter()
	r.Use(middleware.CORS(middleware.CORSConfig{AllowedOrigins: cfg.CORSOrigins}))
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", metrics)

	r.Route("/v1", func(v1 chi.Router) {
		v1.Group(func(public chi.Router) {
			public.Use(obs.Middleware("query"))
			public.Use(limiter.Middleware("query"))
			public.Get("/pool", s.handleStakingPool)
			public.Get("/accounts/{addr}", s.handleAccount)
			public.Get("/balances/{addr}", s.handleBalances)
			public.Get("/custody", s.handleCustody)
			public.Get("/pools", s.handlePools)
			public.Get("/pools/{pool}", s.handlePool)
			public.Get("/pools/{pool}/quote", s.handleQuote)
			public.Get("/events", s.handleEvents)
			public.Get("/events/replay", s.handleReplay)
			public.Get("/events/stream", s.handleStream)
		})
		v1.Group(func(private chi.Router) {
			private.Use(obs.Middleware("command"))
			private.Use(auth.Middleware)
			private.Use(limiter.Middleware("command"))
			private.Post("/approve", s.handleApprove)
			private.Post("/transfer", s.handleTransfer)
			private.Post("/swap", s.handleSwap)
			private.Post("/stake", s.handleStake)
			private.Post("/withdraw", s.handleWithdraw)
			private.Post("/claim", s.handleClaim)
			private.Post("/exit", s.handleExit)
			private.Post("/distribute", s.handleDistribute)
			private.Post("/convert", s.handleConvert)
			private.Post("/pools/{pool}/configure", s.handleConfigure)
			private.Post("/pools/{pool}/harvest", s.handleHarvest)
		})
	})

	s.handler = obs.Trace(r)
	return s, nil
}

type healthResponse struct {
	Status  string         `json:"status"`
	Journal journal.Health `json:"journal"`
}

// handleHealth stays 200 while the process serves; a journal that lost
// events reports "degraded".
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	health := s.journal.Health()
	status := "ok"
	if health.Degraded() {
		status = "degraded"
	}
	middleware.WriteJSON(w, http.StatusOK, healthResponse{Status: status, Journal: health})
}

// Handler returns the instrumented root handler.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("request_id", middleware.RequestIDFrom(r.Context())),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}
	middleware.WriteError(w, status, err)
}
