package rpc

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"otcdesk/audit"
	"otcdesk/core/events"
	"otcdesk/core/pricing"
	"otcdesk/native/otc"
	"otcdesk/observability"
	"otcdesk/storage"
)

// ServerConfig wires the server's collaborators.
type ServerConfig struct {
	Store      *storage.Store
	Feeds      pricing.FeedReader
	Emitter    events.Emitter
	Journal    *audit.Journal
	Logger     *slog.Logger
	AdminToken string
	RateLimit  RateLimit
	NowFn      func() int64
}

// Server exposes every desk operation over JSON-RPC 2.0.
type Server struct {
	store      *storage.Store
	feeds      pricing.FeedReader
	emitter    events.Emitter
	journal    *audit.Journal
	logger     *slog.Logger
	metrics    *observability.DeskMetrics
	adminToken string
	limiter    *RateLimiter
	idem       *idempotencyCache
	tracer     trace.Tracer
	router     chi.Router
	nowFn      func() int64
}

// NewServer builds the HTTP surface: POST /rpc, GET /healthz, GET /metrics.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:      cfg.Store,
		feeds:      cfg.Feeds,
		emitter:    cfg.Emitter,
		journal:    cfg.Journal,
		logger:     logger,
		metrics:    observability.Desk(),
		adminToken: cfg.AdminToken,
		limiter:    NewRateLimiter(cfg.RateLimit),
		idem:       newIdempotencyCache(10 * time.Minute),
		tracer:     otel.Tracer("otcdesk/rpc"),
		nowFn:      cfg.NowFn,
	}
	router := chi.NewRouter()
	router.Use(chimiddleware.Recoverer)
	router.Use(chimiddleware.RealIP)
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())
	router.Post("/rpc", s.handleRPC)
	s.router = router
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// withEngine runs fn with an engine bound to a fresh read-write transaction.
// A handler error rolls back every mutation, so precondition checks and
// settlement transfers land atomically or not at all.
func (s *Server) withEngine(fn func(eng *otc.Engine, tx *storage.Tx) error) error {
	return s.store.InTransaction(func(tx *storage.Tx) error {
		eng := otc.NewEngine()
		eng.SetState(tx)
		eng.SetLedger(tx)
		eng.SetFeedReader(s.feeds)
		eng.SetEmitter(s.emitter)
		if s.nowFn != nil {
			eng.SetNowFunc(s.nowFn)
		}
		return fn(eng, tx)
	})
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow(clientID(r)) {
		s.metrics.RecordThrottle("rate_limit")
		http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeResponse(w, s.logger, Response{JSONRPC: "2.0", Error: &Error{Code: codeParseError, Message: "parse error"}})
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		writeResponse(w, s.logger, Response{JSONRPC: "2.0", ID: req.ID, Error: &Error{Code: codeInvalidRequest, Message: "invalid request"}})
		return
	}

	spec, ok := methods[req.Method]
	if !ok {
		writeResponse(w, s.logger, Response{JSONRPC: "2.0", ID: req.ID, Error: &Error{Code: codeMethodNotFound, Message: "method not found: " + req.Method}})
		return
	}
	if spec.admin && !tokenMatches(bearerToken(r), s.adminToken) {
		writeResponse(w, s.logger, Response{JSONRPC: "2.0", ID: req.ID, Error: &Error{Code: codeAuthorization, Message: "admin token required"}})
		return
	}

	var idemKey string
	if spec.mutating {
		idemKey = s.idem.key(r)
		if cached, hit := s.idem.lookup(idemKey); hit {
			cached.ID = req.ID
			writeResponse(w, s.logger, cached)
			return
		}
	}

	ctx, span := s.tracer.Start(r.Context(), req.Method,
		trace.WithAttributes(attribute.String("rpc.method", req.Method)))
	started := time.Now()
	result, err := spec.handler(ctx, s, req.Params)
	duration := time.Since(started)
	if err != nil {
		span.RecordError(err)
	}
	span.End()

	s.metrics.ObserveRequest(req.Method, duration, err)

	resp := Response{JSONRPC: "2.0", ID: req.ID}
	if err != nil {
		resp.Error = errorFromEngine(err)
		s.logger.Warn("rpc call failed", "method", req.Method, "error", err, "duration", duration)
	} else {
		resp.Result = result
	}
	if spec.mutating && err == nil {
		s.idem.store(idemKey, resp)
	}
	writeResponse(w, s.logger, resp)
}

func writeResponse(w http.ResponseWriter, logger *slog.Logger, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error("encode rpc response", "error", err)
	}
}

type handlerFunc func(ctx context.Context, s *Server, params json.RawMessage) (any, error)

type methodSpec struct {
	handler  handlerFunc
	admin    bool
	mutating bool
}
