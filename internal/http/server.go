package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"koperasi/internal/auth"
	"koperasi/internal/cache"
	"koperasi/internal/dashboard"
	"koperasi/internal/ledger"
	applog "koperasi/internal/log"
	"koperasi/internal/middleware/ratelimit"
	"koperasi/internal/middleware/security"
	"koperasi/internal/middleware/trace"
	"koperasi/internal/services"
)

// Deps is everything the API serves from.
type Deps struct {
	Store      ledger.Store
	Bookkeeper *services.Bookkeeper
	Directory  *services.CustomerDirectory
	Ledger     *services.LedgerView
	Dashboard  *dashboard.Aggregator
	Auth       *auth.Service
	Logger     *applog.Logger

	// Location interprets date-only inputs. Defaults to UTC.
	Location *time.Location
	Now      func() time.Time

	RateLimitPerMinute int
	TrustedProxies     []string

	// CacheCleanupInterval defaults to five minutes.
	CacheCleanupInterval time.Duration
}

type Server struct {
	http.Server

	store      ledger.Store
	bookkeeper *services.Bookkeeper
	directory  *services.CustomerDirectory
	ledger     *services.LedgerView
	dashboard  *dashboard.Aggregator
	auth       *auth.Service
	logger     *slog.Logger
	now        func() time.Time

	parser   *RequestParser
	limiter  *ratelimit.Limiter
	detector *security.Detector
	caches   *cache.Manager

	// SSE handlers exit when this closes.
	streams      chan struct{}
	shutdownOnce sync.Once
}

func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = applog.Wrap(slog.Default(), applog.ComponentHTTP)
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	s := &Server{
		store:      deps.Store,
		bookkeeper: deps.Bookkeeper,
		directory:  deps.Directory,
		ledger:     deps.Ledger,
		dashboard:  deps.Dashboard,
		auth:       deps.Auth,
		logger:     logger.Logger,
		now:        now,
		parser:     NewRequestParser(deps.Location, now),
		limiter:    ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: deps.RateLimitPerMinute}),
		detector:   security.NewDetector(),
		caches:     cache.NewManager(logger.Logger),
		streams:    make(chan struct{}),
	}
	for _, cidr := range deps.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", "cidr", cidr, "error", err)
		}
	}

	s.caches.Register(s.limiter)
	if s.auth != nil {
		s.caches.Register(s.auth.Revocations())
	}
	interval := deps.CacheCleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	s.caches.StartCleanup(context.Background(), interval)

	s.Addr = addr
	s.Handler = s.routes(logger)
	s.ReadHeaderTimeout = 5 * time.Second
	s.ReadTimeout = 15 * time.Second
	// No write timeout: dashboard and ledger streams stay open.
	s.IdleTimeout = 60 * time.Second
	return s
}

func (s *Server) routes(logger *applog.Logger) http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		NotFound("no such route").Write(w)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		ErrorResponse(http.StatusMethodNotAllowed, "Method not allowed", "method not allowed").Write(w)
	})

	r.Use(trace.NewMiddleware(logger, s.detector.ExtractClientIP).Middleware)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(s.detector.Middleware)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.limitWrites)
	api.HandleFunc("/auth/signin", s.handleSignIn).Methods(http.MethodPost)

	private := api.NewRoute().Subrouter()
	private.Use(s.requireAuth)

	private.HandleFunc("/auth/signout", s.handleSignOut).Methods(http.MethodPost)
	private.HandleFunc("/auth/me", s.handleMe).Methods(http.MethodGet)

	private.HandleFunc("/dashboard", s.handleDashboard).Methods(http.MethodGet)
	private.HandleFunc("/dashboard/stream", s.handleDashboardStream).Methods(http.MethodGet)

	private.HandleFunc("/deposits", s.handleDeposit).Methods(http.MethodPost)
	private.HandleFunc("/expenses", s.handleExpense).Methods(http.MethodPost)

	private.HandleFunc("/customers", s.handleListCustomers).Methods(http.MethodGet)
	private.HandleFunc("/customers", s.handleCreateCustomer).Methods(http.MethodPost)
	private.HandleFunc("/customers/{id}", s.handleCustomerDetail).Methods(http.MethodGet)
	private.HandleFunc("/customers/{id}", s.handleUpdateCustomer).Methods(http.MethodPut)
	private.HandleFunc("/customers/{id}", s.handleDeleteCustomer).Methods(http.MethodDelete)
	private.HandleFunc("/customers/{id}/loans", s.handleCreateLoan).Methods(http.MethodPost)
	private.HandleFunc("/customers/{id}/withdrawals", s.handleWithdraw).Methods(http.MethodPost)

	private.HandleFunc("/loans/{id}", s.handleEditLoan).Methods(http.MethodPut)
	private.HandleFunc("/loans/{id}/payments", s.handleRecordPayment).Methods(http.MethodPost)

	private.HandleFunc("/transactions", s.handleListTransactions).Methods(http.MethodGet)
	private.HandleFunc("/transactions/stream", s.handleTransactionStream).Methods(http.MethodGet)
	private.HandleFunc("/transactions/{id}", s.handleEditTransaction).Methods(http.MethodPut)
	private.HandleFunc("/transactions/{id}", s.handleDeleteTransaction).Methods(http.MethodDelete)

	return r
}

// limitWrites applies the per-client rate limit to every method except
// GET and HEAD.
func (s *Server) limitWrites(next http.Handler) http.Handler {
	limited := s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		s.logger.WarnContext(r.Context(), "Rate limit exceeded",
			"client_ip", s.detector.ExtractClientIP(r),
			"path", r.URL.Path)
		TooManyRequests().Write(w)
	})(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		limited.ServeHTTP(w, r)
	})
}

// requireAuth accepts a bearer token. Stream routes may pass it as the
// access_token query parameter because EventSource cannot set headers.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil {
			Unauthorized("authentication is not configured").Write(w)
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok && strings.HasSuffix(r.URL.Path, "/stream") {
			token = r.URL.Query().Get("access_token")
		}
		if strings.TrimSpace(token) == "" {
			Unauthorized("missing bearer token").Write(w)
			return
		}
		id, err := s.auth.Verify(strings.TrimSpace(token))
		if err != nil {
			FromError(s.logger, r, err).Write(w)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	FromError(s.logger, r, err).Write(w)
}

// Shutdown ends open streams, stops cache cleanup and drains connections.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		close(s.streams)
		s.caches.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
