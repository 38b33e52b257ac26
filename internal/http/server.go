package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ulule/limiter/v3"

	"billbuddy/internal/core"
	applog "billbuddy/internal/log"
)

// ExpenseService is the collaborator the shell drives.
type ExpenseService interface {
	CreateExpense(ctx context.Context, in core.ExpenseInput) (core.Expense, error)
	ListExpenses(ctx context.Context) ([]core.Expense, error)
	GetExpense(ctx context.Context, id int64) (core.Expense, error)
	UpdateExpense(ctx context.Context, id int64, in core.ExpenseInput) (core.Expense, error)
	DeleteExpense(ctx context.Context, id int64) error
	ResetExpenses(ctx context.Context) (int64, error)
	SumByCurrency(ctx context.Context, start, end time.Time) (core.Totals, error)
	DailyTotal(ctx context.Context) (core.Totals, error)
	Summary(ctx context.Context) (core.Summary, error)
}

// Pinger is implemented by stores that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	*http.Server
	svc             ExpenseService
	pinger          Pinger
	logger          *applog.Logger
	defaultCurrency core.Currency
	loc             *time.Location
	limiter         *limiter.Limiter
	started         time.Time
}

// Option customises a Server.
type Option func(*Server)

// WithDefaultCurrency sets the currency applied when a form leaves it blank.
func WithDefaultCurrency(c core.Currency) Option {
	return func(s *Server) { s.defaultCurrency = c }
}

// WithPinger enables the storage check of /readyz.
func WithPinger(p Pinger) Option {
	return func(s *Server) { s.pinger = p }
}

// WithLocation sets the zone used to read date query parameters.
func WithLocation(loc *time.Location) Option {
	return func(s *Server) { s.loc = loc }
}

// WithRateLimit caps each client at limit API requests per window.
func WithRateLimit(limit int, window time.Duration) Option {
	return func(s *Server) { s.limiter = newRateLimiter(limit, window) }
}

func NewServer(addr string, svc ExpenseService, logger *applog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	s := &Server{
		svc:             svc,
		logger:          logger.WithComponent(applog.ComponentHTTP),
		defaultCurrency: core.DefaultCurrency,
		loc:             time.Local,
		started:         time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.Server = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16, // 64KB
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(applog.Middleware(s.logger))
	r.Use(securityHeaders)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api", func(r chi.Router) {
		if s.limiter != nil {
			r.Use(rateLimit(s.limiter))
		}
		r.Get("/currencies", s.handleCurrencies)

		r.Route("/expenses", func(r chi.Router) {
			r.Get("/", s.handleListExpenses)
			r.Post("/", s.handleCreateExpense)
			r.Delete("/", s.handleResetExpenses)

			r.Get("/{id}", s.handleGetExpense)
			r.Put("/{id}", s.handleUpdateExpense)
			r.Delete("/{id}", s.handleDeleteExpense)
		})

		r.Route("/summary", func(r chi.Router) {
			r.Get("/", s.handleSummary)
			r.Get("/daily", s.handleDailyTotal)
			r.Get("/range", s.handleRangeTotal)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).String(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			applog.FromContext(r.Context()).ErrorContext(r.Context(), "Readiness check failed", applog.FieldError, err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready", "storage": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "storage": "ok"})
}
