package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"budgetwise/internal/allocation"
	"budgetwise/internal/core"
	"budgetwise/internal/log"
	"budgetwise/internal/middleware/ratelimit"
	"budgetwise/internal/middleware/security"
	"budgetwise/internal/middleware/trace"
	"budgetwise/internal/services"

	"github.com/rs/cors"
	"github.com/shopspring/decimal"
)

// Allocator runs the allocation engine behind the API.
type Allocator interface {
	Preview(ctx context.Context, userID string, year, month int) (core.Allocation, error)
	Budget(ctx context.Context, userID string, year, month int) (core.BudgetBreakdown, error)
	Apply(ctx context.Context, userID string, year, month int, ov allocation.Overrides) (core.AllocationRun, error)
	History(ctx context.Context, userID string, limit int) ([]core.AllocationRun, error)
}

// Ledger manages the user's income, expenses, subscriptions and goals.
type Ledger interface {
	CreateIncome(ctx context.Context, e core.IncomeEntry) (core.IncomeEntry, error)
	ListIncome(ctx context.Context, userID string) ([]core.IncomeEntry, error)
	UpdateIncome(ctx context.Context, id string, amount decimal.Decimal, source string) (core.IncomeEntry, error)
	DeleteIncome(ctx context.Context, id string) (core.IncomeEntry, error)

	CreateExpense(ctx context.Context, e core.ExpenseEntry) (core.ExpenseEntry, error)
	ListExpenses(ctx context.Context, userID string, r core.DateRange) ([]core.ExpenseEntry, error)
	UpdateExpense(ctx context.Context, id string, amount decimal.Decimal, category string) (core.ExpenseEntry, error)
	DeleteExpense(ctx context.Context, id string) (core.ExpenseEntry, error)

	CreateSubscription(ctx context.Context, sub core.SubscriptionObligation) (core.SubscriptionObligation, error)
	ListSubscriptions(ctx context.Context, userID string) ([]core.SubscriptionObligation, error)
	UpdateSubscription(ctx context.Context, id, name string, price decimal.Decimal, dueDay int) (core.SubscriptionObligation, error)
	MarkSubscriptionPaid(ctx context.Context, id string, paid bool) (core.SubscriptionObligation, error)
	DeleteSubscription(ctx context.Context, id string) (core.SubscriptionObligation, error)

	CreateGoal(ctx context.Context, g core.SavingsGoal) (core.SavingsGoal, error)
	ListGoals(ctx context.Context, userID string) ([]core.SavingsGoal, error)
	UpdateGoal(ctx context.Context, id, name string, category core.GoalCategory, target decimal.Decimal) (core.SavingsGoal, error)
	DeleteGoal(ctx context.Context, id string) (core.SavingsGoal, error)
}

// Onboarder performs first-time setup.
type Onboarder interface {
	Onboard(ctx context.Context, req services.OnboardingRequest) (core.AllocationPolicy, error)
}

// Services groups the application services the API exposes.
type Services struct {
	Allocations Allocator
	Ledger      Ledger
	Onboarding  Onboarder
}

// ReadinessCheck reports whether a dependency can serve requests.
type ReadinessCheck func(ctx context.Context) error

// Options tune the server's middleware.
type Options struct {
	CORSAllowedOrigins []string
	RateLimitPerMinute int
	TrustedProxies     []string
	ReadinessChecks    map[string]ReadinessCheck
}

type Server struct {
	http.Server

	svc     Services
	parser  *RequestParser
	checks  map[string]ReadinessCheck
	logger  *log.Logger
	started time.Time

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, svc Services, opts Options, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	detector := security.NewDetector()
	for _, cidr := range opts.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", log.FieldError, err)
		}
	}

	s := &Server{
		svc:      svc,
		parser:   NewRequestParser(),
		checks:   opts.ReadinessChecks,
		logger:   logger,
		started:  time.Now(),
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}, logger),
		detector: detector,
		tracer:   trace.NewMiddleware(detector.ExtractClientIP, logger),
	}

	mux := http.NewServeMux()
	s.routes(mux)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.middleware(mux, opts),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("POST /api/allocation", s.handleAllocation)
	mux.HandleFunc("GET /api/budget", s.handleBudget)
	mux.HandleFunc("POST /api/savings/allocate", s.handleSavingsAllocate)
	mux.HandleFunc("POST /api/apply-allocation", s.handleApplyAllocation)
	mux.HandleFunc("GET /api/allocation/runs", s.handleAllocationRuns)

	mux.HandleFunc("GET /api/income", s.handleListIncome)
	mux.HandleFunc("POST /api/income", s.handleCreateIncome)
	mux.HandleFunc("PATCH /api/income", s.handleUpdateIncome)
	mux.HandleFunc("DELETE /api/income", s.handleDeleteIncome)

	mux.HandleFunc("GET /api/expenses", s.handleListExpenses)
	mux.HandleFunc("POST /api/expenses", s.handleCreateExpense)
	mux.HandleFunc("PATCH /api/expenses", s.handleUpdateExpense)
	mux.HandleFunc("DELETE /api/expenses", s.handleDeleteExpense)

	mux.HandleFunc("GET /api/subscriptions", s.handleListSubscriptions)
	mux.HandleFunc("POST /api/subscriptions", s.handleCreateSubscription)
	mux.HandleFunc("PATCH /api/subscriptions", s.handleUpdateSubscription)
	mux.HandleFunc("DELETE /api/subscriptions", s.handleDeleteSubscription)
	mux.HandleFunc("POST /api/subscriptions/paid", s.handleSubscriptionPaid)

	mux.HandleFunc("GET /api/savings", s.handleListGoals)
	mux.HandleFunc("POST /api/savings", s.handleCreateGoal)
	mux.HandleFunc("PATCH /api/savings", s.handleUpdateGoal)
	mux.HandleFunc("DELETE /api/savings", s.handleDeleteGoal)

	mux.HandleFunc("POST /api/onboarding", s.handleOnboarding)
}

// middleware wraps h, outermost first: tracing, request logger, security
// headers, suspicious request logging, CORS, rate limiting.
func (s *Server) middleware(h http.Handler, opts Options) http.Handler {
	origins := opts.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	h = s.limiter.Middleware(s.detector.ExtractClientIP, ratelimit.Mutating, s.onRateLimit)(h)
	h = cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", trace.HeaderRequestID},
		ExposedHeaders: []string{trace.HeaderRequestID},
		MaxAge:         600,
	}).Handler(h)
	h = s.detector.Middleware(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = log.RequestIDMiddleware(trace.RequestID)(h)
	h = log.Middleware(s.logger)(h)
	return s.tracer.Middleware(h)
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	ErrorResponse(http.StatusTooManyRequests, "RateLimited", "rate limit exceeded, retry later").Write(w)
}

// Shutdown stops the rate limiter and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
