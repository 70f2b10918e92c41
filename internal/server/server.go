// Package server sets up the HTTP server with all routes.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"

	"github.com/mbd888/ledger/internal/config"
	"github.com/mbd888/ledger/internal/health"
	"github.com/mbd888/ledger/internal/idgen"
	"github.com/mbd888/ledger/internal/ledger"
	"github.com/mbd888/ledger/internal/logging"
	"github.com/mbd888/ledger/internal/metrics"
	"github.com/mbd888/ledger/internal/money"
	"github.com/mbd888/ledger/internal/realtime"
	"github.com/mbd888/ledger/internal/reconciliation"
	"github.com/mbd888/ledger/internal/scheduler"
	"github.com/mbd888/ledger/internal/traces"
)

// Server wraps the HTTP server and dependencies.
type Server struct {
	cfg *config.Config

	db           *sql.DB
	accounts     *ledger.PostgresStore
	coordinator  *ledger.TransferCoordinator
	ledgerH      *ledger.Handler
	journal      *reconciliation.Journal
	orchestrator *reconciliation.Orchestrator
	reconH       *reconciliation.Handler
	hub          *realtime.Hub
	sched        *scheduler.Scheduler
	health       *health.Registry

	router         *gin.Engine
	httpSrv        *http.Server
	logger         *slog.Logger
	cancelRunCtx   context.CancelFunc
	tracerShutdown func(context.Context) error

	ready atomic.Bool
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a new server instance, wiring the ledger and reconciliation
// domains onto Postgres storage and a shared realtime hub.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, cfg.LogFormat),
	}
	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	tracerShutdown, err := traces.Init(ctx, cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize tracing", "error", err)
		tracerShutdown = func(context.Context) error { return nil }
	}
	s.tracerShutdown = tracerShutdown

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	s.db = db
	s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

	maxAmount, ok := money.Parse(cfg.MaxTransactionAmount)
	if !ok {
		return nil, fmt.Errorf("invalid MAX_TRANSACTION_AMOUNT %q", cfg.MaxTransactionAmount)
	}

	s.hub = realtime.NewHub(s.logger)

	s.accounts = ledger.NewPostgresStore(db)
	validator := ledger.NewCommandValidator(s.accounts, maxAmount)
	s.coordinator = ledger.NewTransferCoordinator(db, validator, cfg.AllowOverdraft, s.hub)
	s.ledgerH = ledger.NewHandler(s.accounts, s.coordinator, s.logger)

	s.journal = reconciliation.NewJournal(db)
	ledgerReader := reconciliation.NewLedgerReader(db)
	exact := reconciliation.NewExactMatcher(float64(cfg.TimestampToleranceSeconds))
	fuzzy := reconciliation.NewFuzzyMatcher(
		reconciliation.FuzzyWeights{
			Amount:    cfg.FuzzyWeights.Amount,
			Timestamp: cfg.FuzzyWeights.Timestamp,
			Metadata:  cfg.FuzzyWeights.Metadata,
		},
		cfg.AmountTolerancePercent, float64(cfg.TimestampToleranceSeconds), cfg.MinMatchScore,
	)
	s.orchestrator = reconciliation.NewOrchestrator(s.journal, ledgerReader, exact, fuzzy, s.hub)
	s.reconH = reconciliation.NewHandler(s.orchestrator, s.journal, s.logger)

	if cfg.SchedulerEnabled {
		sources := make([]scheduler.Source, 0, len(cfg.ScheduledSources))
		for _, name := range cfg.ScheduledSources {
			sources = append(sources, scheduler.Source{
				Tag: reconciliation.SourceTag(name),
				Params: reconciliation.LoadParams{
					FilePath:  cfg.ScheduledFilePathTemplate,
					BaseURL:   cfg.ScheduledBaseURL,
					AuthToken: cfg.ScheduledAuthToken,
				},
			})
		}
		s.sched = scheduler.New(s.orchestrator, sources, cfg.SchedulerHour, s.logger)
	}

	s.health = health.NewRegistry()
	s.health.Register("database", func(ctx context.Context) health.Status {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			return health.Status{Name: "database", Healthy: false, Detail: err.Error()}
		}
		return health.Status{Name: "database", Healthy: true}
	})

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()
	s.ready.Store(true)

	return s, nil
}

func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
	s.router.Use(s.timeoutMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		logger := logging.L(c.Request.Context())

		switch {
		case status >= 500:
			logger.Error("request completed", "method", c.Request.Method, "path", path, "status", status, "latency_ms", latency.Milliseconds())
		case status >= 400:
			logger.Warn("request completed", "method", c.Request.Method, "path", path, "status", status, "latency_ms", latency.Milliseconds())
		default:
			logger.Info("request completed", "method", c.Request.Method, "path", path, "status", status, "latency_ms", latency.Milliseconds())
		}
	}
}

func (s *Server) timeoutMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Upgrade") == "websocket" {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.HTTPTimeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func generateRequestID() string {
	return idgen.Hex(16)
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.healthHandler)
	s.router.GET("/readyz", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())
	s.router.GET("/ws", gin.WrapF(s.hub.HandleWebSocket))

	ledgerGroup := s.router.Group("/ledger")
	s.ledgerH.RegisterRoutes(ledgerGroup)

	reconGroup := s.router.Group("/recon")
	s.reconH.RegisterRoutes(reconGroup)
}

// HealthResponse is returned by /healthz.
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy, statuses := s.health.CheckAll(c.Request.Context())
	checks := make(map[string]string, len(statuses))
	for _, st := range statuses {
		if st.Healthy {
			checks[st.Name] = "healthy"
		} else {
			checks[st.Name] = "unhealthy"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}

	healthy, statuses := s.health.CheckAll(c.Request.Context())
	checks := make(map[string]string, len(statuses))
	for _, st := range statuses {
		if st.Healthy {
			checks[st.Name] = "healthy"
		} else {
			checks[st.Name] = "unhealthy"
		}
	}
	if !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "checks": checks})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready", "checks": checks})
}

// Router returns the gin router for testing.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server and background workers, blocking until a
// shutdown signal, context cancellation, or fatal server error occurs.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              s.cfg.APIHost + ":" + s.cfg.APIPort,
		Handler:           s.router,
		ReadTimeout:       s.cfg.HTTPReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      s.cfg.HTTPWriteTimeout,
		IdleTimeout:       s.cfg.HTTPIdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", s.httpSrv.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go s.hub.Run(runCtx)

	if s.sched != nil {
		if err := s.sched.Start(runCtx); err != nil {
			s.logger.Error("failed to start scheduler", "error", err)
		}
	}

	go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server and background workers.
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	if s.sched != nil {
		s.sched.Stop()
		s.logger.Info("scheduler stopped")
	}

	if s.tracerShutdown != nil {
		if err := s.tracerShutdown(ctx); err != nil {
			s.logger.Error("tracer shutdown error", "error", err)
		} else {
			s.logger.Info("tracer shutdown complete")
		}
	}

	if err := s.db.Close(); err != nil {
		s.logger.Error("database close error", "error", err)
	} else {
		s.logger.Info("database connection closed")
	}

	s.logger.Info("server stopped")
	return nil
}
