package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"smartwallet/pkg/entities"
	"smartwallet/pkg/idempotency"
	"smartwallet/pkg/ledger"
	"smartwallet/pkg/logging"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Server exposes the ledger over HTTP. The user id is taken from the path;
// authentication happens in front of this service.
type Server struct {
	ledger   *ledger.Service
	entities entities.Store
	router   *mux.Router
	server   *http.Server
	config   ServerConfig
	logger   *logging.Logger

	idempotency *idempotency.Guard
	httpMetrics *HTTPMetrics
	metrics     http.Handler
	health      func(ctx context.Context) error
	started     time.Time
}

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	// Address to listen on (e.g., ":8080")
	Address string `mapstructure:"address"`

	// ReadTimeout for HTTP requests
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout for HTTP responses
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// RequestTimeout bounds the ledger work done for one request.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// ShutdownTimeout bounds the graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DefaultServerConfig returns a default configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:         ":8080",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		RequestTimeout:  8 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithIdempotency replays POST responses for repeated Idempotency-Key headers.
func WithIdempotency(guard *idempotency.Guard) Option {
	return func(s *Server) { s.idempotency = guard }
}

// WithHTTPMetrics records request counts and latency per route.
func WithHTTPMetrics(m *HTTPMetrics) Option {
	return func(s *Server) { s.httpMetrics = m }
}

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithHealthCheck makes /health report unhealthy while check fails.
func WithHealthCheck(check func(ctx context.Context) error) Option {
	return func(s *Server) { s.health = check }
}

// NewServer creates the API server.
func NewServer(svc *ledger.Service, store entities.Store, config ServerConfig, opts ...Option) *Server {
	s := &Server{
		ledger:   svc,
		entities: store,
		config:   config,
		started:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger).Named("api")

	s.router = s.routes()
	s.server = &http.Server{
		Addr:         config.Address,
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	if s.httpMetrics != nil {
		r.Use(s.httpMetrics.Middleware)
	}
	r.Use(s.recoverPanics)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}

	users := r.PathPrefix("/users/{userID}").Subrouter()
	users.Use(s.withRequestTimeout)
	if s.idempotency != nil {
		users.Use(s.idempotency.Middleware)
	}

	users.HandleFunc("/accounts", s.handleGetAccounts).Methods(http.MethodGet)
	users.HandleFunc("/accounts/sync", s.handleSyncAccounts).Methods(http.MethodPost)

	users.HandleFunc("/transactions", s.handleRecordTransaction).Methods(http.MethodPost)
	users.HandleFunc("/transactions", s.handleListTransactions).Methods(http.MethodGet)

	users.HandleFunc("/transfers/borrow", s.handleBorrow).Methods(http.MethodPost)
	users.HandleFunc("/transfers/repay", s.handleRepay).Methods(http.MethodPost)
	users.HandleFunc("/transfers/withdraw", s.handleWithdraw).Methods(http.MethodPost)
	users.HandleFunc("/transfers", s.handleTransferHistory).Methods(http.MethodGet)

	users.HandleFunc("/contributions", s.handleContribution).Methods(http.MethodPost)
	users.HandleFunc("/rollover", s.handleRollover).Methods(http.MethodPost)

	users.HandleFunc("/debts", s.handleCreateDebt).Methods(http.MethodPost)
	users.HandleFunc("/debts", s.handleListDebts).Methods(http.MethodGet)
	users.HandleFunc("/debts/{id}", s.handleGetDebt).Methods(http.MethodGet)
	users.HandleFunc("/investments", s.handleCreateInvestment).Methods(http.MethodPost)
	users.HandleFunc("/investments", s.handleListInvestments).Methods(http.MethodGet)
	users.HandleFunc("/investments/{id}", s.handleGetInvestment).Methods(http.MethodGet)
	users.HandleFunc("/goals", s.handleCreateGoal).Methods(http.MethodPost)
	users.HandleFunc("/goals", s.handleListGoals).Methods(http.MethodGet)
	users.HandleFunc("/goals/{id}", s.handleGetGoal).Methods(http.MethodGet)

	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves HTTP until Stop is called. Errors other than a clean
// shutdown are sent on the returned channel.
func (s *Server) Start() <-chan error {
	errs := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("address", s.config.Address))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()
	return errs
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// handleHealth reports liveness and, when configured, backend health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"uptime":    time.Since(s.started).String(),
	}

	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health(ctx); err != nil {
			response["status"] = "unhealthy"
			response["error"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, response)
			return
		}
	}

	writeJSON(w, http.StatusOK, response)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
