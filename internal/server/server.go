package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"ledger-engine/internal/config"
	"ledger-engine/internal/handler"
	"ledger-engine/internal/outbox"
	"ledger-engine/internal/repository"
	"ledger-engine/internal/service"
	natsbus "ledger-engine/internal/transport/nats"
	redisbus "ledger-engine/internal/transport/redis"
	"ledger-engine/internal/transport/webhook"
)

// Server runs the HTTP API and the outbox publisher over one database pool.
type Server struct {
	router    *mux.Router
	server    *http.Server
	db        *sql.DB
	store     *repository.Store
	publisher *outbox.Publisher
	closeBus  func() error
	group     *errgroup.Group
	cancel    context.CancelFunc
	logger    *slog.Logger
	port      string
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sql.Open("postgres", cfg.GetDBConnectionString())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("Successfully connected to database")

	bus, closeBus, err := newEventBus(ctx, cfg, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	// Unit of Work over the shared pool
	store := repository.NewStore(db, logger)

	accountService := service.NewAccountService(store, logger)
	clientService := service.NewClientService(store, logger)
	processor := service.WithLogging(
		service.WithTimeout(service.NewTransactionService(store, logger), cfg.TransactionTimeout),
		logger,
	)

	publisher := outbox.NewPublisher(store.Outbox(), bus, outbox.Config{
		BatchSize:    cfg.OutboxBatchSize,
		PollInterval: cfg.OutboxPollInterval,
		Policy: outbox.PolicyConfig{
			MaxRetries:      uint64(cfg.OutboxRetryAttempts),
			BaseDelay:       cfg.OutboxRetryBaseDelay,
			BreakerFailures: uint32(cfg.OutboxBreakerFailures),
			BreakerCooldown: cfg.OutboxBreakerCooldown,
		},
	}, logger)

	accountHandler := handler.NewAccountHandler(accountService)
	clientHandler := handler.NewClientHandler(clientService)
	transactionHandler := handler.NewTransactionHandler(processor)

	router := mux.NewRouter()
	router.Use(loggingMiddleware(logger))

	router.HandleFunc("/clients", clientHandler.CreateClient).Methods("POST")
	router.HandleFunc("/clients/{client_id}", clientHandler.GetClient).Methods("GET")

	router.HandleFunc("/accounts", accountHandler.CreateAccount).Methods("POST")
	router.HandleFunc("/accounts/{account_id}", accountHandler.GetAccount).Methods("GET")
	router.HandleFunc("/accounts/{account_id}/block", accountHandler.BlockAccount).Methods("POST")

	router.HandleFunc("/transactions", transactionHandler.CreateTransaction).Methods("POST")

	s := &Server{
		router:    router,
		db:        db,
		store:     store,
		publisher: publisher,
		closeBus:  closeBus,
		logger:    logger,
	}
	router.HandleFunc("/health", s.health).Methods("GET")

	return s, nil
}

// newEventBus builds the bus named by cfg.EventBus. The returned func
// releases its connection.
func newEventBus(ctx context.Context, cfg *config.Config, logger *slog.Logger) (outbox.EventBus, func() error, error) {
	noop := func() error { return nil }

	switch cfg.EventBus {
	case config.EventBusNATS:
		nc, err := natsbus.Connect(cfg.NatsURL, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to nats: %w", err)
		}
		logger.Info("Publishing outbox events to NATS", "url", nc.ConnectedUrl(), "prefix", cfg.NatsSubjectPrefix)
		return natsbus.NewBus(nc, cfg.NatsSubjectPrefix), func() error {
			return nc.Drain()
		}, nil
	case config.EventBusRedis:
		rdb, err := redisbus.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info("Publishing outbox events to Redis stream", "addr", cfg.RedisAddr, "stream", cfg.RedisStream)
		return redisbus.NewStreamBus(rdb, cfg.RedisStream, cfg.RedisStreamMaxLen), rdb.Close, nil
	case config.EventBusWebhook:
		logger.Info("Publishing outbox events to webhook", "url", cfg.WebhookURL)
		return webhook.NewBus(cfg.WebhookURL, cfg.WebhookTimeout), noop, nil
	default:
		return outbox.NewLogBus(logger), noop, nil
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if err := s.store.Ping(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy", "error": "database unavailable"})
		return
	}

	pending, err := s.publisher.PendingCount(r.Context())
	if err != nil {
		s.logger.Warn("Failed to count pending outbox events", "error", err)
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":         "healthy",
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"outbox_pending": pending,
	})
}

// loggingMiddleware adds request logging
func loggingMiddleware(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.statusCode,
				"duration", time.Since(start),
				"user_agent", r.UserAgent(),
			)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start binds the HTTP listener and launches the API and the outbox
// publisher in the background. Wait reports the first one that fails.
func (s *Server) Start(port string) (string, error) {
	listener, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return "", err
	}

	addr := listener.Addr().(*net.TCPAddr)
	s.port = strconv.Itoa(addr.Port)

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting server", "port", s.port)

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	s.group = g
	s.cancel = cancel

	g.Go(func() error {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Server failed", "error", err)
			return err
		}
		return nil
	})
	g.Go(func() error {
		return s.publisher.Run(gctx)
	})

	return s.port, nil
}

// Wait blocks until the API and the publisher have both returned.
func (s *Server) Wait() error {
	if s.group == nil {
		return nil
	}
	return s.group.Wait()
}

// Stop gracefully shuts down the API, then the publisher, then the
// connections they share.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	var shutdownErr error
	if s.server != nil {
		shutdownErr = s.server.Shutdown(ctx)
	}

	s.publisher.Stop()
	if s.cancel != nil {
		s.cancel()
	}
	if err := s.Wait(); err != nil && shutdownErr == nil {
		shutdownErr = err
	}

	if err := s.closeBus(); err != nil {
		s.logger.Warn("Failed to close event bus", "error", err)
	}
	if s.db != nil {
		s.db.Close()
	}

	return shutdownErr
}

// GetPort returns the port the server is listening on
func (s *Server) GetPort() string {
	return s.port
}

// GetBaseURL returns the base URL for the server
func (s *Server) GetBaseURL() string {
	return "http://localhost:" + s.port
}

// Publisher exposes the outbox publisher so tests can force a sweep.
func (s *Server) Publisher() *outbox.Publisher {
	return s.publisher
}

// StartServer starts the server with the given configuration
func StartServer(cfg *config.Config) (*Server, string, error) {
	var logger *slog.Logger
	if cfg.ServerPort == "0" {
		// Test environment - use discard logger
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	} else {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	}

	server, err := NewServer(cfg, logger)
	if err != nil {
		return nil, "", err
	}

	port, err := server.Start(cfg.ServerPort)
	if err != nil {
		server.Stop(context.Background())
		return nil, "", err
	}

	return server, port, nil
}
