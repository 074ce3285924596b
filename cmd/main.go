package main

import (
	"context"
	"errors"
	"fmt"
	"lending-ledger/internal/api"
	"lending-ledger/internal/batch"
	"lending-ledger/internal/config"
	"lending-ledger/internal/domain/bank"
	"lending-ledger/internal/domain/customer"
	"lending-ledger/internal/domain/loan"
	"lending-ledger/internal/event"
	"lending-ledger/internal/infrastructure/database/postgres"
	"lending-ledger/internal/infrastructure/logging"
	"lending-ledger/internal/pkg/money"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

func main() {
	cfg, logger := initializeApp()

	dbPool := initializeDatabase(cfg, logger)
	defer closeDatabase(dbPool, logger)
	rabbitMQConn := setupEventBroker(cfg, logger)
	loanService, customerService, bankService := initializeServices(cfg, rabbitMQConn, dbPool, logger)

	sweepJob := batch.NewCompoundingSweepJob(loanService, logger)

	cronScheduler := startBatchJobs(cfg, logger, sweepJob)
	router := api.SetupRouter(loanService, customerService, bankService, cfg, logger)

	srv, serverErrors, shutdownChan := startServer(cfg, router, logger)
	handleShutdown(srv, cronScheduler, rabbitMQConn, shutdownChan, serverErrors, logger)
}

func initializeApp() (*config.Config, *slog.Logger) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.Logger)
	slog.SetDefault(logger)
	logger.Info("Application starting...", "config_source", viper.ConfigFileUsed())

	return cfg, logger
}

func initializeDatabase(cfg *config.Config, logger *slog.Logger) *pgxpool.Pool {
	logger.Info("Initializing database connection pool...")
	dbPool, err := postgres.NewConnectionPool(context.Background(), cfg.Database, logger)
	if err != nil {
		logger.Error("Failed to initialize database connection pool", "error", err)
		os.Exit(1)
	}
	return dbPool
}

func closeDatabase(dbPool *pgxpool.Pool, logger *slog.Logger) {
	logger.Info("Closing database connection pool...")
	dbPool.Close()
}

func initializeServices(cfg *config.Config, rabbitConn *amqp.Connection, dbPool *pgxpool.Pool, logger *slog.Logger) (loan.LoanService, customer.CustomerService, bank.BankService) {
	logger.Info("Initializing application components...")
	loanRepo := postgres.NewLoanRepository(dbPool, logger)
	customerRepo := postgres.NewCustomerRepository(dbPool, logger)
	bankRepo := postgres.NewBankRepository(dbPool, logger)

	var eventPublisher event.EventPublisher = event.NoopEventPublisher{}
	if rabbitConn != nil {
		publisher, err := event.NewRabbitMQEventPublisher(rabbitConn, cfg.Events.Exchange, logger)
		if err != nil {
			logger.Error("Failed to set up event publisher, events disabled", slog.Any("error", err))
		} else {
			eventPublisher = publisher
		}
	}

	// LoadConfig already validated the rate; a failure here means the config
	// changed underneath us.
	rate, err := money.FromString(cfg.Ledger.MonthlyRate)
	if err != nil {
		logger.Error("Invalid ledger.monthly_rate", "value", cfg.Ledger.MonthlyRate, "error", err)
		os.Exit(1)
	}

	engine := loan.NewEngine(rate)
	bankService := bank.NewBankService(bankRepo, logger)
	customerService := customer.NewCustomerService(customerRepo, eventPublisher, logger)
	loanService := loan.NewLoanService(loanRepo, customerService, engine, eventPublisher, bankService, logger)
	return loanService, customerService, bankService
}

func startServer(cfg *config.Config, router http.Handler, logger *slog.Logger) (*http.Server, <-chan error, <-chan os.Signal) {
	logger.Info("Setting up HTTP server...", "port", cfg.Server.Port)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info(fmt.Sprintf("Server listening on port %d", cfg.Server.Port))
		err := srv.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err)
			serverErrors <- err
		} else {
			logger.Info("Server closed gracefully.")
			serverErrors <- nil
		}
	}()
	return srv, serverErrors, shutdownChan
}

func handleShutdown(srv *http.Server, cronScheduler *cron.Cron, rabbitConn *amqp.Connection,
	shutdownChan <-chan os.Signal, serverErrors <-chan error, logger *slog.Logger) {
	logger.Info("Shutdown handler started. Waiting for signal or server error...")

	triggerReason := waitForShutdownTrigger(shutdownChan, serverErrors, logger)

	logger.Info("Starting graceful shutdown...", "trigger", triggerReason)

	stopCronScheduler(cronScheduler, logger)
	closeEventBroker(rabbitConn, logger)
	shutdownHTTPServer(srv, serverErrors, logger)

	logger.Info("Application shutdown process complete.")
}

func waitForShutdownTrigger(shutdownChan <-chan os.Signal, serverErrors <-chan error, logger *slog.Logger) string {
	select {
	case sig := <-shutdownChan:
		logger.Info("Shutdown signal received.", "signal", sig.String())
		return "signal: " + sig.String()
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server exited unexpectedly before signal", "error", err)
			os.Exit(1)
		}
		logger.Info("Server goroutine finished before signal.", "error", err)
		return "server exited"
	}
}

func stopCronScheduler(cronScheduler *cron.Cron, logger *slog.Logger) {
	logger.Info("Stopping cron scheduler...")
	cronCtx := cronScheduler.Stop()
	select {
	case <-cronCtx.Done():
		logger.Info("Cron scheduler stopped gracefully.")
	case <-time.After(15 * time.Second):
		logger.Warn("Cron scheduler shutdown timed out.")
	}
}

func shutdownHTTPServer(srv *http.Server, serverErrors <-chan error, logger *slog.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	logger.Info("Shutting down HTTP server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server graceful shutdown failed", "error", err)
		} else {
			logger.Info("HTTP server shutdown initiated.")
		}
		if err := srv.Close(); err != nil {
			logger.Error("HTTP server forced close failed", "error", err)
		}
	} else {
		logger.Info("HTTP server gracefully stopped.")
	}

	logger.Info("Waiting for server goroutine to confirm exit...")
	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("Server goroutine exited with unexpected error after shutdown", "error", err)
		} else {
			logger.Info("Server goroutine confirmed exit.")
		}
	case <-time.After(5 * time.Second):
		logger.Warn("Timed out waiting for server goroutine confirmation.")
	}
}

func startBatchJobs(cfg *config.Config, logger *slog.Logger, sweepJob *batch.CompoundingSweepJob) *cron.Cron {
	logger.Info("Initializing batch job scheduler...")
	c := cron.New()

	scheduleSpec := cfg.Batch.CompoundingSweepSchedule
	if scheduleSpec == "" {
		scheduleSpec = "0 2 * * *"
		logger.Warn("Compounding sweep schedule not configured, using default", "schedule", scheduleSpec)
	}
	jobTimeout := cfg.Batch.CompoundingSweepTimeout
	if jobTimeout <= 0 {
		jobTimeout = 30 * time.Minute
	}

	jobID, err := c.AddJob(scheduleSpec, cron.FuncJob(func() {
		jobLogger := logger.With("job_name", "CompoundingSweep")
		jobLogger.Info("Cron triggered: Running compounding sweep job.")

		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		if runErr := sweepJob.Run(ctx); runErr != nil {
			jobLogger.Error("Compounding sweep job finished with error", slog.Any("error", runErr))
		} else {
			jobLogger.Info("Compounding sweep job finished successfully.")
		}
	}))

	if err != nil {
		logger.Error("Failed to schedule compounding sweep job", "schedule", scheduleSpec, slog.Any("error", err))
	} else {
		logger.Info("Scheduled compounding sweep job", "schedule", scheduleSpec, "job_id", jobID)
	}

	c.Start()
	logger.Info("Cron scheduler started.")
	return c
}

func setupEventBroker(cfg *config.Config, logger *slog.Logger) *amqp.Connection {
	if !cfg.Events.Enabled {
		logger.Info("Event publishing disabled, skipping broker connection.")
		return nil
	}
	if cfg.Events.URL == "" {
		logger.Error("Event publishing enabled but events.url is not configured.")
		os.Exit(1)
	}

	conn, err := connectRabbitMQ(cfg.Events.URL, logger)
	if err != nil {
		logger.Error("Failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	return conn
}

func connectRabbitMQ(uri string, logger *slog.Logger) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error
	retryCount := 5
	for i := 1; i <= retryCount; i++ {
		conn, err = amqp.Dial(uri)
		if err == nil {
			logger.Info("Successfully connected to RabbitMQ")

			go func() {
				blockChan := conn.NotifyBlocked(make(chan amqp.Blocking))
				closeChan := conn.NotifyClose(make(chan *amqp.Error))

				select {
				case b := <-blockChan:
					logger.Warn("RabbitMQ Connection Blocked", "reason", b.Reason)
				case e := <-closeChan:
					logger.Error("RabbitMQ Connection Closed", slog.Any("error", e))
				}
			}()

			return conn, nil
		}
		logger.Warn("Failed to connect to RabbitMQ, retrying...",
			slog.Int("attempt", i),
			slog.Int("max_attempts", retryCount),
			slog.Any("error", err),
		)
		time.Sleep(time.Duration(i*2) * time.Second)
	}
	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", retryCount, err)
}

func closeEventBroker(rabbitConn *amqp.Connection, logger *slog.Logger) {
	if rabbitConn != nil && !rabbitConn.IsClosed() {
		logger.Info("Closing RabbitMQ connection...")
		if err := rabbitConn.Close(); err != nil {
			logger.Error("Failed to close RabbitMQ connection gracefully", slog.Any("error", err))
		} else {
			logger.Info("RabbitMQ connection closed.")
		}
	} else if rabbitConn == nil {
		logger.Info("RabbitMQ connection was not established, skipping close.")
	} else {
		logger.Info("RabbitMQ connection already closed, skipping close.")
	}
}
