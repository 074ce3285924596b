package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lending-ledger/internal/api/handler"
	mw "lending-ledger/internal/api/middleware"
	"lending-ledger/internal/config"
	"lending-ledger/internal/domain/bank"
	"lending-ledger/internal/domain/customer"
	"lending-ledger/internal/domain/loan"
)

func SetupRouter(loanService loan.LoanService, customerService customer.CustomerService, bankService bank.BankService, cfg *config.Config, logger *slog.Logger) *chi.Mux {
	router := chi.NewRouter()

	setupMiddleware(router, cfg, logger)
	setupMetricsEndpoint(router, cfg, logger)
	setupCustomerRoutes(router, cfg, customerService, loanService, logger)
	setupLoanRoutes(router, loanService, cfg, logger)
	setupBankRoutes(router, bankService, cfg, logger)
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	return router
}

func setupMiddleware(router *chi.Mux, cfg *config.Config, logger *slog.Logger) {
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(mw.StructuredLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Compress(5))
	router.Use(middleware.Timeout(60 * time.Second))
	router.Use(mw.NewRateLimiterMiddleware(cfg.Server.RateLimit, logger).Middleware)
	router.Use(mw.MetricsMiddleware())
}

func setupMetricsEndpoint(router *chi.Mux, cfg *config.Config, logger *slog.Logger) {
	metricsPath := cfg.Metrics.Path
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	logger.Info("Setting up Prometheus metrics endpoint", "path", metricsPath)
	router.Handle(metricsPath, promhttp.Handler())
}

func setupLoanRoutes(router *chi.Mux, loanService loan.LoanService, cfg *config.Config, logger *slog.Logger) {
	loanHandler := handler.NewLoanHandler(loanService, logger)
	authHandler := handler.NewAuthHandler(*cfg, logger)

	router.Route("/auth", func(r chi.Router) {
		r.Post("/token", authHandler.GenerateBearerToken)
	})

	router.Route("/loans", func(r chi.Router) {
		r.Use(mw.AuthMiddleware(cfg.Server.Auth, logger))
		r.Post("/", loanHandler.CreateLoan)
		r.Get("/{loanID}", loanHandler.GetLoan)
		r.Get("/{loanID}/balance", loanHandler.GetBalance)
		r.Get("/{loanID}/timeline", loanHandler.GetTimeline)
		r.Post("/{loanID}/advance", loanHandler.AdvanceLoan)
		r.Post("/{loanID}/repayments", loanHandler.MakeRepayment)
		r.Get("/{loanID}/repayments", loanHandler.ListRepayments)
	})

	router.Route("/reports", func(r chi.Router) {
		r.Use(mw.AuthMiddleware(cfg.Server.Auth, logger))
		r.Get("/summary", loanHandler.GetCustomerSummaries)
		r.Get("/overall", loanHandler.GetOverallReport)
		r.Get("/records", loanHandler.GetRecords)
	})

}

func setupBankRoutes(router *chi.Mux, bankService bank.BankService, cfg *config.Config, logger *slog.Logger) {
	bankHandler := handler.NewBankHandler(bankService, logger)

	router.Route("/bank", func(r chi.Router) {
		r.Use(mw.AuthMiddleware(cfg.Server.Auth, logger))
		r.Get("/ledger", bankHandler.GetLedger)
		r.Post("/adjustments", bankHandler.CreateAdjustment)
	})
}

func setupCustomerRoutes(r chi.Router, cfg *config.Config, svc customer.CustomerService, loanService loan.LoanService, logger *slog.Logger) {
	h := handler.NewCustomerHandler(svc, logger)
	loanHandler := handler.NewLoanHandler(loanService, logger)

	r.Route("/customers", func(r chi.Router) {
		r.Use(mw.AuthMiddleware(cfg.Server.Auth, logger))
		r.Post("/", h.CreateCustomer)
		r.Get("/", h.ListCustomers)
		r.Route("/{customerID}", func(r chi.Router) {
			r.Get("/", h.GetCustomer)
			r.Get("/loans", loanHandler.ListCustomerLoans)
			r.Put("/contact", h.UpdateCustomerContact)
		})
	})
}
