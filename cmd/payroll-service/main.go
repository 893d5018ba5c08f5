package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/malipo/malipo-backend/internal/payroll/consumers"
	"github.com/malipo/malipo-backend/internal/payroll/events"
	"github.com/malipo/malipo-backend/internal/payroll/handler"
	"github.com/malipo/malipo-backend/internal/payroll/repository"
	"github.com/malipo/malipo-backend/internal/payroll/service"
	"github.com/malipo/malipo-backend/pkg/config"
	"github.com/malipo/malipo-backend/pkg/database"
	"github.com/malipo/malipo-backend/pkg/httputil"
	"github.com/malipo/malipo-backend/pkg/i18n"
	"github.com/malipo/malipo-backend/pkg/logger"
	"github.com/malipo/malipo-backend/pkg/messaging"
	"github.com/malipo/malipo-backend/pkg/permissions"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("payroll-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("payroll-service", cfg.Server.Environment)
	log.Info().Msg("starting Payroll Service")

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	// Initialize event publisher
	publisher, err := events.NewPayrollEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}

	// Initialize repositories
	employeeRepo := repository.NewEmployeeRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	loanRepo := repository.NewLoanRepository(db)
	ratesRepo := repository.NewRatesRepository(db)
	runRepo := repository.NewRunRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	// Initialize service
	payrollService := service.NewPayrollService(
		db,
		employeeRepo,
		assignmentRepo,
		loanRepo,
		ratesRepo,
		runRepo,
		auditRepo,
		publisher,
		cfg.Payroll,
		log,
	)

	// Initialize handlers
	runHandler := handler.NewRunHandler(payrollService, log)
	auditHandler := handler.NewAuditHandler(payrollService, log)

	// Start HR event consumer
	hrConsumer, err := consumers.NewHREventConsumer(rmq, employeeRepo, assignmentRepo, loanRepo, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create HR event consumer")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := hrConsumer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start HR event consumer")
	}

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS - supports subdomain-based multi-tenancy
	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			// Allow localhost variations (development)
			if origin == "http://localhost:3000" || origin == "http://localhost:5173" {
				return true
			}
			// Allow *.localhost:3000 subdomains for development
			if len(origin) > 21 && origin[len(origin)-15:] == ".localhost:3000" {
				return true
			}
			// Allow *.malipo.co.ke for production
			if len(origin) > 13 && origin[len(origin)-13:] == ".malipo.co.ke" {
				return true
			}
			// Allow malipo.co.ke itself
			if origin == "https://malipo.co.ke" || origin == "http://malipo.co.ke" {
				return true
			}
			return false
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "Accept-Language"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// i18n middleware - extract locale from Accept-Language header
	r.Use(i18n.Middleware)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "payroll-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	// API routes
	r.Route("/api/v1/payroll", func(r chi.Router) {
		r.Use(httputil.Auth(cfg.JWT, log))

		r.Route("/runs", func(r chi.Router) {
			r.With(httputil.RequirePermission(permissions.PayrollRunsRead)).Get("/", runHandler.List)
			r.With(httputil.RequirePermission(permissions.PayrollRunsCalculate)).Post("/calculate", runHandler.Calculate)
			r.With(httputil.RequirePermission(permissions.PayrollRunsRead)).Get("/{runID}", runHandler.Get)
			r.With(httputil.RequirePermission(permissions.PayrollRunsComplete)).Post("/{runID}/complete", runHandler.Complete)
			r.With(httputil.RequirePermission(permissions.PayrollRunsCancel)).Post("/{runID}/cancel", runHandler.Cancel)
		})

		r.With(httputil.RequirePermission(permissions.PayrollAuditRead)).Get("/audit", auditHandler.List)
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Cancel context to stop consumers
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
