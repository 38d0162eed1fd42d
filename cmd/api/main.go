package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Dan9191/portfolio-analytics/internal/analytics"
	"github.com/Dan9191/portfolio-analytics/internal/auth"
	"github.com/Dan9191/portfolio-analytics/internal/config"
	"github.com/Dan9191/portfolio-analytics/internal/handler"
	"github.com/Dan9191/portfolio-analytics/internal/integrations/bankreturn"
	"github.com/Dan9191/portfolio-analytics/internal/metrics"
	"github.com/Dan9191/portfolio-analytics/internal/repository"
	"github.com/Dan9191/portfolio-analytics/internal/scheduler"
	"github.com/Dan9191/portfolio-analytics/internal/service"
	"github.com/Dan9191/portfolio-analytics/internal/utils/email"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logLevel, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	repo, err := repository.Open(ctx, cfg.DBDriver, cfg.DBConn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer repo.Close()

	// Initialize layers
	engine, err := analytics.NewEngine(cfg.Policy)
	if err != nil {
		logger.Fatalf("Failed to build risk engine: %v", err)
	}
	m := metrics.New()
	svc := service.NewService(repo, engine, logger, m)
	h := handler.NewHandler(svc, auth.NewAuthenticator(cfg), logger, cfg.Location())
	if cfg.OperatorPasswordHash == "" {
		logger.Warn("OPERATOR_PASSWORD_HASH is empty, login is disabled")
	}

	// Daily digest
	var fetcher scheduler.ReturnFetcher
	if cfg.BankReturnURL != "" {
		fetcher = bankreturn.NewClient(cfg.BankReturnURL, logger)
	}
	var mailer scheduler.DigestMailer
	if cfg.SMTPEnabled() {
		mailer = email.NewSender(cfg, logger)
	}
	digest := scheduler.NewDigest(svc, fetcher, mailer, m, logger, cfg.Location())
	sched, err := scheduler.NewScheduler(cfg.DigestCron, cfg.Location(), digest, logger)
	if err != nil {
		logger.Fatalf("Failed to schedule digest: %v", err)
	}
	sched.Start()

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler.NewRouter(h, m.Handler()),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	go func() {
		logger.Infof("Starting server on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}
	sched.Stop(shutdownCtx)
}
