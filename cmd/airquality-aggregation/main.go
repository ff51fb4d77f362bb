package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/i474232898/airquality-aggregation/internal/airquality"
	httpapi "github.com/i474232898/airquality-aggregation/internal/api/http"
	"github.com/i474232898/airquality-aggregation/internal/bootstrap"
	"github.com/i474232898/airquality-aggregation/internal/config"
	"github.com/i474232898/airquality-aggregation/internal/logger"
	"github.com/i474232898/airquality-aggregation/internal/scheduler"
)

func main() {
	// Load configuration (also reads .env when present).
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	appLog := logger.New(cfg.LogLevel, cfg.Env)

	// Providers, sinks, sqlite and MQTT wired around the core service.
	app, err := bootstrap.New(cfg, appLog, bootstrap.Options{Outputs: true, Database: true, MQTT: true})
	if err != nil {
		appLog.Fatalf("failed to initialize: %v", err)
	}
	defer app.Close()

	// Scheduler that periodically runs the configured analysis.
	plan := cfg.Analysis.Plan()
	sched := scheduler.New([]airquality.AnalysisPlan{plan}, cfg.FetchInterval, app.Service, appLog)
	if err := sched.Start(); err != nil {
		appLog.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Basic app configuration
	server := fiber.New(fiber.Config{
		AppName:               "airquality-aggregation",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		// analysis runs fan out to several upstream calls
		WriteTimeout: 2 * time.Minute,
		ErrorHandler: httpapi.ErrorHandler,
	})

	// Global middleware
	server.Use(fiberlogger.New())
	server.Use(recover.New())

	// Basic health endpoint
	server.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "airquality-aggregation",
		})
	})

	// API routes.
	httpapi.RegisterRoutes(server, app.Service, plan)

	go func() {
		appLog.Infof("listening on :%s", cfg.Port)
		if err := server.Listen(":" + cfg.Port); err != nil {
			appLog.Errorf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.ShutdownWithContext(shutdownCtx); err != nil {
		appLog.Errorf("error during shutdown: %v", err)
	}
}
