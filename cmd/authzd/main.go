package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tenantguard/pkg/config"
	"github.com/platinummonkey/tenantguard/pkg/observability"
)

var version = "dev"

// authzd serves authorization decisions for the CRM frontends and APIs
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger := setupLogger(cfg.Observability.LogLevel)
	logger.Infof("Starting tenantguard authzd %s", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize: %v", err)
	}

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      a.handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: a.healthHandler(),
	}

	shutdown := observability.NewShutdownManager(a.obsLogger, server, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(healthServer.Shutdown)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		cancel()
		return a.close(ctx)
	})

	go serve(logger, healthServer, "health")
	go serve(logger, server, "api")

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.Errorf("Shutdown error: %v", err)
		os.Exit(1)
	}
}

func serve(logger *logrus.Logger, server *http.Server, name string) {
	logger.Infof("Listening for %s traffic on %s", name, server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("%s server failed: %v", name, err)
	}
}

func setupLogger(logLevel string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}
