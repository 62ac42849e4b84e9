package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/balu-dk/go-cdr-rating/config"
	"github.com/balu-dk/go-cdr-rating/internal/api"
	"github.com/balu-dk/go-cdr-rating/internal/db"
	"github.com/balu-dk/go-cdr-rating/internal/metrics"
	"github.com/balu-dk/go-cdr-rating/internal/ocpp"
	"github.com/balu-dk/go-cdr-rating/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	// Setup logger
	cfg.SetupLogger()
	logrus.Info("Starting CDR rating server")

	// Connect to database
	store, err := db.NewPostgresStore(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}
	defer store.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Create rating service
	ratingService, err := service.NewRatingService(cfg, store, metrics.New(registry))
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create rating service")
	}

	// Start OCPP central system, rating every transaction it sees stop
	centralSystem, err := ocpp.NewCentralSystem(cfg, store, ocpp.NewMessageJournal(store))
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create OCPP central system")
	}
	centralSystem.SetTransactionStoppedHandler(ratingService.OnTransactionStopped)
	go func() {
		if err := centralSystem.Start(); err != nil {
			logrus.WithError(err).Fatal("Failed to start OCPP central system")
		}
	}()

	// Start API server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.APIPort),
		Handler: api.NewAPI(ratingService, registry),
	}

	go func() {
		logrus.Infof("Starting API server on port %d", cfg.APIPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("Failed to start API server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.WithError(err).Error("Server forced to shutdown")
	}

	logrus.Info("Server exited")
}
