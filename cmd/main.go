package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"prizedraw/internal/config"
	"prizedraw/internal/handlers"
	"prizedraw/internal/metrics"
	"prizedraw/internal/middleware"
	"prizedraw/internal/repositories"
	"prizedraw/internal/repositories/file"
	"prizedraw/internal/repositories/mongodb"
	"prizedraw/internal/repositories/postgres"
	"prizedraw/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	"github.com/spf13/pflag"
)

func main() {
	configFile := pflag.StringP("config", "c", "", "path to a config file (default: ./config.yaml or ./config/config.yaml)")
	pflag.Parse()

	// 1. Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logging
	logWriter := io.Discard
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o660)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		logWriter = f
	}
	defer logger.Init("prizedraw", cfg.Log.Verbose, false, logWriter).Close()

	// 3. Open the store
	repo, closeStore, err := openRepository(cfg)
	if err != nil {
		logger.Fatalf("Failed to open %s store: %v", cfg.Store.Driver, err)
	}
	defer closeStore()

	// 4. Initialize the registry and restore stored activities
	recorder := metrics.NewRecorder()
	opts := []services.Option{services.WithObserver(recorder)}
	if repo != nil {
		opts = append(opts, services.WithRepository(repo))
	}
	registry := services.NewRegistry(opts...)

	loadCtx, cancelLoad := context.WithTimeout(context.Background(), 30*time.Second)
	if _, err := registry.Load(loadCtx); err != nil {
		logger.Fatalf("Failed to restore activities: %v", err)
	}
	cancelLoad()

	// 5. Start the maintenance jobs
	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	maintenance, err := services.StartMaintenance(registry, cfg.Scheduler.FlushInterval, cfg.Scheduler.Retention)
	if err != nil {
		logger.Fatalf("Failed to start scheduler: %v", err)
	}
	if err := maintenance.Every(10*time.Minute, limiter.Cleanup); err != nil {
		logger.Fatalf("Failed to schedule limiter cleanup: %v", err)
	}

	// 6. Set up the Gin router
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(gin.Recovery(), recorder.Middleware())
	r.GET("/metrics", gin.WrapH(recorder.Handler()))

	httpHandler := handlers.NewHTTPHandler(registry)
	httpHandler.RegisterPublicRoutes(r)

	identified := r.Group("/")
	identified.Use(middleware.Identity(cfg.Auth.JWTSecret))
	httpHandler.RegisterIdentifiedRoutes(identified, limiter.Handler())

	// 7. Run the server until interrupted
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Infof("Server starting on :%s (store: %s)", cfg.Server.Port, cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to run server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}
	if err := maintenance.Stop(); err != nil {
		logger.Errorf("Scheduler shutdown: %v", err)
	}
	if err := registry.FlushAll(ctx); err != nil {
		logger.Errorf("Final snapshot flush: %v", err)
	}
	if err := registry.Close(ctx); err != nil {
		logger.Errorf("Persister shutdown: %v", err)
	}
	logger.Info("Server exited")
}

// openRepository builds the configured store. The memory driver returns a
// nil repository.
func openRepository(cfg *config.Config) (repositories.ActivityRepository, func(), error) {
	noop := func() {}
	switch cfg.Store.Driver {
	case config.DriverFile:
		repo, err := file.NewActivityRepository(cfg.Store.Dir)
		return repo, noop, err
	case config.DriverMongo:
		client, err := mongodb.Connect(context.Background(), cfg.Mongo.URI)
		if err != nil {
			return nil, noop, err
		}
		closeFn := func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.Disconnect(ctx); err != nil {
				logger.Errorf("Disconnect from mongodb: %v", err)
			}
		}
		return mongodb.NewActivityRepository(client.Database(cfg.Mongo.Database), cfg.Mongo.Collection), closeFn, nil
	case config.DriverPostgres:
		db, err := postgres.Open(cfg.Postgres.DSN)
		if err != nil {
			return nil, noop, err
		}
		closeFn := func() {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		}
		return postgres.NewActivityRepository(db), closeFn, nil
	}
	return nil, noop, nil
}
