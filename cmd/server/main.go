package main

import (
	"context"   // Shutdown deadline
	"errors"    // Server closed detection
	"net/http"  // HTTP server
	"os"        // Interrupt signal
	"os/signal" // SIGINT / SIGTERM
	"syscall"   // SIGTERM

	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logrus for structured logging

	"wallet_saga/internal/app"    // Application wiring
	"wallet_saga/internal/config" // Custom package for configuration
	"wallet_saga/internal/db"     // Database connection
)

// Main function to set up and run the server
func main() {
	cfg, err := config.LoadConfig() // Load configuration
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}

	// Setup logger
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if cfg.LogJSON {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	}
	log := logrus.WithField("role", cfg.Server.Role)

	// Connect to the database
	gdb, err := db.Open(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to DB: %v", err) // Fatal error if DB connection fails
	}
	if cfg.Database.Driver == "sqlite" {
		// Single file database, schema is created on start
		if err := db.Migrate(gdb); err != nil {
			log.Fatalf("failed to migrate: %v", err)
		}
	}

	deps := app.Deps{DB: gdb}
	if cfg.UsesRedis() {
		// Setup Redis client
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr, // Redis server address
			Password: cfg.Redis.Pass, // Redis password
			DB:       cfg.Redis.DB,   // Redis database number
		})
		defer redisClient.Close()

		// Test Redis connection
		if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
			log.Fatalf("failed to connect to Redis: %v", err)
		}
		deps.Redis = redisClient
	}

	a, err := app.New(cfg, deps, log)
	if err != nil {
		log.Fatalf("failed to build application: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		log.Fatalf("failed to start application: %v", err)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port, // Listen on cfg.Server.Port
		Handler: a.Router(),
	}
	go func() {
		log.Info("Server running on " + cfg.Server.Port) // Log server start
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("server stopped: %v", err)
			stop()
		}
	}()

	<-ctx.Done() // Wait for a signal or a server failure
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("graceful shutdown failed: %v", err)
	}
	a.Stop() // Let in-flight event handlers finish
}
