package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mossy-p/peer-signaling/config"
	"github.com/mossy-p/peer-signaling/internal/handlers"
	"github.com/mossy-p/peer-signaling/internal/log"
	"github.com/mossy-p/peer-signaling/internal/redis"
	"github.com/mossy-p/peer-signaling/internal/registry"
)

const shutdownTimeout = 5 * time.Second

func main() {
	// Load configuration
	cfg := config.Load()
	log.Setup(cfg.LogLevel, cfg.LogFormat)

	iceServers, err := cfg.ICE.ICEServers()
	if err != nil {
		logrus.Fatalf("Invalid ICE configuration: %v", err)
	}

	// Mirror presence into Redis when configured
	var presence registry.Presence
	if cfg.Redis.Enabled() {
		if err := redis.Connect(cfg.Redis); err != nil {
			logrus.WithError(err).Warn("Redis unavailable, keeping presence in memory")
		} else {
			defer redis.Close()
			presence = redis.NewPresence(redis.GetClient(), cfg.Redis.Prefix, cfg.Redis.TTL)
			logrus.Info("Redis connection established")
		}
	}

	reg := registry.New(presence)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handlers.NewRouter(reg, cfg.AllowedOrigins, iceServers),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logrus.Infof("Starting signalling server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Server shutdown failed")
	}
	logrus.Info("Signalling server stopped")
}
