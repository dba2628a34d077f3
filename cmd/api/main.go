package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eduardohotta/cortex-sub000/internal/app"
	"github.com/eduardohotta/cortex-sub000/internal/config"
	"github.com/eduardohotta/cortex-sub000/internal/server"
	"github.com/eduardohotta/cortex-sub000/pkg/Logger"
)

// Entry point: loads configuration, wires the capture → transcription →
// generation pipeline, and exposes it over HTTP plus a websocket event feed.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := Logger.New(cfg.Debug)
	logger.Info("Logger initialized")

	application, err := app.NewApp(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to wire application: %v", err)
	}

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	go application.Coordinator.Run(runCtx)

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	server.InitializeRoutes(runCtx, router, application.GetServerDependencies())

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router.Handler(),
	}
	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server exiting %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	application.Coordinator.StopCapture()
	application.Coordinator.Abort()
	cancelRun()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Shutdown err %v", err)
	}
	logger.Info("Shutdown system")
}
