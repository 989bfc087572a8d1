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

	"streambridge/internal/bridge"
	"streambridge/internal/config"
	apphttp "streambridge/internal/http"
	"streambridge/internal/probe"
	"streambridge/internal/resolver"
	"streambridge/internal/service"
	"streambridge/internal/swarm"
	"streambridge/internal/transcode"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	transportProbe := probe.New(probe.Config{
		Timeout:     time.Duration(cfg.Probe.TimeoutSeconds) * time.Second,
		STUNServers: cfg.Probe.STUNServers,
		TURNServer:  cfg.Probe.TURNServer,
		TURNUser:    cfg.Probe.TURNUser,
		TURNSecret:  cfg.Probe.TURNSecret,
		Logger:      logger,
	})
	// One-shot probe at startup; the result is cached for the process lifetime.
	transportProbe.Check(ctx)

	registry := swarm.NewRegistry()
	builder := bridge.NewBuilder(bridge.Config{Logger: logger})

	manager := swarm.NewManager(swarm.Config{
		DataDir:        cfg.Swarm.DataDir,
		Trackers:       cfg.Swarm.Trackers,
		StatusInterval: time.Duration(cfg.Swarm.StatusIntervalSeconds) * time.Second,
		NoPeerDelay:    time.Duration(cfg.Swarm.NoPeerDelaySeconds) * time.Second,
		MaxRecoveries:  cfg.Swarm.MaxRecoveries,
		Logger:         logger,
	}, registry, builder)

	if err := manager.Start(ctx); err != nil {
		logger.Fatalf("start swarm manager: %v", err)
	}

	client := transcode.NewClient(transcode.ClientConfig{
		BaseURL: cfg.Transcode.BaseURL,
		APIKey:  cfg.Transcode.APIKey,
		Logger:  logger,
	})
	orchestrator := transcode.NewOrchestrator(client, transcode.OrchestratorConfig{
		PollInterval: time.Duration(cfg.Transcode.PollSeconds) * time.Second,
		MaxAttempts:  cfg.Transcode.MaxAttempts,
		Logger:       logger,
	})

	streamService := service.NewStreamService(
		service.Config{Logger: logger},
		resolver.New(),
		transportProbe,
		manager,
		client,
		orchestrator,
	)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(streamService, manager, cfg.Auth.JWTSecret, logger)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	manager.Shutdown()

	logger.Info("bye")
}
