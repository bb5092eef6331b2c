package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/glotcast/relay/internal/batch"
	"github.com/glotcast/relay/internal/config"
	"github.com/glotcast/relay/internal/server"
	"github.com/glotcast/relay/internal/sessionlog"
	"github.com/glotcast/relay/internal/settings"
	"github.com/glotcast/relay/internal/stream"
	"github.com/glotcast/relay/internal/translate"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfgPath := os.Getenv("GLOTCAST_CONFIG")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	logger, err := setupLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.String("port", cfg.Server.Port),
		zap.Strings("supportedLangs", cfg.Server.SupportedLangs),
		zap.Duration("debounce", cfg.Batch.Debounce),
		zap.Duration("maxWait", cfg.Batch.MaxWait),
		zap.Duration("heartbeat", cfg.Stream.HeartbeatInterval),
		zap.String("translatorMode", cfg.Translator.Mode),
		zap.Bool("wsEnabled", cfg.Server.WSEnabled),
	)

	var translator translate.Translator
	switch cfg.Translator.Mode {
	case "http":
		translator = translate.NewHTTPClient(
			cfg.Translator.BaseURL,
			cfg.Translator.APIKey,
			cfg.Translator.RatePerSecond,
			time.Duration(cfg.Translator.TimeoutSec)*time.Second,
			logger,
		)
	case "stub":
		translator = translate.NewStub(translate.StubConfig{})
		logger.Warn("using stub translator, no real translations will be produced")
	default:
		logger.Error("unknown translator mode", zap.String("mode", cfg.Translator.Mode))
		return 1
	}

	st := settings.NewStore()
	log := sessionlog.New(cfg.SessionLog.Capacity)
	hub := stream.NewHub(st, cfg.LangSupported, cfg.Stream.HeartbeatInterval, cfg.Stream.SendBuffer, logger)
	engine := batch.NewEngine(translator, hub, log, batch.Config{
		Debounce: cfg.Batch.Debounce,
		MaxWait:  cfg.Batch.MaxWait,
	}, logger)
	defer engine.Close()

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run(ctx)

	srv := server.NewServer(engine, hub, log, st, cfg, logger)
	router := server.NewRouter(srv, logger)

	httpServer := &http.Server{
		Addr:        ":" + cfg.Server.Port,
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: subscribe channels are long-lived.
	}

	go func() {
		logger.Info("starting server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Stop the heartbeat loop and close all subscribers
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return 1
	}

	logger.Info("server stopped")
	return 0
}

func setupLogger(level string) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	zapConfig.DisableStacktrace = true
	if os.Getenv("GLOTCAST_DEV") == "true" {
		zapConfig = zap.NewDevelopmentConfig()
	}

	if level != "" {
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(level)); err == nil {
			zapConfig.Level = zap.NewAtomicLevelAt(lvl)
		}
	}

	return zapConfig.Build()
}
