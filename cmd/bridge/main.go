package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mininerva/openclaw-cardputer/adapters/history"
	"github.com/mininerva/openclaw-cardputer/adapters/relay"
	"github.com/mininerva/openclaw-cardputer/adapters/stt"
	"github.com/mininerva/openclaw-cardputer/domain/repositories"
	"github.com/mininerva/openclaw-cardputer/internal/api"
	"github.com/mininerva/openclaw-cardputer/internal/auth"
	"github.com/mininerva/openclaw-cardputer/internal/config"
	"github.com/mininerva/openclaw-cardputer/internal/gateway"
	"github.com/mininerva/openclaw-cardputer/internal/metrics"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger setup failed: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()
	m := metrics.New(prometheus.DefaultRegisterer)

	speechToText := buildSTT(ctx, cfg, logger)
	messageRelay := buildRelay(ctx, cfg, logger)

	var conversationHistory repositories.ConversationHistory = history.Noop{}
	if cfg.MongoURI != "" {
		mongoHistory, err := history.NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
		if err != nil {
			logger.Fatal("MongoDB setup failed", zap.Error(err))
		}
		conversationHistory = mongoHistory
	}

	registry := gateway.NewRegistry(cfg.MaxQueuedMessages, cfg.MaxAudioBytes(), m, logger)
	router := gateway.NewRouter(registry, speechToText, messageRelay, conversationHistory, cfg.AudioEnabled, m, logger)
	supervisor := gateway.NewSupervisor(registry, router, cfg.GatewayAPIKey, m, logger)

	sweeper := gateway.NewSweeper(registry, cfg.SweepInterval(), cfg.SessionTimeout(), logger)
	sweeper.Start()

	var tokens *auth.TokenService
	if cfg.AdminTokenSecret != "" {
		tokens = auth.NewTokenService(cfg.AdminTokenSecret)
	} else {
		logger.Warn("ADMIN_TOKEN_SECRET not set, push endpoint is unauthenticated")
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	api.InitRoutes(e, &api.Handlers{
		Registry:   registry,
		Supervisor: supervisor,
		STT:        speechToText,
		Tokens:     tokens,
		Version:    version,
		Logger:     logger,
	})

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Bridge started",
		zap.Int("port", cfg.Port),
		zap.String("stt_backend", cfg.STTBackend),
		zap.String("relay_backend", cfg.RelayBackend),
		zap.Bool("audio_enabled", cfg.AudioEnabled))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Bridge is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	sweeper.Stop()

	if err := messageRelay.Close(); err != nil {
		logger.Error("Relay shutdown failed", zap.Error(err))
	}
	if closer, ok := speechToText.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("STT shutdown failed", zap.Error(err))
		}
	}
	if err := conversationHistory.Close(shutdownCtx); err != nil {
		logger.Error("History shutdown failed", zap.Error(err))
	}

	logger.Info("Bridge exited")
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logCfg := zap.NewProductionConfig()
	logCfg.Level = zap.NewAtomicLevelAt(lvl)
	return logCfg.Build()
}

func buildSTT(ctx context.Context, cfg *config.Config, logger *zap.Logger) repositories.SpeechToText {
	switch cfg.STTBackend {
	case config.STTBackendWhisper:
		if cfg.WhisperURL == "" {
			logger.Warn("WHISPER_URL not set, transcription will be unavailable")
		}
		return stt.NewWhisper(cfg.WhisperURL, cfg.WhisperModel, logger)
	case config.STTBackendGoogle:
		google, err := stt.NewGoogle(ctx, cfg.GoogleSTTLanguage, cfg.GoogleSTTSampleRate, logger)
		if err != nil {
			logger.Fatal("Google STT setup failed", zap.Error(err))
		}
		return google
	default:
		return stt.Disabled{}
	}
}

func buildRelay(ctx context.Context, cfg *config.Config, logger *zap.Logger) repositories.MessageRelay {
	switch cfg.RelayBackend {
	case config.RelayBackendGemini:
		gemini, err := relay.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, logger)
		if err != nil {
			logger.Fatal("Gemini relay setup failed", zap.Error(err))
		}
		return gemini
	default:
		return relay.NewOpenClaw(cfg.GatewayURL, cfg.GatewayAPIKey, logger)
	}
}
