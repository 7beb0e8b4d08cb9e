package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"joke-relay/config"
	"joke-relay/relay/application"
	"joke-relay/relay/infra"
)

func main() {
	cfg, err := readConfig()
	if err != nil {
		slog.Error("config error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := config.NewLogger(cfg.logLevel, cfg.logFormat)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	translator, err := infra.NewGeminiTranslator(ctx, cfg.geminiAPIKey,
		infra.WithGeminiModel(cfg.geminiModel),
		infra.WithGeminiEndpoint(cfg.geminiEndpoint),
		infra.WithTargetLanguage(cfg.targetLanguage),
		infra.WithHTTPTimeout(cfg.translateTimeout),
		infra.WithTranslatorLogger(logger),
	)
	if err != nil {
		logger.Error("could not create translator", slog.String("error", err.Error()))
		os.Exit(1)
	}

	gate := infra.NewIntervalGate(cfg.rateLimit)
	queue := application.NewQueue(gate, application.WithQueueLogger(logger))
	tracker := application.NewTracker(translator, cfg.maxTranslations, application.WithTrackerLogger(logger))

	logger.Info("joke client starting",
		slog.String("server_url", cfg.serverURL),
		slog.String("wire_format", cfg.wireFormat),
	)
	logger.Info("rate", slog.Float64("per_minute", cfg.rateLimit), slog.Duration("min_interval", gate.Interval()), slog.Duration("tick", cfg.tickInterval))
	logger.Info("translations", slog.Int("max", cfg.maxTranslations), slog.String("model", cfg.geminiModel), slog.String("target_language", cfg.targetLanguage))

	dialCtx, dialCancel := context.WithTimeout(ctx, cfg.dialTimeout)
	transport, err := infra.DialWS(dialCtx, cfg.serverURL,
		infra.WithCodec(infra.CodecByName(cfg.wireFormat)),
		infra.WithTransportLogger(logger),
	)
	dialCancel()
	if err != nil {
		logger.Error("could not connect to server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	driver := application.NewDriver(transport, queue, tracker,
		application.WithTickInterval(cfg.tickInterval),
		application.WithDrainTimeout(cfg.drainTimeout),
		application.WithDriverLogger(logger),
	)
	state, err := driver.Run(ctx)
	if err != nil {
		logger.Error("pipeline error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	_ = transport.Close()

	logger.Info("joke client finished",
		slog.String("state", state.String()),
		slog.Int("translated", tracker.CompletedCount()),
		slog.Int("max", tracker.Max()),
	)
}

type clientConfig struct {
	serverURL       string
	wireFormat      string
	rateLimit       float64
	maxTranslations int
	tickInterval    time.Duration
	drainTimeout    time.Duration
	dialTimeout     time.Duration
	logLevel        string
	logFormat       string

	geminiAPIKey     string
	geminiModel      string
	geminiEndpoint   string
	targetLanguage   string
	translateTimeout time.Duration
}

func readConfig() (clientConfig, error) {
	cfg := clientConfig{}
	cfg.serverURL = config.GetenvDefault("SERVER_URL", "ws://localhost:8080")
	cfg.wireFormat = strings.ToLower(config.GetenvDefault("WIRE_FORMAT", infra.CodecNameJSON))
	// 15/min acompanha o free tier da API de tradução
	cfg.rateLimit = config.GetenvFloatDefault("RATE_LIMIT", 15)
	cfg.maxTranslations = config.GetenvIntDefault("MAX_TRANSLATIONS", 5)
	cfg.tickInterval = config.GetenvDurationDefault("TICK_INTERVAL", time.Second)
	cfg.drainTimeout = config.GetenvDurationDefault("DRAIN_TIMEOUT", 10*time.Second)
	cfg.dialTimeout = config.GetenvDurationDefault("DIAL_TIMEOUT", 10*time.Second)
	cfg.logLevel = config.GetenvDefault("LOG_LEVEL", "info")
	cfg.logFormat = config.GetenvDefault("LOG_FORMAT", "text")

	cfg.geminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.geminiModel = config.GetenvDefault("GEMINI_MODEL", infra.DefaultGeminiModel)
	cfg.geminiEndpoint = config.GetenvDefault("GEMINI_ENDPOINT", infra.DefaultGeminiEndpoint)
	cfg.targetLanguage = config.GetenvDefault("TARGET_LANGUAGE", "German")
	cfg.translateTimeout = config.GetenvDurationDefault("TRANSLATE_TIMEOUT", 30*time.Second)

	if strings.TrimSpace(cfg.geminiAPIKey) == "" {
		return clientConfig{}, errors.New("GEMINI_API_KEY is required")
	}
	if cfg.wireFormat != infra.CodecNameJSON && cfg.wireFormat != infra.CodecNameMsgpack {
		return clientConfig{}, errors.New("WIRE_FORMAT must be json or msgpack")
	}
	if cfg.rateLimit <= 0 {
		return clientConfig{}, errors.New("RATE_LIMIT must be > 0")
	}
	if cfg.maxTranslations <= 0 {
		return clientConfig{}, errors.New("MAX_TRANSLATIONS must be > 0")
	}
	if cfg.tickInterval <= 0 {
		return clientConfig{}, errors.New("TICK_INTERVAL must be > 0")
	}
	return cfg, nil
}
