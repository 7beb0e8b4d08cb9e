package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"joke-relay/config"
	"joke-relay/relay"
	"joke-relay/relay/application"
	"joke-relay/relay/domain"
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

	var (
		statsStore domain.StatsStore
		redisStats *infra.RedisStatsStore
		memStats   *infra.MemoryStatsStore
	)
	if cfg.statsEnabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.statsRedisAddr,
			Password: cfg.statsRedisPassword,
			DB:       cfg.statsRedisDB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		cancel()
		if err != nil {
			logger.Error("redis stats ping error", slog.String("error", err.Error()))
			os.Exit(1)
		}

		redisStats = infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.statsPrefix),
			infra.WithStatsTTL(cfg.statsTTL),
			infra.WithStatsBucket(cfg.statsBucket),
			infra.WithStatsTrackClients(cfg.statsTrackClients),
		)
		statsStore = redisStats
	} else {
		memStats = infra.NewMemoryStatsStore(infra.WithTrackClients(cfg.statsTrackClients))
		statsStore = memStats
	}

	limiters := infra.NewKeyedLimiters(cfg.connRPS, cfg.connBurst)
	adm := application.Admission{
		RetryAfter:     cfg.retryAfter,
		AcquireTimeout: cfg.connAcquireTimeout,
		Logger:         logger,
	}
	if cfg.connRateEnabled {
		adm.Limiters = limiters
	}
	if cfg.connMax > 0 {
		adm.Slots = infra.NewSlotPool(cfg.connMax)
	}

	srvRelay := relay.NewServer(
		[]application.SessionsOption{
			application.WithStatsStore(statsStore),
			application.WithMaxDisconnected(cfg.maxDisconnected),
		},
		relay.WithJokeInterval(cfg.sendJokeInterval),
		relay.WithServerLogger(logger),
		relay.WithAdmission(relay.AdmissionOptions{
			Admission:           adm,
			TrustXForwardedFor:  cfg.trustXFF,
			AddRateLimitHeaders: cfg.addHeaders,
		}),
	)

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           srvRelay.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("joke server listening", slog.String("addr", cfg.listenAddr), slog.Duration("send_joke_interval", cfg.sendJokeInterval))
	logger.Info("conn-rate", slog.Bool("enabled", cfg.connRateEnabled), slog.Float64("rps", cfg.connRPS), slog.Int("burst", cfg.connBurst), slog.Bool("trust_xff", cfg.trustXFF))
	logger.Info("conn-limit", slog.Int("max", cfg.connMax), slog.Duration("acquire_timeout", cfg.connAcquireTimeout))
	logger.Info("stats", slog.Bool("redis", cfg.statsEnabled), slog.String("redis_addr", cfg.statsRedisAddr), slog.String("bucket", cfg.statsBucket), slog.Duration("ttl", cfg.statsTTL))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.connRateEnabled {
		g.Go(func() error { return limiters.RunJanitor(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srvRelay.CloseAll(shutdownCtx); err != nil {
			logger.Warn("websocket connections still open at shutdown", slog.String("error", err.Error()))
		}
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logTotals(logger, redisStats, memStats)
}

func logTotals(logger *slog.Logger, redisStats *infra.RedisStatsStore, memStats *infra.MemoryStatsStore) {
	var (
		total infra.Counters
		err   error
	)
	switch {
	case redisStats != nil:
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		total, err = redisStats.Total(ctx)
		cancel()
	case memStats != nil:
		total = memStats.Total()
	default:
		return
	}
	if err != nil {
		logger.Warn("could not read stats totals", slog.String("error", err.Error()))
		return
	}
	logger.Info("stats totals",
		slog.Int64("connections", total.Connections),
		slog.Int64("jokes_sent", total.JokesSent),
		slog.Int64("translations_received", total.TranslationsReceived),
		slog.Float64("avg_translation_ms", total.AvgDurationMs()),
	)
}

type serverConfig struct {
	listenAddr       string
	sendJokeInterval time.Duration
	maxDisconnected  int
	logLevel         string
	logFormat        string

	connRateEnabled    bool
	connRPS            float64
	connBurst          int
	trustXFF           bool
	retryAfter         time.Duration
	addHeaders         bool
	connMax            int
	connAcquireTimeout time.Duration

	statsEnabled       bool
	statsRedisAddr     string
	statsRedisPassword string
	statsRedisDB       int
	statsPrefix        string
	statsTTL           time.Duration
	statsBucket        string
	statsTrackClients  bool
}

func readConfig() (serverConfig, error) {
	cfg := serverConfig{}
	cfg.listenAddr = config.GetenvDefault("LISTEN_ADDR", ":8080")
	if port := config.GetenvDefault("PORT", ""); port != "" && !config.GetenvIsSet("LISTEN_ADDR") {
		cfg.listenAddr = ":" + port
	}
	cfg.sendJokeInterval = config.GetenvDurationDefault("SEND_JOKE_INTERVAL", 200*time.Millisecond)
	cfg.maxDisconnected = config.GetenvIntDefault("MAX_DISCONNECTED", application.DefaultMaxDisconnected)
	cfg.logLevel = config.GetenvDefault("LOG_LEVEL", "info")
	cfg.logFormat = config.GetenvDefault("LOG_FORMAT", "text")

	cfg.connRateEnabled = config.GetenvBoolDefault("CONN_RATE_ENABLED", true)
	cfg.connRPS = config.GetenvFloatDefault("CONN_RATE_RPS", 5)
	// com RPS < 1 o burst padrão deixaria passar várias conexões de uma vez
	if burst, ok := config.GetenvInt("CONN_RATE_BURST"); ok {
		cfg.connBurst = burst
	} else {
		cfg.connBurst = 10
		if config.GetenvIsSet("CONN_RATE_RPS") && cfg.connRPS > 0 && cfg.connRPS < 1 {
			cfg.connBurst = 1
		}
	}
	cfg.trustXFF = config.GetenvBoolDefault("TRUST_XFF", false)
	cfg.retryAfter = config.GetenvDurationDefault("RETRY_AFTER", time.Second)
	cfg.addHeaders = config.GetenvBoolDefault("ADD_RATELIMIT_HEADERS", false)
	cfg.connMax = config.GetenvIntDefault("CONN_MAX", 100)
	cfg.connAcquireTimeout = config.GetenvDurationDefault("CONN_ACQUIRE_TIMEOUT", 0)

	cfg.statsEnabled = config.GetenvBoolDefault("STATS_ENABLED", false)
	cfg.statsRedisAddr = config.GetenvDefault("STATS_REDIS_ADDR", "")
	cfg.statsRedisPassword = os.Getenv("STATS_REDIS_PASSWORD")
	cfg.statsRedisDB = config.GetenvIntDefault("STATS_REDIS_DB", 0)
	cfg.statsPrefix = config.GetenvDefault("STATS_PREFIX", "jokerelay:stats")
	cfg.statsTTL = config.GetenvDurationDefault("STATS_TTL", 24*time.Hour)
	cfg.statsBucket = config.GetenvDefault("STATS_BUCKET", "minute")
	cfg.statsTrackClients = config.GetenvBoolDefault("STATS_TRACK_CLIENTS", true)

	if cfg.statsEnabled && strings.TrimSpace(cfg.statsRedisAddr) == "" {
		return serverConfig{}, errors.New("STATS_REDIS_ADDR is required when STATS_ENABLED=true")
	}
	if cfg.sendJokeInterval <= 0 {
		return serverConfig{}, errors.New("SEND_JOKE_INTERVAL must be > 0")
	}
	if cfg.connRateEnabled && cfg.connRPS <= 0 {
		return serverConfig{}, errors.New("CONN_RATE_RPS must be > 0")
	}
	if cfg.connRateEnabled && cfg.connBurst <= 0 {
		return serverConfig{}, errors.New("CONN_RATE_BURST must be > 0")
	}
	if cfg.connMax < 0 {
		return serverConfig{}, errors.New("CONN_MAX must be >= 0")
	}
	if cfg.maxDisconnected < 0 {
		return serverConfig{}, errors.New("MAX_DISCONNECTED must be >= 0")
	}
	return cfg, nil
}
