package main

import (
	"testing"
	"time"
)

func TestReadConfig_Defaults(t *testing.T) {
	cfg, err := readConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.listenAddr != ":8080" || cfg.sendJokeInterval != 200*time.Millisecond || cfg.maxDisconnected != 10 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.connBurst != 10 || cfg.statsEnabled {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestReadConfig_PortAndBurst(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("CONN_RATE_RPS", "0.5")
	t.Setenv("SEND_JOKE_INTERVAL", "50")

	cfg, err := readConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.listenAddr != ":9000" {
		t.Fatalf("expected PORT honoured, got %q", cfg.listenAddr)
	}
	if cfg.connBurst != 1 {
		t.Fatalf("expected burst 1 for sub-1 rps, got %d", cfg.connBurst)
	}
	if cfg.sendJokeInterval != 50*time.Millisecond {
		t.Fatalf("expected 50ms interval, got %s", cfg.sendJokeInterval)
	}
}

func TestReadConfig_RedisAddrRequired(t *testing.T) {
	t.Setenv("STATS_ENABLED", "true")
	if _, err := readConfig(); err == nil {
		t.Fatalf("expected error without STATS_REDIS_ADDR")
	}
}
