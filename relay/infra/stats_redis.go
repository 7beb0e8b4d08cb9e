package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"joke-relay/relay/domain"
)

// RedisStatsStore espelha os contadores do servidor em hashes Redis.
//
// Layout (prefix padrão "jokerelay:stats"):
//
//	<prefix>:total              hash cumulativo, sem expiração
//	<prefix>:minute:<yyyymmddhhmm>  hash por minuto, com TTL
//	<prefix>:client:<clientId>  hash por conexão, com TTL
type RedisStatsStore struct {
	rdb *redis.Client

	prefix string
	// ttl aplica apenas em chaves de série temporal / por cliente.
	ttl time.Duration

	bucket string // "minute" (padrão) ou "none"

	trackClients bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackClients(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackClients = track }
}

func NewRedisStatsStore(rdb *redis.Client, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:          rdb,
		prefix:       "jokerelay:stats",
		ttl:          24 * time.Hour,
		bucket:       "minute",
		trackClients: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// fieldFor mapeia o tipo do evento para o campo do hash.
func fieldFor(kind domain.StatsKind) string {
	switch kind {
	case domain.StatsConnected:
		return "connections"
	case domain.StatsDisconnected:
		return "disconnections"
	case domain.StatsJokeSent:
		return "jokes_sent"
	case domain.StatsTranslationReceived:
		return "translations_received"
	default:
		return ""
	}
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	field := fieldFor(ev.Kind)
	if field == "" {
		return fmt.Errorf("redis stats: unknown event kind %q", ev.Kind)
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	keys := []string{s.prefix + ":total"}
	if s.bucket == "minute" {
		keys = append(keys, fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504")))
	}
	if s.trackClients {
		if id := strings.TrimSpace(ev.ClientID); id != "" {
			keys = append(keys, s.prefix+":client:"+id)
		}
	}

	pipe := s.rdb.Pipeline()
	for i, key := range keys {
		pipe.HIncrBy(ctx, key, field, 1)
		if ev.Kind == domain.StatsTranslationReceived && ev.HasDuration {
			pipe.HIncrByFloat(ctx, key, "duration_sum_ms", ev.DurationMs)
			pipe.HIncrBy(ctx, key, "timed_translations", 1)
		}
		// total (índice 0) é cumulativo e não expira
		if i > 0 && s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}

// Total lê o hash cumulativo. Campos ausentes viram zero.
func (s *RedisStatsStore) Total(ctx context.Context) (Counters, error) {
	vals, err := s.rdb.HGetAll(ctx, s.prefix+":total").Result()
	if err != nil {
		return Counters{}, err
	}
	return countersFromHash(vals), nil
}

func countersFromHash(vals map[string]string) Counters {
	var c Counters
	_, _ = fmt.Sscan(orZero(vals["connections"]), &c.Connections)
	_, _ = fmt.Sscan(orZero(vals["jokes_sent"]), &c.JokesSent)
	_, _ = fmt.Sscan(orZero(vals["translations_received"]), &c.TranslationsReceived)
	_, _ = fmt.Sscan(orZero(vals["duration_sum_ms"]), &c.DurationSumMs)
	_, _ = fmt.Sscan(orZero(vals["timed_translations"]), &c.TimedTranslations)
	return c
}

func orZero(v string) string {
	if v == "" {
		return "0"
	}
	return v
}
