package infra

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"joke-relay/relay/domain"
)

// KeyedLimiters guarda um token bucket (x/time/rate) por chave, usado para
// limitar quantos upgrades WebSocket cada IP pode fazer por segundo.
// Chaves ociosas são removidas pelo janitor.
type KeyedLimiters struct {
	mu           sync.Mutex
	entries      map[string]*keyedEntry
	rps          rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
}

type keyedEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type KeyedLimitersOption func(*KeyedLimiters)

func WithIdleTTL(d time.Duration) KeyedLimitersOption {
	return func(s *KeyedLimiters) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) KeyedLimitersOption {
	return func(s *KeyedLimiters) { s.cleanupEvery = d }
}

func NewKeyedLimiters(rps float64, burst int, opts ...KeyedLimitersOption) *KeyedLimiters {
	s := &KeyedLimiters{
		entries:      make(map[string]*keyedEntry),
		rps:          rate.Limit(rps),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *KeyedLimiters) RPS() float64 { return float64(s.rps) }
func (s *KeyedLimiters) Burst() int   { return s.burst }

// Get implementa domain.LimiterStore.
func (s *KeyedLimiters) Get(key domain.Key) domain.Limiter {
	return s.limiter(string(key), time.Now())
}

func (s *KeyedLimiters) limiter(key string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}

	lim := rate.NewLimiter(s.rps, s.burst)
	s.entries[key] = &keyedEntry{lim: lim, lastSeen: now}
	return lim
}

// Len retorna quantas chaves estão em cache.
func (s *KeyedLimiters) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Cleanup remove chaves sem acesso há mais de idleTTL.
func (s *KeyedLimiters) Cleanup() int {
	cutoff := time.Now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

// RunJanitor limpa chaves inativas periodicamente até o ctx encerrar.
// Bloqueia; rode em uma goroutine (ou errgroup).
func (s *KeyedLimiters) RunJanitor(ctx context.Context) error {
	if s.cleanupEvery <= 0 {
		<-ctx.Done()
		return nil
	}

	t := time.NewTicker(s.cleanupEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			s.Cleanup()
		}
	}
}
