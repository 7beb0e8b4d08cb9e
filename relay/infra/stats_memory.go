package infra

import (
	"context"
	"sync"

	"joke-relay/relay/domain"
)

type Counters struct {
	Connections          int64
	JokesSent            int64
	TranslationsReceived int64
	DurationSumMs        float64
	TimedTranslations    int64
}

func (c Counters) AvgDurationMs() float64 {
	if c.TimedTranslations == 0 {
		return 0
	}
	return c.DurationSumMs / float64(c.TimedTranslations)
}

func (c *Counters) apply(ev domain.StatsEvent) {
	switch ev.Kind {
	case domain.StatsConnected:
		c.Connections++
	case domain.StatsJokeSent:
		c.JokesSent++
	case domain.StatsTranslationReceived:
		c.TranslationsReceived++
		if ev.HasDuration {
			c.DurationSumMs += ev.DurationMs
			c.TimedTranslations++
		}
	}
}

// MemoryStatsStore é uma implementação simples em memória.
// Útil para testes e desenvolvimento.
//
// Não faz expiração: com trackClients ligado, cada conexão fica no mapa.
type MemoryStatsStore struct {
	mu       sync.Mutex
	total    Counters
	byClient map[string]Counters

	trackClients bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackClients(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackClients = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byClient: make(map[string]Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.apply(ev)
	if s.trackClients && ev.ClientID != "" {
		c := s.byClient[ev.ClientID]
		c.apply(ev)
		s.byClient[ev.ClientID] = c
	}
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) ByClient() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byClient))
	for k, v := range s.byClient {
		out[k] = v
	}
	return out
}
