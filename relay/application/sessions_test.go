package application

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"joke-relay/relay/domain"
	"joke-relay/relay/infra"
)

func newTestSessions(opts ...SessionsOption) *Sessions {
	return NewSessions(append([]SessionsOption{WithSessionsLogger(discardLogger())}, opts...)...)
}

func TestSessions_ClientIDFromRemoteAddr(t *testing.T) {
	s := newTestSessions()
	if got := s.ClientID("10.1.2.3:5555"); got != "10.1.2.3:5555" {
		t.Fatalf("unexpected client id %q", got)
	}
	if got := s.ClientID("[::1]:4000"); got != "::1:4000" {
		t.Fatalf("unexpected ipv6 client id %q", got)
	}
}

func TestSessions_ClientIDFallbackIsSequential(t *testing.T) {
	s := newTestSessions()
	first := s.ClientID("")
	second := s.ClientID("garbage")
	if first != "client-1" || second != "client-2" {
		t.Fatalf("expected client-1 and client-2, got %q and %q", first, second)
	}
}

func TestSessions_CountersAndRoundedAverages(t *testing.T) {
	s := newTestSessions()
	ctx := context.Background()

	id := s.Open(ctx, "10.0.0.1:1000")
	s.JokeSent(ctx, id)
	s.JokeSent(ctx, id)
	s.JokeSent(ctx, id)
	s.TranslationReceived(ctx, id, 10, true)
	s.TranslationReceived(ctx, id, 20, true)
	s.TranslationReceived(ctx, id, 20, true)
	s.TranslationReceived(ctx, id, 0, false)

	snap := s.Snapshot()
	if snap.TotalJokesSent != 3 || snap.TotalTranslationsReceived != 4 {
		t.Fatalf("unexpected totals: %+v", snap)
	}
	if snap.CurrentlyActiveConnections != 1 {
		t.Fatalf("expected 1 active, got %d", snap.CurrentlyActiveConnections)
	}
	if snap.OverallAverageTranslationTimeMs != 16.67 {
		t.Fatalf("expected overall average 16.67, got %v", snap.OverallAverageTranslationTimeMs)
	}
	c := snap.ClientConnections[0]
	if c.Status != domain.SessionConnected || c.JokesSent != 3 || c.TranslationsReceived != 4 || c.AvgTranslationTimeMs != 16.67 {
		t.Fatalf("unexpected session view: %+v", c)
	}
	if c.SessionID != id || c.DisconnectedAt != nil {
		t.Fatalf("unexpected session identity: %+v", c)
	}
}

func TestSessions_UnknownSessionIgnored(t *testing.T) {
	s := newTestSessions()
	ctx := context.Background()
	s.JokeSent(ctx, "missing")
	s.TranslationReceived(ctx, "missing", 10, true)
	s.Close(ctx, "missing")

	snap := s.Snapshot()
	if snap.TotalJokesSent != 0 || snap.TotalTranslationsReceived != 0 || len(snap.ClientConnections) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}
}

func TestSessions_CloseMovesToRecentNewestFirst(t *testing.T) {
	clock := newFakeClock()
	s := newTestSessions(WithSessionsClock(clock.Now))
	ctx := context.Background()

	a := s.Open(ctx, "a:1")
	b := s.Open(ctx, "b:1")
	s.Open(ctx, "c:1")

	clock.Advance(time.Second)
	s.Close(ctx, a)
	clock.Advance(time.Second)
	s.Close(ctx, b)
	s.Close(ctx, b)

	snap := s.Snapshot()
	if snap.CurrentlyActiveConnections != 1 {
		t.Fatalf("expected 1 active, got %d", snap.CurrentlyActiveConnections)
	}
	got := make([]string, 0, len(snap.ClientConnections))
	for _, cs := range snap.ClientConnections {
		got = append(got, cs.ClientID+"/"+string(cs.Status))
	}
	want := "c:1/connected,b:1/disconnected,a:1/disconnected"
	if strings.Join(got, ",") != want {
		t.Fatalf("expected %s, got %s", want, strings.Join(got, ","))
	}
	if snap.ClientConnections[1].DisconnectedAt == nil || !snap.ClientConnections[1].DisconnectedAt.Equal(clock.Now()) {
		t.Fatalf("expected disconnect time recorded, got %+v", snap.ClientConnections[1])
	}
}

func TestSessions_RecentListIsBounded(t *testing.T) {
	s := newTestSessions(WithMaxDisconnected(3))
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		s.Close(ctx, s.Open(ctx, "c:"+string(rune('0'+i))))
	}

	snap := s.Snapshot()
	if len(snap.ClientConnections) != 3 {
		t.Fatalf("expected 3 recent sessions, got %d", len(snap.ClientConnections))
	}
	if snap.ClientConnections[0].ClientID != "c:4" || snap.ClientConnections[2].ClientID != "c:2" {
		t.Fatalf("unexpected recent order: %+v", snap.ClientConnections)
	}
}

func TestSessions_RecordsIntoStatsStore(t *testing.T) {
	store := infra.NewMemoryStatsStore(infra.WithTrackClients(true))
	s := newTestSessions(WithStatsStore(store))
	ctx := context.Background()

	id := s.Open(ctx, "10.0.0.9:1")
	s.JokeSent(ctx, id)
	s.TranslationReceived(ctx, id, 40, true)
	s.Close(ctx, id)

	total := store.Total()
	if total.Connections != 1 || total.JokesSent != 1 || total.TranslationsReceived != 1 {
		t.Fatalf("unexpected store totals: %+v", total)
	}
	if total.AvgDurationMs() != 40 {
		t.Fatalf("expected avg 40ms, got %v", total.AvgDurationMs())
	}
	if _, ok := store.ByClient()["10.0.0.9:1"]; !ok {
		t.Fatalf("expected per-client counters")
	}
}

type failingStore struct{}

func (failingStore) Record(context.Context, domain.StatsEvent) error {
	return errors.New("redis down")
}

func TestSessions_StoreErrorsAreBestEffort(t *testing.T) {
	s := newTestSessions(WithStatsStore(failingStore{}))
	ctx := context.Background()
	id := s.Open(ctx, "x:1")
	s.JokeSent(ctx, id)
	if s.Snapshot().TotalJokesSent != 1 {
		t.Fatalf("expected counters updated despite store error")
	}
}

func TestSessions_OnChangeCalledPerMutation(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	s := newTestSessions(WithOnChange(func() {
		mu.Lock()
		calls++
		mu.Unlock()
	}))
	ctx := context.Background()

	id := s.Open(ctx, "x:1")
	s.JokeSent(ctx, id)
	s.TranslationReceived(ctx, id, 1, true)
	s.Close(ctx, id)
	s.JokeSent(ctx, id)

	mu.Lock()
	defer mu.Unlock()
	if calls != 4 {
		t.Fatalf("expected 4 change notifications, got %d", calls)
	}
}
