package relay

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"joke-relay/relay/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func readEvent(t *testing.T, br *bufio.Reader) domain.StatsSnapshot {
	t.Helper()
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		for {
			line, err := br.ReadString('\n')
			if err != nil || strings.HasPrefix(line, "data: ") {
				ch <- result{line, err}
				return
			}
		}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			t.Fatalf("read event: %v", res.err)
		}
		var snap domain.StatsSnapshot
		if err := json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(res.line), "data: ")), &snap); err != nil {
			t.Fatalf("decode event %q: %v", res.line, err)
		}
		return snap
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for sse event")
		return domain.StatsSnapshot{}
	}
}

func TestBroadcaster_StreamsInitialAndUpdates(t *testing.T) {
	var jokes atomic.Int64
	b := NewBroadcaster(func() domain.StatsSnapshot {
		return domain.StatsSnapshot{TotalJokesSent: jokes.Load(), ClientConnections: []domain.ClientSession{}}
	}, WithBroadcasterLogger(discardLogger()))

	srv := httptest.NewServer(b)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	br := bufio.NewReader(resp.Body)
	if snap := readEvent(t, br); snap.TotalJokesSent != 0 {
		t.Fatalf("unexpected initial snapshot: %+v", snap)
	}
	if b.Clients() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", b.Clients())
	}

	jokes.Store(3)
	b.Publish()
	if snap := readEvent(t, br); snap.TotalJokesSent != 3 {
		t.Fatalf("expected updated snapshot, got %+v", snap)
	}

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for b.Clients() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected subscriber removed after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBroadcaster_PublishWithoutSubscribersSkipsSnapshot(t *testing.T) {
	var calls atomic.Int32
	b := NewBroadcaster(func() domain.StatsSnapshot {
		calls.Add(1)
		return domain.StatsSnapshot{}
	}, WithBroadcasterLogger(discardLogger()))

	b.Publish()
	if calls.Load() != 0 {
		t.Fatalf("expected no snapshot without subscribers")
	}
}

func TestBroadcaster_SlowSubscriberDropsUpdates(t *testing.T) {
	b := NewBroadcaster(func() domain.StatsSnapshot { return domain.StatsSnapshot{} },
		WithSubscriberBuffer(1), WithBroadcasterLogger(discardLogger()))
	ch := b.subscribe()
	defer b.unsubscribe(ch)

	done := make(chan struct{})
	go func() {
		b.Publish()
		b.Publish()
		b.Publish()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("publish blocked on a slow subscriber")
	}
	if len(ch) != 1 {
		t.Fatalf("expected one buffered update, got %d", len(ch))
	}
}
