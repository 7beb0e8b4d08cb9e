package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"joke-relay/relay/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// gatedTranslator segura cada chamada até o teste liberar o resultado pelo payload.
type gatedTranslator struct {
	mu      sync.Mutex
	pending map[string]chan translateOutcome
	calls   atomic.Int32
}

type translateOutcome struct {
	text string
	err  error
}

func newGatedTranslator() *gatedTranslator {
	return &gatedTranslator{pending: make(map[string]chan translateOutcome)}
}

func (g *gatedTranslator) ch(payload string) chan translateOutcome {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.pending[payload]
	if !ok {
		c = make(chan translateOutcome, 1)
		g.pending[payload] = c
	}
	return c
}

func (g *gatedTranslator) Translate(ctx context.Context, payload string) (string, error) {
	g.calls.Add(1)
	select {
	case out := <-g.ch(payload):
		return out.text, out.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (g *gatedTranslator) succeed(payload, text string) { g.ch(payload) <- translateOutcome{text: text} }
func (g *gatedTranslator) fail(payload string)          { g.ch(payload) <- translateOutcome{err: errors.New("translation API error")} }
func (g *gatedTranslator) empty(payload string)         { g.ch(payload) <- translateOutcome{} }

func prefixTranslator() domain.Translator {
	return domain.TranslatorFunc(func(_ context.Context, payload string) (string, error) {
		return "TRANSLATED: " + payload, nil
	})
}

type recordingObserver struct {
	translated []domain.TranslationResult
	completed  int
}

func (o *recordingObserver) Translated(res domain.TranslationResult) {
	o.translated = append(o.translated, res)
}

func (o *recordingObserver) Completed() { o.completed++ }

// settleNext espera o próximo resultado e o aplica na goroutine do teste.
func settleNext(t *testing.T, tr *Tracker) Settlement {
	t.Helper()
	select {
	case s := <-tr.Settled():
		tr.Settle(s)
		return s
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for settlement")
		return Settlement{}
	}
}

type fakeTransport struct {
	events chan domain.TransportEvent
	open   atomic.Bool

	mu      sync.Mutex
	sent    []domain.TranslationResult
	closes  int
	sendErr error
}

func newFakeTransport() *fakeTransport {
	t := &fakeTransport{events: make(chan domain.TransportEvent, 32)}
	t.open.Store(true)
	return t
}

func (f *fakeTransport) IsOpen() bool                          { return f.open.Load() }
func (f *fakeTransport) Events() <-chan domain.TransportEvent { return f.events }

func (f *fakeTransport) Send(_ context.Context, res domain.TranslationResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open.Load() {
		return domain.ErrTransportClosed
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, res)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	f.open.Store(false)
	return nil
}

func (f *fakeTransport) Sent() []domain.TranslationResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.TranslationResult(nil), f.sent...)
}

func (f *fakeTransport) Closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}
