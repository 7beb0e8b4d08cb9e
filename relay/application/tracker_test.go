package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"joke-relay/relay/domain"
)

func newTestTracker(tr domain.Translator, max int, obs domain.Observer) *Tracker {
	return NewTracker(tr, max, WithObserver(obs), WithTrackerLogger(discardLogger()))
}

func TestTracker_AdmitsUpToMaxThenCompletesOnce(t *testing.T) {
	tr := newGatedTranslator()
	obs := &recordingObserver{}
	tk := newTestTracker(tr, 2, obs)

	ctx := context.Background()
	if !tk.Submit(ctx, domain.Item{ID: 1, Payload: "a"}) {
		t.Fatalf("expected first submit accepted")
	}
	if !tk.Submit(ctx, domain.Item{ID: 2, Payload: "b"}) {
		t.Fatalf("expected second submit accepted")
	}
	if tk.Submit(ctx, domain.Item{ID: 3, Payload: "c"}) {
		t.Fatalf("expected third submit refused while two are in flight")
	}
	if tk.InFlight() != 2 || tk.HasCapacity() {
		t.Fatalf("expected 2 in flight and no capacity, got %d", tk.InFlight())
	}

	tr.succeed("a", "A")
	settleNext(t, tk)
	if tk.CompletedCount() != 1 || obs.completed != 0 {
		t.Fatalf("expected 1 completed and no completion signal, got %d/%d", tk.CompletedCount(), obs.completed)
	}

	tr.succeed("b", "B")
	settleNext(t, tk)

	if len(obs.translated) != 2 {
		t.Fatalf("expected 2 translated notifications, got %d", len(obs.translated))
	}
	if obs.completed != 1 {
		t.Fatalf("expected exactly one completion signal, got %d", obs.completed)
	}
	if !tk.IsTerminal() || tk.InFlight() != 0 {
		t.Fatalf("expected terminal tracker with nothing in flight")
	}
	if tk.Submit(ctx, domain.Item{ID: 4, Payload: "d"}) {
		t.Fatalf("expected submit refused after goal met")
	}
	if got := tr.calls.Load(); got != 2 {
		t.Fatalf("expected translator called twice, got %d", got)
	}
}

func TestTracker_ResultCarriesPayloadAndDuration(t *testing.T) {
	clock := newFakeClock()
	translator := domain.TranslatorFunc(func(_ context.Context, payload string) (string, error) {
		clock.Advance(250 * time.Millisecond)
		return "Hallo " + payload, nil
	})
	obs := &recordingObserver{}
	tk := NewTracker(translator, 3,
		WithObserver(obs),
		WithTrackerClock(clock.Now),
		WithTrackerLogger(discardLogger()),
	)

	tk.Submit(context.Background(), domain.Item{ID: 7, Payload: "world"})
	settleNext(t, tk)

	if len(obs.translated) != 1 {
		t.Fatalf("expected one result, got %d", len(obs.translated))
	}
	res := obs.translated[0]
	if res.ID != 7 || res.Payload != "world" || res.TranslatedPayload != "Hallo world" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.DurationMs != 250 {
		t.Fatalf("expected 250ms duration, got %v", res.DurationMs)
	}
}

func TestTracker_FailuresAreNotCounted(t *testing.T) {
	tr := newGatedTranslator()
	obs := &recordingObserver{}
	tk := newTestTracker(tr, 2, obs)

	ctx := context.Background()
	tk.Submit(ctx, domain.Item{ID: 1, Payload: "hard"})
	tk.Submit(ctx, domain.Item{ID: 2, Payload: "soft"})

	tr.fail("hard")
	settleNext(t, tk)
	tr.empty("soft")
	settleNext(t, tk)

	if tk.CompletedCount() != 0 {
		t.Fatalf("expected failures not counted, got %d", tk.CompletedCount())
	}
	if tk.IsTerminal() {
		t.Fatalf("expected tracker not terminal after failures")
	}
	if len(obs.translated) != 0 || obs.completed != 0 {
		t.Fatalf("expected no notifications, got %+v", obs)
	}
	if !tk.HasCapacity() {
		t.Fatalf("expected capacity freed by failures")
	}
}

func TestTracker_TranslatorPanicBecomesFailure(t *testing.T) {
	translator := domain.TranslatorFunc(func(context.Context, string) (string, error) {
		panic("boom")
	})
	tk := newTestTracker(translator, 1, &recordingObserver{})

	tk.Submit(context.Background(), domain.Item{ID: 1, Payload: "x"})
	s := settleNext(t, tk)

	if s.Err == nil {
		t.Fatalf("expected panic converted to error")
	}
	if tk.InFlight() != 0 || tk.CompletedCount() != 0 {
		t.Fatalf("expected slot released and nothing counted")
	}
}

func TestTracker_ResetKeepsInFlightTasks(t *testing.T) {
	tr := newGatedTranslator()
	obs := &recordingObserver{}
	tk := newTestTracker(tr, 2, obs)

	ctx := context.Background()
	tk.Submit(ctx, domain.Item{ID: 1, Payload: "a"})
	tk.Submit(ctx, domain.Item{ID: 2, Payload: "b"})
	tr.succeed("a", "A")
	settleNext(t, tk)

	tk.Reset()
	if tk.CompletedCount() != 0 {
		t.Fatalf("expected completed zeroed by reset")
	}
	if tk.InFlight() != 1 {
		t.Fatalf("expected in-flight task kept across reset, got %d", tk.InFlight())
	}

	tr.succeed("b", "B")
	settleNext(t, tk)
	if tk.CompletedCount() != 1 {
		t.Fatalf("expected old task counted in new generation, got %d", tk.CompletedCount())
	}
}

func TestTracker_ResetStartsNewCompletionGeneration(t *testing.T) {
	obs := &recordingObserver{}
	tk := newTestTracker(prefixTranslator(), 1, obs)

	tk.Submit(context.Background(), domain.Item{ID: 1, Payload: "a"})
	settleNext(t, tk)
	tk.Reset()
	tk.Submit(context.Background(), domain.Item{ID: 2, Payload: "b"})
	settleNext(t, tk)

	if obs.completed != 2 {
		t.Fatalf("expected one completion per generation, got %d", obs.completed)
	}
}

func TestTracker_ZeroMaxIsTerminalImmediately(t *testing.T) {
	tk := newTestTracker(prefixTranslator(), 0, &recordingObserver{})
	if tk.Submit(context.Background(), domain.Item{ID: 1, Payload: "a"}) {
		t.Fatalf("expected submit refused with max=0")
	}
	if !tk.IsTerminal() {
		t.Fatalf("expected terminal with max=0")
	}
}

func TestTracker_UnknownSettlementIgnored(t *testing.T) {
	tk := newTestTracker(prefixTranslator(), 2, &recordingObserver{})
	tk.Settle(Settlement{Item: domain.Item{ID: 9}, Translated: "x"})
	if tk.CompletedCount() != 0 {
		t.Fatalf("expected unknown settlement ignored")
	}
}

func TestTracker_DrainWaitsForInFlight(t *testing.T) {
	tr := newGatedTranslator()
	obs := &recordingObserver{}
	tk := newTestTracker(tr, 3, obs)

	tk.Submit(context.Background(), domain.Item{ID: 1, Payload: "a"})
	tk.Submit(context.Background(), domain.Item{ID: 2, Payload: "b"})
	go func() {
		tr.succeed("a", "A")
		tr.fail("b")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := tk.Drain(ctx); err != nil {
		t.Fatalf("unexpected drain error: %v", err)
	}
	if tk.InFlight() != 0 || tk.CompletedCount() != 1 {
		t.Fatalf("expected drained tracker with 1 completed, got inFlight=%d completed=%d", tk.InFlight(), tk.CompletedCount())
	}
}

func TestTracker_DrainHonorsContext(t *testing.T) {
	tr := newGatedTranslator()
	tk := newTestTracker(tr, 1, &recordingObserver{})

	taskCtx, stop := context.WithCancel(context.Background())
	t.Cleanup(stop)
	tk.Submit(taskCtx, domain.Item{ID: 1, Payload: "stuck"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := tk.Drain(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if tk.InFlight() != 1 {
		t.Fatalf("expected task still in flight")
	}
}
