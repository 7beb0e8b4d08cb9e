package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"joke-relay/relay/domain"
)

// Settlement é o resultado de uma chamada de tradução, entregue pela
// goroutine da tarefa ao dono do Tracker através de Settled().
type Settlement struct {
	taskID     uint64
	Item       domain.Item
	Translated string
	Err        error
	Duration   time.Duration
}

// Tracker limita quantas traduções podem estar concluídas + em andamento,
// conta os sucessos e avisa o Observer.
//
// Invariante de admissão: completed + inFlight < max antes de aceitar um Submit.
// Todas as mutações acontecem na goroutine dona (Submit, Settle, Drain, Reset);
// as goroutines de tradução só enviam um Settlement.
type Tracker struct {
	translator domain.Translator
	observer   domain.Observer
	max        int

	completed int
	inFlight  map[uint64]domain.Item
	nextID    uint64
	fired     bool

	settled chan Settlement
	now     func() time.Time
	logger  *slog.Logger
}

type TrackerOption func(*Tracker)

func WithObserver(o domain.Observer) TrackerOption {
	return func(t *Tracker) { t.observer = o }
}

func WithTrackerClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

func WithTrackerLogger(l *slog.Logger) TrackerOption {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

func NewTracker(translator domain.Translator, maxCompleted int, opts ...TrackerOption) *Tracker {
	if maxCompleted < 0 {
		maxCompleted = 0
	}
	t := &Tracker{
		translator: translator,
		max:        maxCompleted,
		inFlight:   make(map[uint64]domain.Item),
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	// inFlight nunca passa de max, então as goroutines de tradução nunca bloqueiam no envio
	t.settled = make(chan Settlement, max(maxCompleted, 1))
	t.logger = t.logger.With(slog.String("component", "translation-tracker"))
	return t
}

// SetObserver troca o observer. Chame antes do primeiro Submit.
func (t *Tracker) SetObserver(o domain.Observer) { t.observer = o }

// Submit inicia a tradução do item se houver capacidade.
//
// Retorna false (sem erro) quando o limite já foi atingido ou seria excedido
// pelas tarefas em andamento. A tarefa é registrada antes de Submit retornar,
// então InFlight() já a conta.
func (t *Tracker) Submit(ctx context.Context, item domain.Item) bool {
	if t.completed >= t.max {
		t.logger.Info("skipping joke, maximum translations already reached",
			slog.Int64("joke_id", item.ID),
			slog.Int("translated_count", t.completed),
			slog.Int("max", t.max),
		)
		return false
	}

	total := t.completed + len(t.inFlight)
	if total >= t.max {
		t.logger.Info("skipping joke, would exceed maximum translations",
			slog.Int64("joke_id", item.ID),
			slog.Int("translated_count", t.completed),
			slog.Int("active_translations", len(t.inFlight)),
			slog.Int("max", t.max),
		)
		return false
	}

	t.nextID++
	id := t.nextID
	t.inFlight[id] = item

	t.logger.Info("starting translation",
		slog.Int64("joke_id", item.ID),
		slog.Int("active_translations", len(t.inFlight)),
	)
	go t.run(ctx, id, item, t.now())
	return true
}

func (t *Tracker) run(ctx context.Context, id uint64, item domain.Item, started time.Time) {
	s := Settlement{taskID: id, Item: item}
	defer func() {
		if r := recover(); r != nil {
			s.Translated = ""
			s.Err = fmt.Errorf("translator panic: %v", r)
		}
		s.Duration = t.now().Sub(started)
		t.settled <- s
	}()
	s.Translated, s.Err = t.translator.Translate(ctx, item.Payload)
}

// Settled entrega os resultados das tarefas; aplique cada um com Settle.
func (t *Tracker) Settled() <-chan Settlement { return t.settled }

// Settle aplica o resultado de uma tarefa: remove de inFlight, conta o sucesso
// e notifica o Observer. Falhas soft (texto vazio) e hard (erro) só são logadas.
func (t *Tracker) Settle(s Settlement) {
	if _, ok := t.inFlight[s.taskID]; !ok {
		t.logger.Warn("settlement for unknown task ignored", slog.Int64("joke_id", s.Item.ID))
		return
	}
	delete(t.inFlight, s.taskID)

	switch {
	case s.Err != nil:
		t.logger.Error("error translating joke",
			slog.Int64("joke_id", s.Item.ID),
			slog.String("error", s.Err.Error()),
		)
	case s.Translated == "":
		t.logger.Warn("translation failed: empty result returned", slog.Int64("joke_id", s.Item.ID))
	default:
		t.completed++
		res := domain.TranslationResult{
			ID:                s.Item.ID,
			Payload:           s.Item.Payload,
			TranslatedPayload: s.Translated,
			DurationMs:        float64(s.Duration) / float64(time.Millisecond),
		}
		t.logger.Info("translation completed",
			slog.Int64("joke_id", res.ID),
			slog.Float64("duration_ms", res.DurationMs),
		)
		if t.observer != nil {
			t.observer.Translated(res)
		}
		if t.completed >= t.max {
			t.fireCompleted()
		}
	}

	t.logger.Debug("translation task settled",
		slog.Int64("joke_id", s.Item.ID),
		slog.Int("active_remaining", len(t.inFlight)),
		slog.Int("translated_count", t.completed),
	)
	if len(t.inFlight) == 0 && t.completed >= t.max {
		t.fireCompleted()
	}
}

// fireCompleted notifica Completed uma única vez por geração.
func (t *Tracker) fireCompleted() {
	if t.fired {
		return
	}
	t.fired = true
	if t.observer != nil {
		t.observer.Completed()
	}
}

// Drain aplica resultados até não haver tarefa em andamento ou o ctx encerrar.
// Não cancela nenhuma chamada.
func (t *Tracker) Drain(ctx context.Context) error {
	for len(t.inFlight) > 0 {
		select {
		case s := <-t.settled:
			t.Settle(s)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (t *Tracker) HasCapacity() bool { return t.completed+len(t.inFlight) < t.max }

func (t *Tracker) InFlight() int { return len(t.inFlight) }

func (t *Tracker) CompletedCount() int { return t.completed }

func (t *Tracker) Max() int { return t.max }

// IsTerminal é true quando o limite foi atingido e nada está em andamento.
func (t *Tracker) IsTerminal() bool { return t.completed >= t.max && len(t.inFlight) == 0 }

// Reset zera apenas o contador de concluídas e inicia uma nova geração.
//
// Tarefas em andamento não são canceladas nem esquecidas: quando terminarem,
// contam no contador recém-zerado.
func (t *Tracker) Reset() {
	t.completed = 0
	t.fired = false
	t.logger.Info("translation tracker reset", slog.Int("active_translations", len(t.inFlight)))
}
