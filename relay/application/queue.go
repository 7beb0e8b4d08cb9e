package application

import (
	"log/slog"
	"time"

	"joke-relay/relay/domain"
)

// Queue guarda os itens pendentes em ordem de chegada e expõe o gate de
// admissão derivado do rate limit.
//
// Sem limite de capacidade: o controle acontece na liberação, não na entrada.
// Não é segura para uso concorrente; o dono é o Driver.
type Queue struct {
	items  []domain.Item
	gate   domain.Gate
	now    func() time.Time
	logger *slog.Logger
}

type QueueOption func(*Queue)

// WithQueueClock troca o relógio (testes).
func WithQueueClock(now func() time.Time) QueueOption {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

func WithQueueLogger(l *slog.Logger) QueueOption {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

func NewQueue(gate domain.Gate, opts ...QueueOption) *Queue {
	q := &Queue{
		gate:   gate,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.logger = q.logger.With(slog.String("component", "joke-queue"))
	return q
}

func (q *Queue) Enqueue(item domain.Item) {
	q.items = append(q.items, item)
	q.logger.Info("added joke to queue", slog.Int64("joke_id", item.ID), slog.Int("queue_size", len(q.items)))
}

// GateOpen é true se há item e o intervalo mínimo desde a última liberação passou.
func (q *Queue) GateOpen() bool {
	if len(q.items) == 0 {
		return false
	}
	now := q.now()
	if q.gate == nil || q.gate.Ready(now) {
		return true
	}
	q.logger.Debug("rate limiting in effect",
		slog.Duration("wait", q.gate.Wait(now)),
		slog.Int("queue_size", len(q.items)),
	)
	return false
}

// Dequeue remove o item da frente e registra a liberação no gate.
//
// Não verifica o gate: quem chama direto ignora o rate limit.
// Chame GateOpen antes para respeitá-lo.
func (q *Queue) Dequeue() (domain.Item, bool) {
	if len(q.items) == 0 {
		return domain.Item{}, false
	}

	item := q.items[0]
	q.items[0] = domain.Item{}
	q.items = q.items[1:]
	if q.gate != nil {
		q.gate.Admit(q.now())
	}

	q.logger.Info("dequeued joke", slog.Int64("joke_id", item.ID), slog.Int("queue_size", len(q.items)))
	return item, true
}

// Clear esvazia a fila. O carimbo do gate não muda.
func (q *Queue) Clear() {
	n := len(q.items)
	q.items = nil
	q.logger.Info("cleared joke queue", slog.Int("cleared_count", n))
}

// ResetGate faz o próximo GateOpen ignorar o tempo decorrido (início de sessão).
func (q *Queue) ResetGate() {
	if q.gate != nil {
		q.gate.Reset()
	}
	q.logger.Info("rate limit timer reset")
}

func (q *Queue) Size() int { return len(q.items) }
