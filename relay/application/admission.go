package application

import (
	"context"
	"log/slog"
	"time"

	"joke-relay/relay/domain"
)

// Admission decide se um novo upgrade WebSocket pode ser aceito.
//
// Duas regras independentes: um token bucket por chave (normalmente o IP) e um
// limite de conexões simultâneas. Não sabe nada sobre HTTP; o middleware do
// servidor traduz a decisão em status e headers.
type Admission struct {
	Limiters   domain.LimiterStore
	RetryAfter time.Duration

	Slots          domain.SlotPool
	AcquireTimeout time.Duration

	Logger *slog.Logger
}

func (a Admission) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

// Decide consome um token da chave. Sem store, ou sem limiter para a chave,
// tudo é permitido.
func (a Admission) Decide(key domain.Key) domain.Decision {
	if a.Limiters == nil {
		return domain.Decision{Allowed: true}
	}
	lim := a.Limiters.Get(key)
	if lim == nil || lim.Allow() {
		return domain.Decision{Allowed: true}
	}

	retry := a.RetryAfter
	if retry <= 0 {
		retry = time.Second
	}
	a.logger().Warn("connection rate limited",
		slog.String("key", string(key)),
		slog.Duration("retry_after", retry),
	)
	return domain.Decision{Allowed: false, RetryAfter: retry}
}

// Acquire reserva uma vaga de conexão.
//
// AcquireTimeout <= 0 espera até o ctx encerrar; > 0 espera no máximo esse tempo.
// Com ok=false nenhuma vaga foi reservada e release é nil.
// A vaga deve ser mantida enquanto a conexão estiver aberta.
func (a Admission) Acquire(ctx context.Context) (release func(), ok bool) {
	if a.Slots == nil {
		return func() {}, true
	}

	if a.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.AcquireTimeout)
		defer cancel()
	}

	release, ok = a.Slots.Acquire(ctx)
	if !ok {
		a.logger().Warn("connection limit reached", slog.Duration("acquire_timeout", a.AcquireTimeout))
	}
	return release, ok
}
