package domain

// Contratos de rate limit usados na admissão de conexões do servidor.

import "time"

type Key string

// Limiter representa algo que pode decidir se uma ação é permitida agora.
//
// A camada de infra usa golang.org/x/time/rate.
type Limiter interface {
	Allow() bool
}

// LimiterStore obtém um limiter por chave (ex: IP do cliente).
type LimiterStore interface {
	Get(Key) Limiter
}

type Decision struct {
	Allowed bool
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	RetryAfter time.Duration
}
