package domain

import (
	"context"
	"time"
)

// Translator é a chamada externa de tradução.
//
// ("", nil) é uma falha "soft" (resposta vazia); erro é uma falha "hard".
// Em nenhum dos casos o pipeline tenta de novo.
type Translator interface {
	Translate(ctx context.Context, payload string) (string, error)
}

// TranslatorFunc adapta uma função comum para Translator.
type TranslatorFunc func(ctx context.Context, payload string) (string, error)

func (f TranslatorFunc) Translate(ctx context.Context, payload string) (string, error) {
	return f(ctx, payload)
}

// EventKind identifica um sinal de ciclo de vida do transporte.
type EventKind int

const (
	EventOpened EventKind = iota + 1
	EventItemReceived
	EventClosed
	EventErrored
)

func (k EventKind) String() string {
	switch k {
	case EventOpened:
		return "opened"
	case EventItemReceived:
		return "item_received"
	case EventClosed:
		return "closed"
	case EventErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// TransportEvent é entregue pelo transporte ao driver.
// Item só é preenchido em EventItemReceived; Err só em EventErrored.
type TransportEvent struct {
	Kind EventKind
	Item Item
	Err  error
}

// Transport é a conexão duplex vista pelo pipeline.
type Transport interface {
	IsOpen() bool
	Send(ctx context.Context, res TranslationResult) error
	Close() error
	Events() <-chan TransportEvent
}

// Observer recebe os eventos produzidos pelo tracker.
//
// Translated é chamado uma vez por tradução bem-sucedida.
// Completed é chamado uma vez por geração do tracker (ver Tracker.Reset).
type Observer interface {
	Translated(res TranslationResult)
	Completed()
}

// Gate decide quando o próximo item pode ser liberado.
//
// Ready é consulta pura. Admit registra uma liberação em `now`.
// Reset faz o próximo Ready retornar true independente do tempo decorrido.
type Gate interface {
	Ready(now time.Time) bool
	Admit(now time.Time)
	Reset()
	// Wait informa quanto falta para o próximo Ready (0 se já liberado).
	Wait(now time.Time) time.Duration
}
