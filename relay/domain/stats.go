package domain

import (
	"context"
	"time"
)

// StatsKind identifica o tipo de evento de estatística de uma sessão.
type StatsKind string

const (
	StatsConnected           StatsKind = "connected"
	StatsDisconnected        StatsKind = "disconnected"
	StatsJokeSent            StatsKind = "joke_sent"
	StatsTranslationReceived StatsKind = "translation_received"
)

// StatsEvent representa uma mudança nos contadores de uma conexão.
//
// Observação: ClientID é ip:porta, então a cardinalidade cresce com cada
// conexão. Stores persistentes devem aplicar TTL nas chaves por cliente.
type StatsEvent struct {
	Kind     StatsKind
	ClientID string

	// DurationMs só é relevante em StatsTranslationReceived.
	// HasDuration distingue "sem duração" de duração zero.
	DurationMs  float64
	HasDuration bool

	At time.Time
}

// StatsStore é a estratégia de persistência para os contadores do servidor.
//
// Implementações podem armazenar em Redis, memória, etc.
// O servidor trata erro como best-effort (não derruba a conexão).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}

// SessionStatus é o estado de uma sessão exibida na UI.
type SessionStatus string

const (
	SessionConnected    SessionStatus = "connected"
	SessionDisconnected SessionStatus = "disconnected"
)

// ClientSession é a visão de uma conexão (ativa ou recém desconectada).
type ClientSession struct {
	ClientID             string        `json:"clientId"`
	SessionID            string        `json:"sessionId"`
	Status               SessionStatus `json:"status"`
	JokesSent            int64         `json:"jokesSent"`
	TranslationsReceived int64         `json:"translationsReceived"`
	AvgTranslationTimeMs float64       `json:"avgTranslationTimeMs"`
	ConnectedAt          time.Time     `json:"connectedAt"`
	DisconnectedAt       *time.Time    `json:"disconnectedAt,omitempty"`
}

// StatsSnapshot é o payload enviado para a UI.
type StatsSnapshot struct {
	TotalJokesSent                  int64           `json:"totalJokesSent"`
	TotalTranslationsReceived       int64           `json:"totalTranslationsReceived"`
	CurrentlyActiveConnections      int             `json:"currentlyActiveConnections"`
	OverallAverageTranslationTimeMs float64         `json:"overallAverageTranslationTimeMs"`
	ClientConnections               []ClientSession `json:"clientConnections"`
}
