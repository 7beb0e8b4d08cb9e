package application

import (
	"context"
	"log/slog"
	"math"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"joke-relay/relay/domain"
)

const DefaultMaxDisconnected = 10

// Sessions mantém os contadores de cada conexão WebSocket do servidor e os
// totais globais exibidos na UI.
//
// Sessões encerradas vão para uma lista das últimas N desconexões (mais
// recente primeiro). Cada mutação também é gravada no StatsStore configurado
// (best-effort) e dispara o callback de mudança.
type Sessions struct {
	mu     sync.Mutex
	active map[string]*liveSession
	recent []domain.ClientSession
	seq    uint64
	anon   uint64

	totalJokes        int64
	totalTranslations int64
	durationSumMs     float64
	timedCount        int64

	maxDisconnected int
	store           domain.StatsStore
	onChange        func()
	now             func() time.Time
	logger          *slog.Logger
}

type liveSession struct {
	order                uint64
	clientID             string
	sessionID            string
	jokesSent            int64
	translationsReceived int64
	durationSumMs        float64
	timedCount           int64
	connectedAt          time.Time
}

func (ls *liveSession) view(status domain.SessionStatus) domain.ClientSession {
	return domain.ClientSession{
		ClientID:             ls.clientID,
		SessionID:            ls.sessionID,
		Status:               status,
		JokesSent:            ls.jokesSent,
		TranslationsReceived: ls.translationsReceived,
		AvgTranslationTimeMs: average(ls.durationSumMs, ls.timedCount),
		ConnectedAt:          ls.connectedAt,
	}
}

type SessionsOption func(*Sessions)

func WithStatsStore(store domain.StatsStore) SessionsOption {
	return func(s *Sessions) { s.store = store }
}

// WithMaxDisconnected define quantas sessões encerradas ficam visíveis (padrão 10).
func WithMaxDisconnected(n int) SessionsOption {
	return func(s *Sessions) {
		if n >= 0 {
			s.maxDisconnected = n
		}
	}
}

// WithOnChange registra um callback chamado após cada mutação, fora do lock.
func WithOnChange(fn func()) SessionsOption {
	return func(s *Sessions) { s.onChange = fn }
}

func WithSessionsClock(now func() time.Time) SessionsOption {
	return func(s *Sessions) {
		if now != nil {
			s.now = now
		}
	}
}

func WithSessionsLogger(l *slog.Logger) SessionsOption {
	return func(s *Sessions) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewSessions(opts ...SessionsOption) *Sessions {
	s := &Sessions{
		active:          make(map[string]*liveSession),
		maxDisconnected: DefaultMaxDisconnected,
		now:             time.Now,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("component", "client-manager"))
	return s
}

// ClientID deriva o identificador exibido na UI a partir do endereço remoto
// (ip:porta). Sem endereço utilizável, gera client-N.
func (s *Sessions) ClientID(remoteAddr string) string {
	host, port, err := net.SplitHostPort(strings.TrimSpace(remoteAddr))
	if err == nil && host != "" && port != "" {
		return host + ":" + port
	}

	s.mu.Lock()
	s.anon++
	n := s.anon
	s.mu.Unlock()
	return "client-" + strconv.FormatUint(n, 10)
}

// Open registra uma nova conexão e retorna o id da sessão.
func (s *Sessions) Open(ctx context.Context, clientID string) string {
	now := s.now()
	id := uuid.NewString()

	s.mu.Lock()
	s.seq++
	s.active[id] = &liveSession{
		order:       s.seq,
		clientID:    clientID,
		sessionID:   id,
		connectedAt: now,
	}
	n := len(s.active)
	s.mu.Unlock()

	s.logger.Info("client connected",
		slog.String("client_id", clientID),
		slog.String("session_id", id),
		slog.Int("active_connections", n),
	)
	s.record(ctx, domain.StatsEvent{Kind: domain.StatsConnected, ClientID: clientID, At: now})
	return id
}

// JokeSent conta uma piada enviada. Sessões desconhecidas são ignoradas.
func (s *Sessions) JokeSent(ctx context.Context, sessionID string) {
	s.mu.Lock()
	ls, ok := s.active[sessionID]
	if ok {
		ls.jokesSent++
		s.totalJokes++
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	s.record(ctx, domain.StatsEvent{Kind: domain.StatsJokeSent, ClientID: ls.clientID, At: s.now()})
}

// TranslationReceived conta uma tradução recebida. A duração só entra nas
// médias quando hasDuration é true.
func (s *Sessions) TranslationReceived(ctx context.Context, sessionID string, durationMs float64, hasDuration bool) {
	s.mu.Lock()
	ls, ok := s.active[sessionID]
	if ok {
		ls.translationsReceived++
		s.totalTranslations++
		if hasDuration {
			ls.durationSumMs += durationMs
			ls.timedCount++
			s.durationSumMs += durationMs
			s.timedCount++
		}
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	s.record(ctx, domain.StatsEvent{
		Kind:        domain.StatsTranslationReceived,
		ClientID:    ls.clientID,
		DurationMs:  durationMs,
		HasDuration: hasDuration,
		At:          s.now(),
	})
}

// Close move a sessão para a lista de desconectadas. Chamadas repetidas são no-op.
func (s *Sessions) Close(ctx context.Context, sessionID string) {
	now := s.now()

	s.mu.Lock()
	ls, ok := s.active[sessionID]
	if ok {
		delete(s.active, sessionID)
		if s.maxDisconnected > 0 {
			view := ls.view(domain.SessionDisconnected)
			view.DisconnectedAt = &now
			s.recent = slices.Insert(s.recent, 0, view)
			if len(s.recent) > s.maxDisconnected {
				s.recent = s.recent[:s.maxDisconnected]
			}
		}
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	s.logger.Info("client disconnected",
		slog.String("client_id", ls.clientID),
		slog.String("session_id", sessionID),
		slog.Int64("jokes_sent", ls.jokesSent),
		slog.Int64("translations_received", ls.translationsReceived),
	)
	s.record(ctx, domain.StatsEvent{Kind: domain.StatsDisconnected, ClientID: ls.clientID, At: now})
}

func (s *Sessions) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Snapshot monta o payload da UI: sessões ativas em ordem de conexão, depois
// as desconectadas mais recentes.
func (s *Sessions) Snapshot() domain.StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := make([]*liveSession, 0, len(s.active))
	for _, ls := range s.active {
		live = append(live, ls)
	}
	slices.SortFunc(live, func(a, b *liveSession) int {
		switch {
		case a.order < b.order:
			return -1
		case a.order > b.order:
			return 1
		default:
			return 0
		}
	})

	conns := make([]domain.ClientSession, 0, len(live)+len(s.recent))
	for _, ls := range live {
		conns = append(conns, ls.view(domain.SessionConnected))
	}
	conns = append(conns, s.recent...)

	return domain.StatsSnapshot{
		TotalJokesSent:                  s.totalJokes,
		TotalTranslationsReceived:       s.totalTranslations,
		CurrentlyActiveConnections:      len(s.active),
		OverallAverageTranslationTimeMs: average(s.durationSumMs, s.timedCount),
		ClientConnections:               conns,
	}
}

func (s *Sessions) record(ctx context.Context, ev domain.StatsEvent) {
	if s.store != nil {
		if err := s.store.Record(ctx, ev); err != nil {
			s.logger.Warn("stats store record failed",
				slog.String("kind", string(ev.Kind)),
				slog.String("client_id", ev.ClientID),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.onChange != nil {
		s.onChange()
	}
}

// average arredonda para 2 casas; 0 quando não há amostras.
func average(sum float64, n int64) float64 {
	if n == 0 {
		return 0
	}
	return math.Round(sum/float64(n)*100) / 100
}
