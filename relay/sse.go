package relay

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"joke-relay/relay/domain"
)

// Broadcaster publica o snapshot das sessões para os clientes SSE de /stats.
//
// Cada assinante tem um buffer pequeno; se estiver cheio, a atualização é
// descartada para aquele assinante (o próximo snapshot já é completo).
type Broadcaster struct {
	mu     sync.Mutex
	source func() domain.StatsSnapshot
	subs   map[chan []byte]struct{}
	buffer int
	logger *slog.Logger
}

type BroadcasterOption func(*Broadcaster)

func WithSubscriberBuffer(n int) BroadcasterOption {
	return func(b *Broadcaster) {
		if n > 0 {
			b.buffer = n
		}
	}
}

func WithBroadcasterLogger(l *slog.Logger) BroadcasterOption {
	return func(b *Broadcaster) {
		if l != nil {
			b.logger = l
		}
	}
}

func NewBroadcaster(source func() domain.StatsSnapshot, opts ...BroadcasterOption) *Broadcaster {
	b := &Broadcaster{
		source: source,
		subs:   make(map[chan []byte]struct{}),
		buffer: 8,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With(slog.String("component", "sse-handler"))
	return b
}

func (b *Broadcaster) setSource(source func() domain.StatsSnapshot) {
	b.mu.Lock()
	b.source = source
	b.mu.Unlock()
}

func (b *Broadcaster) encode() ([]byte, error) {
	b.mu.Lock()
	source := b.source
	b.mu.Unlock()
	if source == nil {
		return json.Marshal(domain.StatsSnapshot{ClientConnections: []domain.ClientSession{}})
	}
	return json.Marshal(source())
}

// Publish envia o snapshot atual para todos os assinantes. Sem assinantes, não
// monta o snapshot.
func (b *Broadcaster) Publish() {
	if b.Clients() == 0 {
		return
	}
	data, err := b.encode()
	if err != nil {
		b.logger.Error("stats encode failed", slog.String("error", err.Error()))
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- data:
		default:
		}
	}
	b.logger.Debug("stats update broadcast", slog.Int("clients", len(b.subs)))
}

func (b *Broadcaster) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broadcaster) subscribe() chan []byte {
	ch := make(chan []byte, b.buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broadcaster) unsubscribe(ch chan []byte) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
}

// ServeHTTP implementa GET /stats: snapshot inicial e um evento por mudança
// até o cliente desconectar.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// stream longo: o WriteTimeout do http.Server não se aplica
	_ = rc.SetWriteDeadline(time.Time{})

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("Access-Control-Allow-Origin", "*")

	initial, err := b.encode()
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ch := b.subscribe()
	defer b.unsubscribe(ch)

	if err := writeEvent(w, rc, initial); err != nil {
		return
	}
	b.logger.Info("ui client connected to sse endpoint")

	for {
		select {
		case <-r.Context().Done():
			b.logger.Info("ui client disconnected from sse")
			return
		case data := <-ch:
			if err := writeEvent(w, rc, data); err != nil {
				b.logger.Debug("sse write failed", slog.String("error", err.Error()))
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, rc *http.ResponseController, data []byte) error {
	if _, err := w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if _, err := w.Write([]byte("\n\n")); err != nil {
		return err
	}
	return rc.Flush()
}
