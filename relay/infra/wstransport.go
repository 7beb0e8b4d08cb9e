package infra

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"joke-relay/relay/domain"
)

// WSTransport é a conexão duplex do cliente com o servidor de piadas.
//
// Uma goroutine de leitura decodifica os frames recebidos e publica
// domain.TransportEvent em Events(). O canal é fechado quando a leitura termina.
type WSTransport struct {
	url    string
	codec  Codec
	logger *slog.Logger
	buffer int

	conn net.Conn
	rw   io.ReadWriter
	wmu  sync.Mutex

	open      atomic.Bool
	closing   atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
	events    chan domain.TransportEvent
}

var _ domain.Transport = (*WSTransport)(nil)

type WSOption func(*WSTransport)

func WithCodec(c Codec) WSOption {
	return func(t *WSTransport) {
		if c != nil {
			t.codec = c
		}
	}
}

func WithTransportLogger(l *slog.Logger) WSOption {
	return func(t *WSTransport) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithEventBuffer define o tamanho do buffer de eventos (padrão 64).
func WithEventBuffer(n int) WSOption {
	return func(t *WSTransport) {
		if n > 0 {
			t.buffer = n
		}
	}
}

// DialWS conecta ao servidor e inicia a leitura.
// O primeiro evento publicado é sempre EventOpened.
func DialWS(ctx context.Context, serverURL string, opts ...WSOption) (*WSTransport, error) {
	t := &WSTransport{
		url:    serverURL,
		codec:  JSONCodec{},
		logger: slog.Default(),
		buffer: 64,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.events = make(chan domain.TransportEvent, t.buffer)

	target, err := withFormat(serverURL, t.codec.Name())
	if err != nil {
		return nil, fmt.Errorf("ws transport: parse url: %w", err)
	}

	t.logger.Info("attempting to connect to server", slog.String("server_url", serverURL), slog.String("format", t.codec.Name()))
	conn, br, _, err := ws.Dial(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("ws transport: dial: %w", err)
	}

	// br carrega bytes que chegaram junto com o handshake, se houver.
	var rd io.Reader = conn
	if br != nil {
		rd = io.MultiReader(br, conn)
	}
	t.conn = conn
	t.rw = struct {
		io.Reader
		io.Writer
	}{rd, LockedWriter{Mu: &t.wmu, W: conn}}

	t.open.Store(true)
	t.events <- domain.TransportEvent{Kind: domain.EventOpened}
	t.logger.Info("connected to websocket server")

	go t.readLoop()
	return t, nil
}

func withFormat(raw, format string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if format != "" && format != CodecNameJSON {
		q := u.Query()
		q.Set("format", format)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (t *WSTransport) Events() <-chan domain.TransportEvent { return t.events }

func (t *WSTransport) IsOpen() bool { return t.open.Load() }

func (t *WSTransport) readLoop() {
	defer close(t.events)

	for {
		data, op, err := wsutil.ReadServerData(t.rw)
		if err != nil {
			t.open.Store(false)
			t.emit(t.terminalEvent(err))
			return
		}

		item, decErr := decodeItem(CodecForFrame(op == ws.OpBinary), data)
		if decErr != nil {
			t.logger.Warn("received message is not a valid joke, ignoring",
				slog.String("error", decErr.Error()),
				slog.Int("bytes", len(data)),
			)
			continue
		}

		t.logger.Info("received joke", slog.Int64("joke_id", item.ID))
		t.emit(domain.TransportEvent{Kind: domain.EventItemReceived, Item: item})
	}
}

func (t *WSTransport) terminalEvent(err error) domain.TransportEvent {
	var closedErr wsutil.ClosedError
	if t.closing.Load() || errors.As(err, &closedErr) || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		t.logger.Info("disconnected from websocket server")
		return domain.TransportEvent{Kind: domain.EventClosed}
	}
	t.logger.Error("websocket error", slog.String("error", err.Error()))
	return domain.TransportEvent{Kind: domain.EventErrored, Err: err}
}

// emit entrega o evento, a menos que o transporte já tenha sido fechado localmente.
func (t *WSTransport) emit(ev domain.TransportEvent) {
	select {
	case t.events <- ev:
	case <-t.done:
	}
}

// wireItem usa ponteiros para distinguir campo ausente de valor zero.
type wireItem struct {
	ID   *int64  `json:"id" msgpack:"id"`
	Joke *string `json:"joke" msgpack:"joke"`
}

func decodeItem(c Codec, data []byte) (domain.Item, error) {
	var w wireItem
	if err := c.Unmarshal(data, &w); err != nil {
		return domain.Item{}, fmt.Errorf("%w: %v", domain.ErrMalformedFrame, err)
	}
	if w.ID == nil || w.Joke == nil {
		return domain.Item{}, fmt.Errorf("%w: missing id or joke", domain.ErrMalformedFrame)
	}
	return domain.Item{ID: *w.ID, Payload: *w.Joke}, nil
}

func (t *WSTransport) Send(ctx context.Context, res domain.TranslationResult) error {
	if !t.open.Load() {
		t.logger.Warn("cannot send translated joke: websocket not connected", slog.Int64("joke_id", res.ID))
		return domain.ErrTransportClosed
	}

	data, err := t.codec.Marshal(res)
	if err != nil {
		return fmt.Errorf("ws transport: marshal result: %w", err)
	}
	op := ws.OpText
	if t.codec.Binary() {
		op = ws.OpBinary
	}

	t.wmu.Lock()
	defer t.wmu.Unlock()

	if dl, ok := ctx.Deadline(); ok {
		_ = t.conn.SetWriteDeadline(dl)
		defer func() { _ = t.conn.SetWriteDeadline(time.Time{}) }()
	}
	if err := wsutil.WriteClientMessage(t.conn, op, data); err != nil {
		return fmt.Errorf("ws transport: write: %w", err)
	}
	t.logger.Info("sent translated joke", slog.Int64("joke_id", res.ID))
	return nil
}

// Close envia um close frame (normal closure) e fecha a conexão. Idempotente.
func (t *WSTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.closing.Store(true)
		wasOpen := t.open.Swap(false)
		close(t.done)

		if wasOpen {
			t.wmu.Lock()
			body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
			if werr := wsutil.WriteClientMessage(t.conn, ws.OpClose, body); werr != nil {
				t.logger.Debug("close frame not delivered", slog.String("error", werr.Error()))
			}
			t.wmu.Unlock()
			t.logger.Info("closing websocket connection")
		}
		err = t.conn.Close()
	})
	return err
}

// LockedWriter serializa as respostas a frames de controle, escritas pela
// goroutine de leitura, com as mensagens de dados. Quem escreve uma mensagem
// inteira deve segurar Mu durante toda a escrita direto na conexão.
type LockedWriter struct {
	Mu *sync.Mutex
	W  io.Writer
}

func (l LockedWriter) Write(p []byte) (int, error) {
	l.Mu.Lock()
	defer l.Mu.Unlock()
	return l.W.Write(p)
}
