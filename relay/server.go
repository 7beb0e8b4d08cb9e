package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"joke-relay/relay/application"
	"joke-relay/relay/domain"
	"joke-relay/relay/infra"
)

// Server é o servidor de piadas: cada conexão WebSocket recebe uma piada por
// intervalo e devolve as traduções, que alimentam as estatísticas.
type Server struct {
	sessions *application.Sessions
	stats    *Broadcaster

	jokes        []domain.Item
	interval     time.Duration
	writeTimeout time.Duration
	admission    *AdmissionOptions
	logger       *slog.Logger

	mu     sync.Mutex
	conns  map[*wsConn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// wsConn agrupa a conexão e o lock de escrita compartilhado entre o envio de
// piadas, as respostas de controle e o fechamento no shutdown.
type wsConn struct {
	net.Conn
	wmu sync.Mutex
}

type ServerOption func(*Server)

// WithJokeInterval define o intervalo entre piadas por conexão (padrão 200ms).
func WithJokeInterval(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithJokes(items []domain.Item) ServerOption {
	return func(s *Server) { s.jokes = items }
}

func WithWriteTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}

// WithAdmission liga o middleware de admissão no upgrade WebSocket.
func WithAdmission(opts AdmissionOptions) ServerOption {
	return func(s *Server) { s.admission = &opts }
}

func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer cria o servidor, o registro de sessões e o broadcaster SSE.
// sessionOpts são repassadas para application.NewSessions.
func NewServer(sessionOpts []application.SessionsOption, opts ...ServerOption) *Server {
	s := &Server{
		jokes:        DefaultJokes,
		interval:     200 * time.Millisecond,
		writeTimeout: 5 * time.Second,
		logger:       slog.Default(),
		conns:        make(map[*wsConn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.stats = NewBroadcaster(nil, WithBroadcasterLogger(s.logger))
	sessionOpts = append(append([]application.SessionsOption{application.WithSessionsLogger(s.logger)}, sessionOpts...),
		application.WithOnChange(s.stats.Publish))
	s.sessions = application.NewSessions(sessionOpts...)
	s.stats.setSource(s.sessions.Snapshot)

	s.logger = s.logger.With(slog.String("component", "websocket-handler"))
	return s
}

func (s *Server) Sessions() *application.Sessions { return s.sessions }

func (s *Server) Stats() *Broadcaster { return s.stats }

// Handler monta as rotas: /ws, /stats e / (UI ou upgrade).
func (s *Server) Handler() http.Handler {
	var upgrade http.Handler = http.HandlerFunc(s.serveWS)
	if s.admission != nil {
		upgrade = AdmissionMiddleware(*s.admission)(upgrade)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /ws", upgrade)
	mux.Handle("GET /stats", s.stats)
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		if isUpgrade(r) {
			upgrade.ServeHTTP(w, r)
			return
		}
		serveUI(w, r)
	})
	return mux
}

func isUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	clientID := s.sessions.ClientID(r.RemoteAddr)
	codec := infra.CodecByName(r.URL.Query().Get("format"))

	conn, brw, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.String("client_id", clientID), slog.String("error", err.Error()))
		return
	}
	// o ReadTimeout/WriteTimeout do http.Server continuam valendo na conexão sequestrada
	_ = conn.SetDeadline(time.Time{})

	c := &wsConn{Conn: conn}
	if !s.track(c) {
		_ = conn.Close()
		return
	}
	defer s.untrack(c)

	var rd io.Reader = conn
	if brw != nil {
		rd = brw.Reader
	}
	s.serveConn(c, rd, clientID, codec)
}

func (s *Server) serveConn(c *wsConn, rd io.Reader, clientID string, codec infra.Codec) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessionID := s.sessions.Open(ctx, clientID)
	log := s.logger.With(slog.String("client_id", clientID), slog.String("format", codec.Name()))

	sent := make(chan struct{})
	go func() {
		defer close(sent)
		s.sendLoop(ctx, c, sessionID, codec, log)
	}()

	rw := struct {
		io.Reader
		io.Writer
	}{rd, infra.LockedWriter{Mu: &c.wmu, W: c.Conn}}
	s.readLoop(ctx, rw, sessionID, log)

	cancel()
	_ = c.Close()
	<-sent
	s.sessions.Close(context.Background(), sessionID)
}

// sendLoop envia uma piada por intervalo, em round-robin sobre o catálogo.
func (s *Server) sendLoop(ctx context.Context, c *wsConn, sessionID string, codec infra.Codec, log *slog.Logger) {
	if len(s.jokes) == 0 {
		return
	}
	op := ws.OpText
	if codec.Binary() {
		op = ws.OpBinary
	}

	t := time.NewTicker(s.interval)
	defer t.Stop()

	for idx := 0; ; {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		joke := s.jokes[idx%len(s.jokes)]
		data, err := codec.Marshal(joke)
		if err != nil {
			log.Error("error encoding joke", slog.Int64("joke_id", joke.ID), slog.String("error", err.Error()))
			return
		}

		c.wmu.Lock()
		_ = c.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		err = wsutil.WriteServerMessage(c.Conn, op, data)
		c.wmu.Unlock()
		if err != nil {
			if ctx.Err() == nil {
				log.Error("error sending joke", slog.Int64("joke_id", joke.ID), slog.String("error", err.Error()))
			}
			// conexão inutilizável: derruba a leitura também
			_ = c.Close()
			return
		}

		idx++
		log.Info("sent joke", slog.Int64("joke_id", joke.ID), slog.String("preview", preview(joke.Payload)))
		s.sessions.JokeSent(ctx, sessionID)
	}
}

// readLoop recebe traduções até a conexão fechar. Frames inválidos são
// logados e ignorados.
func (s *Server) readLoop(ctx context.Context, rw io.ReadWriter, sessionID string, log *slog.Logger) {
	for {
		data, op, err := wsutil.ReadClientData(rw)
		if err != nil {
			var closed wsutil.ClosedError
			switch {
			case errors.As(err, &closed), errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
				log.Info("client closed connection")
			default:
				log.Error("websocket error", slog.String("error", err.Error()))
			}
			return
		}

		res, hasDuration, err := infra.DecodeResult(infra.CodecForFrame(op == ws.OpBinary), data)
		if err != nil {
			log.Warn("received malformed translated joke", slog.String("error", err.Error()), slog.Int("bytes", len(data)))
			continue
		}

		attrs := []any{slog.Int64("joke_id", res.ID), slog.String("preview", preview(res.TranslatedPayload))}
		if hasDuration {
			attrs = append(attrs, slog.Float64("duration_ms", res.DurationMs))
		}
		log.Info("received translated joke", attrs...)
		s.sessions.TranslationReceived(ctx, sessionID, res.DurationMs, hasDuration)
	}
}

func (s *Server) track(c *wsConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(c *wsConn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	s.wg.Done()
}

// CloseAll envia um close frame (going away) para cada conexão, fecha todas e
// espera os handlers terminarem ou o ctx encerrar. Novas conexões são recusadas.
func (s *Server) CloseAll(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	conns := make([]*wsConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	s.logger.Info("closing all websocket connections", slog.Int("connections", len(conns)))
	body := ws.NewCloseFrameBody(ws.StatusGoingAway, "server shutdown")
	for _, c := range conns {
		c.wmu.Lock()
		_ = c.SetWriteDeadline(time.Now().Add(time.Second))
		_ = wsutil.WriteServerMessage(c.Conn, ws.OpClose, body)
		c.wmu.Unlock()
		_ = c.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("all websocket connections closed")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func preview(s string) string {
	const n = 30
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
