package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"joke-relay/relay/domain"
)

// State é o estado do pipeline como um todo.
type State int

const (
	StateIdle State = iota
	StateActive
	StateDraining
	StateTerminal
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	case StateTerminal:
		return "terminal"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Done indica que o driver não agenda mais nada.
func (s State) Done() bool { return s == StateTerminal || s == StateStopped }

// Driver liga transporte, fila e tracker em um único loop.
//
// A cada tick (e a cada item recebido) libera no máximo um item da fila,
// respeitando o gate e a capacidade do tracker. Fila e tracker só são
// tocados pela goroutine de Run.
type Driver struct {
	transport domain.Transport
	queue     *Queue
	tracker   *Tracker

	tickInterval time.Duration
	drainTimeout time.Duration
	sendTimeout  time.Duration
	logger       *slog.Logger

	state  State
	ticker *time.Ticker
	ctx    context.Context
}

type DriverOption func(*Driver)

// WithTickInterval define a cadência do loop (padrão 1s), independente do rate limit.
func WithTickInterval(d time.Duration) DriverOption {
	return func(dr *Driver) {
		if d > 0 {
			dr.tickInterval = d
		}
	}
}

// WithDrainTimeout limita quanto o driver espera as traduções em andamento
// depois de parar (padrão 10s). 0 desliga a espera.
func WithDrainTimeout(d time.Duration) DriverOption {
	return func(dr *Driver) { dr.drainTimeout = d }
}

func WithSendTimeout(d time.Duration) DriverOption {
	return func(dr *Driver) {
		if d > 0 {
			dr.sendTimeout = d
		}
	}
}

func WithDriverLogger(l *slog.Logger) DriverOption {
	return func(dr *Driver) {
		if l != nil {
			dr.logger = l
		}
	}
}

// NewDriver cria o driver e se registra como Observer do tracker.
func NewDriver(transport domain.Transport, queue *Queue, tracker *Tracker, opts ...DriverOption) *Driver {
	d := &Driver{
		transport:    transport,
		queue:        queue,
		tracker:      tracker,
		tickInterval: time.Second,
		drainTimeout: 10 * time.Second,
		sendTimeout:  5 * time.Second,
		logger:       slog.Default(),
		ctx:          context.Background(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With(slog.String("component", "pipeline-driver"))
	if tracker != nil {
		tracker.SetObserver(d)
	}
	return d
}

func (d *Driver) State() State { return d.state }

// Run processa eventos do transporte, ticks e resultados de tradução até o
// pipeline chegar em Terminal ou Stopped. Depois espera as traduções em
// andamento (até o drain timeout) e retorna o estado final.
//
// Cancelar ctx para o pipeline e fecha o transporte; as chamadas de tradução
// já iniciadas não são canceladas.
func (d *Driver) Run(ctx context.Context) (State, error) {
	if d.transport == nil || d.queue == nil || d.tracker == nil {
		return d.state, errors.New("driver: transport, queue and tracker are required")
	}
	d.ctx = ctx
	defer d.stopTicker()

	events := d.transport.Events()
	for !d.state.Done() {
		var tick <-chan time.Time
		if d.ticker != nil {
			tick = d.ticker.C
		}

		select {
		case <-ctx.Done():
			d.logger.Info("context cancelled, stopping pipeline")
			d.finish(StateStopped)
			if err := d.transport.Close(); err != nil {
				d.logger.Debug("transport close", slog.String("error", err.Error()))
			}
		case ev, ok := <-events:
			if !ok {
				events = nil
				ev = domain.TransportEvent{Kind: domain.EventClosed}
			}
			d.handle(ev)
		case <-tick:
			d.check()
		case s := <-d.tracker.Settled():
			d.tracker.Settle(s)
			d.refresh()
		}
	}

	d.drain()
	return d.state, nil
}

func (d *Driver) handle(ev domain.TransportEvent) {
	switch ev.Kind {
	case domain.EventOpened:
		d.logger.Info("connection established, starting joke processing")
		d.queue.ResetGate()
		d.startTicker()
		d.setState(StateActive)
	case domain.EventItemReceived:
		if d.tracker.CompletedCount() >= d.tracker.Max() {
			d.logger.Info("received joke after translation goal met, ignoring",
				slog.Int64("joke_id", ev.Item.ID),
				slog.Int("max", d.tracker.Max()),
			)
			return
		}
		d.queue.Enqueue(ev.Item)
		d.check()
	case domain.EventClosed:
		d.logger.Info("connection closed")
		d.finish(StateStopped)
	case domain.EventErrored:
		msg := "unknown"
		if ev.Err != nil {
			msg = ev.Err.Error()
		}
		d.logger.Error("connection error", slog.String("error", msg))
		d.finish(StateStopped)
	}
}

// check é executado a cada tick e a cada chegada. Libera no máximo um item.
func (d *Driver) check() {
	if d.state.Done() {
		return
	}
	if d.tracker.IsTerminal() {
		if d.transport.IsOpen() {
			d.logger.Info("all translations sent and processing complete, disconnecting")
		}
		d.finish(StateTerminal)
		return
	}
	if !d.transport.IsOpen() {
		d.finish(StateStopped)
		return
	}

	// a capacidade é verificada antes do dequeue para o item não ser
	// descartado pelo Submit; ele espera na fila
	if !d.tracker.HasCapacity() {
		d.setState(StateDraining)
		return
	}
	if !d.queue.GateOpen() {
		return
	}
	item, ok := d.queue.Dequeue()
	if !ok {
		return
	}
	d.tracker.Submit(context.WithoutCancel(d.ctx), item)
	d.refresh()
}

func (d *Driver) refresh() {
	if d.state.Done() || d.state == StateIdle {
		return
	}
	switch {
	case d.tracker.IsTerminal():
		d.finish(StateTerminal)
	case d.tracker.HasCapacity():
		d.setState(StateActive)
	default:
		d.setState(StateDraining)
	}
}

// Translated implementa domain.Observer: envia o resultado ao servidor.
func (d *Driver) Translated(res domain.TranslationResult) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(d.ctx), d.sendTimeout)
	defer cancel()

	if err := d.transport.Send(ctx, res); err != nil {
		d.logger.Warn("failed to send translated joke",
			slog.Int64("joke_id", res.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	d.logger.Info("translated jokes sent",
		slog.Int("count", d.tracker.CompletedCount()),
		slog.Int("max", d.tracker.Max()),
	)
}

// Completed implementa domain.Observer.
func (d *Driver) Completed() {
	if d.state.Done() {
		return
	}
	d.logger.Info("all translations completed, disconnecting")
	d.finish(StateTerminal)
}

// finish para o ticker, limpa a fila e, em Terminal, fecha o transporte.
func (d *Driver) finish(state State) {
	if d.state.Done() {
		return
	}
	d.stopTicker()
	d.queue.Clear()
	d.setState(state)

	if state == StateTerminal {
		if err := d.transport.Close(); err != nil {
			d.logger.Debug("transport close", slog.String("error", err.Error()))
		}
	}
}

func (d *Driver) drain() {
	if d.tracker.InFlight() == 0 || d.drainTimeout <= 0 {
		return
	}
	d.logger.Info("waiting for in-flight translations", slog.Int("in_flight", d.tracker.InFlight()))

	ctx, cancel := context.WithTimeout(context.Background(), d.drainTimeout)
	defer cancel()
	if err := d.tracker.Drain(ctx); err != nil {
		d.logger.Warn("in-flight translations abandoned",
			slog.Int("in_flight", d.tracker.InFlight()),
			slog.String("error", err.Error()),
		)
	}
}

func (d *Driver) setState(s State) {
	if d.state == s {
		return
	}
	d.logger.Debug("pipeline state change", slog.String("from", d.state.String()), slog.String("to", s.String()))
	d.state = s
}

func (d *Driver) startTicker() {
	d.stopTicker()
	d.ticker = time.NewTicker(d.tickInterval)
}

func (d *Driver) stopTicker() {
	if d.ticker != nil {
		d.ticker.Stop()
		d.ticker = nil
	}
}
