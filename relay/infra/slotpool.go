package infra

import (
	"context"
	"sync/atomic"

	"joke-relay/relay/domain"
)

// SlotPool é um semáforo baseado em channel que também conta as vagas em uso.
type SlotPool struct {
	sem    chan struct{}
	active atomic.Int64
}

var _ domain.SlotPool = (*SlotPool)(nil)

// NewSlotPool cria um pool com capacidade `max`.
func NewSlotPool(max int) *SlotPool {
	return &SlotPool{sem: make(chan struct{}, max)}
}

func (p *SlotPool) Acquire(ctx context.Context) (func(), bool) {
	select {
	case p.sem <- struct{}{}:
		p.active.Add(1)
		var once atomic.Bool
		return func() {
			if once.Swap(true) {
				return
			}
			p.active.Add(-1)
			<-p.sem
		}, true
	case <-ctx.Done():
		return nil, false
	}
}

// Active retorna quantas vagas estão ocupadas agora.
func (p *SlotPool) Active() int { return int(p.active.Load()) }

// Cap retorna a capacidade total.
func (p *SlotPool) Cap() int { return cap(p.sem) }
