package infra

import (
	"time"

	"golang.org/x/time/rate"
)

// IntervalGate garante espaçamento mínimo entre liberações.
//
// É um token bucket com burst=1 a rate.Every(interval). Admit rearma o bucket
// e consome o único token em `now`, então a próxima liberação só abre em
// now+interval, mesmo quando Admit é chamado com o gate fechado.
// Não é seguro para uso concorrente: o dono é o loop do driver.
type IntervalGate struct {
	interval time.Duration
	lim      *rate.Limiter
}

// MinInterval converte requisições por minuto no intervalo mínimo (60s / R).
func MinInterval(perMinute float64) time.Duration {
	if perMinute <= 0 {
		return 0
	}
	return time.Duration(float64(time.Minute) / perMinute)
}

// NewIntervalGate cria um gate a partir de um limite por minuto.
// perMinute <= 0 desliga o gate (sempre aberto, sem limiter).
func NewIntervalGate(perMinute float64) *IntervalGate {
	g := &IntervalGate{interval: MinInterval(perMinute)}
	g.lim = g.fresh()
	return g
}

func (g *IntervalGate) fresh() *rate.Limiter {
	if g.interval <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(g.interval), 1)
}

func (g *IntervalGate) Interval() time.Duration { return g.interval }

func (g *IntervalGate) Ready(now time.Time) bool {
	if g.lim == nil {
		return true
	}
	return g.lim.TokensAt(now) >= 1
}

func (g *IntervalGate) Admit(now time.Time) {
	g.lim = g.fresh()
	if g.lim != nil {
		g.lim.AllowN(now, 1)
	}
}

func (g *IntervalGate) Reset() {
	g.lim = g.fresh()
}

func (g *IntervalGate) Wait(now time.Time) time.Duration {
	if g.lim == nil {
		return 0
	}
	tokens := g.lim.TokensAt(now)
	if tokens >= 1 {
		return 0
	}
	missing := 1 - tokens
	return time.Duration(missing * float64(g.interval))
}
