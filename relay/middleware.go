package relay

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	"joke-relay/relay/application"
	"joke-relay/relay/domain"
)

type KeyFunc func(r *http.Request) string

type AdmissionOptions struct {
	Admission           application.Admission
	KeyFn               KeyFunc
	TrustXForwardedFor  bool
	AddRateLimitHeaders bool
}

type rateInfo interface {
	RPS() float64
	Burst() int
}

// ClientIPKey usa o IP remoto como chave de rate limit. Com trustXFF, o
// primeiro IP do X-Forwarded-For tem precedência.
func ClientIPKey(trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if trustXFF {
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}

		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

// AdmissionMiddleware protege o upgrade WebSocket: 429 + Retry-After quando o IP
// excede a taxa, 503 quando não há vaga de conexão. A vaga fica reservada até
// o handler retornar, ou seja, enquanto a conexão estiver aberta.
func AdmissionMiddleware(opts AdmissionOptions) func(next http.Handler) http.Handler {
	if opts.KeyFn == nil {
		opts.KeyFn = ClientIPKey(opts.TrustXForwardedFor)
	}
	adm := opts.Admission

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r)

			if opts.AddRateLimitHeaders {
				w.Header().Set("X-RateLimit-Key", key)
				if ri, ok := adm.Limiters.(rateInfo); ok {
					w.Header().Set("X-RateLimit-RPS", strconv.FormatFloat(ri.RPS(), 'f', -1, 64))
					w.Header().Set("X-RateLimit-Burst", strconv.Itoa(ri.Burst()))
				}
			}

			dec := adm.Decide(domain.Key(key))
			if !dec.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(dec)))
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}

			release, ok := adm.Acquire(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}

// retryAfterSeconds arredonda para cima; Retry-After nunca é 0 em um bloqueio.
func retryAfterSeconds(dec domain.Decision) int {
	secs := int(math.Ceil(dec.RetryAfter.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
