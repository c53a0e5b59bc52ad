package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"api-gateway/middleware/envelope"
	"api-gateway/middleware/ratelimit/application"
	"api-gateway/middleware/ratelimit/domain"
)

type KeyFunc func(r *http.Request) string

// RouteFunc devolve o prefixo da rota que atende r, ou "" quando nenhuma casa.
type RouteFunc func(r *http.Request) string

type Options struct {
	Store               domain.CounterStore
	Policy              domain.Policy
	Stats               domain.StatsStore
	KeyFn               KeyFunc
	RouteFn             RouteFunc
	KeyHeader           string
	TrustXForwardedFor  bool
	AddRateLimitHeaders bool
	Logger              *zap.Logger
}

func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}

		// fallback: RemoteAddr
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

// Middleware aplica a janela fixa por cliente antes de qualquer outro estágio.
// Rejeições respondem 429 com o envelope padrão e encerram a requisição.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	// um cliente inundando o gateway não pode inundar o log também
	denyLog := &rate.Sometimes{Interval: time.Second}

	svc := application.Service{
		Counters: opts.Store,
		Policy:   opts.Policy,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r)

			dec := svc.Decide(domain.Key(key))
			if opts.Stats != nil {
				err := opts.Stats.Record(r.Context(), domain.StatsEvent{
					Key:     domain.Key(key),
					Allowed: dec.Allowed,
					Count:   dec.Count,
					Method:  domain.MethodLabel(r.Method),
					Route:   statsRoute(opts.RouteFn, r),
					At:      time.Now(),
				})
				if err != nil {
					log.Debug("rate limit stats", zap.Error(err))
				}
			}

			if opts.AddRateLimitHeaders && opts.Policy.MaxRequests > 0 {
				w.Header().Set("X-RateLimit-Key", key)
				w.Header().Set("X-RateLimit-Limit", formatInt(opts.Policy.MaxRequests))
				w.Header().Set("X-RateLimit-Remaining", formatInt64(dec.Remaining))
			}

			if !dec.Allowed {
				denyLog.Do(func() {
					log.Warn("rate limit exceeded",
						zap.String("client", key),
						zap.Int64("count", dec.Count),
						zap.Int("limit", opts.Policy.MaxRequests),
						zap.String("path", r.URL.Path))
				})
				w.Header().Set("Retry-After", formatInt64(int64(dec.RetryAfter/time.Second)))
				envelope.Write(w, envelope.TooManyRequests())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func statsRoute(fn RouteFunc, r *http.Request) string {
	if fn != nil {
		if route := fn(r); route != "" {
			return route
		}
	}
	return domain.UnmatchedRoute
}
