package ratelimit

import (
	"net/http"
	"time"

	"api-gateway/middleware/envelope"
	"api-gateway/middleware/ratelimit/application"
	"api-gateway/middleware/ratelimit/infra"
)

type ConcurrencyOptions struct {
	Max            int
	AcquireTimeout time.Duration
}

// ConcurrencyMiddleware limita quantas requisições ficam em voo ao mesmo tempo.
// Sem vaga dentro de AcquireTimeout, responde 503 com o envelope padrão.
// Max <= 0 desliga o limite.
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	svc := application.ConcurrencyService{
		Pool:           infra.NewChanPool(opts.Max),
		AcquireTimeout: opts.AcquireTimeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, ok := svc.Acquire(r.Context())
			if !ok {
				envelope.Write(w, envelope.ServiceUnavailable())
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
