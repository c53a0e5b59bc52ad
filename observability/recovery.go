package observability

import (
	"errors"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"api-gateway/middleware/envelope"
	"api-gateway/middleware/requestid"
)

// Recovery transforma um panic no pipeline em envelope 500. http.ErrAbortHandler
// é repassado: é o jeito do ReverseProxy abortar uma resposta já iniciada.
func Recovery(log *zap.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				if err, ok := p.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(p)
				}
				log.Error("panic",
					zap.Any("panic", p),
					zap.String("path", r.URL.Path),
					zap.String("request_id", requestid.FromContext(r.Context())),
					zap.ByteString("stack", debug.Stack()))
				envelope.Write(w, envelope.Internal())
			}()
			next.ServeHTTP(w, r)
		})
	}
}
