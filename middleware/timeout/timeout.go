// Package timeout implementa o guard de prazo por requisição do gateway.
//
// O prazo vale até o handler seguinte começar a resposta (WriteHeader ou o
// primeiro Write). Se estourar antes disso, o guard escreve o envelope 504,
// cancela o contexto da requisição com ErrDeadline e descarta qualquer escrita
// posterior do handler. Se a resposta começou dentro do prazo, o guard não
// interfere mais e o corpo pode seguir em streaming.
package timeout

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"api-gateway/middleware/envelope"
)

// ErrDeadline é a causa do cancelamento quando o guard dispara.
// Use context.Cause(r.Context()) no handler para distinguir de um cliente que
// desistiu.
var ErrDeadline = errors.New("gateway deadline exceeded")

type Options struct {
	Deadline time.Duration
	Logger   *zap.Logger
}

// Middleware aplica Options.Deadline a toda requisição. Deadline <= 0 desliga o guard.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.Deadline <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithCancelCause(r.Context())
			defer cancel(nil)

			gw := &guardWriter{w: w, header: w.Header().Clone()}
			done := make(chan struct{})
			panicked := make(chan any, 1)

			go func() {
				defer func() {
					if p := recover(); p != nil {
						panicked <- p
					}
				}()
				next.ServeHTTP(gw, r.WithContext(ctx))
				close(done)
			}()

			timer := time.NewTimer(opts.Deadline)
			defer timer.Stop()

			select {
			case p := <-panicked:
				panic(p)
			case <-done:
				gw.finish()
				return
			case <-timer.C:
			}

			// o handler pode ter terminado no mesmo instante
			select {
			case <-done:
				gw.finish()
				return
			default:
			}

			if !gw.expire() {
				// a resposta já começou dentro do prazo
				select {
				case p := <-panicked:
					panic(p)
				case <-done:
				}
				gw.finish()
				return
			}

			cancel(ErrDeadline)
			envelope.Write(w, envelope.GatewayTimeout())
			_ = http.NewResponseController(w).Flush()

			log.Warn("gateway timeout",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Duration("deadline", opts.Deadline))

			// Espera proposital: o handler observa o cancelamento e sai (as
			// escritas dele já são descartadas). Enquanto isso a vaga de
			// concorrência continua ocupada e o access log mede o tempo real,
			// e nenhum handler sobrevive ao ServeHTTP que o chamou.
			select {
			case <-panicked:
			case <-done:
			}
		})
	}
}

// guardWriter serializa a disputa entre o handler e o guard: quem chega
// primeiro fica com a resposta.
type guardWriter struct {
	w      http.ResponseWriter
	header http.Header

	mu          sync.Mutex
	wroteHeader bool
	timedOut    bool
}

func (g *guardWriter) Header() http.Header {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.wroteHeader {
		// depois do commit o guard não escreve mais; trailers vão direto
		return g.w.Header()
	}
	return g.header
}

func (g *guardWriter) WriteHeader(code int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.writeHeaderLocked(code)
}

func (g *guardWriter) writeHeaderLocked(code int) {
	if g.timedOut || g.wroteHeader {
		return
	}
	// respostas 1xx informativas não são repassadas
	if code >= 100 && code <= 199 && code != http.StatusSwitchingProtocols {
		return
	}
	g.wroteHeader = true

	dst := g.w.Header()
	for k := range dst {
		delete(dst, k)
	}
	for k, vv := range g.header {
		dst[k] = vv
	}
	g.w.WriteHeader(code)
}

func (g *guardWriter) Write(b []byte) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.timedOut {
		return 0, http.ErrHandlerTimeout
	}
	if !g.wroteHeader {
		g.writeHeaderLocked(http.StatusOK)
	}
	return g.w.Write(b)
}

func (g *guardWriter) Flush() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.timedOut {
		return
	}
	if !g.wroteHeader {
		g.writeHeaderLocked(http.StatusOK)
	}
	_ = http.NewResponseController(g.w).Flush()
}

// Hijack entrega a conexão para upgrades (101). A partir daí a resposta é do
// handler e o guard não escreve mais o 504.
func (g *guardWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.timedOut {
		return nil, nil, http.ErrHandlerTimeout
	}
	conn, brw, err := http.NewResponseController(g.w).Hijack()
	if err == nil {
		g.wroteHeader = true
	}
	return conn, brw, err
}

func (g *guardWriter) Unwrap() http.ResponseWriter { return g.w }

// expire marca o timeout se a resposta ainda não começou.
func (g *guardWriter) expire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.wroteHeader {
		return false
	}
	g.timedOut = true
	return true
}

// finish garante o commit dos headers quando o handler saiu sem escrever nada.
func (g *guardWriter) finish() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.writeHeaderLocked(http.StatusOK)
}
