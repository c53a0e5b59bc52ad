package headers

import (
	"net/http"
)

const (
	RequestMethod  = "Access-Control-Request-Method"
	RequestHeaders = "Access-Control-Request-Headers"

	preflightMethods = "GET,HEAD,PUT,PATCH,POST,DELETE"
)

// CORS aplica a política de origem do Normalizer a toda resposta do gateway,
// inclusive aos envelopes de 404, 429 e 504, e responde preflights com 204
// sem consumir rate limit nem chamar o upstream. O header de bypass do túnel
// continua restrito às rotas casadas.
func CORS(n *Normalizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if isPreflight(r) {
				h := w.Header()
				n.applyOrigin(h, origin)
				h.Set(AllowMethods, preflightMethods)
				if req := r.Header.Get(RequestHeaders); req != "" {
					h.Set(AllowHeaders, req)
					addVary(h, RequestHeaders)
				}
				h.Set("Content-Length", "0")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(&corsWriter{ResponseWriter: w, n: n, origin: origin}, r)
		})
	}
}

func isPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions &&
		r.Header.Get("Origin") != "" &&
		r.Header.Get(RequestMethod) != ""
}

// corsWriter grava os headers de origem no commit da resposta, depois de
// qualquer cópia vinda do upstream.
type corsWriter struct {
	http.ResponseWriter
	n      *Normalizer
	origin string
	done   bool
}

func (c *corsWriter) apply() {
	if c.done {
		return
	}
	c.done = true
	c.n.applyOrigin(c.ResponseWriter.Header(), c.origin)
}

func (c *corsWriter) WriteHeader(code int) {
	if code >= 200 || code == http.StatusSwitchingProtocols {
		c.apply()
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *corsWriter) Write(b []byte) (int, error) {
	c.apply()
	return c.ResponseWriter.Write(b)
}

func (c *corsWriter) Flush() {
	c.apply()
	_ = http.NewResponseController(c.ResponseWriter).Flush()
}

func (c *corsWriter) Unwrap() http.ResponseWriter { return c.ResponseWriter }
