package headers

import (
	"net/http"
	"strings"
)

// securityDefaults segue o conjunto do helmet, menos as políticas que
// impediriam o uso cross-origin que o gateway libera de propósito.
var securityDefaults = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "SAMEORIGIN"},
	{"X-Dns-Prefetch-Control", "off"},
	{"X-Download-Options", "noopen"},
	{"X-Permitted-Cross-Domain-Policies", "none"},
	{"Referrer-Policy", "no-referrer"},
	{"Origin-Agent-Cluster", "?1"},
}

const hsts = "max-age=15552000; includeSubDomains"

// Security adiciona os headers de segurança em toda resposta que ainda não os
// tenha. Um valor vindo do upstream prevalece.
func Security(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		https := r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
		next.ServeHTTP(&securityWriter{ResponseWriter: w, https: https}, r)
	})
}

type securityWriter struct {
	http.ResponseWriter
	https bool
	done  bool
}

func (s *securityWriter) setDefaults() {
	if s.done {
		return
	}
	s.done = true
	h := s.ResponseWriter.Header()
	for _, kv := range securityDefaults {
		if h.Get(kv[0]) == "" {
			h.Set(kv[0], kv[1])
		}
	}
	if s.https && h.Get("Strict-Transport-Security") == "" {
		h.Set("Strict-Transport-Security", hsts)
	}
	h.Del("X-Powered-By")
}

func (s *securityWriter) WriteHeader(code int) {
	if code >= 200 || code == http.StatusSwitchingProtocols {
		s.setDefaults()
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *securityWriter) Write(b []byte) (int, error) {
	s.setDefaults()
	return s.ResponseWriter.Write(b)
}

func (s *securityWriter) Flush() {
	s.setDefaults()
	_ = http.NewResponseController(s.ResponseWriter).Flush()
}

func (s *securityWriter) Unwrap() http.ResponseWriter { return s.ResponseWriter }
