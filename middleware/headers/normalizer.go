// Package headers reúne as mutações de header do gateway: o normalizador de
// CORS das rotas configuradas, o estágio CORS global e os headers de
// segurança.
package headers

import (
	"net/http"
	"strings"
)

const (
	AllowOrigin      = "Access-Control-Allow-Origin"
	AllowMethods     = "Access-Control-Allow-Methods"
	AllowHeaders     = "Access-Control-Allow-Headers"
	AllowCredentials = "Access-Control-Allow-Credentials"
)

type NormalizerOptions struct {
	// AllowedOrigins vazio libera qualquer origem com "*". Com lista, a Origin
	// da requisição é ecoada quando permitida (com credentials).
	AllowedOrigins []string
	// BypassHeader é enviado com valor "true" na requisição e na resposta.
	// Ex.: "ngrok-skip-browser-warning" para pular a página de aviso do túnel.
	BypassHeader string
}

// Normalizer aplica os headers permissivos em rotas casadas. Não tem estado
// mutável depois de criado.
type Normalizer struct {
	origins map[string]struct{}
	bypass  string
}

func NewNormalizer(opts NormalizerOptions) *Normalizer {
	n := &Normalizer{bypass: http.CanonicalHeaderKey(strings.TrimSpace(opts.BypassHeader))}
	for _, o := range opts.AllowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "" {
			continue
		}
		if o == "*" {
			// "*" na lista equivale a não ter lista
			n.origins = nil
			break
		}
		if n.origins == nil {
			n.origins = make(map[string]struct{})
		}
		n.origins[o] = struct{}{}
	}
	return n
}

// Request grava os headers na requisição que segue para o upstream.
func (n *Normalizer) Request(r *http.Request) {
	n.apply(r.Header, r.Header.Get("Origin"))
}

// Response grava os headers na resposta devolvida ao cliente. origin é o
// header Origin da requisição original.
func (n *Normalizer) Response(h http.Header, origin string) {
	n.apply(h, origin)
}

func (n *Normalizer) apply(h http.Header, origin string) {
	n.applyOrigin(h, origin)
	h.Set(AllowMethods, "*")
	h.Set(AllowHeaders, "*")
	if n.bypass != "" {
		h.Set(n.bypass, "true")
	}
}

// applyOrigin decide Allow-Origin e Allow-Credentials. Pode ser chamado mais
// de uma vez sobre o mesmo header sem duplicar valores.
func (n *Normalizer) applyOrigin(h http.Header, origin string) {
	if n.origins == nil {
		h.Set(AllowOrigin, "*")
		return
	}
	addVary(h, "Origin")
	if _, ok := n.origins[strings.TrimRight(origin, "/")]; ok && origin != "" {
		h.Set(AllowOrigin, origin)
		h.Set(AllowCredentials, "true")
		return
	}
	h.Del(AllowOrigin)
	h.Del(AllowCredentials)
}

func addVary(h http.Header, name string) {
	for _, v := range h.Values("Vary") {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), name) {
				return
			}
		}
	}
	h.Add("Vary", name)
}
