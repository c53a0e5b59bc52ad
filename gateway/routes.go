package gateway

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Route liga um prefixo de path a uma URL base de upstream.
type Route struct {
	Prefix string `json:"route" yaml:"route" mapstructure:"route"`
	Target string `json:"target" yaml:"target" mapstructure:"target"`
}

func (r Route) String() string { return r.Prefix + " -> " + r.Target }

var ErrInvalidRoute = errors.New("invalid route")

type tableEntry struct {
	Route
	target *url.URL
}

// Table é a tabela de rotas, imutável depois de criada. A primeira rota cujo
// prefixo casa com o path vence, na ordem de configuração.
type Table struct {
	entries []tableEntry
}

func NewTable(routes []Route) (*Table, error) {
	t := &Table{entries: make([]tableEntry, 0, len(routes))}
	for i, r := range routes {
		r.Prefix = strings.TrimSpace(r.Prefix)
		r.Target = strings.TrimSpace(r.Target)

		if r.Prefix == "" || !strings.HasPrefix(r.Prefix, "/") {
			return nil, fmt.Errorf("%w #%d: prefix %q must start with /", ErrInvalidRoute, i, r.Prefix)
		}
		u, err := url.Parse(r.Target)
		if err != nil {
			return nil, fmt.Errorf("%w #%d (%s): %w", ErrInvalidRoute, i, r.Prefix, err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("%w #%d (%s): target %q must be an absolute http(s) URL", ErrInvalidRoute, i, r.Prefix, r.Target)
		}
		t.entries = append(t.entries, tableEntry{Route: r, target: u})
	}
	return t, nil
}

// Match devolve a primeira rota cujo prefixo é prefixo de path.
func (t *Table) Match(path string) (Route, bool) {
	i := t.lookup(path)
	if i < 0 {
		return Route{}, false
	}
	return t.entries[i].Route, true
}

func (t *Table) lookup(path string) int {
	for i, e := range t.entries {
		if strings.HasPrefix(path, e.Prefix) {
			return i
		}
	}
	return -1
}

// Routes devolve uma cópia das rotas na ordem configurada.
func (t *Table) Routes() []Route {
	out := make([]Route, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.Route
	}
	return out
}

func (t *Table) Len() int { return len(t.entries) }

// StripPrefix remove o prefixo da rota do path. O resto é o que o upstream
// recebe, concatenado ao path da URL alvo.
func StripPrefix(prefix, path string) string {
	return strings.TrimPrefix(path, prefix)
}
