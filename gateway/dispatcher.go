// Package gateway é o núcleo do gateway: tabela de rotas, encaminhamento
// para os upstreams e o Dispatcher que compõe o pipeline de admissão.
//
// Ordem dos estágios de cada requisição:
//
//	rate limit (429) -> concorrência (503) -> timeout guard (504)
//	  -> tabela de rotas (404) -> normalização de headers -> upstream (502/504)
//
// Rate limit e timeout valem para toda requisição; a normalização de headers
// só para as que casam com uma rota.
package gateway

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"api-gateway/middleware/envelope"
	"api-gateway/middleware/headers"
	"api-gateway/middleware/ratelimit"
	"api-gateway/middleware/timeout"
)

type Options struct {
	Routes     *Table
	Normalizer *headers.Normalizer
	Transport  http.RoundTripper
	Observer   Observer
	Logger     *zap.Logger

	RateLimit   ratelimit.Options
	Concurrency ratelimit.ConcurrencyOptions
	Timeout     time.Duration
}

// Dispatcher é o http.Handler do gateway. Rotas e políticas são somente
// leitura depois de New.
type Dispatcher struct {
	routes    *Table
	upstreams []*upstream
	handler   http.Handler
}

func New(opts Options) *Dispatcher {
	if opts.Routes == nil {
		opts.Routes = &Table{}
	}
	if opts.Transport == nil {
		opts.Transport = NewTransport()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.RateLimit.Logger == nil {
		opts.RateLimit.Logger = log
	}
	if opts.RateLimit.RouteFn == nil {
		routes := opts.Routes
		opts.RateLimit.RouteFn = func(r *http.Request) string {
			rt, _ := routes.Match(r.URL.Path)
			return rt.Prefix
		}
	}

	d := &Dispatcher{routes: opts.Routes}
	for _, e := range opts.Routes.entries {
		d.upstreams = append(d.upstreams, newUpstream(e, opts.Transport, opts.Normalizer, opts.Observer, log))
	}

	h := http.Handler(http.HandlerFunc(d.dispatch))
	h = timeout.Middleware(timeout.Options{Deadline: opts.Timeout, Logger: log})(h)
	h = ratelimit.ConcurrencyMiddleware(opts.Concurrency)(h)
	h = ratelimit.Middleware(opts.RateLimit)(h)
	d.handler = h

	return d
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.handler.ServeHTTP(w, r)
}

// Routes devolve a tabela em uso.
func (d *Dispatcher) Routes() []Route { return d.routes.Routes() }

// dispatch roda dentro do timeout guard.
func (d *Dispatcher) dispatch(w http.ResponseWriter, r *http.Request) {
	i := d.routes.lookup(r.URL.Path)
	if i < 0 {
		envelope.Write(w, envelope.NotFound())
		return
	}
	d.upstreams[i].ServeHTTP(w, r)
}
