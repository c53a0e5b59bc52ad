package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"go.uber.org/zap"

	"api-gateway/middleware/envelope"
	"api-gateway/middleware/headers"
	"api-gateway/middleware/requestid"
	"api-gateway/middleware/timeout"
)

// Observer recebe os eventos de cada salto até o upstream.
type Observer interface {
	UpstreamResponse(route string, status int, elapsed time.Duration)
	UpstreamError(route string, kind string)
}

type nopObserver struct{}

func (nopObserver) UpstreamResponse(string, int, time.Duration) {}
func (nopObserver) UpstreamError(string, string)                {}

// Tipos de falha reportados ao Observer.
const (
	FailTimeout  = "timeout"
	FailConnect  = "connect"
	FailCanceled = "canceled"
)

// NewTransport é o transporte padrão para os upstreams. Não há
// ResponseHeaderTimeout: o prazo da requisição é do timeout guard.
func NewTransport() *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          200,
		MaxIdleConnsPerHost:   50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}
}

type startKey struct{}

// upstream encaminha as requisições de uma rota para o seu alvo.
type upstream struct {
	route      Route
	target     *url.URL
	proxy      *httputil.ReverseProxy
	normalizer *headers.Normalizer
	observer   Observer
	log        *zap.Logger
}

func newUpstream(e tableEntry, transport http.RoundTripper, n *headers.Normalizer, obs Observer, log *zap.Logger) *upstream {
	u := &upstream{
		route:      e.Route,
		target:     e.target,
		normalizer: n,
		observer:   obs,
		log:        log.With(zap.String("route", e.Prefix), zap.String("target", e.target.Redacted())),
	}
	u.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			// SetURL junta target.Path com o path já sem prefixo, mescla a
			// query e troca o Host pelo do upstream
			pr.SetURL(u.target)
			pr.SetXForwarded()
		},
		Transport:      transport,
		ModifyResponse: u.modifyResponse,
		ErrorHandler:   u.errorHandler,
		ErrorLog:       zap.NewStdLog(u.log),
	}
	return u
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithValue(r.Context(), startKey{}, time.Now())
	out := r.Clone(ctx)

	if u.normalizer != nil {
		u.normalizer.Request(out)
	}

	// RawPath inconsistente com Path é ignorado por URL.EscapedPath
	out.URL.Path = StripPrefix(u.route.Prefix, r.URL.Path)
	out.URL.RawPath = StripPrefix(u.route.Prefix, r.URL.RawPath)

	u.proxy.ServeHTTP(w, out)
}

func (u *upstream) modifyResponse(resp *http.Response) error {
	// o id do gateway já está na resposta; o copyHeader do proxy faz Add
	if requestid.FromContext(resp.Request.Context()) != "" {
		resp.Header.Del(requestid.Header)
	}
	if u.normalizer != nil {
		u.normalizer.Response(resp.Header, resp.Request.Header.Get("Origin"))
	}
	u.observer.UpstreamResponse(u.route.Prefix, resp.StatusCode, sinceStart(resp.Request.Context()))
	return nil
}

// errorHandler converte falhas do salto até o upstream em envelope. Nunca
// repete a requisição.
func (u *upstream) errorHandler(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(context.Cause(ctx), timeout.ErrDeadline):
		// o guard já respondeu 504 e descarta esta escrita
		u.observer.UpstreamError(u.route.Prefix, FailTimeout)
		u.log.Debug("upstream cancelled by deadline", zap.Error(err))
		return
	case errors.Is(ctx.Err(), context.Canceled):
		u.observer.UpstreamError(u.route.Prefix, FailCanceled)
		u.log.Debug("client went away", zap.Error(err))
		return
	}

	env := envelope.BadGateway()
	kind := FailConnect
	if isTimeout(err) {
		env = envelope.GatewayTimeout()
		kind = FailTimeout
	}
	u.observer.UpstreamError(u.route.Prefix, kind)
	u.log.Warn("upstream error",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("kind", kind),
		zap.Error(err))

	if u.normalizer != nil {
		u.normalizer.Response(w.Header(), r.Header.Get("Origin"))
	}
	envelope.Write(w, env)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func sinceStart(ctx context.Context) time.Duration {
	if start, ok := ctx.Value(startKey{}).(time.Time); ok {
		return time.Since(start)
	}
	return 0
}
