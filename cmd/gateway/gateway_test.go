package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"api-gateway/config"
	"api-gateway/gateway"
	"api-gateway/middleware/envelope"
	"api-gateway/middleware/requestid"
)

func testConfig(t *testing.T, upstream string) *config.Config {
	t.Helper()
	return &config.Config{
		Port:            5050,
		Services:        []gateway.Route{{Prefix: "/api", Target: upstream}},
		SecurityHeaders: true,
		RateLimit:       2,
		RateWindow:      time.Minute,
		Timeout:         time.Second,
		LogLevel:        "info",
		LogFormat:       "json",
	}
}

func TestBuild_EndToEnd(t *testing.T) {
	var gotPath, gotReqID string
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RequestURI()
		gotReqID = r.Header.Get(requestid.Header)
		_, _ = io.WriteString(w, "ok")
	}))
	defer up.Close()

	a, err := build(context.Background(), testConfig(t, up.URL), zap.NewNop())
	require.NoError(t, err)
	defer a.close()

	do := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "10.0.0.1:4444"
		rr := httptest.NewRecorder()
		a.handler.ServeHTTP(rr, req)
		return rr
	}

	rr := do("/api/users?id=7")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
	assert.Equal(t, "/users?id=7", gotPath)
	assert.NotEmpty(t, gotReqID)
	assert.Equal(t, gotReqID, rr.Header().Get(requestid.Header))
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	rr = do("/nope")
	require.Equal(t, http.StatusNotFound, rr.Code)
	var env envelope.Envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	assert.Equal(t, envelope.MsgNotFound, env.Message)

	// terceira requisição da mesma chave na janela
	rr = do("/api/users")
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Contains(t, rr.Body.String(), envelope.MsgTooManyRequests)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	assert.EqualValues(t, 2, a.stats.Total().Allowed)
	assert.EqualValues(t, 1, a.stats.Total().Denied)
}

func TestBuild_InvalidRoute(t *testing.T) {
	cfg := testConfig(t, "not-a-url")
	_, err := build(context.Background(), cfg, zap.NewNop())
	assert.ErrorIs(t, err, gateway.ErrInvalidRoute)
}

func TestRoutesCmd(t *testing.T) {
	t.Setenv("SERVICES", `[{"route":"/api","target":"http://api:3000"}]`)

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"routes"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "/api")
	assert.Contains(t, out.String(), "http://api:3000")
}

func TestRenderRoutes_Empty(t *testing.T) {
	assert.Contains(t, renderRoutes(nil), "no routes configured")
}

func TestBuild_CORSOnEveryResponse(t *testing.T) {
	var hits atomic.Int32
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		// upstream que ecoa o id recebido
		w.Header().Set(requestid.Header, r.Header.Get(requestid.Header))
		_, _ = io.WriteString(w, "ok")
	}))
	defer up.Close()

	cfg := testConfig(t, up.URL)
	cfg.RateLimit = 1
	cfg.CORSOrigins = []string{"https://app.example"}
	a, err := build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.close()

	do := func(method, path string, hdr map[string]string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		req.RemoteAddr = "10.0.0.2:4444"
		req.Header.Set("Origin", "https://app.example")
		for k, v := range hdr {
			req.Header.Set(k, v)
		}
		rr := httptest.NewRecorder()
		a.handler.ServeHTTP(rr, req)
		return rr
	}

	for i := 0; i < 3; i++ {
		rr := do(http.MethodOptions, "/api/users", map[string]string{"Access-Control-Request-Method": "POST"})
		require.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, "https://app.example", rr.Header().Get("Access-Control-Allow-Origin"))
	}
	assert.Zero(t, hits.Load(), "preflights never reach the upstream")

	rr := do(http.MethodGet, "/api/users", nil)
	require.Equal(t, http.StatusOK, rr.Code, "preflights did not consume quota")
	assert.Equal(t, []string{"https://app.example"}, rr.Header().Values("Access-Control-Allow-Origin"))
	assert.Len(t, rr.Header().Values(requestid.Header), 1)

	rr = do(http.MethodGet, "/api/users", nil)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "https://app.example", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))

	a2, err := build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a2.close()
	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	req.Header.Set("Origin", "https://app.example")
	rr = httptest.NewRecorder()
	a2.handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "https://app.example", rr.Header().Get("Access-Control-Allow-Origin"))
}
