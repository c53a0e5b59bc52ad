package observability

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"api-gateway/gateway"
	"api-gateway/middleware/ratelimit/infra"
)

// RouteLister é satisfeito por *gateway.Dispatcher.
type RouteLister interface {
	Routes() []gateway.Route
}

// StatsReporter é satisfeito por *infra.MemoryStatsStore.
type StatsReporter interface {
	Total() infra.Counters
	ByRoute() map[string]infra.Counters
	ByKey() map[string]infra.Counters
}

type AdminOptions struct {
	Metrics *Metrics
	Routes  RouteLister
	Stats   StatsReporter
}

// NewAdminRouter expõe /healthz, /metrics, /routes e /ratelimit. Fica num
// listener separado para não passar pelo rate limit do tráfego público.
func NewAdminRouter(opts AdminOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}
	r.Get("/routes", func(w http.ResponseWriter, _ *http.Request) {
		list := []gateway.Route{}
		if opts.Routes != nil {
			list = append(list, opts.Routes.Routes()...)
		}
		writeJSON(w, http.StatusOK, list)
	})
	if opts.Stats != nil {
		r.Get("/ratelimit", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"total":    opts.Stats.Total(),
				"by_route": opts.Stats.ByRoute(),
				"by_key":   opts.Stats.ByKey(),
			})
		})
	}
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
