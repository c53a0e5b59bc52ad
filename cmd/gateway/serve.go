package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"api-gateway/config"
	"api-gateway/gateway"
	"api-gateway/middleware/headers"
	"api-gateway/middleware/ratelimit"
	"api-gateway/middleware/ratelimit/domain"
	"api-gateway/middleware/ratelimit/infra"
	"api-gateway/middleware/requestid"
	"api-gateway/observability"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.load()
			if err != nil {
				return err
			}
			log, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return serve(ctx, cfg, log)
		},
	}
}

// app reúne o que serve monta a partir da config.
type app struct {
	handler    http.Handler
	dispatcher *gateway.Dispatcher
	metrics    *observability.Metrics
	stats      *infra.MemoryStatsStore
	window     *infra.WindowStore
	closers    []func() error
}

func (a *app) close() {
	for _, c := range a.closers {
		_ = c()
	}
}

func build(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	table, err := gateway.NewTable(cfg.Services)
	if err != nil {
		return nil, err
	}

	a := &app{
		metrics: observability.NewMetrics(),
		stats:   infra.NewMemoryStatsStore(infra.WithTrackKeys(cfg.RateStats.TrackKeys)),
		window:  infra.NewWindowStore(cfg.RateWindow),
	}

	var redisStats domain.StatsStore
	if cfg.RateStats.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RateStats.RedisAddr,
			Password: cfg.RateStats.RedisPassword,
			DB:       cfg.RateStats.RedisDB,
		})
		a.closers = append(a.closers, rdb.Close)

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			a.close()
			return nil, fmt.Errorf("redis stats ping %s: %w", cfg.RateStats.RedisAddr, err)
		}

		redisStats = infra.NewRedisStatsStore(rdb,
			infra.WithStatsPrefix(cfg.RateStats.Prefix),
			infra.WithStatsTTL(cfg.RateStats.TTL),
			infra.WithStatsBucket(cfg.RateStats.Bucket),
			infra.WithStatsTrackKeys(cfg.RateStats.TrackKeys),
		)
	}

	normalizer := headers.NewNormalizer(headers.NormalizerOptions{
		AllowedOrigins: cfg.CORSOrigins,
		BypassHeader:   cfg.TunnelBypassHeader,
	})

	a.dispatcher = gateway.New(gateway.Options{
		Routes:     table,
		Normalizer: normalizer,
		Observer: a.metrics,
		Logger:   log,
		RateLimit: ratelimit.Options{
			Store:               a.window,
			Policy:              domain.Policy{MaxRequests: cfg.RateLimit, Window: cfg.RateWindow},
			Stats:               infra.JoinStats(a.metrics, a.stats, redisStats),
			KeyHeader:           cfg.RateKeyHeader,
			TrustXForwardedFor:  cfg.TrustXFF,
			AddRateLimitHeaders: cfg.AddRateLimitHeaders,
		},
		Concurrency: ratelimit.ConcurrencyOptions{
			Max:            cfg.ConcurrencyMax,
			AcquireTimeout: cfg.ConcurrencyTimeout,
		},
		Timeout: cfg.Timeout,
	})

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(observability.AccessLog(log, a.metrics))
	r.Use(observability.Recovery(log))
	if cfg.SecurityHeaders {
		r.Use(headers.Security)
	}
	// antes do rate limit: preflight não consome cota e envelopes saem com CORS
	r.Use(headers.CORS(normalizer))
	r.Handle("/*", a.dispatcher)
	a.handler = r

	return a, nil
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	a, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	a.window.StartJanitor(ctx)

	servers := []*http.Server{newServer(cfg.ListenAddr(), a.handler, log)}
	if cfg.AdminAddr != "" {
		servers = append(servers, newServer(cfg.AdminAddr, observability.NewAdminRouter(observability.AdminOptions{
			Metrics: a.metrics,
			Routes:  a.dispatcher,
			Stats:   a.stats,
		}), log))
	}

	for _, rt := range a.dispatcher.Routes() {
		log.Info("route", zap.String("prefix", rt.Prefix), zap.String("target", rt.Target))
	}
	log.Info("rate limit",
		zap.Int("max", cfg.RateLimit),
		zap.Duration("window", cfg.RateWindow),
		zap.String("key_header", cfg.RateKeyHeader),
		zap.Bool("trust_xff", cfg.TrustXFF))
	log.Info("limits",
		zap.Duration("timeout", cfg.Timeout),
		zap.Int("concurrency_max", cfg.ConcurrencyMax),
		zap.Duration("concurrency_timeout", cfg.ConcurrencyTimeout),
		zap.Bool("rate_stats_redis", cfg.RateStats.Enabled))

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		srv := srv
		g.Go(func() error {
			log.Info("listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("shutdown %s: %w", srv.Addr, err))
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

// newServer não define WriteTimeout: o prazo de cada requisição é do timeout
// guard, e respostas em streaming podem passar dele depois de começarem.
func newServer(addr string, h http.Handler, log *zap.Logger) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       90 * time.Second,
		ErrorLog:          zap.NewStdLog(log.Named("http")),
	}
}
