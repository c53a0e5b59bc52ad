// Package config lê a configuração do gateway de variáveis de ambiente e,
// opcionalmente, de um arquivo YAML. Variáveis de ambiente têm precedência.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"api-gateway/gateway"
)

type Config struct {
	Port     int             `mapstructure:"port"`
	Services []gateway.Route `mapstructure:"services"`

	CORSOrigins        []string `mapstructure:"cors_origins"`
	TunnelBypassHeader string   `mapstructure:"tunnel_bypass_header"`
	SecurityHeaders    bool     `mapstructure:"security_headers"`

	RateLimit           int           `mapstructure:"rate_limit"`
	RateWindow          time.Duration `mapstructure:"rate_window"`
	RateKeyHeader       string        `mapstructure:"rate_key_header"`
	TrustXFF            bool          `mapstructure:"trust_xff"`
	AddRateLimitHeaders bool          `mapstructure:"add_ratelimit_headers"`

	Timeout            time.Duration `mapstructure:"timeout"`
	ConcurrencyMax     int           `mapstructure:"concurrency_max"`
	ConcurrencyTimeout time.Duration `mapstructure:"concurrency_timeout"`

	RateStats RateStats `mapstructure:",squash"`

	AdminAddr string `mapstructure:"admin_addr"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// RateStats configura as estatísticas de decisão do rate limit no Redis.
type RateStats struct {
	Enabled       bool          `mapstructure:"rate_stats_enabled"`
	RedisAddr     string        `mapstructure:"rate_stats_redis_addr"`
	RedisPassword string        `mapstructure:"rate_stats_redis_password"`
	RedisDB       int           `mapstructure:"rate_stats_redis_db"`
	Prefix        string        `mapstructure:"rate_stats_prefix"`
	TTL           time.Duration `mapstructure:"rate_stats_ttl"`
	Bucket        string        `mapstructure:"rate_stats_bucket"`
	TrackKeys     bool          `mapstructure:"rate_stats_track_keys"`
}

func (c *Config) ListenAddr() string { return fmt.Sprintf(":%d", c.Port) }

var ErrInvalid = errors.New("invalid config")

var defaults = map[string]any{
	"port":                      5050,
	"services":                  "",
	"cors_origins":              "",
	"tunnel_bypass_header":      "",
	"security_headers":          true,
	"rate_limit":                20,
	"rate_window":               "1m",
	"rate_key_header":           "",
	"trust_xff":                 false,
	"add_ratelimit_headers":     false,
	"timeout":                   "15s",
	"concurrency_max":           0,
	"concurrency_timeout":       "0s",
	"rate_stats_enabled":        false,
	"rate_stats_redis_addr":     "",
	"rate_stats_redis_password": "",
	"rate_stats_redis_db":       0,
	"rate_stats_prefix":         "gateway:ratelimit",
	"rate_stats_ttl":            "24h",
	"rate_stats_bucket":         "minute",
	"rate_stats_track_keys":     false,
	"admin_addr":                "",
	"log_level":                 "info",
	"log_format":                "json",
}

// New devolve um viper com os defaults e o mapeamento de env já aplicados.
// Chaves são as variáveis de ambiente em minúsculas (PORT -> port).
func New() *viper.Viper {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.AutomaticEnv()
	return v
}

// Load lê o arquivo (se houver), decodifica e valida.
func Load(v *viper.Viper, file string) (*Config, error) {
	if v == nil {
		v = New()
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			routesHook(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}

	settings := make(map[string]any, len(defaults))
	for k := range defaults {
		settings[k] = v.Get(k)
	}
	if err := decoder.Decode(settings); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.CORSOrigins = compact(cfg.CORSOrigins)
	cfg.TunnelBypassHeader = strings.TrimSpace(cfg.TunnelBypassHeader)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseServices aceita a lista de rotas em JSON ou YAML.
func ParseServices(raw string) ([]gateway.Route, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var routes []gateway.Route
	if err := yaml.Unmarshal([]byte(raw), &routes); err != nil {
		return nil, fmt.Errorf("%w: SERVICES: %w", ErrInvalid, err)
	}
	return routes, nil
}

// routesHook converte SERVICES vindo do ambiente (string) em []gateway.Route.
// Listas vindas do arquivo seguem o decode normal.
func routesHook() mapstructure.DecodeHookFuncType {
	routesType := reflect.TypeOf([]gateway.Route(nil))
	return func(from, to reflect.Type, data any) (any, error) {
		if to != routesType || from.Kind() != reflect.String {
			return data, nil
		}
		routes, err := ParseServices(data.(string))
		if err != nil {
			return nil, err
		}
		return routes, nil
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port))
	}
	if _, err := gateway.NewTable(c.Services); err != nil {
		errs = append(errs, fmt.Errorf("SERVICES: %w", err))
	}
	if c.RateLimit <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT must be > 0"))
	}
	if c.RateWindow <= 0 {
		errs = append(errs, errors.New("RATE_WINDOW must be > 0"))
	}
	if c.Timeout <= 0 {
		errs = append(errs, errors.New("TIMEOUT must be > 0"))
	}
	if c.ConcurrencyMax < 0 {
		errs = append(errs, errors.New("CONCURRENCY_MAX must be >= 0"))
	}
	if c.ConcurrencyTimeout < 0 {
		errs = append(errs, errors.New("CONCURRENCY_TIMEOUT must be >= 0"))
	}
	if c.RateStats.Enabled && strings.TrimSpace(c.RateStats.RedisAddr) == "" {
		errs = append(errs, errors.New("RATE_STATS_REDIS_ADDR is required when RATE_STATS_ENABLED=true"))
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.LogFormat))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

func compact(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
