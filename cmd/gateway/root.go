package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"api-gateway/config"
)

type rootFlags struct {
	configFile string
	v          *viper.Viper
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{v: config.New()}

	root := &cobra.Command{
		Use:           "gateway",
		Short:         "HTTP API gateway with per-client rate limiting",
		Long: `Routes requests by path prefix to upstream services.

Every request goes through a fixed-window rate limiter and a timeout guard.
Configuration comes from environment variables (PORT, SERVICES, RATE_LIMIT,
TIMEOUT, ...) and, optionally, a YAML file given with --config.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&f.configFile, "config", "", "YAML config file (env vars take precedence)")
	root.PersistentFlags().Int("port", 0, "listen port (overrides PORT)")
	_ = f.v.BindPFlag("port", root.PersistentFlags().Lookup("port"))

	serve := newServeCmd(f)
	root.AddCommand(serve, newRoutesCmd(f))
	// sem subcomando, sobe o gateway
	root.RunE = serve.RunE

	return root
}

func (f *rootFlags) load() (*config.Config, error) {
	return config.Load(f.v, f.configFile)
}
