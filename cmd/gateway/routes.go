package main

import (
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"api-gateway/gateway"
)

func newRoutesCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "Validate the configuration and print the route table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.load()
			if err != nil {
				return err
			}
			tbl, err := gateway.NewTable(cfg.Services)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderRoutes(tbl.Routes()))
			return nil
		},
	}
}

func renderRoutes(routes []gateway.Route) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"#", "Prefix", "Target"})
	for i, r := range routes {
		t.AppendRow(table.Row{strconv.Itoa(i + 1), r.Prefix, r.Target})
	}
	if len(routes) == 0 {
		t.AppendFooter(table.Row{"", "no routes configured", ""})
	}
	return t.Render()
}
