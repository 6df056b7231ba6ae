package main

import (
	"context"
	"os"

	"facerec/config"
	"facerec/event"

	"github.com/spf13/cobra"
)

func newRootCommand(serve func(context.Context, config.Config) error) *cobra.Command {
	cfg := config.FromEnv()
	cmd := &cobra.Command{
		Use:           "facerec",
		Short:         "Face embedding and classification HTTP server",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfg)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&cfg.Address, "address", "a", cfg.Address, "address to bind to")
	flags.IntVarP(&cfg.Port, "port", "p", cfg.Port, "port to listen on")
	return cmd
}

func main() {
	if err := newRootCommand(run).ExecuteContext(context.Background()); err != nil {
		event.Log.Errorf("server: stopped: %s", err)
		os.Exit(1)
	}
}
