package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"leafscan/internal/app"
	"leafscan/internal/config"
)

func newRootCommand() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "leafscan",
		Short: "Plant leaf disease classifier with Grad-CAM heatmaps",
		Long: `leafscan serves a web UI and JSON API that classifies leaf images with
one of the catalogued models, explains each prediction with a Grad-CAM heatmap
and keeps a searchable history of results.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var files []string
			if envFile != "" {
				files = append(files, envFile)
			}
			cfg, err := config.Load(files...)
			if err != nil {
				return err
			}

			application, err := app.NewApp(cfg)
			if err != nil {
				return errors.Wrap(err, "failed to start")
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return application.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to a .env file (default .env)")
	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
