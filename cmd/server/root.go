package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rhinocodelab/idms-v3/internal/config"
)

func newRootCommand() *cobra.Command {
	var configFlag string

	load := func() (*config.Config, error) {
		if configFlag != "" {
			return config.LoadFile(configFlag)
		}
		return config.Load()
	}

	rootCmd := &cobra.Command{
		Use:           "idms-server",
		Short:         "Run the document ingestion service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			return run(cmd.Context(), cfg)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the configured service version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), cfg.Version)
			return nil
		},
	})

	return rootCmd
}

func run(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}

	srv, err := NewServer(cfg)
	if err != nil {
		return err
	}
	defer srv.Close()

	if err := srv.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	return srv.Shutdown(cfg.ShutdownTimeoutDuration())
}
