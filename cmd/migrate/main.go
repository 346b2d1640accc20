package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/rhinocodelab/idms-v3/internal/config"
	"github.com/rhinocodelab/idms-v3/internal/migrations"
	"github.com/rhinocodelab/idms-v3/pkg/database"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var dsn, configFlag string

	// open resolves the target database: --dsn wins, then the service config.
	open := func() (*migrate.Migrate, error) {
		url := dsn
		if url == "" {
			var (
				cfg *config.Config
				err error
			)
			if configFlag != "" {
				cfg, err = config.LoadFile(configFlag)
			} else {
				cfg, err = config.Load()
			}
			if err != nil {
				return nil, fmt.Errorf("config load failed: %w", err)
			}
			url = cfg.Database.URL()
		}
		return database.NewMigrator(url, migrations.FS)
	}

	rootCmd := &cobra.Command{
		Use:           "idms-migrate",
		Short:         "Manage the ingestion service database schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", "", "Database connection URL (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(open, func(m *migrate.Migrate) error {
					if err := ignoreNoChange(m.Up()); err != nil {
						return fmt.Errorf("up migrations failed: %w", err)
					}
					fmt.Fprintln(cmd.OutOrStdout(), "migrations applied successfully")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Revert all migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(open, func(m *migrate.Migrate) error {
					if err := ignoreNoChange(m.Down()); err != nil {
						return fmt.Errorf("down migrations failed: %w", err)
					}
					fmt.Fprintln(cmd.OutOrStdout(), "migrations reverted successfully")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "steps N",
			Short: "Apply N migrations (negative reverts)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil || n == 0 {
					return fmt.Errorf("invalid step count: %q", args[0])
				}
				return withMigrator(open, func(m *migrate.Migrate) error {
					if err := ignoreNoChange(m.Steps(n)); err != nil {
						return fmt.Errorf("migration steps failed: %w", err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration steps\n", n)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(open, func(m *migrate.Migrate) error {
					v, dirty, err := m.Version()
					if errors.Is(err, migrate.ErrNilVersion) {
						fmt.Fprintln(cmd.OutOrStdout(), "version: none")
						return nil
					}
					if err != nil {
						return fmt.Errorf("read version failed: %w", err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "version: %d, dirty: %v\n", v, dirty)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "force VERSION",
			Short: "Force the recorded schema version (use with caution)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version: %q", args[0])
				}
				return withMigrator(open, func(m *migrate.Migrate) error {
					if err := m.Force(v); err != nil {
						return fmt.Errorf("force version failed: %w", err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "forced to version %d\n", v)
					return nil
				})
			},
		},
	)

	return rootCmd
}

func withMigrator(open func() (*migrate.Migrate, error), fn func(*migrate.Migrate) error) error {
	m, err := open()
	if err != nil {
		return err
	}
	defer m.Close()
	return fn(m)
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}
