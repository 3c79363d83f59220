// Command migrate applies the Postgres schema migrations.
package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/dallylee/pt-authority-hub-landing/internal/config"
	"github.com/dallylee/pt-authority-hub-landing/internal/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	databaseURL string
	path        string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Apply PT Authority Hub database migrations",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.databaseURL, "database", "", "Postgres URL (defaults to POSTGRES_URL)")
	root.PersistentFlags().StringVar(&opts.path, "path", "db/postgres/migrations", "migrations directory")

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(opts, func(m *migrate.Migrate, log logger.Logger) error {
					err := m.Up()
					if errors.Is(err, migrate.ErrNoChange) {
						log.Info("database is up to date", nil)
						return nil
					}
					if err == nil {
						log.Info("migrations applied", nil)
					}
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back all migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(opts, func(m *migrate.Migrate, log logger.Logger) error {
					err := m.Down()
					if errors.Is(err, migrate.ErrNoChange) {
						return nil
					}
					if err == nil {
						log.Info("migrations rolled back", nil)
					}
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the applied migration version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(opts, func(m *migrate.Migrate, _ logger.Logger) error {
					version, dirty, err := m.Version()
					if errors.Is(err, migrate.ErrNilVersion) {
						fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
						return nil
					}
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "force VERSION",
			Short: "Set the migration version without running migrations",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				version, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version %q: %w", args[0], err)
				}
				return withMigrator(opts, func(m *migrate.Migrate, log logger.Logger) error {
					if err := m.Force(version); err != nil {
						return err
					}
					log.Info("migration version forced", map[string]interface{}{"version": version})
					return nil
				})
			},
		},
	)
	return root
}

func withMigrator(opts *options, fn func(*migrate.Migrate, logger.Logger) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat).With("component", "migrate")

	dbURL := opts.databaseURL
	if dbURL == "" {
		dbURL = cfg.PostgresURL
	}

	m, err := migrate.New("file://"+opts.path, driverURL(dbURL))
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			log.Warn("close migrator", map[string]interface{}{"source_error": fmt.Sprint(srcErr), "db_error": fmt.Sprint(dbErr)})
		}
	}()

	return fn(m, log)
}

// driverURL points a postgres:// URL at the pgx v5 migrate driver.
func driverURL(raw string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(raw, prefix) {
			return "pgx5://" + strings.TrimPrefix(raw, prefix)
		}
	}
	return raw
}
