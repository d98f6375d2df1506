// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/aptitude/internal/config"
	"github.com/holomush/aptitude/internal/store"
)

// migratorFactory opens migrators for the migrate subcommands. Tests
// replace it.
var migratorFactory = func(url string) (Migrator, error) {
	return store.NewMigrator(url)
}

// NewMigrateCmd creates the migrate command and its subcommands.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the accounts schema",
		Long: `Apply, revert and inspect the embedded schema migrations.
Without a subcommand, applies every pending migration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, runMigrateUp)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, runMigrateUp)
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Revert migrations (all by default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(cmd *cobra.Command, m Migrator) error {
				return runMigrateDown(cmd, m, steps)
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 0, "number of migrations to revert (0 = all)")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, runMigrateStatus)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, runMigrateVersion)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied and clear the dirty flag",
		Long: `Record VERSION as the current schema version without running any SQL.
Use after repairing a migration that failed midway.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(cmd, func(cmd *cobra.Command, m Migrator) error {
				return runMigrateForce(cmd, m, version)
			})
		},
	})

	return cmd
}

// getDatabaseURL reads DATABASE_URL through the config layer.
func getDatabaseURL() (string, error) {
	path, err := configPath()
	if err != nil {
		return "", err
	}
	cfg, err := config.Load(path, nil)
	if err != nil {
		return "", err //nolint:wrapcheck // already coded
	}
	if cfg.Secrets.DatabaseURL == "" {
		return "", oops.Code("CONFIG_INVALID").Errorf("DATABASE_URL environment variable is required")
	}
	return cfg.Secrets.DatabaseURL, nil
}

func withMigrator(cmd *cobra.Command, run func(*cobra.Command, Migrator) error) error {
	url, err := getDatabaseURL()
	if err != nil {
		return err
	}
	m, err := migratorFactory(url)
	if err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			cmd.PrintErrln("warning: closing migrator:", closeErr)
		}
	}()
	return run(cmd, m)
}

func runMigrateUp(cmd *cobra.Command, m Migrator) error {
	cmd.Println("Running migrations...")
	if err := m.Up(); err != nil {
		return err //nolint:wrapcheck // already coded
	}
	version, _, err := m.Version()
	if err != nil {
		return err //nolint:wrapcheck // already coded
	}
	cmd.Printf("Migrations completed successfully (version %d)\n", version)
	return nil
}

func runMigrateDown(cmd *cobra.Command, m Migrator, steps int) error {
	if steps < 0 {
		return oops.Code("INVALID_STEPS").Errorf("--steps must be non-negative, got %d", steps)
	}
	if steps == 0 {
		cmd.Println("Reverting all migrations...")
		if err := m.Down(); err != nil {
			return err //nolint:wrapcheck // already coded
		}
	} else {
		cmd.Printf("Reverting %d migration(s)...\n", steps)
		if err := m.Steps(-steps); err != nil {
			return err //nolint:wrapcheck // already coded
		}
	}
	version, _, err := m.Version()
	if err != nil {
		return err //nolint:wrapcheck // already coded
	}
	cmd.Printf("Schema is now at version %d\n", version)
	return nil
}

func runMigrateStatus(cmd *cobra.Command, m Migrator) error {
	st, err := m.Status()
	if err != nil {
		return err //nolint:wrapcheck // already coded
	}

	name := st.Name
	if name == "" {
		name = "none"
	}
	cmd.Printf("Current version: %d (%s)\n", st.Version, name)
	if st.Dirty {
		cmd.Println("WARNING: database is dirty; fix the failed migration, then run 'aptitude migrate force VERSION'")
	}
	cmd.Printf("Applied: %s\n", formatVersions(st.Applied))
	cmd.Printf("Pending: %s\n", formatVersions(st.Pending))
	return nil
}

func runMigrateVersion(cmd *cobra.Command, m Migrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err //nolint:wrapcheck // already coded
	}
	if dirty {
		cmd.Printf("%d (dirty)\n", version)
		return nil
	}
	cmd.Printf("%d\n", version)
	return nil
}

func runMigrateForce(cmd *cobra.Command, m Migrator, version int) error {
	if err := m.Force(version); err != nil {
		return err //nolint:wrapcheck // already coded
	}
	cmd.Printf("Forced schema version to %d\n", version)
	return nil
}

// parseForceVersion parses a non-negative schema version.
func parseForceVersion(s string) (int, error) {
	version, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Wrapf(err, "version must be an integer")
	}
	if version < 0 {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must be non-negative")
	}
	return version, nil
}

func formatVersions(versions []uint) string {
	if len(versions) == 0 {
		return "none"
	}
	parts := make([]string, len(versions))
	for i, v := range versions {
		parts[i] = fmt.Sprintf("%06d", v)
	}
	return strings.Join(parts, ", ")
}
