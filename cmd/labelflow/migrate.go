package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/BaSui01/labelflow/internal/migration"
)

// =============================================================================
// Database Migration Commands
// =============================================================================

// runMigrate handles the migrate command and its subcommands
func runMigrate(args []string) {
	if len(args) < 1 {
		printMigrateUsage()
		os.Exit(1)
	}

	subcommand := args[0]
	subargs := args[1:]
	ctx := context.Background()

	switch subcommand {
	case "up":
		withMigrator("up", subargs, func(m *migration.Migrator) error { return migrateUp(ctx, m, os.Stdout) })
	case "down":
		runMigrateDown(ctx, subargs)
	case "status":
		withMigrator("status", subargs, func(m *migration.Migrator) error { return migrateStatus(ctx, m, os.Stdout) })
	case "version":
		withMigrator("version", subargs, func(m *migration.Migrator) error { return migrateVersion(ctx, m, os.Stdout) })
	case "goto":
		runMigrateGoto(ctx, subargs)
	case "force":
		runMigrateForce(ctx, subargs)
	case "reset":
		withMigrator("reset", subargs, func(m *migration.Migrator) error { return migrateReset(ctx, m, os.Stdout) })
	case "help", "-h", "--help":
		printMigrateUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown migrate subcommand: %s\n", subcommand)
		printMigrateUsage()
		os.Exit(1)
	}
}

// printMigrateUsage prints the usage information for migrate command
func printMigrateUsage() {
	fmt.Println(`Database Migration Commands

Usage:
  labelflow migrate <subcommand> [options]

Subcommands:
  up        Apply all pending migrations
  down      Rollback the last migration (--all rolls back everything)
  status    Show migration status and missing LabelFlow tables
  version   Show current migration version
  goto      Migrate to a specific version
  force     Force set migration version (use with caution)
  reset     Rollback all migrations
  help      Show this help message

Options:
  --config <path>     Path to configuration file (YAML)
  --db-type <type>    Database type: postgres, mysql, sqlite (default: from config)
  --db-url <url>      Database connection URL (default: from config)

Examples:
  labelflow migrate up
  labelflow migrate up --config /etc/labelflow/config.yaml
  labelflow migrate down
  labelflow migrate status
  labelflow migrate goto 1
  labelflow migrate force 0
  labelflow migrate reset`)
}

// migratorFlags are the connection flags shared by every subcommand
type migratorFlags struct {
	configPath *string
	dbType     *string
	dbURL      *string
}

func addMigratorFlags(fs *flag.FlagSet) migratorFlags {
	return migratorFlags{
		configPath: fs.String("config", "", "Path to config file"),
		dbType:     fs.String("db-type", "", "Database type (postgres, mysql, sqlite)"),
		dbURL:      fs.String("db-url", "", "Database connection URL"),
	}
}

// open creates a migrator from the parsed flags, falling back to the
// database section of the config file
func (f migratorFlags) open() (*migration.Migrator, error) {
	if *f.dbType != "" && *f.dbURL != "" {
		return migration.FromURL(*f.dbType, *f.dbURL)
	}

	cfg, err := loadConfig(*f.configPath)
	if err != nil {
		return nil, err
	}
	if *f.dbType != "" {
		cfg.Database.Driver = *f.dbType
	}
	return migration.FromConfig(cfg.Database)
}

// withMigrator parses connection flags, runs fn and exits non-zero on failure
func withMigrator(name string, args []string, fn func(m *migration.Migrator) error) {
	fs := flag.NewFlagSet("migrate "+name, flag.ExitOnError)
	flags := addMigratorFlags(fs)
	_ = fs.Parse(args)
	runWithFlags(name, flags, fn)
}

func runWithFlags(name string, flags migratorFlags, fn func(m *migration.Migrator) error) {
	m, err := flags.open()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create migrator: %v\n", err)
		os.Exit(1)
	}
	defer m.Close()

	if err := fn(m); err != nil {
		fmt.Fprintf(os.Stderr, "Migration %s failed: %v\n", name, err)
		os.Exit(1)
	}
}

// runMigrateDown rolls back the last migration, or all of them with --all
func runMigrateDown(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("migrate down", flag.ExitOnError)
	all := fs.Bool("all", false, "Rollback all migrations")
	flags := addMigratorFlags(fs)
	_ = fs.Parse(args)

	runWithFlags("down", flags, func(m *migration.Migrator) error {
		if *all {
			return migrateReset(ctx, m, os.Stdout)
		}
		if err := m.Down(ctx); err != nil {
			return err
		}
		return migrateVersion(ctx, m, os.Stdout)
	})
}

// runMigrateGoto migrates to a specific version
func runMigrateGoto(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: labelflow migrate goto <version>\n")
		os.Exit(1)
	}

	version, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid version number: %s\n", args[0])
		os.Exit(1)
	}

	withMigrator("goto", args[1:], func(m *migration.Migrator) error {
		if err := m.Goto(ctx, uint(version)); err != nil {
			return err
		}
		return migrateVersion(ctx, m, os.Stdout)
	})
}

// runMigrateForce forces the migration version
func runMigrateForce(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: labelflow migrate force <version>\n")
		os.Exit(1)
	}

	version, err := strconv.ParseInt(args[0], 10, 32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid version number: %s\n", args[0])
		os.Exit(1)
	}

	withMigrator("force", args[1:], func(m *migration.Migrator) error {
		if err := m.Force(ctx, int(version)); err != nil {
			return err
		}
		fmt.Printf("Schema version forced to %d; no SQL was executed\n", version)
		return nil
	})
}

// =============================================================================
// 📋 输出
// =============================================================================

// migrateUp applies pending migrations and verifies every LabelFlow table exists
func migrateUp(ctx context.Context, m *migration.Migrator, w io.Writer) error {
	r, err := m.EnsureLatest(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Schema at version %d, %d LabelFlow tables present\n", r.Version, len(migration.Tables))
	return nil
}

func migrateReset(ctx context.Context, m *migration.Migrator, w io.Writer) error {
	if err := m.Reset(ctx); err != nil {
		return err
	}
	fmt.Fprintf(w, "All migrations rolled back; dropped %s\n", strings.Join(migration.Tables, ", "))
	return nil
}

func migrateVersion(ctx context.Context, m *migration.Migrator, w io.Writer) error {
	version, dirty, err := m.Version(ctx)
	if err != nil {
		return err
	}
	switch {
	case version == 0:
		fmt.Fprintln(w, "Schema version: none (run 'labelflow migrate up')")
	case dirty:
		fmt.Fprintf(w, "Schema version: %d (dirty)\n", version)
	default:
		fmt.Fprintf(w, "Schema version: %d\n", version)
	}
	return nil
}

// migrateStatus prints one row per migration file followed by the LabelFlow
// tables the database is still missing
func migrateStatus(ctx context.Context, m *migration.Migrator, w io.Writer) error {
	r, err := m.Report(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tNAME\tSTATE")
	for _, mg := range r.Migrations {
		state := "pending"
		switch {
		case mg.Dirty:
			state = "dirty"
		case mg.Applied:
			state = "applied"
		}
		fmt.Fprintf(tw, "%06d\t%s\t%s\n", mg.Version, mg.Name, state)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n%d pending\n", r.Pending())
	if len(r.Missing) == 0 {
		fmt.Fprintf(w, "All %d LabelFlow tables present\n", len(migration.Tables))
	} else {
		fmt.Fprintf(w, "Missing tables: %s\n", strings.Join(r.Missing, ", "))
	}
	return nil
}
