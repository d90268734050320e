package db

import (
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"strconv"
)

// RunMigrateCommand handles the 'migrate' subcommand dispatching
func RunMigrateCommand(args []string, dbPath string) {
	if len(args) < 1 {
		PrintMigrateHelp(os.Stdout)
		os.Exit(1)
	}

	migFS, err := getMigrationsFS()
	if err != nil {
		log.Fatalf("Failed to get migrations filesystem: %v", err)
	}

	// migrations manage the schema, so open without applying them
	database, err := OpenDB(dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := runMigrate(database, migFS, args, os.Stdout); err != nil {
		log.Fatalf("migrate %s: %v", args[0], err)
	}
}

// runMigrate executes one migrate action, writing human output to out.
func runMigrate(database *DB, migFS fs.FS, args []string, out io.Writer) error {
	action := args[0]
	versionArg := func() (int, error) {
		if len(args) < 2 {
			return 0, fmt.Errorf("usage: queue-report migrate %s <version_number>", action)
		}
		v, err := strconv.Atoi(args[1])
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid version number: %s", args[1])
		}
		return v, nil
	}

	switch action {
	case "up":
		log.Printf("Running migrations...")
		if err := database.MigrateUp(migFS); err != nil {
			return err
		}
		log.Println("✓ All migrations applied successfully")
		return printStatus(database, migFS, out)

	case "down":
		log.Printf("Rolling back one migration...")
		if err := database.MigrateDown(migFS); err != nil {
			return err
		}
		log.Println("✓ Migration rolled back successfully")
		return printStatus(database, migFS, out)

	case "status":
		return printStatus(database, migFS, out)

	case "version":
		v, err := versionArg()
		if err != nil {
			return err
		}
		if err := database.MigrateTo(migFS, uint(v)); err != nil {
			return err
		}
		log.Printf("✓ Migrated to version %d successfully", v)
		return nil

	case "force":
		v, err := versionArg()
		if err != nil {
			return err
		}
		if err := database.MigrateForce(migFS, v); err != nil {
			return err
		}
		log.Printf("✓ Migration version forced to %d", v)
		return nil

	case "help":
		PrintMigrateHelp(out)
		return nil

	default:
		PrintMigrateHelp(out)
		return fmt.Errorf("unknown migrate action: %s", action)
	}
}

func printStatus(database *DB, migFS fs.FS, out io.Writer) error {
	version, dirty, err := database.MigrateVersion(migFS)
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}
	latest, err := LatestMigrationVersion(migFS)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "=== Migration Status ===")
	fmt.Fprintf(out, "Current version: %d\n", version)
	fmt.Fprintf(out, "Latest available: %d\n", latest)
	fmt.Fprintf(out, "Dirty: %v\n", dirty)
	if dirty {
		fmt.Fprintln(out, "\n⚠️  WARNING: Database is in a dirty state!")
		fmt.Fprintln(out, "Inspect the database, fix it, then run: queue-report migrate force <version>")
	}
	return nil
}

// PrintMigrateHelp displays the help message for the migrate command
func PrintMigrateHelp(out io.Writer) {
	fmt.Fprintln(out, "Database Migration Commands")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Usage: queue-report migrate <command> [options]")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  up              Apply all pending migrations")
	fmt.Fprintln(out, "  down            Rollback one migration")
	fmt.Fprintln(out, "  status          Show current migration status and version")
	fmt.Fprintln(out, "  version <N>     Migrate to specific version N")
	fmt.Fprintln(out, "  force <N>       Force migration version to N (recovery only)")
	fmt.Fprintln(out, "  help            Show this help message")
}
