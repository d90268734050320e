package db

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DevMode reads migrations from MigrationsDir on disk instead of the copy
// embedded in the binary.
var DevMode = false

// MigrationsDir is the on-disk migrations location used in DevMode.
var MigrationsDir = "internal/db/migrations"

type DB struct {
	*sql.DB
}

// pragmas are applied to every pooled connection.
const pragmas = "_pragma=journal_mode(WAL)" +
	"&_pragma=busy_timeout(5000)" +
	"&_pragma=synchronous(NORMAL)" +
	"&_pragma=temp_store(MEMORY)" +
	"&_pragma=foreign_keys(ON)"

func getMigrationsFS() (fs.FS, error) {
	if DevMode {
		return os.DirFS(MigrationsDir), nil
	}
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	return sub, nil
}

// OpenDB opens the database without touching the schema.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?"+pragmas)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return &DB{db}, nil
}

// NewDB opens the database at path and applies any pending migrations.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	migFS, err := getMigrationsFS()
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := db.MigrateUp(migFS); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// NewDBWithMigrationCheck opens the database and, when check is set, refuses
// to start against a schema older than the embedded migrations instead of
// upgrading it.
func NewDBWithMigrationCheck(path string, check bool) (*DB, error) {
	if !check {
		return NewDB(path)
	}
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	migFS, err := getMigrationsFS()
	if err != nil {
		db.Close()
		return nil, err
	}
	var tables int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_migrations'`).Scan(&tables); err != nil {
		db.Close()
		return nil, err
	}
	if tables == 0 {
		// fresh database
		if err := db.MigrateUp(migFS); err != nil {
			db.Close()
			return nil, err
		}
		return db, nil
	}
	if _, err := db.CheckMigrations(migFS); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
