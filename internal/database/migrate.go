package database

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// findDir looks for database/<name> in cwd and its parent (binaries run from bin/).
// It returns the first existing directory, or "" and the cwd candidate.
func findDir(cwd, name string) (found, fallback string) {
	dirs := []string{
		filepath.Join(cwd, "database", name),
		filepath.Join(cwd, "..", "database", name),
	}
	for _, d := range dirs {
		if st, err := os.Stat(d); err == nil && st.IsDir() {
			abs, _ := filepath.Abs(d)
			return abs, dirs[0]
		}
	}
	return "", dirs[0]
}

// ensureDatabase creates the target database through the "postgres"
// maintenance database when it does not exist yet.
func ensureDatabase(databaseURL string, log *zap.Logger) error {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return fmt.Errorf("parse database url: %w", err)
	}
	dbName := strings.TrimPrefix(u.Path, "/")
	if dbName == "" {
		return fmt.Errorf("database name is empty in url")
	}
	u.Path = "/postgres"

	db, err := sql.Open("postgres", u.String())
	if err != nil {
		return fmt.Errorf("open admin connection: %w", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping admin connection: %w", err)
	}

	var exists bool
	if err := db.QueryRow("SELECT true FROM pg_database WHERE datname = $1", dbName).Scan(&exists); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("check database existence: %w", err)
	}
	if exists {
		return nil
	}
	if _, err := db.Exec("CREATE DATABASE " + pq.QuoteIdentifier(dbName)); err != nil {
		return fmt.Errorf("create database %q: %w", dbName, err)
	}
	log.Info("database created", zap.String("database", dbName))
	return nil
}

// MigrateUp applies pending SQL migrations from database/migrations (golang-migrate),
// creating the database first if needed.
func MigrateUp(databaseURL string, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	if err := ensureDatabase(databaseURL, log); err != nil {
		return fmt.Errorf("ensure database: %w", err)
	}
	cwd, _ := os.Getwd()
	dir, _ := findDir(cwd, "migrations")
	if dir == "" {
		return fmt.Errorf("migrations dir not found (tried cwd and parent)")
	}
	m, err := migrate.New("file://"+filepath.ToSlash(dir), databaseURL)
	if err != nil {
		return fmt.Errorf("migrate new: %w", err)
	}
	defer m.Close()

	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		log.Info("migrate: no pending migrations")
	case err != nil:
		return err
	default:
		version, _, _ := m.Version()
		log.Info("migrate: up ok", zap.Uint("version", version))
	}
	return nil
}

// CreateMigration writes an empty up/down pair named <unix>_<name>.{up,down}.sql
// into database/migrations and returns the base name.
func CreateMigration(name string, now time.Time) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("migration name required")
	}
	cwd, _ := os.Getwd()
	dir, fallback := findDir(cwd, "migrations")
	if dir == "" {
		dir = fallback
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	base := fmt.Sprintf("%d_%s", now.Unix(), strings.ReplaceAll(name, " ", "_"))
	if err := os.WriteFile(filepath.Join(dir, base+".up.sql"), []byte("-- migration up: "+name+"\n"), 0o644); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, base+".down.sql"), []byte("-- migration down: "+name+"\n"), 0o644); err != nil {
		return "", err
	}
	return base, nil
}
