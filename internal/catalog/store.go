package catalog

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store persists the last successfully synced catalog to a local sqlite
// file. This is a cache snapshot, not a source of truth: the backend owns
// the catalog, the snapshot just survives kiosk restarts with no network.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the snapshot database at path and applies
// pending migrations.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog snapshot db: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to init migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to init migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// Save replaces the snapshot with the given mappings in one transaction.
func (s *Store) Save(names, labels map[string]string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM catalog_names`); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM catalog_labels`); err != nil {
		return err
	}

	for code, name := range names {
		if _, err := tx.Exec(`INSERT INTO catalog_names (code, name) VALUES (?, ?)`, code, name); err != nil {
			return err
		}
	}
	for label, code := range labels {
		if _, err := tx.Exec(`INSERT INTO catalog_labels (label, code) VALUES (?, ?)`, label, code); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Load reads the snapshot. An empty database yields empty maps, not an
// error.
func (s *Store) Load() (names, labels map[string]string, err error) {
	names = map[string]string{}
	labels = map[string]string{}

	rows, err := s.db.Query(`SELECT code, name FROM catalog_names`)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var code, name string
		if err := rows.Scan(&code, &name); err != nil {
			return nil, nil, err
		}
		names[code] = name
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	lrows, err := s.db.Query(`SELECT label, code FROM catalog_labels`)
	if err != nil {
		return nil, nil, err
	}
	defer lrows.Close()
	for lrows.Next() {
		var label, code string
		if err := lrows.Scan(&label, &code); err != nil {
			return nil, nil, err
		}
		labels[label] = code
	}
	if err := lrows.Err(); err != nil {
		return nil, nil, err
	}

	return names, labels, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
