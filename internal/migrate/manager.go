package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog"

	"leadtrack.io/internal/obs"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

//go:embed seeds/*.sql
var seedFS embed.FS

const defaultSeedsTable = "schema_seeds"

// Manager applies the embedded schema migrations through golang-migrate and
// runs the embedded seed files once each.
type Manager struct {
	db         *sql.DB
	seeds      fs.FS
	seedsTable string
	log        zerolog.Logger

	once   sync.Once
	mig    *migrate.Migrate
	migErr error
}

// Option configures Manager.
type Option func(*Manager)

// WithSeedsTable overrides the default seeds bookkeeping table.
func WithSeedsTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.seedsTable = name
		}
	}
}

// WithSeeds replaces the embedded seed files.
func WithSeeds(fsys fs.FS) Option {
	return func(m *Manager) {
		if fsys != nil {
			m.seeds = fsys
		}
	}
}

// NewManager constructs a Manager. The database is not touched until a
// command runs.
func NewManager(db *sql.DB, opts ...Option) *Manager {
	seeds, _ := fs.Sub(seedFS, "seeds")
	m := &Manager{
		db:         db,
		seeds:      seeds,
		seedsTable: defaultSeedsTable,
		log:        obs.Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) migrator() (*migrate.Migrate, error) {
	m.once.Do(func() {
		src, err := iofs.New(migrationFS, "migrations")
		if err != nil {
			m.migErr = fmt.Errorf("open migrations: %w", err)
			return
		}
		driver, err := pgxmigrate.WithInstance(m.db, &pgxmigrate.Config{})
		if err != nil {
			m.migErr = fmt.Errorf("migration driver: %w", err)
			return
		}
		m.mig, m.migErr = migrate.NewWithInstance("iofs", src, "pgx5", driver)
	})
	return m.mig, m.migErr
}

// Up applies all pending migrations.
func (m *Manager) Up() error {
	mig, err := m.migrator()
	if err != nil {
		return err
	}
	if err := mig.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	m.log.Info().Msg("migrations applied")
	return nil
}

// Down rolls back the most recent applied migration.
func (m *Manager) Down() error {
	mig, err := m.migrator()
	if err != nil {
		return err
	}
	if err := mig.Steps(-1); err != nil {
		return fmt.Errorf("rollback migration: %w", err)
	}
	return nil
}

// Status reports the current schema version and whether the last migration
// left it dirty. Version 0 means nothing has been applied.
func (m *Manager) Status() (uint, bool, error) {
	mig, err := m.migrator()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := mig.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// Close releases the migration source and database driver.
func (m *Manager) Close() error {
	if m.mig == nil {
		return m.db.Close()
	}
	srcErr, dbErr := m.mig.Close()
	return errors.Join(srcErr, dbErr)
}

// Seed applies seed files idempotently.
func (m *Manager) Seed(ctx context.Context) error {
	ddl := fmt.Sprintf(`create table if not exists %s (
		name text primary key,
		applied_at timestamptz not null default now()
	)`, m.seedsTable)
	if _, err := m.db.ExecContext(ctx, ddl); err != nil {
		return err
	}
	executed, err := m.listExecuted(ctx)
	if err != nil {
		return err
	}
	files, err := ListSQL(m.seeds)
	if err != nil {
		return err
	}
	for _, name := range files {
		if executed[name] {
			continue
		}
		body, err := fs.ReadFile(m.seeds, name)
		if err != nil {
			return err
		}
		if err := m.exec(ctx, string(body)); err != nil {
			return fmt.Errorf("apply seed %s: %w", name, err)
		}
		if _, err := m.db.ExecContext(ctx, fmt.Sprintf(`insert into %s(name, applied_at) values ($1, $2)`, m.seedsTable),
			name, time.Now().UTC()); err != nil {
			return err
		}
		m.log.Info().Str("seed", name).Msg("seed applied")
	}
	return nil
}

func (m *Manager) exec(ctx context.Context, body string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, body); err != nil {
		return err
	}
	return tx.Commit()
}

func (m *Manager) listExecuted(ctx context.Context) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, fmt.Sprintf(`select name from %s`, m.seedsTable))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		result[name] = true
	}
	return result, rows.Err()
}

// ListSQL lists the .sql files at the root of fsys in name order.
func ListSQL(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// MigrationFiles lists the embedded migration files.
func MigrationFiles() ([]string, error) {
	sub, err := fs.Sub(migrationFS, "migrations")
	if err != nil {
		return nil, err
	}
	return ListSQL(sub)
}
