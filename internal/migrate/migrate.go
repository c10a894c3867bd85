// Package migrate applies the embedded Postgres schema with golang-migrate.
package migrate

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"

	"elaqe.org/internal/store/pg"
)

// Manager runs schema migrations against one database.
type Manager struct {
	m   *migrate.Migrate
	log *zap.Logger
}

// Option configures Manager.
type Option func(*options)

type options struct {
	source fs.FS
	dir    string
	log    *zap.Logger
}

// WithSource replaces the embedded migrations, mainly for tests.
func WithSource(fsys fs.FS, dir string) Option {
	return func(o *options) {
		o.source, o.dir = fsys, dir
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// NewManager opens a migration session. dsn may use the postgres:// or pgx5:// scheme.
func NewManager(dsn string, opts ...Option) (*Manager, error) {
	o := options{source: pg.Migrations, dir: "migrations", log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("migrate: empty DSN")
	}
	src, err := iofs.New(o.source, o.dir)
	if err != nil {
		return nil, fmt.Errorf("migrate: open source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, DatabaseURL(dsn))
	if err != nil {
		return nil, fmt.Errorf("migrate: init: %w", err)
	}
	return &Manager{m: m, log: o.log}, nil
}

// DatabaseURL rewrites a postgres DSN to the pgx5 scheme golang-migrate expects.
func DatabaseURL(dsn string) string {
	for _, prefix := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}

// Up applies all pending migrations. An up-to-date schema is not an error.
func (m *Manager) Up() error {
	if err := m.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	m.logVersion("migrations applied")
	return nil
}

// Down rolls back the given number of migrations.
func (m *Manager) Down(steps int) error {
	if steps <= 0 {
		return fmt.Errorf("migrate down: steps must be positive, got %d", steps)
	}
	if err := m.m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate down: %w", err)
	}
	m.logVersion("migrations rolled back")
	return nil
}

// Version reports the current schema version. A fresh database reports 0.
func (m *Manager) Version() (uint, bool, error) {
	v, dirty, err := m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

// Force sets the version without running migrations, clearing the dirty flag.
func (m *Manager) Force(version int) error {
	if err := m.m.Force(version); err != nil {
		return fmt.Errorf("migrate force %d: %w", version, err)
	}
	return nil
}

func (m *Manager) Close() error {
	srcErr, dbErr := m.m.Close()
	return errors.Join(srcErr, dbErr)
}

func (m *Manager) logVersion(msg string) {
	v, dirty, err := m.Version()
	if err != nil {
		m.log.Warn("read migration version", zap.Error(err))
		return
	}
	m.log.Info(msg, zap.Uint("version", v), zap.Bool("dirty", dirty))
}
