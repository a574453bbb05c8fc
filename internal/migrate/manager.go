package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

const (
	defaultMigrationsTable = "schema_migrations"
	migrationsDir          = "migrations"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var ErrFailedToApplyMigrations = errors.New("failed to apply migrations")

// goose keeps its configuration in package globals.
var gooseMu sync.Mutex

// Manager applies the embedded schema migrations with goose.
type Manager struct {
	db              *sql.DB
	logger          *zap.Logger
	migrationsTable string
}

// Option configures Manager.
type Option func(*Manager)

// WithMigrationsTable overrides the default migrations bookkeeping table.
func WithMigrationsTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.migrationsTable = name
		}
	}
}

// WithLogger routes goose output through logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager constructs a Manager.
func NewManager(db *sql.DB, opts ...Option) *Manager {
	m := &Manager{
		db:              db,
		logger:          zap.NewNop(),
		migrationsTable: defaultMigrationsTable,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Up applies all pending migrations.
func (m *Manager) Up(ctx context.Context) error {
	return m.run(func() error { return goose.UpContext(ctx, m.db, migrationsDir) })
}

// Down rolls back the most recent applied migration.
func (m *Manager) Down(ctx context.Context) error {
	return m.run(func() error { return goose.DownContext(ctx, m.db, migrationsDir) })
}

// MigrationStatus describes one embedded migration.
type MigrationStatus struct {
	Version int64
	Name    string
	Applied bool
}

// Status returns the embedded migrations and whether each one is applied.
func (m *Manager) Status(ctx context.Context) ([]MigrationStatus, error) {
	var out []MigrationStatus
	err := m.run(func() error {
		current, err := goose.GetDBVersionContext(ctx, m.db)
		if err != nil {
			return err
		}
		migrations, err := goose.CollectMigrations(migrationsDir, 0, goose.MaxVersion)
		if err != nil {
			return err
		}
		for _, mig := range migrations {
			name := mig.Source
			if i := strings.LastIndex(name, "/"); i >= 0 {
				name = name[i+1:]
			}
			out = append(out, MigrationStatus{Version: mig.Version, Name: name, Applied: mig.Version <= current})
		}
		return nil
	})
	return out, err
}

func (m *Manager) run(fn func() error) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(&zapAdapter{log: m.logger.Sugar()})
	goose.SetTableName(m.migrationsTable)
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}
	if err := fn(); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}
	return nil
}

// zapAdapter bridges goose's Printf-style logging to zap.
type zapAdapter struct {
	log *zap.SugaredLogger
}

func (a *zapAdapter) Fatalf(format string, v ...any) {
	a.log.Error(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (a *zapAdapter) Printf(format string, v ...any) {
	a.log.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
