package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// MigrationResult reports the schema version before and after a run.
type MigrationResult struct {
	From    uint
	To      uint
	Changed bool
}

// Migrate opens its own connection to dsn and moves the schema.
//   - targetVersion < 0 migrates to the latest version.
//   - targetVersion == 0 rolls every migration back.
//   - targetVersion > 0 migrates to that version.
func Migrate(ctx context.Context, backend Backend, dsn string, targetVersion int) (MigrationResult, error) {
	db, err := sql.Open(backend.driverName(), dsn)
	if err != nil {
		return MigrationResult{}, fmt.Errorf("open %s database: %w", backend, err)
	}
	defer func() { _ = db.Close() }()

	if err := db.PingContext(ctx); err != nil {
		return MigrationResult{}, fmt.Errorf("ping %s database: %w", backend, err)
	}
	return migrateDB(db, backend, targetVersion)
}

// migrateDB runs migrations on an existing pool. It never closes db so
// in-memory SQLite databases survive the run.
func migrateDB(db *sql.DB, backend Backend, targetVersion int) (MigrationResult, error) {
	var (
		driver database.Driver
		err    error
	)
	switch backend {
	case SQLite:
		driver, err = migratesqlite.WithInstance(db, &migratesqlite.Config{})
	case MySQL:
		driver, err = migratemysql.WithInstance(db, &migratemysql.Config{})
	case Postgres:
		driver, err = migratepgx.WithInstance(db, &migratepgx.Config{})
	default:
		return MigrationResult{}, fmt.Errorf("%w: %q", ErrUnsupportedBackend, backend)
	}
	if err != nil {
		return MigrationResult{}, fmt.Errorf("create %s migrate driver: %w", backend, err)
	}

	sub, err := fs.Sub(migrationsFS, "migrations/"+string(backend))
	if err != nil {
		return MigrationResult{}, fmt.Errorf("access %s migrations: %w", backend, err)
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return MigrationResult{}, fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "tnvs", driver)
	if err != nil {
		return MigrationResult{}, fmt.Errorf("create migrate instance: %w", err)
	}

	from, dirty, err := version(m)
	if err != nil {
		return MigrationResult{}, err
	}
	if dirty {
		return MigrationResult{}, fmt.Errorf("%w at version %d", ErrDirtyDatabase, from)
	}

	switch {
	case targetVersion < 0:
		err = m.Up()
	case targetVersion == 0:
		err = m.Down()
	default:
		err = m.Migrate(uint(targetVersion))
	}
	if errors.Is(err, migrate.ErrNoChange) {
		return MigrationResult{From: from, To: from}, nil
	}
	if err != nil {
		return MigrationResult{}, fmt.Errorf("migrate from version %d: %w", from, err)
	}

	to, _, err := version(m)
	if err != nil {
		return MigrationResult{}, err
	}
	return MigrationResult{From: from, To: to, Changed: true}, nil
}

func version(m *migrate.Migrate) (uint, bool, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read migration version: %w", err)
	}
	return v, dirty, nil
}
