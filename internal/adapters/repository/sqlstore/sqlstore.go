// Package sqlstore persists the ledger, scores, boundary fees and payouts
// in SQLite, MySQL or PostgreSQL through database/sql.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/okian/tnvs/internal/adapters/repository"
	"github.com/okian/tnvs/pkg/logger"
)

// Store owns the connection pool shared by the table adapters.
type Store struct {
	db          *sql.DB
	backend     Backend
	autoMigrate bool
	log         logger.Logger
}

// Option configures Open.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l.Named("sqlstore")
		}
	}
}

// WithAutoMigrate controls whether Open migrates the schema to the latest version.
func WithAutoMigrate(enabled bool) Option {
	return func(s *Store) { s.autoMigrate = enabled }
}

// Open connects to dsn and, unless disabled, brings the schema up to date.
// SQLite DSNs may be a file path or ":memory:".
func Open(ctx context.Context, backend Backend, dsn string, opts ...Option) (*Store, error) {
	s := &Store{backend: backend, autoMigrate: true, log: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}

	switch backend {
	case SQLite, MySQL, Postgres:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBackend, backend)
	}

	db, err := sql.Open(backend.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", backend, err)
	}
	if backend == SQLite {
		// A single connection avoids "database is locked" and keeps
		// :memory: databases shared across queries.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to %s database: %w", backend, err)
	}
	s.db = db

	if s.autoMigrate {
		var res MigrationResult
		if backend == SQLite {
			res, err = migrateDB(db, backend, -1)
		} else {
			res, err = Migrate(ctx, backend, dsn, -1)
		}
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		if res.Changed {
			s.log.Info(ctx, "schema migrated",
				logger.Int("from", int(res.From)), logger.Int("to", int(res.To)))
		}
	}

	s.log.Debug(ctx, "store opened", logger.String("backend", string(backend)))
	return s, nil
}

// Backend reports the database the store talks to.
func (s *Store) Backend() Backend { return s.backend }

// Close releases the pool.
func (s *Store) Close() error { return s.db.Close() }

// Ledger returns the ledger adapter.
func (s *Store) Ledger() *LedgerStore { return &LedgerStore{s: s} }

// Scores returns the performance score adapter.
func (s *Store) Scores() *ScoreStore { return &ScoreStore{s: s} }

// BoundaryFees returns the boundary fee adapter.
func (s *Store) BoundaryFees() *BoundaryFeeStore { return &BoundaryFeeStore{s: s} }

// Payouts returns the payout adapter.
func (s *Store) Payouts() *PayoutStore { return &PayoutStore{s: s} }

// Stores bundles every adapter; closing the bundle closes the pool.
func (s *Store) Stores() repository.Stores {
	return repository.NewStores(s.Ledger(), s.Scores(), s.BoundaryFees(), s.Payouts(), s.Close)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.backend.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.backend.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.backend.rebind(query), args...)
}

// exists reports whether table holds a row with the given id. MySQL reports
// zero affected rows for no-op updates, so updates fall back to this check.
func (s *Store) exists(ctx context.Context, table, id string) (bool, error) {
	var one int
	err := s.queryRow(ctx, "SELECT 1 FROM "+table+" WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
