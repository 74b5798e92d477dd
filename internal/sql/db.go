package sql

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/datapowersync/counters/internal"
	"github.com/datapowersync/counters/internal/logr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// minConnections is the minimum size of the pool. The notify source holds
// one connection for the lifetime of the daemon and each relay holds one
// whilst it has its advisory lock, leaving the rest for queries.
const minConnections = 10

// DB provides access to the postgres db.
type DB struct {
	*pgxpool.Pool
	logr.Logger
}

// New migrates the database to the latest migration version, and then
// constructs and returns a connection pool.
func New(ctx context.Context, logger logr.Logger, connString string) (*DB, error) {
	if err := migrate(ctx, logger, connString); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns < minConnections && !hasParam(connString, "pool_max_conns") {
		cfg.MaxConns = minConnections
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		// created_at is scanned in UTC so that counters read back from the
		// database equal those written.
		conn.TypeMap().RegisterType(&pgtype.Type{
			Name:  "timestamptz",
			OID:   pgtype.TimestamptzOID,
			Codec: &pgtype.TimestamptzCodec{ScanLocation: time.UTC},
		})
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to database", "connstr", redact(connString), "max_conns", cfg.MaxConns)

	return &DB{Pool: pool, Logger: logger}, nil
}

// Query runs a query. Errors are deferred until the rows are collected.
func (db *DB) Query(ctx context.Context, sql string, args ...any) pgx.Rows {
	rows, _ := db.Pool.Query(ctx, sql, args...)
	return rows
}

// Exec executes a row-affecting command, returning internal.ErrResourceNotFound
// if no rows are affected.
func (db *DB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	tag, err := db.Pool.Exec(ctx, sql, args...)
	if err != nil {
		return pgconn.CommandTag{}, toError(err)
	}
	if tag.RowsAffected() == 0 {
		return pgconn.CommandTag{}, internal.ErrResourceNotFound
	}
	return tag, nil
}

// WaitAndLock blocks until it obtains the session-level advisory lock with
// the given id, then calls fn, releasing the lock once fn returns.
func (db *DB) WaitAndLock(ctx context.Context, id int64, fn func(context.Context) error) error {
	// The lock belongs to a session, so it must be taken and released on the
	// same connection.
	return db.Pool.AcquireFunc(ctx, func(conn *pgxpool.Conn) error {
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", id); err != nil {
			return err
		}
		db.V(1).Info("obtained advisory lock", "id", id)
		defer func() {
			// ctx is likely canceled by now
			if _, unlockErr := conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", id); unlockErr != nil {
				db.Error(unlockErr, "releasing advisory lock", "id", id)
			}
		}()
		return fn(ctx)
	})
}

// hasParam reports whether a connection string, either a URL or a DSN, sets
// the named parameter.
func hasParam(connString, name string) bool {
	if isURL(connString) {
		u, err := url.Parse(connString)
		return err == nil && u.Query().Has(name)
	}
	for field := range strings.FieldsSeq(connString) {
		if k, _, ok := strings.Cut(field, "="); ok && k == name {
			return true
		}
	}
	return false
}

func isURL(connString string) bool {
	return strings.HasPrefix(connString, "postgres://") || strings.HasPrefix(connString, "postgresql://")
}

// redact masks the password in a connection string before it is logged.
func redact(connString string) string {
	if isURL(connString) {
		u, err := url.Parse(connString)
		if err != nil {
			return connString
		}
		return u.Redacted()
	}
	fields := strings.Fields(connString)
	for i, field := range fields {
		if k, _, ok := strings.Cut(field, "="); ok && k == "password" {
			fields[i] = k + "=xxxxx"
		}
	}
	return strings.Join(fields, " ")
}
