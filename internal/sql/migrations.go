package sql

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sync"

	"github.com/datapowersync/counters/internal/logr"
	"github.com/jackc/pgx/v5"
	tern "github.com/jackc/tern/v2/migrate"
)

var (
	mu sync.Mutex

	//go:embed migrations/*.sql
	migrations embed.FS
)

func migrate(ctx context.Context, logger logr.Logger, connString string) error {
	// serialize migrations within the process; tests construct many pools in
	// parallel against the same database.
	mu.Lock()
	defer mu.Unlock()

	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer conn.Close(ctx)

	m, err := tern.NewMigrator(ctx, conn, "schema_version")
	if err != nil {
		return fmt.Errorf("constructing database migrator: %w", err)
	}
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}
	if err := m.LoadMigrations(sub); err != nil {
		return fmt.Errorf("loading database migrations: %w", err)
	}
	m.OnStart = func(sequence int32, name, direction, _ string) {
		logger.V(1).Info("migrating database", "sequence", sequence, "name", name, "direction", direction)
	}
	return m.Migrate(ctx)
}
