package counter

import (
	"context"

	"github.com/datapowersync/counters/internal/sql"
	"github.com/jackc/pgx/v5"
)

var _ Store = (*pgdb)(nil)

// columns selects a counter, reading a NULL count, which other writers to
// the table may leave, as zero.
const columns = `id, created_at, COALESCE(count, 0) AS count, owner_id`

// pgdb is a database of counters on postgres
type pgdb struct {
	*sql.DB
}

// NewPGStore constructs a Store backed by postgres.
func NewPGStore(db *sql.DB) Store {
	return &pgdb{DB: db}
}

func (db *pgdb) Create(ctx context.Context, c *Counter) error {
	_, err := db.Exec(ctx, `
INSERT INTO power_sync_counters (
    id,
    created_at,
    count,
    owner_id
) VALUES (
    @id,
    @created_at,
    @count,
    @owner_id
)
`,
		pgx.NamedArgs{
			"id":         c.ID,
			"created_at": c.CreatedAt,
			"count":      c.Count,
			"owner_id":   c.OwnerID,
		},
	)
	return err
}

func (db *pgdb) Get(ctx context.Context, id string) (*Counter, error) {
	rows := db.Query(ctx, `
SELECT `+columns+`
FROM power_sync_counters
WHERE id = $1
`, id)
	return sql.CollectOneRow(rows, scan)
}

func (db *pgdb) List(ctx context.Context, opts ListOptions) ([]*Counter, error) {
	rows := db.Query(ctx, `
SELECT `+columns+`
FROM power_sync_counters
WHERE $1::text IS NULL OR owner_id = $1
ORDER BY created_at DESC, id DESC
`, opts.OwnerID)
	return sql.CollectRows(rows, scan)
}

func (db *pgdb) Latest(ctx context.Context, opts ListOptions) (*Counter, error) {
	rows := db.Query(ctx, `
SELECT `+columns+`
FROM power_sync_counters
WHERE $1::text IS NULL OR owner_id = $1
ORDER BY created_at DESC, id DESC
LIMIT 1
`, opts.OwnerID)
	return sql.CollectOneRow(rows, scan)
}

func (db *pgdb) SetCount(ctx context.Context, id string, count int) (*Counter, error) {
	rows := db.Query(ctx, `
UPDATE power_sync_counters
SET count = $2
WHERE id = $1
RETURNING `+columns+`
`, id, count)
	return sql.CollectOneRow(rows, scan)
}

func (db *pgdb) Delete(ctx context.Context, id string) error {
	_, err := db.Exec(ctx, `
DELETE
FROM power_sync_counters
WHERE id = $1
`, id)
	return err
}

func scan(row pgx.CollectableRow) (*Counter, error) {
	return pgx.RowToAddrOfStructByName[Counter](row)
}
