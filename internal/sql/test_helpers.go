package sql

import (
	"context"
	"testing"

	"github.com/datapowersync/counters/internal/logr"
	"github.com/datapowersync/counters/internal/testutils"
	"github.com/stretchr/testify/require"
)

// TestDatabaseURL is the environment variable naming the postgres database
// used by tests.
const TestDatabaseURL = "COUNTERS_TEST_DATABASE_URL"

// NewTestDB returns a migrated database for use in a test, skipping the test
// if no test database has been specified.
func NewTestDB(t *testing.T) *DB {
	t.Helper()

	connstr := testutils.SkipIfEnvUnspecified(t, TestDatabaseURL)
	db, err := New(context.Background(), logr.Discard(), connstr)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}
