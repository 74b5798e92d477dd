package daemon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/datapowersync/counters/internal"
	"github.com/datapowersync/counters/internal/changefeed"
	"github.com/datapowersync/counters/internal/client"
	"github.com/datapowersync/counters/internal/counter"
	"github.com/datapowersync/counters/internal/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDaemon_MissingDatabaseError(t *testing.T) {
	var missing *internal.ErrMissingParameter
	_, err := New(context.Background(), logr.Discard(), NewConfig())
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "database", missing.Parameter)
}

func TestDaemon_InvalidSourceError(t *testing.T) {
	cfg := NewConfig()
	cfg.Source = "trigger"
	_, err := New(context.Background(), logr.Discard(), cfg)
	assert.ErrorIs(t, err, ErrInvalidSource)
}

func TestDaemon_InvalidPublicationError(t *testing.T) {
	cfg := NewConfig()
	cfg.Database = "postgres:///counters"
	cfg.Source = LogicalSource
	cfg.Publication = "pub'; DROP TABLE power_sync_counters; --"

	var invalid *internal.ErrInvalidParameter
	_, err := New(context.Background(), logr.Discard(), cfg)
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "publication", invalid.Parameter)
}

func TestDaemon_Memory(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg := NewConfig()
	cfg.Source = MemorySource
	cfg.Address = "localhost:0"

	d, err := New(ctx, logr.Discard(), cfg)
	require.NoError(t, err)
	assert.Nil(t, d.DB)

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- d.Start(ctx, started)
	}()
	select {
	case <-started:
	case err := <-done:
		t.Fatalf("daemon terminated: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for daemon to start")
	}

	c, err := client.New(client.Config{
		URL:    "http://" + d.ListenAddress.String(),
		Logger: logr.Discard(),
	})
	require.NoError(t, err)

	events, err := c.Watch(ctx)
	require.NoError(t, err)

	created, err := c.Create(ctx, counter.CreateOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, created.Count)

	_, err = c.Increment(ctx, created.ID, counter.IncrementOptions{})
	require.NoError(t, err)

	_, err = c.Delete(ctx, created.ID)
	require.NoError(t, err)

	want := []changefeed.Kind{changefeed.InsertedKind, changefeed.UpdatedKind, changefeed.DeletedKind}
	for _, kind := range want {
		select {
		case event := <-events:
			assert.Equal(t, kind, event.Kind)
			assert.Equal(t, created.ID, event.ID)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %s event", kind)
		}
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for daemon to stop")
	}
}
