package counter_test

import (
	"context"
	"math"
	"testing"

	"github.com/datapowersync/counters/internal"
	"github.com/datapowersync/counters/internal/changefeed"
	"github.com/datapowersync/counters/internal/counter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService(t *testing.T) {
	ctx := context.Background()

	t.Run("create increment increment delete", func(t *testing.T) {
		svc := newInmemStack(t)
		events, unsubscribe := svc.Watch(ctx)
		defer unsubscribe()

		c1, err := svc.Create(ctx, counter.CreateOptions{Count: 0, OwnerID: internal.String("u1")})
		require.NoError(t, err)

		_, err = svc.Increment(ctx, c1.ID, counter.IncrementOptions{})
		require.NoError(t, err)

		incremented, err := svc.Increment(ctx, c1.ID, counter.IncrementOptions{Amount: internal.Ptr(5)})
		require.NoError(t, err)
		assert.Equal(t, 6, incremented.Count)

		result, err := svc.Delete(ctx, c1.ID)
		require.NoError(t, err)
		assert.Equal(t, counter.DeleteResult{Success: true, ID: c1.ID}, result)

		for _, want := range []struct {
			kind  changefeed.Kind
			count int
		}{
			{changefeed.InsertedKind, 0},
			{changefeed.UpdatedKind, 1},
			{changefeed.UpdatedKind, 6},
		} {
			got := next(t, events)
			assert.Equal(t, want.kind, got.Kind)
			assert.Equal(t, c1.ID, got.ID)
			assert.Equal(t, want.count, got.Record["count"])
		}
		assert.Equal(t, changefeed.ChangeEvent{Kind: changefeed.DeletedKind, ID: c1.ID}, next(t, events))

		// no rows left for owner
		got, err := svc.List(ctx, counter.ListOptions{OwnerID: internal.String("u1")})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("increment missing counter", func(t *testing.T) {
		svc := newInmemStack(t)
		events, unsubscribe := svc.Watch(ctx)
		defer unsubscribe()

		_, err := svc.Increment(ctx, "missing", counter.IncrementOptions{})
		assert.ErrorIs(t, err, internal.ErrResourceNotFound)

		assertNoEvent(t, events)
	})

	t.Run("count out of range", func(t *testing.T) {
		svc := newInmemStack(t)

		c1, err := svc.Create(ctx, counter.CreateOptions{Count: math.MaxInt32})
		require.NoError(t, err)

		events, unsubscribe := svc.Watch(ctx)
		defer unsubscribe()

		var invalid *internal.ErrInvalidParameter
		_, err = svc.Increment(ctx, c1.ID, counter.IncrementOptions{})
		assert.ErrorAs(t, err, &invalid)

		_, err = svc.Update(ctx, c1.ID, counter.UpdateOptions{Count: internal.Ptr(math.MinInt32 - 1)})
		assert.ErrorAs(t, err, &invalid)

		_, err = svc.Create(ctx, counter.CreateOptions{Count: math.MaxInt32 + 1})
		assert.ErrorAs(t, err, &invalid)

		got, err := svc.Get(ctx, c1.ID)
		require.NoError(t, err)
		assert.Equal(t, math.MaxInt32, got.Count)
		assertNoEvent(t, events)
	})

	t.Run("update", func(t *testing.T) {
		svc := newInmemStack(t)

		c1, err := svc.Create(ctx, counter.CreateOptions{})
		require.NoError(t, err)

		got, err := svc.Update(ctx, c1.ID, counter.UpdateOptions{Count: internal.Ptr(42)})
		require.NoError(t, err)
		assert.Equal(t, 42, got.Count)
	})

	t.Run("update missing count", func(t *testing.T) {
		svc := newInmemStack(t)

		c1, err := svc.Create(ctx, counter.CreateOptions{})
		require.NoError(t, err)

		_, err = svc.Update(ctx, c1.ID, counter.UpdateOptions{})
		var missing *internal.ErrMissingParameter
		assert.ErrorAs(t, err, &missing)
	})

	t.Run("update missing counter", func(t *testing.T) {
		svc := newInmemStack(t)

		_, err := svc.Update(ctx, "missing", counter.UpdateOptions{Count: internal.Ptr(1)})
		assert.ErrorIs(t, err, internal.ErrResourceNotFound)
	})

	t.Run("delete missing counter", func(t *testing.T) {
		svc := newInmemStack(t)
		events, unsubscribe := svc.Watch(ctx)
		defer unsubscribe()

		result, err := svc.Delete(ctx, "missing")
		require.NoError(t, err)
		assert.Equal(t, counter.DeleteResult{Success: true, ID: "missing"}, result)

		assertNoEvent(t, events)
	})

	t.Run("get and latest", func(t *testing.T) {
		svc := newInmemStack(t)

		_, err := svc.Latest(ctx, counter.ListOptions{})
		assert.ErrorIs(t, err, internal.ErrResourceNotFound)

		c1, err := svc.Create(ctx, counter.CreateOptions{Count: 3})
		require.NoError(t, err)

		got, err := svc.Get(ctx, c1.ID)
		require.NoError(t, err)
		assert.Equal(t, c1, got)

		latest, err := svc.Latest(ctx, counter.ListOptions{})
		require.NoError(t, err)
		assert.Equal(t, c1, latest)
	})

	t.Run("list is ordered consistently", func(t *testing.T) {
		svc := newInmemStack(t)

		for range 5 {
			_, err := svc.Create(ctx, counter.CreateOptions{OwnerID: internal.String("u2")})
			require.NoError(t, err)
		}

		first, err := svc.List(ctx, counter.ListOptions{})
		require.NoError(t, err)
		require.Len(t, first, 5)
		for i := 1; i < len(first); i++ {
			assert.False(t, first[i].CreatedAt.After(first[i-1].CreatedAt), "newest first")
		}

		second, err := svc.List(ctx, counter.ListOptions{})
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("late subscriber receives no prior events", func(t *testing.T) {
		svc := newInmemStack(t)

		early1, unsub1 := svc.Watch(ctx)
		defer unsub1()
		early2, unsub2 := svc.Watch(ctx)
		defer unsub2()

		c1, err := svc.Create(ctx, counter.CreateOptions{})
		require.NoError(t, err)

		late, unsub3 := svc.Watch(ctx)
		defer unsub3()

		assert.Equal(t, c1.ID, next(t, early1).ID)
		assert.Equal(t, c1.ID, next(t, early2).ID)
		assertNoEvent(t, late)
	})
}
