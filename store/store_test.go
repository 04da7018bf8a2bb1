package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/hitcounter/core"
)

// runStoreContract exercises the behavior every Store shares.
func runStoreContract(t *testing.T, s Store) {
	ctx := context.Background()
	window, err := core.NewSlidingWindow(core.Config{Width: 300, Policy: core.Strict})
	require.NoError(t, err)

	record := func(ts int64) UpdateFunc {
		return func(log *core.HitLog) (*core.HitLog, error) {
			return window.Record(log, ts)
		}
	}

	t.Run("unknown key is empty", func(t *testing.T) {
		log, err := s.Get(ctx, "missing")
		require.NoError(t, err)
		assert.Equal(t, 0, log.Len())
	})

	t.Run("update and get", func(t *testing.T) {
		for _, ts := range []int64{1, 2, 2, 300} {
			_, err := s.Update(ctx, "user-1", record(ts))
			require.NoError(t, err)
		}
		log, err := s.Get(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, []core.Hit{{Timestamp: 1, Count: 1}, {Timestamp: 2, Count: 2}, {Timestamp: 300, Count: 1}}, log.Hits)
		assert.Equal(t, int64(3), window.Count(log, 301).Hits)
	})

	t.Run("failed update keeps stored log", func(t *testing.T) {
		_, err := s.Update(ctx, "user-1", record(5))
		assert.ErrorIs(t, err, core.ErrInvalidTimestamp)

		log, err := s.Get(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, int64(4), log.Total())
	})

	t.Run("get returns a copy", func(t *testing.T) {
		log, err := s.Get(ctx, "user-1")
		require.NoError(t, err)
		log.Hits[0].Count = 99

		again, err := s.Get(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), again.Hits[0].Count)
	})

	t.Run("delete", func(t *testing.T) {
		_, err := s.Update(ctx, "user-2", record(1))
		require.NoError(t, err)
		require.NoError(t, s.Delete(ctx, "user-2"))

		log, err := s.Get(ctx, "user-2")
		require.NoError(t, err)
		assert.Equal(t, 0, log.Len())
		assert.NoError(t, s.Delete(ctx, "never-existed"))
	})

	t.Run("concurrent updates are not lost", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Update(ctx, "busy", record(10))
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		log, err := s.Get(ctx, "busy")
		require.NoError(t, err)
		assert.Equal(t, int64(20), log.Total())
	})

	t.Run("clear", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			_, err := s.Update(ctx, fmt.Sprintf("c-%d", i), record(1))
			require.NoError(t, err)
		}
		require.NoError(t, s.Clear(ctx))
		for i := 0; i < 3; i++ {
			log, err := s.Get(ctx, fmt.Sprintf("c-%d", i))
			require.NoError(t, err)
			assert.Equal(t, 0, log.Len())
		}
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestMemoryStore_UpdateErrorPassesThrough(t *testing.T) {
	s := NewMemoryStore()
	boom := errors.New("boom")

	_, err := s.Update(context.Background(), "k", func(*core.HitLog) (*core.HitLog, error) {
		return nil, boom
	})
	assert.Same(t, boom, err)
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Update(ctx, "k", func(log *core.HitLog) (*core.HitLog, error) {
		t.Fatal("update ran with a canceled context")
		return log, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStore_Len(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	keep := func(log *core.HitLog) (*core.HitLog, error) { return log, nil }

	_, _ = s.Update(ctx, "a", keep)
	_, _ = s.Update(ctx, "b", keep)
	assert.Equal(t, 2, s.Len())

	require.NoError(t, s.Clear(ctx))
	assert.Equal(t, 0, s.Len())
}
