package knowledge

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStatusCacheFirstReadProbes(t *testing.T) {
	c := NewStatusCache()
	probes := 0

	st := c.Current(func() (State, error) {
		probes++
		return StateOK, nil
	})
	require.Equal(t, StateOK, st.State)
	require.Equal(t, 1, probes)
	require.False(t, st.LastCheckedAt.IsZero())

	// A second read inside the staleness window serves the cached value.
	st = c.Current(func() (State, error) {
		probes++
		return StateError, errors.New("should not run")
	})
	require.Equal(t, StateOK, st.State)
	require.Equal(t, 1, probes)
}

func TestStatusCacheRefreshesWhenStale(t *testing.T) {
	c := NewStatusCache()
	c.Set(StateOK, nil)

	c.mu.Lock()
	c.cur.LastCheckedAt = time.Now().Add(-statusStaleAfter - time.Minute)
	c.mu.Unlock()

	probes := 0
	st := c.Current(func() (State, error) {
		probes++
		return StateError, errors.New("connection refused")
	})
	require.Equal(t, 1, probes)
	require.Equal(t, StateError, st.State)
	require.Equal(t, "connection refused", st.Error)
}

func TestStatusCacheSetRecordsError(t *testing.T) {
	c := NewStatusCache()
	c.Set(StateUnavailable, errors.New("bad dsn"))

	st := c.Get()
	require.Equal(t, StateUnavailable, st.State)
	require.Equal(t, "bad dsn", st.Error)
	require.False(t, st.LastCheckedAt.IsZero())

	// A healthy update clears the previous error.
	c.Set(StateOK, nil)
	require.Empty(t, c.Get().Error)
}

func TestStatusCacheConcurrentStaleReadersProbeOnce(t *testing.T) {
	c := NewStatusCache()

	var probes atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st := c.Current(func() (State, error) {
				probes.Add(1)
				time.Sleep(10 * time.Millisecond)
				return StateOK, nil
			})
			require.Equal(t, StateOK, st.State)
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), probes.Load())
}
