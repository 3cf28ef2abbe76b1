package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"budgetwise/internal/core"

	"github.com/bsm/redislock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocationKey(t *testing.T) {
	assert.Equal(t, "allocation:u1:2025-03", AllocationKey("u1", core.MonthWindow{Year: 2025, Month: 3}))
}

func TestLocalLockerSerializesSameKey(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	unlock, err := l.Obtain(ctx, "k")
	require.NoError(t, err)

	// A different key is independent.
	other, err := l.Obtain(ctx, "other")
	require.NoError(t, err)
	require.NoError(t, other(ctx))

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = l.Obtain(short, "k")
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, unlock(ctx))
	// Releasing twice is harmless.
	require.NoError(t, unlock(ctx))

	again, err := l.Obtain(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestLocalLockerMutualExclusion(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Obtain(ctx, "k")
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			_ = unlock(ctx)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestLocalLockerDropsIdleSlots(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		unlock, err := l.Obtain(ctx, AllocationKey("u1", core.MonthWindow{Year: 2025, Month: i + 1}))
		require.NoError(t, err)
		require.NoError(t, unlock(ctx))
	}
	assert.Zero(t, l.held())

	unlock, err := l.Obtain(ctx, "k")
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = l.Obtain(short, "k")
	require.ErrorIs(t, err, ErrLocked)
	assert.Equal(t, 1, l.held(), "the holder keeps its slot")

	waited := make(chan Unlock, 1)
	go func() {
		next, err := l.Obtain(ctx, "k")
		if err != nil {
			waited <- nil
			return
		}
		waited <- next
	}()
	require.Eventually(t, func() bool {
		l.mu.Lock()
		defer l.mu.Unlock()
		return l.locks["k"] != nil && l.locks["k"].refs == 2
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, unlock(ctx))
	next := <-waited
	require.NotNil(t, next)
	assert.Equal(t, 1, l.held(), "the waiter now holds the slot")

	require.NoError(t, next(ctx))
	require.NoError(t, next(ctx))
	assert.Zero(t, l.held())
}

func TestMapObtainError(t *testing.T) {
	err := mapObtainError("k", redislock.ErrNotObtained)
	assert.ErrorIs(t, err, ErrLocked)

	boom := errors.New("dial tcp: connection refused")
	err = mapObtainError("k", boom)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrLocked)
}
