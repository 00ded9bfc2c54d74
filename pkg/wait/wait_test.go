package wait

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastWaiter(attempts int) *Waiter {
	return NewWaiter(time.Millisecond, attempts)
}

func TestWaitForSucceedsOnKthCall(t *testing.T) {
	const maxAttempts = 6

	for k := 1; k <= maxAttempts; k++ {
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			calls := 0
			err := fastWaiter(maxAttempts).WaitFor(context.Background(), "test", func(ctx context.Context) (bool, string, error) {
				calls++
				return calls == k, fmt.Sprintf("call %d", calls), nil
			})
			require.NoError(t, err)
			assert.Equal(t, k, calls)
		})
	}
}

func TestWaitForTimesOutAfterMaxAttempts(t *testing.T) {
	calls := 0
	err := fastWaiter(4).WaitFor(context.Background(), "mon-quorum", func(ctx context.Context) (bool, string, error) {
		calls++
		return false, fmt.Sprintf("%d/3 mons in quorum", calls%2+1), nil
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls)

	var timeout *TimeoutError
	require.True(t, errors.As(err, &timeout))
	assert.Equal(t, "mon-quorum", timeout.Condition)
	assert.Equal(t, 4, timeout.Attempts)
	assert.Equal(t, "1/3 mons in quorum", timeout.LastState)
	assert.Contains(t, err.Error(), "last state: 1/3 mons in quorum")
}

func TestWaitForCheckErrorIsFatal(t *testing.T) {
	boom := errors.New("mon dump failed")
	calls := 0
	err := fastWaiter(10).WaitFor(context.Background(), "mon-quorum", func(ctx context.Context) (bool, string, error) {
		calls++
		if calls == 2 {
			return false, "", boom
		}
		return false, "", nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)

	var timeout *TimeoutError
	assert.False(t, errors.As(err, &timeout))
}

func TestWaitForStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := NewWaiter(time.Hour, 10)

	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := w.WaitFor(ctx, "osds-up", func(ctx context.Context) (bool, string, error) {
		calls++
		return false, "", nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestNewWaiterDefaults(t *testing.T) {
	w := NewWaiter(0, 0)
	assert.Equal(t, DefaultInterval, w.Interval)
	assert.Equal(t, DefaultAttempts, w.Attempts)
	assert.NotNil(t, w.Clock)
}
