package pollx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/intunedeploy/internal/common"
	"github.com/stretchr/testify/require"
)

func TestUntil_ImmediateSuccess(t *testing.T) {
	calls := 0
	start := time.Now()

	err := Until(context.Background(), time.Second, 5*time.Second, func(ctx context.Context) (bool, error) {
		calls++
		return true, nil
	})

	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.Less(t, time.Since(start), time.Second, "no sleep expected when condition holds on first attempt")
}

func TestUntil_SucceedsAfterRetries(t *testing.T) {
	calls := 0

	err := Until(context.Background(), 5*time.Millisecond, time.Second, func(ctx context.Context) (bool, error) {
		calls++
		return calls >= 3, nil
	})

	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestUntil_Timeout(t *testing.T) {
	calls := 0
	start := time.Now()

	err := Until(context.Background(), 10*time.Millisecond, 50*time.Millisecond, func(ctx context.Context) (bool, error) {
		calls++
		return false, nil
	})

	require.ErrorIs(t, err, common.ErrTimeout)
	require.GreaterOrEqual(t, calls, 2)
	// terminates within timeout plus one interval
	require.Less(t, time.Since(start), 70*time.Millisecond)
}

func TestUntil_FatalErrorStopsPolling(t *testing.T) {
	boom := errors.New("remote said no")
	calls := 0

	err := Until(context.Background(), time.Hour, 10*time.Hour, func(ctx context.Context) (bool, error) {
		calls++
		return false, boom
	})

	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, calls)
}

func TestUntil_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Until(ctx, time.Millisecond, time.Second, func(ctx context.Context) (bool, error) {
		return false, nil
	})

	require.ErrorIs(t, err, context.Canceled)
}
