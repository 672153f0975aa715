package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingExpirer struct {
	calls atomic.Int32
}

func (c *countingExpirer) ExpirePayments(context.Context, time.Time) (int, error) {
	c.calls.Add(1)
	return 1, nil
}

func TestExpirySchedulerRunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	exp := &countingExpirer{}
	StartExpiryScheduler(ctx, exp, 5*time.Millisecond, zap.NewNop())

	require.Eventually(t, func() bool { return exp.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	time.Sleep(20 * time.Millisecond)
	stopped := exp.calls.Load()
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, stopped, exp.calls.Load())
}
