package jobs

import (
	"context"
	"time"

	tasks "marketpay/task"

	"go.uber.org/zap"
)

// StartExpiryScheduler sweeps expired payment requests every interval until ctx is done.
func StartExpiryScheduler(ctx context.Context, svc tasks.PaymentExpirer, interval time.Duration, log *zap.Logger) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tasks.ExpireStalePayments(ctx, svc, log)
			}
		}
	}()
}
