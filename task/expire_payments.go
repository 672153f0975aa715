package tasks

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type PaymentExpirer interface {
	ExpirePayments(ctx context.Context, now time.Time) (int, error)
}

// ExpireStalePayments fails QR payment requests past their deadline and reports how many
// it touched. Verification checks deadlines itself, so a missed run only delays tidying.
func ExpireStalePayments(ctx context.Context, svc PaymentExpirer, log *zap.Logger) int {
	n, err := svc.ExpirePayments(ctx, time.Now())
	if err != nil {
		log.Error("failed to expire payment requests", zap.Int("expired", n), zap.Error(err))
		return n
	}
	if n > 0 {
		log.Info("expired payment requests", zap.Int("expired", n))
	}
	return n
}
