package ledger

import (
	"context"
	"errors"
	"fmt"

	"marketpay/models"
	"marketpay/services/errs"
	"marketpay/services/metrics"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Reconciliation struct {
	UserID       string `json:"user_id"`
	Balance      int64  `json:"balance"`
	AppliedSum   int64  `json:"applied_sum"`
	Transactions int    `json:"transactions"`
}

// Reconcile recomputes a wallet from its log. A mismatch is never repaired here: it means
// postings were not serialized and is reported as ErrLedgerDiverged.
func (l *Ledger) Reconcile(ctx context.Context, userID string) (*Reconciliation, error) {
	for attempt := 1; attempt <= l.maxRetries; attempt++ {
		rec, stable, err := l.snapshot(ctx, userID)
		if err != nil {
			return nil, err
		}
		if !stable {
			continue
		}
		if rec.AppliedSum != rec.Balance {
			metrics.LedgerDivergence.Inc()
			l.logger.Error("wallet balance diverged from ledger",
				zap.String("user_id", userID),
				zap.Int64("balance", rec.Balance),
				zap.Int64("applied_sum", rec.AppliedSum),
			)
			return rec, fmt.Errorf("%w: user %s balance %d, log %d", errs.ErrLedgerDiverged, userID, rec.Balance, rec.AppliedSum)
		}
		return rec, nil
	}
	return nil, fmt.Errorf("%w: wallet %s kept changing during reconciliation", errs.ErrConflict, userID)
}

// snapshot reads the account, the log and the account again; it is stable when no posting
// landed in between.
func (l *Ledger) snapshot(ctx context.Context, userID string) (*Reconciliation, bool, error) {
	db := l.db.WithContext(ctx)

	before, err := l.readAccount(db, userID)
	if err != nil {
		return nil, false, err
	}

	var entries []models.Transaction
	if err := db.Where("user_id = ?", userID).Order("id ASC").Find(&entries).Error; err != nil {
		return nil, false, err
	}

	after, err := l.readAccount(db, userID)
	if err != nil {
		return nil, false, err
	}
	if before.Version != after.Version {
		return nil, false, nil
	}

	rec := &Reconciliation{UserID: userID, Balance: after.Balance, Transactions: len(entries)}
	for _, e := range entries {
		if e.Applied() {
			rec.AppliedSum += e.Amount
		}
	}
	return rec, true, nil
}

func (l *Ledger) readAccount(db *gorm.DB, userID string) (models.WalletAccount, error) {
	var acct models.WalletAccount
	err := db.Where("user_id = ?", userID).Take(&acct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.WalletAccount{UserID: userID}, nil
	}
	return acct, err
}
