// Package ledger is the only writer of wallet balances.
//
// Every balance change is a Transaction row plus a compare-and-swap on the account's
// version, done in one database transaction. A lost swap aborts the unit of work and it is
// retried from the top, so two postings for the same user can never both build on the same
// balance. Postings for different users do not contend.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketpay/models"
	"marketpay/services/errs"
	"marketpay/services/metrics"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultMaxRetries = 8

type Ledger struct {
	db         *gorm.DB
	logger     *zap.Logger
	maxRetries int
	now        func() time.Time
}

func New(db *gorm.DB, logger *zap.Logger, maxRetries int) *Ledger {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{db: db, logger: logger, maxRetries: maxRetries, now: time.Now}
}

// Posting describes one ledger entry. Status defaults to completed.
type Posting struct {
	UserID         string
	Kind           models.TransactionKind
	Amount         int64
	Status         models.TransactionStatus
	RelatedOrderID *uint
	RefNumber      string
	QRPayload      string
	ExpiresAt      *time.Time
	IdempotencyKey string
	Note           string
}

// Atomically runs fn in a single database transaction, retrying the whole unit when a
// balance swap inside it lost a race.
func (l *Ledger) Atomically(ctx context.Context, fn func(tx *gorm.DB) error) error {
	for attempt := 1; ; attempt++ {
		err := l.db.WithContext(ctx).Transaction(fn)
		if err == nil || !errors.Is(err, errs.ErrConflict) || attempt >= l.maxRetries {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		metrics.LedgerConflicts.Inc()
		l.logger.Debug("retrying ledger unit after conflict", zap.Int("attempt", attempt), zap.Error(err))
	}
}

// Post writes p in its own unit of work.
func (l *Ledger) Post(ctx context.Context, p Posting) (*models.Transaction, error) {
	var entry *models.Transaction
	err := l.Atomically(ctx, func(tx *gorm.DB) error {
		var err error
		entry, err = l.PostTx(tx, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// PostTx writes p inside the caller's transaction. A posting whose idempotency key was
// already used returns the original entry and changes nothing.
func (l *Ledger) PostTx(tx *gorm.DB, p Posting) (*models.Transaction, error) {
	if p.Status == "" {
		p.Status = models.TxCompleted
	}
	if err := validatePosting(p); err != nil {
		return nil, err
	}

	if p.IdempotencyKey != "" {
		var existing models.Transaction
		err := tx.Where("idempotency_key = ?", p.IdempotencyKey).Take(&existing).Error
		if err == nil {
			return &existing, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	acct, err := l.account(tx, p.UserID)
	if err != nil {
		return nil, err
	}

	balance := acct.Balance
	if p.Amount < 0 || p.Status == models.TxCompleted {
		balance = acct.Balance + p.Amount
		if balance < 0 {
			return nil, fmt.Errorf("%w: user %s has %d, posting %d", errs.ErrInsufficientFunds, p.UserID, acct.Balance, p.Amount)
		}
		if err := l.swapBalance(tx, acct, balance); err != nil {
			return nil, err
		}
	}

	entry := &models.Transaction{
		UserID:         p.UserID,
		Kind:           p.Kind,
		Amount:         p.Amount,
		BalanceAfter:   balance,
		Status:         p.Status,
		QRPayload:      p.QRPayload,
		ExpiresAt:      p.ExpiresAt,
		RelatedOrderID: p.RelatedOrderID,
		Note:           p.Note,
	}
	if p.RefNumber != "" {
		entry.RefNumber = &p.RefNumber
	}
	if p.IdempotencyKey != "" {
		entry.IdempotencyKey = &p.IdempotencyKey
	}
	if err := tx.Create(entry).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: %w", errs.ErrConflict, err)
		}
		return nil, err
	}

	metrics.LedgerPostings.WithLabelValues(string(p.Kind), string(p.Status)).Inc()
	l.logger.Info("ledger posting",
		zap.Uint("transaction_id", entry.ID),
		zap.String("user_id", p.UserID),
		zap.String("kind", string(p.Kind)),
		zap.Int64("amount", p.Amount),
		zap.Int64("balance_after", balance),
		zap.String("status", string(p.Status)),
	)
	return entry, nil
}

// SettlePending moves a pending entry to completed or failed, exactly once.
func (l *Ledger) SettlePending(ctx context.Context, transactionID uint, outcome models.TransactionStatus) (*models.Transaction, error) {
	var entry *models.Transaction
	err := l.Atomically(ctx, func(tx *gorm.DB) error {
		var err error
		entry, err = l.SettlePendingTx(tx, transactionID, outcome)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// SettlePendingTx is SettlePending inside the caller's transaction. Completing a pending
// credit applies it to the balance; failing an entry never touches the balance.
func (l *Ledger) SettlePendingTx(tx *gorm.DB, transactionID uint, outcome models.TransactionStatus) (*models.Transaction, error) {
	if outcome != models.TxCompleted && outcome != models.TxFailed {
		return nil, fmt.Errorf("%w: cannot settle to %q", errs.ErrInvalidInput, outcome)
	}

	var entry models.Transaction
	if err := tx.Take(&entry, transactionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: transaction %d", errs.ErrNotFound, transactionID)
		}
		return nil, err
	}
	if entry.Status != models.TxPending {
		return nil, fmt.Errorf("%w: transaction %d is %s", errs.ErrAlreadyVerified, entry.ID, entry.Status)
	}

	updates := map[string]any{"status": outcome, "updated_at": l.now()}
	if outcome == models.TxCompleted && entry.Amount > 0 {
		acct, err := l.account(tx, entry.UserID)
		if err != nil {
			return nil, err
		}
		balance := acct.Balance + entry.Amount
		if err := l.swapBalance(tx, acct, balance); err != nil {
			return nil, err
		}
		updates["balance_after"] = balance
		entry.BalanceAfter = balance
	}

	res := tx.Model(&models.Transaction{}).
		Where("id = ? AND status = ?", entry.ID, models.TxPending).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: transaction %d settled concurrently", errs.ErrAlreadyVerified, entry.ID)
	}

	entry.Status = outcome
	metrics.LedgerPostings.WithLabelValues(string(entry.Kind), string(outcome)).Inc()
	l.logger.Info("ledger entry settled",
		zap.Uint("transaction_id", entry.ID),
		zap.String("user_id", entry.UserID),
		zap.String("status", string(outcome)),
	)
	return &entry, nil
}

// BalanceOf returns the cached balance; users without an account have zero.
func (l *Ledger) BalanceOf(ctx context.Context, userID string) (int64, error) {
	var acct models.WalletAccount
	err := l.db.WithContext(ctx).Where("user_id = ?", userID).Take(&acct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return acct.Balance, nil
}

// Transactions lists the newest entries first.
func (l *Ledger) Transactions(ctx context.Context, userID string, limit int) ([]models.Transaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var entries []models.Transaction
	err := l.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

func (l *Ledger) account(tx *gorm.DB, userID string) (*models.WalletAccount, error) {
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.WalletAccount{UserID: userID}).Error; err != nil {
		return nil, err
	}
	var acct models.WalletAccount
	if err := tx.Where("user_id = ?", userID).Take(&acct).Error; err != nil {
		return nil, err
	}
	return &acct, nil
}

func (l *Ledger) swapBalance(tx *gorm.DB, acct *models.WalletAccount, balance int64) error {
	res := tx.Model(&models.WalletAccount{}).
		Where("user_id = ? AND version = ?", acct.UserID, acct.Version).
		Updates(map[string]any{
			"balance":    balance,
			"version":    acct.Version + 1,
			"updated_at": l.now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: wallet %s at version %d", errs.ErrConflict, acct.UserID, acct.Version)
	}
	acct.Balance = balance
	acct.Version++
	return nil
}

func validatePosting(p Posting) error {
	if p.UserID == "" {
		return fmt.Errorf("%w: posting without user", errs.ErrInvalidInput)
	}
	if p.Amount == 0 {
		return fmt.Errorf("%w: zero amount posting", errs.ErrInvalidInput)
	}
	if p.Status != models.TxCompleted && p.Status != models.TxPending {
		return fmt.Errorf("%w: new postings must be pending or completed", errs.ErrInvalidInput)
	}
	switch p.Kind {
	case models.KindTopup, models.KindSale, models.KindCommission, models.KindRefund:
		if p.Amount < 0 {
			return fmt.Errorf("%w: %s must be a credit", errs.ErrInvalidInput, p.Kind)
		}
	case models.KindWithdrawal, models.KindPurchase:
		if p.Amount > 0 {
			return fmt.Errorf("%w: %s must be a debit", errs.ErrInvalidInput, p.Kind)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", errs.ErrInvalidInput, p.Kind)
	}
	return nil
}
