package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"marketpay/models"
	"marketpay/services/errs"
	"marketpay/services/ledger"
	"marketpay/services/notify"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LinkBankAccount sets the user's payout destination, replacing any earlier one.
// Withdrawals already requested keep the snapshot taken when they were made.
func (s *Service) LinkBankAccount(ctx context.Context, userID string, bank models.BankDetails) (*models.BankAccount, error) {
	bank.BankName = strings.TrimSpace(bank.BankName)
	bank.AccountNumber = strings.TrimSpace(bank.AccountNumber)
	bank.AccountName = strings.TrimSpace(bank.AccountName)
	if userID == "" || bank.BankName == "" || bank.AccountNumber == "" || bank.AccountName == "" {
		return nil, fmt.Errorf("%w: bank name, account number and account name are required", errs.ErrInvalidInput)
	}

	acct := &models.BankAccount{
		UserID:        userID,
		BankName:      bank.BankName,
		AccountNumber: bank.AccountNumber,
		AccountName:   bank.AccountName,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"bank_name", "account_number", "account_name", "updated_at"}),
		}).
		Create(acct).Error
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// RequestWithdrawal places a hold on the amount right away so it cannot be spent twice
// while an admin reviews the request.
func (s *Service) RequestWithdrawal(ctx context.Context, userID string, amount int64) (*models.WithdrawalRequest, error) {
	if userID == "" || amount <= 0 {
		return nil, fmt.Errorf("%w: withdrawal needs a user and a positive amount", errs.ErrInvalidInput)
	}

	var bank models.BankAccount
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&bank).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: user %s", errs.ErrNoBankAccount, userID)
	}
	if err != nil {
		return nil, err
	}

	balance, err := s.ledger.BalanceOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	if balance < amount {
		return nil, fmt.Errorf("%w: balance %d, withdrawal %d", errs.ErrInsufficientBalance, balance, amount)
	}

	var req *models.WithdrawalRequest
	err = s.ledger.Atomically(ctx, func(tx *gorm.DB) error {
		hold, err := s.ledger.PostTx(tx, ledger.Posting{
			UserID: userID,
			Kind:   models.KindWithdrawal,
			Amount: -amount,
			Status: models.TxPending,
			Note:   "withdrawal to " + bank.BankName + " " + maskAccount(bank.AccountNumber),
		})
		if err != nil {
			return err
		}
		req = &models.WithdrawalRequest{
			UserID:        userID,
			Amount:        amount,
			Bank:          datatypes.NewJSONType(bank.Details()),
			Status:        models.WithdrawalPending,
			TransactionID: hold.ID,
		}
		return tx.Create(req).Error
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, notify.Event{Type: notify.EventWithdrawalCreated, UserID: userID, Amount: amount, Status: string(req.Status)})
	return req, nil
}

func (s *Service) ApproveWithdrawal(ctx context.Context, actor Actor, withdrawalID uint, note string) (*models.WithdrawalRequest, error) {
	return s.reviewWithdrawal(ctx, actor, withdrawalID, models.WithdrawalApproved, note)
}

// CompleteWithdrawal marks an approved withdrawal as paid out. The hold becomes final.
func (s *Service) CompleteWithdrawal(ctx context.Context, actor Actor, withdrawalID uint, note string) (*models.WithdrawalRequest, error) {
	return s.reviewWithdrawal(ctx, actor, withdrawalID, models.WithdrawalCompleted, note)
}

// RejectWithdrawal fails the hold and credits the amount back with a compensating refund.
func (s *Service) RejectWithdrawal(ctx context.Context, actor Actor, withdrawalID uint, note string) (*models.WithdrawalRequest, error) {
	return s.reviewWithdrawal(ctx, actor, withdrawalID, models.WithdrawalRejected, note)
}

var withdrawalFrom = map[models.WithdrawalStatus][]models.WithdrawalStatus{
	models.WithdrawalApproved:  {models.WithdrawalPending},
	models.WithdrawalCompleted: {models.WithdrawalApproved},
	models.WithdrawalRejected:  {models.WithdrawalPending, models.WithdrawalApproved},
}

func (s *Service) reviewWithdrawal(ctx context.Context, actor Actor, withdrawalID uint, to models.WithdrawalStatus, note string) (*models.WithdrawalRequest, error) {
	if !actor.Admin {
		return nil, errs.ErrForbidden
	}

	var req models.WithdrawalRequest
	err := s.ledger.Atomically(ctx, func(tx *gorm.DB) error {
		req = models.WithdrawalRequest{}
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Take(&req, withdrawalID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: withdrawal %d", errs.ErrNotFound, withdrawalID)
		}
		if err != nil {
			return err
		}

		allowed := false
		for _, from := range withdrawalFrom[to] {
			if req.Status == from {
				allowed = true
			}
		}
		if !allowed {
			return fmt.Errorf("%w: withdrawal %d %s -> %s", errs.ErrInvalidTransition, req.ID, req.Status, to)
		}

		switch to {
		case models.WithdrawalCompleted:
			if _, err := s.ledger.SettlePendingTx(tx, req.TransactionID, models.TxCompleted); err != nil {
				return err
			}
		case models.WithdrawalRejected:
			if _, err := s.ledger.SettlePendingTx(tx, req.TransactionID, models.TxFailed); err != nil {
				return err
			}
			if _, err := s.ledger.PostTx(tx, ledger.Posting{
				UserID:         req.UserID,
				Kind:           models.KindRefund,
				Amount:         req.Amount,
				IdempotencyKey: fmt.Sprintf("withdrawal-reversal:%d", req.ID),
				Note:           fmt.Sprintf("withdrawal %d rejected", req.ID),
			}); err != nil {
				return err
			}
		}

		now := s.now()
		res := tx.Model(&models.WithdrawalRequest{}).
			Where("id = ? AND status = ?", req.ID, req.Status).
			Updates(map[string]any{
				"status":      to,
				"reviewed_by": actor.UserID,
				"reviewed_at": now,
				"note":        note,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: withdrawal %d left %s", errs.ErrConflict, req.ID, req.Status)
		}
		req.Status = to
		req.ReviewedBy = actor.UserID
		req.ReviewedAt = &now
		req.Note = note
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Sugar().Infow("withdrawal reviewed", "withdrawal_id", req.ID, "status", req.Status, "reviewed_by", actor.UserID)
	s.notify(ctx, notify.Event{Type: notify.EventWithdrawalReviewed, UserID: req.UserID, Amount: req.Amount, Status: string(req.Status)})
	return &req, nil
}

func maskAccount(number string) string {
	if len(number) <= 4 {
		return number
	}
	return strings.Repeat("x", len(number)-4) + number[len(number)-4:]
}
