package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"marketpay/models"
	"marketpay/services/errs"
	"marketpay/services/ledger"
	"marketpay/services/metrics"
	"marketpay/services/notify"
	"marketpay/services/qrpay"
	"marketpay/services/refmatch"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentRequest is what a payer needs to transfer money to the shared account. It is
// backed by a pending topup transaction, not a table of its own. Amount is the satang
// credited once verified; PayableAmount is the baht to transfer, reference included.
type PaymentRequest struct {
	TransactionID uint            `json:"transaction_id"`
	RefNumber     string          `json:"ref_number"`
	Amount        int64           `json:"amount"`
	PayableAmount decimal.Decimal `json:"payable_amount"`
	QRPayload     string          `json:"qr_payload"`
	ImageURL      string          `json:"image_url,omitempty"`
	ExpiresAt     time.Time       `json:"expires_at"`
	OrderID       *uint           `json:"order_id,omitempty"`
}

type VerifyResult struct {
	Transaction *models.Transaction `json:"transaction"`
	Order       *models.Order       `json:"order,omitempty"`
}

// CreateTopup issues a QR payment request that credits the user's wallet once verified.
func (s *Service) CreateTopup(ctx context.Context, userID string, amount int64) (*PaymentRequest, error) {
	if userID == "" || amount <= 0 {
		return nil, fmt.Errorf("%w: topup needs a user and a positive amount", errs.ErrInvalidInput)
	}
	if amount%satangPerBaht != 0 {
		return nil, fmt.Errorf("%w: topup of %d satang is not whole baht", errs.ErrInvalidInput, amount)
	}

	var req *PaymentRequest
	err := s.ledger.Atomically(ctx, func(tx *gorm.DB) error {
		var err error
		req, err = s.createPaymentRequestTx(tx, userID, amount, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// createPaymentRequestTx writes the pending topup for a whole-baht amount. A reference
// that collides with an existing one surfaces as ErrConflict and the unit is retried with
// a fresh reference.
func (s *Service) createPaymentRequestTx(tx *gorm.DB, userID string, amount int64, orderID *uint) (*PaymentRequest, error) {
	if amount%satangPerBaht != 0 {
		return nil, fmt.Errorf("%w: payment request of %d satang is not whole baht", errs.ErrInvalidInput, amount)
	}
	ref := s.matcher.GenerateReference(newPrimaryID())
	payable, err := refmatch.BuildPayableAmount(toBaht(amount), ref)
	if err != nil {
		return nil, err
	}

	ref2 := "TOPUP"
	if orderID != nil {
		ref2 = fmt.Sprintf("ORDER%d", *orderID)
	}
	payload, err := qrpay.Build(qrpay.Input{
		Phone:      s.settings.PromptPayPhone,
		NationalID: s.settings.PromptPayNationalID,
		Amount:     decimal.NewNullDecimal(payable),
		Reference1: ref,
		Reference2: ref2,
	})
	if err != nil {
		return nil, err
	}

	expiresAt := s.now().Add(s.settings.PaymentTTL)
	entry, err := s.ledger.PostTx(tx, ledger.Posting{
		UserID:         userID,
		Kind:           models.KindTopup,
		Amount:         amount,
		Status:         models.TxPending,
		RelatedOrderID: orderID,
		RefNumber:      ref,
		QRPayload:      payload,
		ExpiresAt:      &expiresAt,
	})
	if err != nil {
		return nil, err
	}

	return &PaymentRequest{
		TransactionID: entry.ID,
		RefNumber:     ref,
		Amount:        amount,
		PayableAmount: payable,
		QRPayload:     payload,
		ImageURL:      s.renderer.ImageURL(payload),
		ExpiresAt:     expiresAt,
		OrderID:       orderID,
	}, nil
}

// VerifyPayment matches an observed transfer against the pending request named by ref.
//
// Expiry is decided here from the request's own deadline; the background sweep only tidies
// up. When the request was funding a QR order, the credit and the order's settlement are
// one unit. If that order can no longer be filled the order is cancelled and the money
// stays in the payer's wallet.
func (s *Service) VerifyPayment(ctx context.Context, ref string, observed decimal.Decimal) (*VerifyResult, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: reference required", errs.ErrInvalidInput)
	}

	var entry models.Transaction
	err := s.db.WithContext(ctx).
		Where("ref_number = ? AND kind = ?", ref, models.KindTopup).
		Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.PaymentVerifications.WithLabelValues("not_found").Inc()
		return nil, fmt.Errorf("%w: payment %s", errs.ErrNotFound, ref)
	}
	if err != nil {
		return nil, err
	}
	if entry.Status != models.TxPending {
		metrics.PaymentVerifications.WithLabelValues("duplicate").Inc()
		return nil, fmt.Errorf("%w: payment %s is %s", errs.ErrAlreadyVerified, ref, entry.Status)
	}

	now := s.now()
	if entry.ExpiresAt != nil && now.After(*entry.ExpiresAt) {
		metrics.PaymentVerifications.WithLabelValues("expired").Inc()
		if err := s.expireTx(ctx, entry.ID, now); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: payment %s expired at %s", errs.ErrRequestExpired, ref, entry.ExpiresAt.Format(time.RFC3339))
	}

	// the satang of the transfer carry the reference, only whole baht are credited
	if !refmatch.Verify(observed, ref) || !observed.Floor().Equal(toBaht(entry.Amount)) {
		metrics.PaymentVerifications.WithLabelValues("mismatch").Inc()
		s.logger.Sugar().Warnw("payment amount mismatch", "ref", ref, "observed", observed.String(), "amount", entry.Amount)
		return nil, fmt.Errorf("%w: payment %s observed %s", errs.ErrAmountMismatch, ref, observed.StringFixed(2))
	}

	var (
		settled *models.Transaction
		order   *models.Order
	)
	err = s.ledger.Atomically(ctx, func(tx *gorm.DB) error {
		var err error
		order = nil
		if settled, err = s.ledger.SettlePendingTx(tx, entry.ID, models.TxCompleted); err != nil {
			return err
		}
		if settled.RelatedOrderID == nil {
			return nil
		}
		if order, err = lockOrder(tx, *settled.RelatedOrderID); err != nil {
			return err
		}
		if order.Status != models.OrderPendingPayment {
			return nil
		}

		err = tx.Transaction(func(sp *gorm.DB) error {
			return s.fundOrderTx(sp, order)
		})
		if err == nil || errors.Is(err, errs.ErrConflict) {
			return err
		}
		if !errors.Is(err, errs.ErrInsufficientStock) && !errors.Is(err, errs.ErrInsufficientBalance) {
			return err
		}
		s.logger.Sugar().Warnw("paid order could not be filled, cancelling", "order_id", order.ID, "error", err)
		order.Status = models.OrderPendingPayment
		order.PaidAt = nil
		return s.transition(tx, order, models.OrderCancelled, map[string]any{"cancelled_at": s.now()})
	})
	if err != nil {
		if errors.Is(err, errs.ErrAlreadyVerified) {
			metrics.PaymentVerifications.WithLabelValues("duplicate").Inc()
		}
		return nil, err
	}

	metrics.PaymentVerifications.WithLabelValues("verified").Inc()
	s.notify(ctx, notify.Event{Type: notify.EventPaymentVerified, UserID: settled.UserID, Amount: settled.Amount, Status: string(settled.Status)})
	if order != nil {
		switch order.Status {
		case models.OrderPaid:
			s.notify(ctx, notify.Event{Type: notify.EventOrderPaid, UserID: order.SellerID, OrderID: order.ID, Amount: order.TotalAmount, Status: string(order.Status)})
		case models.OrderCancelled:
			s.notify(ctx, notify.Event{Type: notify.EventOrderCancelled, UserID: order.BuyerID, OrderID: order.ID, Status: string(order.Status)})
		}
	}
	return &VerifyResult{Transaction: settled, Order: order}, nil
}

// ExpirePayments fails every pending topup whose deadline is before now and cancels the
// unpaid orders they were meant to fund. It returns how many requests it expired.
func (s *Service) ExpirePayments(ctx context.Context, now time.Time) (int, error) {
	var ids []uint
	err := s.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("kind = ? AND status = ? AND expires_at < ?", models.KindTopup, models.TxPending, now).
		Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, id := range ids {
		if err := s.expireTx(ctx, id, now); err != nil {
			if errors.Is(err, errs.ErrAlreadyVerified) {
				continue
			}
			return expired, err
		}
		expired++
	}
	return expired, nil
}

func (s *Service) expireTx(ctx context.Context, transactionID uint, now time.Time) error {
	var (
		entry     *models.Transaction
		cancelled *models.Order
	)
	err := s.ledger.Atomically(ctx, func(tx *gorm.DB) error {
		var err error
		cancelled = nil
		if entry, err = s.ledger.SettlePendingTx(tx, transactionID, models.TxFailed); err != nil {
			return err
		}
		if entry.RelatedOrderID == nil {
			return nil
		}
		order, err := lockOrder(tx, *entry.RelatedOrderID)
		if err != nil {
			return err
		}
		if order.Status != models.OrderPendingPayment {
			return nil
		}
		if err := s.transition(tx, order, models.OrderCancelled, map[string]any{"cancelled_at": now}); err != nil {
			return err
		}
		cancelled = order
		return nil
	})
	if err != nil {
		return err
	}

	s.notify(ctx, notify.Event{Type: notify.EventPaymentExpired, UserID: entry.UserID, Amount: entry.Amount, Status: string(entry.Status)})
	if cancelled != nil {
		s.notify(ctx, notify.Event{Type: notify.EventOrderCancelled, UserID: cancelled.BuyerID, OrderID: cancelled.ID, Status: string(cancelled.Status)})
	}
	return nil
}

const satangPerBaht = 100

func toBaht(satang int64) decimal.Decimal {
	return decimal.New(satang, -2)
}

// roundUpToBaht is the smallest whole-baht amount, in satang, covering satang.
func roundUpToBaht(satang int64) int64 {
	return (satang + satangPerBaht - 1) / satangPerBaht * satangPerBaht
}

func newPrimaryID() string {
	return "T" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:7])
}
