package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"marketpay/models"
	"marketpay/services/errs"
	"marketpay/services/notify"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DisputeInput struct {
	Reason   string `json:"reason" validate:"required,max=255"`
	Evidence string `json:"evidence"`
}

// OpenDispute freezes an order while the platform still holds the buyer's money. No
// ledger entry is written until the dispute is resolved.
func (s *Service) OpenDispute(ctx context.Context, actor Actor, orderID uint, in DisputeInput) (*models.Dispute, error) {
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: reason required", errs.ErrInvalidInput)
	}

	var (
		dispute *models.Dispute
		order   *models.Order
	)
	err := s.ledger.Atomically(ctx, func(tx *gorm.DB) error {
		var err error
		if order, err = lockOrder(tx, orderID); err != nil {
			return err
		}
		if actor.UserID != order.BuyerID && actor.UserID != order.SellerID {
			return fmt.Errorf("%w: order %d", errs.ErrNotOwner, orderID)
		}

		var active int64
		if err := tx.Model(&models.Dispute{}).
			Where("order_id = ? AND status IN ?", orderID, []models.DisputeStatus{models.DisputeOpen, models.DisputeInvestigating}).
			Count(&active).Error; err != nil {
			return err
		}
		if active > 0 || order.Status == models.OrderDisputed {
			return fmt.Errorf("%w: order %d", errs.ErrDisputeAlreadyOpen, orderID)
		}

		if err := s.transition(tx, order, models.OrderDisputed, nil); err != nil {
			return err
		}
		dispute = &models.Dispute{
			OrderID:  orderID,
			UserID:   actor.UserID,
			Reason:   reason,
			Evidence: in.Evidence,
			Status:   models.DisputeOpen,
		}
		return tx.Create(dispute).Error
	})
	if err != nil {
		return nil, err
	}

	other := order.SellerID
	if actor.UserID == order.SellerID {
		other = order.BuyerID
	}
	s.notify(ctx, notify.Event{Type: notify.EventDisputeOpened, UserID: other, OrderID: orderID, Status: string(dispute.Status)})
	return dispute, nil
}

// MarkInvestigating records that an admin has picked the dispute up.
func (s *Service) MarkInvestigating(ctx context.Context, actor Actor, disputeID uint) (*models.Dispute, error) {
	if !actor.Admin {
		return nil, errs.ErrForbidden
	}
	var dispute *models.Dispute
	err := s.ledger.Atomically(ctx, func(tx *gorm.DB) error {
		var err error
		if dispute, err = lockDispute(tx, disputeID); err != nil {
			return err
		}
		return moveDispute(tx, dispute, []models.DisputeStatus{models.DisputeOpen}, models.DisputeInvestigating, nil)
	})
	if err != nil {
		return nil, err
	}
	return dispute, nil
}

// ResolveDispute settles a disputed order one way or the other. A refund credits the
// buyer with the full total; otherwise the order is delivered and paid out as on a normal
// confirmation. The two branches are exclusive: the order leaves disputed exactly once.
func (s *Service) ResolveDispute(ctx context.Context, actor Actor, disputeID uint, resolution string, refundBuyer bool) (*models.Dispute, error) {
	if !actor.Admin {
		return nil, errs.ErrForbidden
	}
	resolution = strings.TrimSpace(resolution)
	if resolution == "" {
		return nil, fmt.Errorf("%w: resolution required", errs.ErrInvalidInput)
	}

	var (
		dispute *models.Dispute
		order   *models.Order
	)
	err := s.ledger.Atomically(ctx, func(tx *gorm.DB) error {
		var err error
		if dispute, err = lockDispute(tx, disputeID); err != nil {
			return err
		}
		if !dispute.Active() {
			return fmt.Errorf("%w: dispute %d is %s", errs.ErrInvalidTransition, disputeID, dispute.Status)
		}
		if order, err = lockOrder(tx, dispute.OrderID); err != nil {
			return err
		}

		now := s.now()
		if refundBuyer {
			if err := s.transition(tx, order, models.OrderRefunded, nil); err != nil {
				return err
			}
			if err := s.refundTx(tx, order, fmt.Sprintf("dispute %d: %s", dispute.ID, resolution)); err != nil {
				return err
			}
		} else {
			if err := s.transition(tx, order, models.OrderDelivered, map[string]any{"delivered_at": now}); err != nil {
				return err
			}
			order.DeliveredAt = &now
			if err := s.payoutTx(tx, order); err != nil {
				return err
			}
		}

		if err := moveDispute(tx, dispute, []models.DisputeStatus{models.DisputeOpen, models.DisputeInvestigating}, models.DisputeResolved, map[string]any{
			"resolution":   resolution,
			"refund_buyer": refundBuyer,
			"resolved_by":  actor.UserID,
			"resolved_at":  now,
		}); err != nil {
			return err
		}
		dispute.ResolvedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	dispute.Resolution = resolution
	dispute.RefundBuyer = &refundBuyer
	dispute.ResolvedBy = actor.UserID

	meta := map[string]any{"dispute_id": dispute.ID, "refund_buyer": refundBuyer}
	s.notify(ctx, notify.Event{Type: notify.EventDisputeResolved, UserID: order.BuyerID, OrderID: order.ID, Status: string(order.Status), Metadata: meta})
	s.notify(ctx, notify.Event{Type: notify.EventDisputeResolved, UserID: order.SellerID, OrderID: order.ID, Status: string(order.Status), Metadata: meta})
	if refundBuyer {
		s.notify(ctx, notify.Event{Type: notify.EventOrderRefunded, UserID: order.BuyerID, OrderID: order.ID, Amount: order.TotalAmount, Status: string(order.Status)})
	}
	return dispute, nil
}

// CloseDispute archives a resolved dispute.
func (s *Service) CloseDispute(ctx context.Context, actor Actor, disputeID uint) (*models.Dispute, error) {
	if !actor.Admin {
		return nil, errs.ErrForbidden
	}
	var dispute *models.Dispute
	err := s.ledger.Atomically(ctx, func(tx *gorm.DB) error {
		var err error
		if dispute, err = lockDispute(tx, disputeID); err != nil {
			return err
		}
		return moveDispute(tx, dispute, []models.DisputeStatus{models.DisputeResolved}, models.DisputeClosed, nil)
	})
	if err != nil {
		return nil, err
	}
	return dispute, nil
}

func lockDispute(tx *gorm.DB, disputeID uint) (*models.Dispute, error) {
	var d models.Dispute
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Take(&d, disputeID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: dispute %d", errs.ErrNotFound, disputeID)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func moveDispute(tx *gorm.DB, d *models.Dispute, from []models.DisputeStatus, to models.DisputeStatus, fields map[string]any) error {
	allowed := false
	for _, st := range from {
		if d.Status == st {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: dispute %d %s -> %s", errs.ErrInvalidTransition, d.ID, d.Status, to)
	}

	updates := map[string]any{"status": to}
	for k, v := range fields {
		updates[k] = v
	}
	res := tx.Model(&models.Dispute{}).Where("id = ? AND status = ?", d.ID, d.Status).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: dispute %d left %s", errs.ErrConflict, d.ID, d.Status)
	}
	d.Status = to
	return nil
}
