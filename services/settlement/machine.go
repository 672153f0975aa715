package settlement

import (
	"fmt"

	"marketpay/models"
	"marketpay/services/errs"
	"marketpay/services/ledger"
	"marketpay/services/metrics"

	"gorm.io/gorm"
)

// transitions lists every legal status change. Anything else is ErrInvalidTransition.
// Disputes can only be opened while the platform is holding the buyer's money.
var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderPendingPayment: {models.OrderPaid, models.OrderCancelled},
	models.OrderPaid:           {models.OrderProcessing, models.OrderShipped, models.OrderCancelled, models.OrderDisputed},
	models.OrderProcessing:     {models.OrderShipped, models.OrderCancelled, models.OrderDisputed},
	models.OrderShipped:        {models.OrderDelivered, models.OrderDisputed},
	models.OrderDisputed:       {models.OrderDelivered, models.OrderRefunded},
}

func CanTransition(from, to models.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// transition moves order to status `to` if the stored status is still the one we read.
// Losing that race is a conflict so the whole unit re-runs on fresh state.
func (s *Service) transition(tx *gorm.DB, order *models.Order, to models.OrderStatus, fields map[string]any) error {
	if !CanTransition(order.Status, to) {
		return fmt.Errorf("%w: order %d %s -> %s", errs.ErrInvalidTransition, order.ID, order.Status, to)
	}

	updates := map[string]any{"status": to}
	for k, v := range fields {
		updates[k] = v
	}
	res := tx.Model(&models.Order{}).
		Where("id = ? AND status = ?", order.ID, order.Status).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: order %d left %s", errs.ErrConflict, order.ID, order.Status)
	}

	metrics.OrderTransitions.WithLabelValues(string(to)).Inc()
	s.logger.Sugar().Infow("order transition", "order_id", order.ID, "from", order.Status, "to", to)
	order.Status = to
	return nil
}

// fundOrderTx is the checkout settlement unit: buyer debit, stock, paid status and cart
// cleanup succeed or fail together. The debit is keyed by order so a replay is a no-op.
func (s *Service) fundOrderTx(tx *gorm.DB, order *models.Order) error {
	if order.Status != models.OrderPendingPayment {
		return fmt.Errorf("%w: order %d is %s", errs.ErrInvalidTransition, order.ID, order.Status)
	}

	if _, err := s.ledger.PostTx(tx, ledger.Posting{
		UserID:         order.BuyerID,
		Kind:           models.KindPurchase,
		Amount:         -order.TotalAmount,
		RelatedOrderID: &order.ID,
		IdempotencyKey: fmt.Sprintf("purchase:%d", order.ID),
		Note:           "order " + order.OrderNumber,
	}); err != nil {
		return err
	}

	productIDs := make([]uint, 0, len(order.Items))
	for _, item := range order.Items {
		res := tx.Model(&models.Product{}).
			Where("id = ? AND stock >= ?", item.ProductID, item.Quantity).
			Updates(map[string]any{
				"stock":      gorm.Expr("stock - ?", item.Quantity),
				"sold_count": gorm.Expr("sold_count + ?", item.Quantity),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: product %d", errs.ErrInsufficientStock, item.ProductID)
		}
		productIDs = append(productIDs, item.ProductID)
	}

	now := s.now()
	if err := s.transition(tx, order, models.OrderPaid, map[string]any{"paid_at": now}); err != nil {
		return err
	}
	order.PaidAt = &now

	return tx.Unscoped().
		Where("buyer_id = ? AND product_id IN ?", order.BuyerID, productIDs).
		Delete(&models.CartItem{}).Error
}

// payoutTx releases held funds to the seller and the platform's commission. It is used by
// delivery confirmation and by disputes resolved in the seller's favour.
func (s *Service) payoutTx(tx *gorm.DB, order *models.Order) error {
	if order.SellerAmount > 0 {
		if _, err := s.ledger.PostTx(tx, ledger.Posting{
			UserID:         order.SellerID,
			Kind:           models.KindSale,
			Amount:         order.SellerAmount,
			RelatedOrderID: &order.ID,
			IdempotencyKey: fmt.Sprintf("sale:%d", order.ID),
			Note:           "order " + order.OrderNumber,
		}); err != nil {
			return err
		}
	}
	if order.CommissionAmount > 0 {
		if _, err := s.ledger.PostTx(tx, ledger.Posting{
			UserID:         s.settings.PlatformUserID,
			Kind:           models.KindCommission,
			Amount:         order.CommissionAmount,
			RelatedOrderID: &order.ID,
			IdempotencyKey: fmt.Sprintf("commission:%d", order.ID),
			Note:           "order " + order.OrderNumber,
		}); err != nil {
			return err
		}
	}
	return nil
}

// refundTx returns the whole order total to the buyer.
func (s *Service) refundTx(tx *gorm.DB, order *models.Order, note string) error {
	_, err := s.ledger.PostTx(tx, ledger.Posting{
		UserID:         order.BuyerID,
		Kind:           models.KindRefund,
		Amount:         order.TotalAmount,
		RelatedOrderID: &order.ID,
		IdempotencyKey: fmt.Sprintf("refund:%d", order.ID),
		Note:           note,
	})
	return err
}

func restockTx(tx *gorm.DB, order *models.Order) error {
	for _, item := range order.Items {
		if err := tx.Model(&models.Product{}).
			Where("id = ?", item.ProductID).
			Updates(map[string]any{
				"stock":      gorm.Expr("stock + ?", item.Quantity),
				"sold_count": gorm.Expr("sold_count - ?", item.Quantity),
			}).Error; err != nil {
			return err
		}
	}
	return nil
}
