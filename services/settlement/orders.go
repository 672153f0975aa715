package settlement

import (
	"context"
	"fmt"
	"strings"

	"marketpay/models"
	"marketpay/providers"
	"marketpay/services/errs"
	"marketpay/services/notify"

	"gorm.io/gorm"
)

type ShippingQuote struct {
	OrderID uint   `json:"order_id"`
	Carrier string `json:"carrier"`
	Fee     int64  `json:"fee"`
}

type ShipInput struct {
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"tracking_number"`
}

// MarkProcessing lets the seller acknowledge a paid order.
func (s *Service) MarkProcessing(ctx context.Context, actor Actor, orderID uint) (*models.Order, error) {
	var order *models.Order
	err := s.ledger.Atomically(ctx, func(tx *gorm.DB) error {
		var err error
		if order, err = lockOrder(tx, orderID); err != nil {
			return err
		}
		if actor.UserID != order.SellerID {
			return fmt.Errorf("%w: order %d", errs.ErrNotOwner, orderID)
		}
		return s.transition(tx, order, models.OrderProcessing, nil)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// MarkShipped records the shipment. Without a tracking number the carrier is asked for a
// label first; that call happens outside any database transaction.
func (s *Service) MarkShipped(ctx context.Context, actor Actor, orderID uint, in ShipInput) (*models.Order, error) {
	current, err := loadOrder(s.db.WithContext(ctx), orderID)
	if err != nil {
		return nil, err
	}
	if actor.UserID != current.SellerID {
		return nil, fmt.Errorf("%w: order %d", errs.ErrNotOwner, orderID)
	}
	if !CanTransition(current.Status, models.OrderShipped) {
		return nil, fmt.Errorf("%w: order %d %s -> %s", errs.ErrInvalidTransition, orderID, current.Status, models.OrderShipped)
	}

	carrierName := s.carrierName(in.Carrier)
	tracking := strings.TrimSpace(in.TrackingNumber)
	if tracking == "" {
		carrier, err := s.carrier(carrierName)
		if err != nil {
			return nil, err
		}
		label, err := carrier.CreateLabel(ctx, labelRequest(current))
		if err != nil {
			return nil, fmt.Errorf("create label with %s: %w", carrierName, err)
		}
		tracking = label.TrackingNumber
	}

	var order *models.Order
	err = s.ledger.Atomically(ctx, func(tx *gorm.DB) error {
		var err error
		if order, err = lockOrder(tx, orderID); err != nil {
			return err
		}
		now := s.now()
		if err := s.transition(tx, order, models.OrderShipped, map[string]any{
			"shipped_at":      now,
			"carrier":         carrierName,
			"tracking_number": tracking,
		}); err != nil {
			return err
		}
		order.ShippedAt = &now
		order.Carrier = carrierName
		order.TrackingNumber = tracking
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, notify.Event{
		Type:     notify.EventOrderShipped,
		UserID:   order.BuyerID,
		OrderID:  order.ID,
		Status:   string(order.Status),
		Metadata: map[string]any{"carrier": carrierName, "tracking_number": tracking},
	})
	return order, nil
}

// ConfirmDelivery is the buyer's acceptance. It releases the held money: the seller's
// share to the seller and the commission to the platform wallet.
func (s *Service) ConfirmDelivery(ctx context.Context, actor Actor, orderID uint) (*models.Order, error) {
	var order *models.Order
	err := s.ledger.Atomically(ctx, func(tx *gorm.DB) error {
		var err error
		if order, err = lockOrder(tx, orderID); err != nil {
			return err
		}
		if actor.UserID != order.BuyerID {
			return fmt.Errorf("%w: order %d", errs.ErrNotOwner, orderID)
		}
		now := s.now()
		if err := s.transition(tx, order, models.OrderDelivered, map[string]any{
			"delivered_at": now,
			"confirmed_at": now,
		}); err != nil {
			return err
		}
		order.DeliveredAt = &now
		order.ConfirmedAt = &now
		return s.payoutTx(tx, order)
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, notify.Event{Type: notify.EventOrderDelivered, UserID: order.SellerID, OrderID: order.ID, Amount: order.SellerAmount, Status: string(order.Status)})
	return order, nil
}

// CancelOrder is open to both parties until the order ships. An unpaid order is simply
// cancelled; a paid one is refunded in full and its stock returned.
func (s *Service) CancelOrder(ctx context.Context, actor Actor, orderID uint, reason string) (*models.Order, error) {
	var (
		order    *models.Order
		refunded bool
	)
	err := s.ledger.Atomically(ctx, func(tx *gorm.DB) error {
		var err error
		refunded = false
		if order, err = lockOrder(tx, orderID); err != nil {
			return err
		}
		if actor.UserID != order.BuyerID && actor.UserID != order.SellerID {
			return fmt.Errorf("%w: order %d", errs.ErrNotOwner, orderID)
		}

		wasPaid := order.Status == models.OrderPaid || order.Status == models.OrderProcessing
		now := s.now()
		if err := s.transition(tx, order, models.OrderCancelled, map[string]any{"cancelled_at": now}); err != nil {
			return err
		}
		order.CancelledAt = &now
		if !wasPaid {
			return nil
		}

		note := "order " + order.OrderNumber + " cancelled"
		if reason != "" {
			note += ": " + reason
		}
		if err := s.refundTx(tx, order, note); err != nil {
			return err
		}
		refunded = true
		return restockTx(tx, order)
	})
	if err != nil {
		return nil, err
	}

	ev := notify.Event{Type: notify.EventOrderCancelled, OrderID: order.ID, Status: string(order.Status)}
	if actor.UserID == order.BuyerID {
		ev.UserID = order.SellerID
	} else {
		ev.UserID = order.BuyerID
	}
	if refunded {
		ev.Amount = order.TotalAmount
	}
	s.notify(ctx, ev)
	return order, nil
}

// QuoteShipping asks a carrier what it would charge to deliver the order. The fee is
// not added to the order; the seller pays the carrier directly.
func (s *Service) QuoteShipping(ctx context.Context, actor Actor, orderID uint, carrierName string) (*ShippingQuote, error) {
	order, err := loadOrder(s.db.WithContext(ctx), orderID)
	if err != nil {
		return nil, err
	}
	if actor.UserID != order.SellerID && actor.UserID != order.BuyerID {
		return nil, fmt.Errorf("%w: order %d", errs.ErrNotOwner, orderID)
	}
	name := s.carrierName(carrierName)
	carrier, err := s.carrier(name)
	if err != nil {
		return nil, err
	}
	fee, err := carrier.Quote(ctx, labelRequest(order))
	if err != nil {
		return nil, fmt.Errorf("quote with %s: %w", name, err)
	}
	return &ShippingQuote{OrderID: order.ID, Carrier: name, Fee: fee}, nil
}

func (s *Service) carrierName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return s.settings.DefaultCarrier
	}
	return name
}

func (s *Service) carrier(name string) (providers.Carrier, error) {
	c := providers.GetCarrier(name)
	if c == nil {
		return nil, fmt.Errorf("%w: unknown carrier %q", errs.ErrInvalidInput, name)
	}
	return c, nil
}

func labelRequest(order *models.Order) providers.LabelRequest {
	addr := order.Shipping.Data()
	var items int64
	for _, it := range order.Items {
		items += it.Quantity
	}
	return providers.LabelRequest{
		OrderNumber:   order.OrderNumber,
		SellerID:      order.SellerID,
		RecipientName: addr.RecipientName,
		Phone:         addr.Phone,
		AddressLine:   addr.AddressLine,
		Province:      addr.Province,
		PostalCode:    addr.PostalCode,
		Items:         items,
	}
}
