package settlement

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"marketpay/models"
	"marketpay/services/commission"
	"marketpay/services/errs"
	"marketpay/services/notify"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type CheckoutLine struct {
	ProductID uint  `json:"product_id" validate:"required"`
	Quantity  int64 `json:"quantity" validate:"required,gt=0"`
}

type CheckoutInput struct {
	BuyerID  string
	Lines    []CheckoutLine
	Shipping models.ShippingAddress
	Method   models.PaymentMethod
}

// CheckoutResult carries the order and, for QR checkout, what the buyer has to pay.
type CheckoutResult struct {
	Order   *models.Order   `json:"order"`
	Payment *PaymentRequest `json:"payment,omitempty"`
}

// PlaceOrder creates one order for items of a single seller.
//
// Wallet checkout debits the buyer, takes stock and marks the order paid in one unit; a
// failure anywhere leaves no order, no ledger entry and no stock change. QR checkout
// leaves the order in pending_payment and returns a payment request; VerifyPayment funds it.
func (s *Service) PlaceOrder(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	if in.Method == "" {
		in.Method = models.PayByWallet
	}
	if in.Method != models.PayByWallet && in.Method != models.PayByQR {
		return nil, fmt.Errorf("%w: payment method %q", errs.ErrInvalidInput, in.Method)
	}
	if in.BuyerID == "" {
		return nil, fmt.Errorf("%w: buyer required", errs.ErrInvalidInput)
	}

	draft, err := s.draftOrder(ctx, in)
	if err != nil {
		return nil, err
	}

	if in.Method == models.PayByWallet {
		balance, err := s.ledger.BalanceOf(ctx, in.BuyerID)
		if err != nil {
			return nil, err
		}
		if balance < draft.TotalAmount {
			return nil, fmt.Errorf("%w: balance %d, order total %d", errs.ErrInsufficientBalance, balance, draft.TotalAmount)
		}
	}

	var (
		order   *models.Order
		payment *PaymentRequest
	)
	err = s.ledger.Atomically(ctx, func(tx *gorm.DB) error {
		order = draft.clone()
		order.OrderNumber = newOrderNumber(s.now())
		if err := tx.Create(order).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: %w", errs.ErrConflict, err)
			}
			return err
		}

		if in.Method == models.PayByQR {
			var err error
			// the transfer is rounded up to whole baht; any satang over the total stay in the wallet
			payment, err = s.createPaymentRequestTx(tx, order.BuyerID, roundUpToBaht(order.TotalAmount), &order.ID)
			return err
		}
		return s.fundOrderTx(tx, order)
	})
	if err != nil {
		return nil, err
	}

	if order.Status == models.OrderPaid {
		s.notify(ctx, notify.Event{Type: notify.EventOrderPaid, UserID: order.SellerID, OrderID: order.ID, Amount: order.TotalAmount, Status: string(order.Status)})
	}
	s.logger.Sugar().Infow("order placed",
		"order_id", order.ID,
		"order_number", order.OrderNumber,
		"buyer_id", order.BuyerID,
		"seller_id", order.SellerID,
		"total", order.TotalAmount,
		"method", in.Method,
	)
	return &CheckoutResult{Order: order, Payment: payment}, nil
}

// CheckoutCart turns the buyer's cart into one order per seller. Orders are placed one at
// a time; an error stops the run and returns the orders already placed with it.
func (s *Service) CheckoutCart(ctx context.Context, buyerID string, shipping models.ShippingAddress, method models.PaymentMethod) ([]*CheckoutResult, error) {
	var cart []models.CartItem
	if err := s.db.WithContext(ctx).Where("buyer_id = ?", buyerID).Order("id ASC").Find(&cart).Error; err != nil {
		return nil, err
	}
	if len(cart) == 0 {
		return nil, fmt.Errorf("%w: cart is empty", errs.ErrInvalidInput)
	}

	productIDs := make([]uint, 0, len(cart))
	for _, c := range cart {
		productIDs = append(productIDs, c.ProductID)
	}
	var products []models.Product
	if err := s.db.WithContext(ctx).Where("id IN ?", productIDs).Find(&products).Error; err != nil {
		return nil, err
	}
	sellerOf := make(map[uint]string, len(products))
	for _, p := range products {
		sellerOf[p.ID] = p.SellerID
	}

	groups := map[string][]CheckoutLine{}
	var sellers []string
	for _, c := range cart {
		seller, ok := sellerOf[c.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: product %d", errs.ErrNotFound, c.ProductID)
		}
		if _, seen := groups[seller]; !seen {
			sellers = append(sellers, seller)
		}
		groups[seller] = append(groups[seller], CheckoutLine{ProductID: c.ProductID, Quantity: c.Quantity})
	}

	var results []*CheckoutResult
	for _, seller := range sellers {
		res, err := s.PlaceOrder(ctx, CheckoutInput{BuyerID: buyerID, Lines: groups[seller], Shipping: shipping, Method: method})
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

type orderDraft struct {
	models.Order
}

func (d *orderDraft) clone() *models.Order {
	o := d.Order
	o.Items = append([]models.OrderItem(nil), d.Items...)
	return &o
}

// draftOrder prices the lines, checks stock and computes the commission split. It only
// reads; stock is taken again, conditionally, inside the settlement unit.
func (s *Service) draftOrder(ctx context.Context, in CheckoutInput) (*orderDraft, error) {
	lines, err := mergeLines(in.Lines)
	if err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	var products []models.Product
	if err := s.db.WithContext(ctx).Where("id IN ? AND is_active = ?", ids, true).Find(&products).Error; err != nil {
		return nil, err
	}
	byID := make(map[uint]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	draft := &orderDraft{Order: models.Order{
		BuyerID:       in.BuyerID,
		Status:        models.OrderPendingPayment,
		PaymentMethod: in.Method,
		Shipping:      datatypes.NewJSONType(in.Shipping),
	}}
	rates := map[uint]decimal.Decimal{}
	var split []commission.Line

	for _, l := range lines {
		p, ok := byID[l.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: product %d", errs.ErrNotFound, l.ProductID)
		}
		if draft.SellerID == "" {
			draft.SellerID = p.SellerID
		} else if draft.SellerID != p.SellerID {
			return nil, fmt.Errorf("%w: an order holds products of one seller", errs.ErrInvalidInput)
		}
		if p.SellerID == in.BuyerID {
			return nil, fmt.Errorf("%w: cannot buy own product %d", errs.ErrInvalidInput, p.ID)
		}
		if p.Price <= 0 {
			return nil, fmt.Errorf("%w: product %d has no price", errs.ErrInvalidInput, p.ID)
		}
		if p.Stock < l.Quantity {
			return nil, fmt.Errorf("%w: product %d has %d, want %d", errs.ErrInsufficientStock, p.ID, p.Stock, l.Quantity)
		}

		rate, ok := rates[p.CategoryID]
		if !ok {
			if rate, err = s.rates.Rate(ctx, p.CategoryID); err != nil {
				return nil, err
			}
			rates[p.CategoryID] = rate
		}

		subtotal := p.Price * l.Quantity
		draft.TotalAmount += subtotal
		draft.Items = append(draft.Items, models.OrderItem{
			ProductID:  p.ID,
			CategoryID: p.CategoryID,
			Name:       p.Name,
			UnitPrice:  p.Price,
			Quantity:   l.Quantity,
			Subtotal:   subtotal,
		})
		split = append(split, commission.Line{Subtotal: subtotal, RatePercent: rate})
	}

	sp := commission.SplitLines(split)
	draft.CommissionAmount = sp.CommissionAmount
	draft.SellerAmount = sp.SellerAmount
	draft.CommissionRate = commission.EffectiveRate(draft.TotalAmount, sp)
	return draft, nil
}

func mergeLines(lines []CheckoutLine) ([]CheckoutLine, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: no items", errs.ErrInvalidInput)
	}
	qty := map[uint]int64{}
	for _, l := range lines {
		if l.ProductID == 0 || l.Quantity <= 0 {
			return nil, fmt.Errorf("%w: bad line %+v", errs.ErrInvalidInput, l)
		}
		qty[l.ProductID] += l.Quantity
	}
	out := make([]CheckoutLine, 0, len(qty))
	for id, q := range qty {
		out = append(out, CheckoutLine{ProductID: id, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return "ORD" + now.Format("060102") + "-" + suffix
}
