// Package settlement drives orders from checkout to payout and owns every flow that moves
// money through the ledger: wallet and QR checkout, payment verification, withdrawals and
// dispute resolution.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketpay/models"
	"marketpay/providers"
	"marketpay/services/errs"
	"marketpay/services/ledger"
	"marketpay/services/notify"
	"marketpay/services/refmatch"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RateResolver returns the commission percentage for a category.
type RateResolver interface {
	Rate(ctx context.Context, categoryID uint) (decimal.Decimal, error)
}

// Actor is the caller as established by the identity layer in front of this service.
type Actor struct {
	UserID string
	Admin  bool
}

type Settings struct {
	PlatformUserID      string
	PromptPayPhone      string
	PromptPayNationalID string
	PaymentTTL          time.Duration
	DefaultCarrier      string
}

type Deps struct {
	DB       *gorm.DB
	Ledger   *ledger.Ledger
	Rates    RateResolver
	Matcher  *refmatch.Matcher
	Renderer providers.QRRenderer
	Notifier notify.Notifier
	Logger   *zap.Logger
}

type Service struct {
	db       *gorm.DB
	ledger   *ledger.Ledger
	rates    RateResolver
	matcher  *refmatch.Matcher
	renderer providers.QRRenderer
	notifier notify.Notifier
	logger   *zap.Logger
	settings Settings
	now      func() time.Time
}

func New(d Deps, s Settings) *Service {
	if s.PaymentTTL <= 0 {
		s.PaymentTTL = 15 * time.Minute
	}
	if s.PlatformUserID == "" {
		s.PlatformUserID = "platform"
	}
	if s.DefaultCarrier == "" {
		s.DefaultCarrier = "manual"
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Notifier == nil {
		d.Notifier = notify.NewLogNotifier(d.Logger)
	}
	if d.Matcher == nil {
		d.Matcher = refmatch.NewMatcher(nil)
	}
	if d.Renderer == nil {
		d.Renderer = providers.URLRenderer{}
	}
	return &Service{
		db:       d.DB,
		ledger:   d.Ledger,
		rates:    d.Rates,
		matcher:  d.Matcher,
		renderer: d.Renderer,
		notifier: d.Notifier,
		logger:   d.Logger,
		settings: s,
		now:      time.Now,
	}
}

// GetOrder returns an order visible to the actor.
func (s *Service) GetOrder(ctx context.Context, actor Actor, orderID uint) (*models.Order, error) {
	order, err := loadOrder(s.db.WithContext(ctx), orderID)
	if err != nil {
		return nil, err
	}
	if !actor.Admin && actor.UserID != order.BuyerID && actor.UserID != order.SellerID {
		return nil, fmt.Errorf("%w: order %d", errs.ErrNotOwner, orderID)
	}
	return order, nil
}

func loadOrder(tx *gorm.DB, orderID uint) (*models.Order, error) {
	var order models.Order
	err := tx.Preload("Items").Take(&order, orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: order %d", errs.ErrNotFound, orderID)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// lockOrder reads the order row FOR UPDATE inside a settlement unit, then its items.
func lockOrder(tx *gorm.DB, orderID uint) (*models.Order, error) {
	var order models.Order
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Take(&order, orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: order %d", errs.ErrNotFound, orderID)
	}
	if err != nil {
		return nil, err
	}
	if err := tx.Where("order_id = ?", order.ID).Order("id ASC").Find(&order.Items).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Service) notify(ctx context.Context, ev notify.Event) {
	ev.Timestamp = s.now().UTC()
	s.notifier.Notify(ctx, ev)
}
