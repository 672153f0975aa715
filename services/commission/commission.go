package commission

import (
	"context"
	"errors"
	"fmt"

	"marketpay/models"
	"marketpay/services/errs"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var hundred = decimal.NewFromInt(100)

type Split struct {
	CommissionAmount int64
	SellerAmount     int64
}

// Line is one priced order line with the rate of its category.
type Line struct {
	Subtotal    int64
	RatePercent decimal.Decimal
}

// SplitTotal computes the platform share as round(total*rate/100), half away from zero.
// The seller share is always the remainder, so the two add up to total exactly.
func SplitTotal(total int64, ratePercent decimal.Decimal) Split {
	commission := decimal.NewFromInt(total).Mul(ratePercent).Div(hundred).Round(0).IntPart()
	return Split{CommissionAmount: commission, SellerAmount: total - commission}
}

// SplitLines charges every line at its own category rate and sums the rounded
// per-line commissions.
func SplitLines(lines []Line) Split {
	var total, commission int64
	for _, l := range lines {
		total += l.Subtotal
		commission += SplitTotal(l.Subtotal, l.RatePercent).CommissionAmount
	}
	return Split{CommissionAmount: commission, SellerAmount: total - commission}
}

// EffectiveRate is the blended percentage a split represents, kept on the order for display.
func EffectiveRate(total int64, s Split) decimal.Decimal {
	if total == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(s.CommissionAmount).Mul(hundred).Div(decimal.NewFromInt(total)).Round(4)
}

// Resolver looks up commission rates per category.
type Resolver struct {
	db       *gorm.DB
	fallback decimal.Decimal
}

func NewResolver(db *gorm.DB, fallback decimal.Decimal) *Resolver {
	return &Resolver{db: db, fallback: fallback}
}

func (r *Resolver) Rate(ctx context.Context, categoryID uint) (decimal.Decimal, error) {
	if categoryID == 0 {
		return r.fallback, nil
	}
	var cat models.Category
	err := r.db.WithContext(ctx).First(&cat, categoryID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.fallback, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	if cat.CommissionRate.IsNegative() || cat.CommissionRate.GreaterThan(hundred) {
		return decimal.Zero, fmt.Errorf("%w: category %d has rate %s", errs.ErrInvalidInput, categoryID, cat.CommissionRate)
	}
	return cat.CommissionRate, nil
}
