package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Category carries the commission percentage charged on products filed under it.
type Category struct {
	gorm.Model

	Name           string          `gorm:"size:128;uniqueIndex" json:"name"`
	CommissionRate decimal.Decimal `gorm:"type:numeric(5,2);not null;default:0" json:"commission_rate"`
}

// Product holds only what checkout reads and writes; the catalog itself lives elsewhere.
type Product struct {
	gorm.Model

	SellerID   string `gorm:"size:64;not null;index" json:"seller_id"`
	CategoryID uint   `gorm:"index" json:"category_id"`
	Name       string `gorm:"size:255;not null" json:"name"`
	Price      int64  `gorm:"not null" json:"price"`
	Stock      int64  `gorm:"not null;default:0" json:"stock"`
	SoldCount  int64  `gorm:"not null;default:0" json:"sold_count"`
	IsActive   bool   `gorm:"default:true" json:"is_active"`
}

type CartItem struct {
	gorm.Model

	BuyerID   string `gorm:"size:64;not null;uniqueIndex:idx_cart_line" json:"buyer_id"`
	ProductID uint   `gorm:"not null;uniqueIndex:idx_cart_line" json:"product_id"`
	Quantity  int64  `gorm:"not null" json:"quantity"`
}
