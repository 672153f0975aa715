package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type OrderStatus string

const (
	OrderPendingPayment OrderStatus = "pending_payment"
	OrderPaid           OrderStatus = "paid"
	OrderProcessing     OrderStatus = "processing"
	OrderShipped        OrderStatus = "shipped"
	OrderDelivered      OrderStatus = "delivered"
	OrderCancelled      OrderStatus = "cancelled"
	OrderRefunded       OrderStatus = "refunded"
	OrderDisputed       OrderStatus = "disputed"
)

type PaymentMethod string

const (
	PayByWallet PaymentMethod = "wallet"
	PayByQR     PaymentMethod = "qr"
)

type ShippingAddress struct {
	RecipientName string `json:"recipient_name" validate:"required"`
	Phone         string `json:"phone" validate:"required"`
	AddressLine   string `json:"address_line" validate:"required"`
	District      string `json:"district"`
	Province      string `json:"province" validate:"required"`
	PostalCode    string `json:"postal_code" validate:"required,len=5,numeric"`
}

type Order struct {
	gorm.Model

	OrderNumber      string          `gorm:"size:32;uniqueIndex;not null" json:"order_number"`
	BuyerID          string          `gorm:"size:64;not null;index" json:"buyer_id"`
	SellerID         string          `gorm:"size:64;not null;index" json:"seller_id"`
	TotalAmount      int64           `gorm:"not null" json:"total_amount"`
	CommissionAmount int64           `gorm:"not null" json:"commission_amount"`
	SellerAmount     int64           `gorm:"not null" json:"seller_amount"`
	CommissionRate   decimal.Decimal `gorm:"type:numeric(9,4);not null;default:0" json:"commission_rate"`
	Status           OrderStatus     `gorm:"size:24;not null;index" json:"status"`
	PaymentMethod    PaymentMethod   `gorm:"size:16;not null" json:"payment_method"`

	Shipping       datatypes.JSONType[ShippingAddress] `json:"shipping"`
	Carrier        string                              `gorm:"size:32" json:"carrier,omitempty"`
	TrackingNumber string                              `gorm:"size:64" json:"tracking_number,omitempty"`

	PaidAt      *time.Time `json:"paid_at,omitempty"`
	ShippedAt   *time.Time `json:"shipped_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items"`
}

// OrderItem is a snapshot of a product line taken at checkout. It is never updated.
type OrderItem struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	OrderID    uint   `gorm:"not null;index" json:"order_id"`
	ProductID  uint   `gorm:"not null;index" json:"product_id"`
	CategoryID uint   `json:"category_id"`
	Name       string `gorm:"size:255;not null" json:"name"`
	UnitPrice  int64  `gorm:"not null" json:"unit_price"`
	Quantity   int64  `gorm:"not null" json:"quantity"`
	Subtotal   int64  `gorm:"not null" json:"subtotal"`
	CreatedAt  time.Time
}
