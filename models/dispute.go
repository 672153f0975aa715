package models

import (
	"time"

	"gorm.io/gorm"
)

type DisputeStatus string

const (
	DisputeOpen          DisputeStatus = "open"
	DisputeInvestigating DisputeStatus = "investigating"
	DisputeResolved      DisputeStatus = "resolved"
	DisputeClosed        DisputeStatus = "closed"
)

type Dispute struct {
	gorm.Model

	OrderID     uint          `gorm:"not null;index" json:"order_id"`
	UserID      string        `gorm:"size:64;not null" json:"user_id"`
	Reason      string        `gorm:"size:255;not null" json:"reason"`
	Evidence    string        `gorm:"type:text" json:"evidence,omitempty"`
	Status      DisputeStatus `gorm:"size:16;not null;index" json:"status"`
	Resolution  string        `gorm:"type:text" json:"resolution,omitempty"`
	RefundBuyer *bool         `json:"refund_buyer,omitempty"`
	ResolvedBy  string        `gorm:"size:64" json:"resolved_by,omitempty"`
	ResolvedAt  *time.Time    `json:"resolved_at,omitempty"`
}

// Active reports whether the dispute still blocks the order.
func (d Dispute) Active() bool {
	return d.Status == DisputeOpen || d.Status == DisputeInvestigating
}
