package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "pending"
	WithdrawalApproved  WithdrawalStatus = "approved"
	WithdrawalRejected  WithdrawalStatus = "rejected"
	WithdrawalCompleted WithdrawalStatus = "completed"
)

type BankDetails struct {
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
}

// BankAccount is the payout destination linked to a wallet.
type BankAccount struct {
	UserID        string `gorm:"primaryKey;size:64" json:"user_id"`
	BankName      string `gorm:"size:64;not null" json:"bank_name"`
	AccountNumber string `gorm:"size:32;not null" json:"account_number"`
	AccountName   string `gorm:"size:128;not null" json:"account_name"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (b BankAccount) Details() BankDetails {
	return BankDetails{BankName: b.BankName, AccountNumber: b.AccountNumber, AccountName: b.AccountName}
}

type WithdrawalRequest struct {
	gorm.Model

	UserID        string                          `gorm:"size:64;not null;index" json:"user_id"`
	Amount        int64                           `gorm:"not null" json:"amount"`
	Bank          datatypes.JSONType[BankDetails] `json:"bank"`
	Status        WithdrawalStatus                `gorm:"size:16;not null;index" json:"status"`
	TransactionID uint                            `gorm:"not null" json:"transaction_id"`
	ReviewedBy    string                          `gorm:"size:64" json:"reviewed_by,omitempty"`
	Note          string                          `gorm:"size:255" json:"note,omitempty"`
	ReviewedAt    *time.Time                      `json:"reviewed_at,omitempty"`
}
