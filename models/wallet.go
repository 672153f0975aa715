package models

import "time"

type TransactionKind string

const (
	KindTopup      TransactionKind = "topup"
	KindWithdrawal TransactionKind = "withdrawal"
	KindPurchase   TransactionKind = "purchase"
	KindSale       TransactionKind = "sale"
	KindCommission TransactionKind = "commission"
	KindRefund     TransactionKind = "refund"
)

type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxCompleted TransactionStatus = "completed"
	TxFailed    TransactionStatus = "failed"
)

// WalletAccount is the cached balance of one user. Only the ledger writes it.
type WalletAccount struct {
	UserID    string `gorm:"primaryKey;size:64" json:"user_id"`
	Balance   int64  `gorm:"not null;default:0" json:"balance"`
	Version   int64  `gorm:"not null;default:0" json:"-"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Transaction is an append-only ledger entry. Amounts are signed satang.
//
// Debits take effect when they are posted (a pending debit is a hold). Credits take
// effect when they are completed; a pending credit such as an unverified top-up does not
// move the balance, and its BalanceAfter is stamped when it is applied.
type Transaction struct {
	ID             uint              `gorm:"primaryKey" json:"id"`
	UserID         string            `gorm:"size:64;not null;index:idx_wallet_tx_user" json:"user_id"`
	Kind           TransactionKind   `gorm:"size:16;not null" json:"kind"`
	Amount         int64             `gorm:"not null" json:"amount"`
	BalanceAfter   int64             `gorm:"not null" json:"balance_after"`
	Status         TransactionStatus `gorm:"size:16;not null;index" json:"status"`
	RefNumber      *string           `gorm:"size:64;uniqueIndex" json:"ref_number,omitempty"`
	QRPayload      string            `gorm:"type:text" json:"qr_payload,omitempty"`
	ExpiresAt      *time.Time        `json:"expires_at,omitempty"`
	RelatedOrderID *uint             `gorm:"index" json:"related_order_id,omitempty"`
	IdempotencyKey *string           `gorm:"size:96;uniqueIndex" json:"-"`
	Note           string            `gorm:"size:255" json:"note,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

func (Transaction) TableName() string {
	return "wallet_transactions"
}

// Applied reports whether the entry currently contributes to the cached balance.
func (t Transaction) Applied() bool {
	if t.Amount < 0 {
		return true
	}
	return t.Status == TxCompleted
}
