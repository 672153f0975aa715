package models

// All lists every table the service owns, in migration order.
func All() []any {
	return []any{
		&WalletAccount{},
		&Transaction{},
		&Category{},
		&Product{},
		&CartItem{},
		&Order{},
		&OrderItem{},
		&BankAccount{},
		&WithdrawalRequest{},
		&Dispute{},
	}
}
