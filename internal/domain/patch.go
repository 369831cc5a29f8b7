package domain

import "time"

// TransactionPatch carries a partial update. Nil fields are left untouched.
type TransactionPatch struct {
	Amount         *float64   `json:"amount,omitempty"`
	Type           *Type      `json:"type,omitempty"`
	Category       *string    `json:"category,omitempty"`
	Note           *string    `json:"note,omitempty"`
	PaymentMethod  *string    `json:"paymentMethod,omitempty"`
	PaymentAccount *string    `json:"paymentAccount,omitempty"`
	Currency       *string    `json:"currency,omitempty"`
	CreatedAt      *time.Time `json:"createdAt,omitempty"`
	UpdatedAt      *time.Time `json:"updatedAt,omitempty"`
	Synced         *bool      `json:"synced,omitempty"`
}

// Apply returns a copy of tx with the patch merged in. ID and UserID never change.
func (p TransactionPatch) Apply(tx Transaction) Transaction {
	if p.Amount != nil {
		tx.Amount = NormalizeAmount(*p.Amount)
	}
	if p.Type != nil {
		tx.Type = *p.Type
	}
	if p.Category != nil {
		tx.Category = *p.Category
	}
	if p.Note != nil {
		tx.Note = *p.Note
	}
	if p.PaymentMethod != nil {
		tx.PaymentMethod = *p.PaymentMethod
	}
	if p.PaymentAccount != nil {
		tx.PaymentAccount = *p.PaymentAccount
	}
	if p.Currency != nil {
		tx.Currency = *p.Currency
	}
	if p.CreatedAt != nil && !p.CreatedAt.IsZero() {
		tx.CreatedAt = p.CreatedAt.UTC()
	}
	if p.UpdatedAt != nil {
		updated := p.UpdatedAt.UTC()
		tx.UpdatedAt = &updated
	}
	if p.Synced != nil {
		tx.Synced = *p.Synced
	}
	return tx
}
