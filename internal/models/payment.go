package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction represents a purchase attempt recorded in the ledger
type Transaction struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	ProductID string          `json:"productId"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
}

// TransactionStatus constants
const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
)

// IsTerminal reports whether the status can no longer change.
func IsTerminal(status string) bool {
	return status == TransactionStatusCompleted || status == TransactionStatusFailed
}

// PurchaseToken is a short-lived, single-use token bound to one pending transaction
type PurchaseToken struct {
	Token         string          `json:"token"`
	ProductID     string          `json:"productId"`
	Amount        decimal.Decimal `json:"amount"`
	ExpiresAt     time.Time       `json:"expiresAt"`
	TransactionID string          `json:"transactionId"`
}

// Expired reports whether the token is past its expiry at now.
func (t PurchaseToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
