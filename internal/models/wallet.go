package models

import "github.com/shopspring/decimal"

// WalletBalanceResponse is returned by the wallet backend balance lookup
type WalletBalanceResponse struct {
	UserID string          `json:"userId,omitempty"`
	Amount decimal.Decimal `json:"amount"`
}

// PayRequest opens a payment session on the wallet backend
type PayRequest struct {
	UserID string          `json:"userId" validate:"required"`
	Amount decimal.Decimal `json:"amount" validate:"required,gt=0"`
}

// PayResponse carries the session issued by the wallet backend.
// Either field may be empty, in which case the ledger generates its own.
type PayResponse struct {
	SessionID string `json:"sessionId"`
	Token     string `json:"token"`
}

// ConfirmPaymentRequest is the payload submitted to confirm a purchase
type ConfirmPaymentRequest struct {
	SessionID string          `json:"sessionId" validate:"required"`
	Token     string          `json:"token" validate:"required"`
	UserID    string          `json:"userId" validate:"required"`
	Amount    decimal.Decimal `json:"amount" validate:"required,gt=0"`
}

// ConfirmPaymentResponse acknowledges a confirmation on the wallet backend
type ConfirmPaymentResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// TopUpRequest adds funds to a wallet out of band
type TopUpRequest struct {
	Name     string          `json:"name" validate:"required,min=2,max=50"`
	Email    string          `json:"email" validate:"required,email"`
	Document string          `json:"document" validate:"required,min=5"`
	Phone    string          `json:"phone" validate:"required,min=10"`
	Amount   decimal.Decimal `json:"amount" validate:"required,gt=0"`
}

// TopUpResponse is returned after a top-up
type TopUpResponse struct {
	Success bool            `json:"success"`
	Amount  decimal.Decimal `json:"amount"`
	Message string          `json:"message,omitempty"`
}

// DebitRequest asks the wallet backend to withdraw funds
type DebitRequest struct {
	UserID        string          `json:"userId" validate:"required"`
	Amount        decimal.Decimal `json:"amount" validate:"required,gt=0"`
	TransactionID string          `json:"transactionId,omitempty"`
}

// DebitResponse returns the balance after a debit
type DebitResponse struct {
	Success bool            `json:"success"`
	Amount  decimal.Decimal `json:"amount"`
	Message string          `json:"message,omitempty"`
}
