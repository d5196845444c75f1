package models

import "github.com/shopspring/decimal"

// GenerateTokenRequest represents the request to start a purchase
type GenerateTokenRequest struct {
	ProductID string `json:"productId" validate:"required"`
	// Amount is checked against the product price by the engine, not here
	Amount decimal.Decimal `json:"amount"`
	UserID string          `json:"userId" validate:"required"`
}

// ProcessPaymentResponse represents the outcome of a confirmation
type ProcessPaymentResponse struct {
	Success       bool            `json:"success"`
	NewBalance    decimal.Decimal `json:"newBalance"`
	TransactionID string          `json:"transactionId"`
	Message       string          `json:"message,omitempty"`
}

// BalanceResponse is returned by the balance endpoint
type BalanceResponse struct {
	UserID  string          `json:"userId"`
	Balance decimal.Decimal `json:"balance"`
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
