// Package wallet talks to the remote wallet backend that owns user balances.
package wallet

import (
	"context"
	"errors"

	"github.com/ashendes/purchase-ledger/internal/models"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrOracleUnavailable covers transport failures, 5xx responses and open breakers
	ErrOracleUnavailable = errors.New("wallet service unavailable")
	// ErrRejected is returned when the wallet backend refuses a request (4xx)
	ErrRejected = errors.New("wallet service rejected request")
)

// BalanceOracle resolves a user's current balance
type BalanceOracle interface {
	Balance(ctx context.Context, userID string) (decimal.Decimal, error)
}

// SessionOracle opens a payment session and returns its identifiers
type SessionOracle interface {
	Pay(ctx context.Context, userID string, amount decimal.Decimal) (models.PayResponse, error)
}

// PaymentConfirmer acknowledges a payment at the gateway
type PaymentConfirmer interface {
	ConfirmPayment(ctx context.Context, req models.ConfirmPaymentRequest) error
}

// TopUpper adds funds to a wallet
type TopUpper interface {
	AddToWallet(ctx context.Context, req models.TopUpRequest) (models.TopUpResponse, error)
}

// Debiter withdraws funds and returns the resulting balance
type Debiter interface {
	Debit(ctx context.Context, userID string, amount decimal.Decimal, transactionID string) (decimal.Decimal, error)
}

// Oracle is the full wallet backend contract
type Oracle interface {
	BalanceOracle
	SessionOracle
	PaymentConfirmer
	TopUpper
	Debiter
}

// SoftFailBalance reports a zero balance instead of ErrOracleUnavailable.
// Only used when the deployment opts into the storefront's legacy behavior.
type SoftFailBalance struct {
	Next BalanceOracle
}

// Balance implements BalanceOracle
func (s SoftFailBalance) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	balance, err := s.Next.Balance(ctx, userID)
	if err != nil && errors.Is(err, ErrOracleUnavailable) {
		log.WithFields(log.Fields{
			"user_id": userID,
			"error":   err.Error(),
		}).Warn("Balance lookup failed, reporting zero balance")
		return decimal.Zero, nil
	}
	return balance, err
}
