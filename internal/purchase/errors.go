package purchase

import (
	"errors"
	"fmt"

	"github.com/ashendes/purchase-ledger/internal/wallet"
)

// Domain errors. Their messages are meant to be shown to the caller as-is.
var (
	ErrInsufficientFunds     = errors.New("Insufficient funds")
	ErrProductNotFound       = errors.New("Product not found")
	ErrInvalidAmount         = errors.New("Invalid amount")
	ErrInvalidOrExpiredToken = errors.New("Invalid or expired token")
	// ErrTokenExpired matches ErrInvalidOrExpiredToken under errors.Is
	ErrTokenExpired      = fmt.Errorf("token expired: %w", ErrInvalidOrExpiredToken)
	ErrOracleUnavailable = wallet.ErrOracleUnavailable
)

// PublicMessage returns the caller-facing message for err
func PublicMessage(err error) string {
	for _, known := range []error{
		ErrInsufficientFunds,
		ErrProductNotFound,
		ErrInvalidAmount,
		ErrInvalidOrExpiredToken,
		ErrOracleUnavailable,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return err.Error()
}
