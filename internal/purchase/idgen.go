package purchase

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// IDGenerator produces transaction ids and token values
type IDGenerator interface {
	NewTransactionID() (string, error)
	NewToken() (string, error)
}

const (
	transactionIDPrefix = "TRX-"
	transactionIDBytes  = 8
	tokenBytes          = 16
)

// RandomGenerator draws identifiers from crypto/rand
type RandomGenerator struct{}

// NewTransactionID returns "TRX-" followed by 16 upper-case hex characters
func (RandomGenerator) NewTransactionID() (string, error) {
	s, err := randomHex(transactionIDBytes)
	if err != nil {
		return "", err
	}
	return transactionIDPrefix + strings.ToUpper(s), nil
}

// NewToken returns 32 lower-case hex characters
func (RandomGenerator) NewToken() (string, error) {
	return randomHex(tokenBytes)
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
