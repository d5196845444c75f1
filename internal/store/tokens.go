package store

import (
	"errors"
	"sync"
	"time"

	"github.com/ashendes/purchase-ledger/internal/models"
)

// ErrTokenExists is returned when issuing a token value that is already live
var ErrTokenExists = errors.New("token already live")

// TokenRepository holds the live purchase tokens
type TokenRepository interface {
	Issue(token models.PurchaseToken) error
	FindByToken(token string) (models.PurchaseToken, bool)
	Revoke(token string) bool
	Expired(now time.Time) []models.PurchaseToken
	Len() int
}

// TokenStore is an in-memory TokenRepository keyed by token value
type TokenStore struct {
	mutex  sync.RWMutex
	tokens map[string]models.PurchaseToken
}

// NewTokenStore creates an empty token store
func NewTokenStore() *TokenStore {
	return &TokenStore{
		tokens: make(map[string]models.PurchaseToken),
	}
}

// Issue inserts a live token
func (s *TokenStore) Issue(token models.PurchaseToken) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.tokens[token.Token]; exists {
		return ErrTokenExists
	}
	s.tokens[token.Token] = token
	return nil
}

// FindByToken looks up a live token
func (s *TokenStore) FindByToken(token string) (models.PurchaseToken, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	t, ok := s.tokens[token]
	return t, ok
}

// Revoke deletes a token, reporting whether it was live
func (s *TokenStore) Revoke(token string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.tokens[token]; !ok {
		return false
	}
	delete(s.tokens, token)
	return true
}

// Expired lists tokens whose expiry is before now
func (s *TokenStore) Expired(now time.Time) []models.PurchaseToken {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var out []models.PurchaseToken
	for _, t := range s.tokens {
		if t.Expired(now) {
			out = append(out, t)
		}
	}
	return out
}

// Len returns the number of live tokens
func (s *TokenStore) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.tokens)
}
