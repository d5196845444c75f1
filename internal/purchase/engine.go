// Package purchase implements the two-phase purchase-token protocol: a token is
// generated against a pending transaction, then confirmed exactly once to debit
// the wallet and complete the transaction.
package purchase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ashendes/purchase-ledger/internal/catalog"
	"github.com/ashendes/purchase-ledger/internal/metrics"
	"github.com/ashendes/purchase-ledger/internal/models"
	"github.com/ashendes/purchase-ledger/internal/store"
	"github.com/ashendes/purchase-ledger/internal/wallet"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// DefaultTokenTTL is how long a purchase token stays redeemable
const DefaultTokenTTL = 5 * time.Minute

// ErrTopUpUnsupported is returned by AddBalance when no top-up backend is wired
var ErrTopUpUnsupported = errors.New("wallet top-up is not available")

// ErrMissingDependency is returned by NewEngine when a required collaborator is nil
var ErrMissingDependency = errors.New("missing engine dependency")

// Dependencies groups the collaborators of the Engine.
// Catalog, Transactions, Tokens, Balances and Confirmer are required;
// Sessions, TopUps, Debits and IDs are optional.
type Dependencies struct {
	Catalog      catalog.Reader
	Transactions store.TransactionRepository
	Tokens       store.TokenRepository
	Balances     wallet.BalanceOracle
	Confirmer    wallet.PaymentConfirmer
	Sessions     wallet.SessionOracle
	TopUps       wallet.TopUpper
	Debits       wallet.Debiter
	IDs          IDGenerator
}

// Config tunes the protocol
type Config struct {
	TokenTTL time.Duration
	// HoldFunds reserves the token amount against the balance until the token is settled
	HoldFunds bool
}

// Engine runs the purchase protocol. Each Engine owns its stores.
type Engine struct {
	deps  Dependencies
	cfg   Config
	locks *keyedMutex
	holds *fundHolds
	now   func() time.Time
}

// NewEngine wires an Engine
func NewEngine(deps Dependencies, cfg Config) (*Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if deps.IDs == nil {
		deps.IDs = RandomGenerator{}
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	return &Engine{
		deps:  deps,
		cfg:   cfg,
		locks: newKeyedMutex(),
		holds: newFundHolds(),
		now:   time.Now,
	}, nil
}

func (d Dependencies) validate() error {
	required := []struct {
		name    string
		missing bool
	}{
		{"Catalog", d.Catalog == nil},
		{"Transactions", d.Transactions == nil},
		{"Tokens", d.Tokens == nil},
		{"Balances", d.Balances == nil},
		{"Confirmer", d.Confirmer == nil},
	}
	for _, r := range required {
		if r.missing {
			return fmt.Errorf("%w: %s", ErrMissingDependency, r.name)
		}
	}
	return nil
}

// GeneratePurchaseToken validates a purchase request and issues a token bound
// to a new pending transaction. Checks run in order and the first failure wins:
// balance, product existence, exact price match.
func (e *Engine) GeneratePurchaseToken(ctx context.Context, productID string, amount decimal.Decimal, userID string) (models.PurchaseToken, error) {
	unlock := e.locks.Lock("user:" + userID)
	defer unlock()

	logger := log.WithFields(log.Fields{
		"user_id":    userID,
		"product_id": productID,
		"amount":     amount.String(),
	})

	balance, err := e.deps.Balances.Balance(ctx, userID)
	if err != nil {
		metrics.TokenRequestsRejected.WithLabelValues("balance_lookup").Inc()
		return models.PurchaseToken{}, fmt.Errorf("resolve balance: %w", err)
	}
	available := balance
	if e.cfg.HoldFunds {
		available = balance.Sub(e.holds.Held(userID))
	}
	if available.LessThan(amount) {
		metrics.TokenRequestsRejected.WithLabelValues("insufficient_funds").Inc()
		logger.WithField("available", available.String()).Info("Token request rejected: insufficient funds")
		return models.PurchaseToken{}, ErrInsufficientFunds
	}

	product, ok := e.deps.Catalog.FindByID(productID)
	if !ok {
		metrics.TokenRequestsRejected.WithLabelValues("product_not_found").Inc()
		return models.PurchaseToken{}, ErrProductNotFound
	}
	if !product.Price.Equal(amount) {
		metrics.TokenRequestsRejected.WithLabelValues("invalid_amount").Inc()
		return models.PurchaseToken{}, ErrInvalidAmount
	}

	transactionID, tokenValue, err := e.openSession(ctx, userID, amount)
	if err != nil {
		metrics.TokenRequestsRejected.WithLabelValues("session").Inc()
		return models.PurchaseToken{}, err
	}

	now := e.now()
	txn := models.Transaction{
		ID:        transactionID,
		UserID:    userID,
		ProductID: productID,
		Amount:    amount,
		Status:    models.TransactionStatusPending,
		Timestamp: now,
	}
	token := models.PurchaseToken{
		Token:         tokenValue,
		ProductID:     productID,
		Amount:        amount,
		ExpiresAt:     now.Add(e.cfg.TokenTTL),
		TransactionID: transactionID,
	}

	if err := e.deps.Transactions.Record(txn); err != nil {
		return models.PurchaseToken{}, fmt.Errorf("record transaction: %w", err)
	}
	if err := e.deps.Tokens.Issue(token); err != nil {
		e.markFailed(transactionID)
		return models.PurchaseToken{}, fmt.Errorf("issue token: %w", err)
	}
	if e.cfg.HoldFunds {
		e.holds.Place(transactionID, userID, amount)
	}

	metrics.TokensIssuedTotal.Inc()
	metrics.LiveTokens.Set(float64(e.deps.Tokens.Len()))
	logger.WithFields(log.Fields{
		"transaction_id": transactionID,
		"expires_at":     token.ExpiresAt.Format(time.RFC3339),
	}).Info("Purchase token issued")

	return token, nil
}

// openSession asks the wallet for session identifiers and fills any blanks locally
func (e *Engine) openSession(ctx context.Context, userID string, amount decimal.Decimal) (string, string, error) {
	var session models.PayResponse
	if e.deps.Sessions != nil {
		var err error
		session, err = e.deps.Sessions.Pay(ctx, userID, amount)
		if err != nil {
			return "", "", fmt.Errorf("open payment session: %w", err)
		}
	}

	transactionID := session.SessionID
	if transactionID == "" {
		id, err := e.deps.IDs.NewTransactionID()
		if err != nil {
			return "", "", fmt.Errorf("generate transaction id: %w", err)
		}
		transactionID = id
	}

	tokenValue := session.Token
	if tokenValue == "" {
		tok, err := e.deps.IDs.NewToken()
		if err != nil {
			return "", "", fmt.Errorf("generate token: %w", err)
		}
		tokenValue = tok
	}
	return transactionID, tokenValue, nil
}

// ProcessPayment confirms a purchase token. A token is accepted at most once;
// every failure after the token is found leaves its transaction failed and the
// token revoked.
func (e *Engine) ProcessPayment(ctx context.Context, req models.ConfirmPaymentRequest) (models.ProcessPaymentResponse, error) {
	unlock := e.locks.Lock("token:" + req.Token)
	defer unlock()

	logger := log.WithFields(log.Fields{
		"user_id":    req.UserID,
		"session_id": req.SessionID,
	})

	if err := e.deps.Confirmer.ConfirmPayment(ctx, req); err != nil {
		metrics.PaymentsTotal.WithLabelValues("rejected").Inc()
		logger.WithField("error", err.Error()).Warn("Payment confirmation refused by wallet")
		return models.ProcessPaymentResponse{}, fmt.Errorf("%w: %w", ErrInvalidOrExpiredToken, err)
	}

	token, ok := e.deps.Tokens.FindByToken(req.Token)
	if !ok {
		metrics.PaymentsTotal.WithLabelValues("unknown_token").Inc()
		return models.ProcessPaymentResponse{}, ErrInvalidOrExpiredToken
	}
	logger = logger.WithField("transaction_id", token.TransactionID)

	txn, ok := e.deps.Transactions.Get(token.TransactionID)
	if !ok || txn.Status != models.TransactionStatusPending {
		// a live token must point at a pending transaction; drop the orphan
		e.deps.Tokens.Revoke(token.Token)
		e.holds.Release(token.TransactionID)
		metrics.PaymentsTotal.WithLabelValues("unknown_token").Inc()
		return models.ProcessPaymentResponse{}, ErrInvalidOrExpiredToken
	}

	// the payload must describe this token's purchase; a mismatch leaves the
	// owner's transaction untouched
	if req.SessionID != token.TransactionID || req.UserID != txn.UserID || !req.Amount.Equal(token.Amount) {
		metrics.PaymentsTotal.WithLabelValues("payload_mismatch").Inc()
		logger.Warn("Payment payload does not match its token")
		return models.ProcessPaymentResponse{}, ErrInvalidOrExpiredToken
	}

	if token.Expired(e.now()) {
		e.expire(token, "confirmation")
		metrics.PaymentsTotal.WithLabelValues("expired").Inc()
		return models.ProcessPaymentResponse{}, ErrTokenExpired
	}

	newBalance, err := e.settle(ctx, token, txn)
	if err != nil {
		e.markFailed(txn.ID)
		e.deps.Tokens.Revoke(token.Token)
		e.holds.Release(txn.ID)
		metrics.LiveTokens.Set(float64(e.deps.Tokens.Len()))
		metrics.PaymentsTotal.WithLabelValues(models.TransactionStatusFailed).Inc()
		logger.WithField("error", err.Error()).Warn("Payment failed")
		return models.ProcessPaymentResponse{}, err
	}

	metrics.PaymentsTotal.WithLabelValues(models.TransactionStatusCompleted).Inc()
	metrics.PaymentAmount.Observe(token.Amount.InexactFloat64())
	logger.WithFields(log.Fields{
		"amount":      token.Amount.String(),
		"new_balance": newBalance.String(),
	}).Info("Payment processed successfully")

	return models.ProcessPaymentResponse{
		Success:       true,
		NewBalance:    newBalance,
		TransactionID: token.TransactionID,
		Message:       "Payment processed successfully",
	}, nil
}

// settle re-checks the balance, debits and completes the transaction.
// Revoking the token is the last step, so a returned error always leaves it live.
func (e *Engine) settle(ctx context.Context, token models.PurchaseToken, txn models.Transaction) (decimal.Decimal, error) {
	balance, err := e.deps.Balances.Balance(ctx, txn.UserID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("resolve balance: %w", err)
	}

	available := balance
	if e.cfg.HoldFunds {
		// this transaction's own hold is what is being spent
		available = balance.Sub(e.holds.HeldExcept(txn.UserID, txn.ID))
	}
	if available.LessThan(token.Amount) {
		return decimal.Zero, ErrInsufficientFunds
	}

	newBalance := balance.Sub(token.Amount)
	if e.deps.Debits != nil {
		newBalance, err = e.deps.Debits.Debit(ctx, txn.UserID, token.Amount, txn.ID)
		if err != nil {
			return decimal.Zero, fmt.Errorf("debit wallet: %w", err)
		}
	}

	if err := e.deps.Transactions.Transition(txn.ID, models.TransactionStatusPending, models.TransactionStatusCompleted); err != nil {
		return decimal.Zero, fmt.Errorf("complete transaction: %w", err)
	}

	e.deps.Tokens.Revoke(token.Token)
	e.holds.Release(txn.ID)
	metrics.LiveTokens.Set(float64(e.deps.Tokens.Len()))
	return newBalance, nil
}

// expire invalidates an expired token and fails its transaction
func (e *Engine) expire(token models.PurchaseToken, detectedBy string) {
	e.deps.Tokens.Revoke(token.Token)
	e.markFailed(token.TransactionID)
	e.holds.Release(token.TransactionID)

	metrics.TokensExpiredTotal.WithLabelValues(detectedBy).Inc()
	metrics.LiveTokens.Set(float64(e.deps.Tokens.Len()))
	log.WithFields(log.Fields{
		"transaction_id": token.TransactionID,
		"expired_at":     token.ExpiresAt.Format(time.RFC3339),
		"detected_by":    detectedBy,
	}).Info("Purchase token expired")
}

func (e *Engine) markFailed(transactionID string) {
	err := e.deps.Transactions.Transition(transactionID, models.TransactionStatusPending, models.TransactionStatusFailed)
	if err != nil {
		log.WithFields(log.Fields{
			"transaction_id": transactionID,
			"error":          err.Error(),
		}).Warn("Could not mark transaction failed")
	}
}

// ExpireStale revokes every token past its expiry and fails its transaction.
// It returns the number of tokens expired.
func (e *Engine) ExpireStale(ctx context.Context) int {
	expired := 0
	for _, candidate := range e.deps.Tokens.Expired(e.now()) {
		if ctx.Err() != nil {
			break
		}
		unlock := e.locks.Lock("token:" + candidate.Token)
		// a concurrent confirmation may have settled it meanwhile
		if token, ok := e.deps.Tokens.FindByToken(candidate.Token); ok && token.Expired(e.now()) {
			e.expire(token, "sweeper")
			expired++
		}
		unlock()
	}
	return expired
}

// GetTransactions returns the user's transactions, newest first
func (e *Engine) GetTransactions(userID string) []models.Transaction {
	return e.deps.Transactions.ListByUser(userID)
}

// GetBalance returns the user's current wallet balance
func (e *Engine) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	balance, err := e.deps.Balances.Balance(ctx, userID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("resolve balance: %w", err)
	}
	return balance, nil
}

// AddBalance tops up a wallet out of band
func (e *Engine) AddBalance(ctx context.Context, req models.TopUpRequest) (models.TopUpResponse, error) {
	if e.deps.TopUps == nil {
		return models.TopUpResponse{}, ErrTopUpUnsupported
	}
	res, err := e.deps.TopUps.AddToWallet(ctx, req)
	if err != nil {
		return models.TopUpResponse{}, fmt.Errorf("top up wallet: %w", err)
	}
	log.WithFields(log.Fields{
		"email":  req.Email,
		"amount": req.Amount.String(),
	}).Info("Wallet topped up")
	return res, nil
}

// Products lists the catalog
func (e *Engine) Products() []models.Product {
	return e.deps.Catalog.List()
}

// Product looks up one catalog entry
func (e *Engine) Product(id string) (models.Product, bool) {
	return e.deps.Catalog.FindByID(id)
}

// Held returns the amount currently reserved for a user
func (e *Engine) Held(userID string) decimal.Decimal {
	return e.holds.Held(userID)
}
