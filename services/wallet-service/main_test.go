package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ashendes/purchase-ledger/internal/catalog"
	"github.com/ashendes/purchase-ledger/internal/models"
	"github.com/ashendes/purchase-ledger/internal/purchase"
	"github.com/ashendes/purchase-ledger/internal/store"
	"github.com/ashendes/purchase-ledger/internal/wallet"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func newWalletServer(t *testing.T, seed string) (*httptest.Server, *WalletService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	balances, err := parseSeed(seed)
	if err != nil {
		t.Fatalf("parseSeed: %v", err)
	}
	ws := NewWalletService(balances)
	router := gin.New()
	ws.Register(router)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, ws
}

func newEngine(t *testing.T, baseURL string, usePaySession bool) *purchase.Engine {
	t.Helper()
	client := wallet.NewHTTPClient(wallet.ClientConfig{
		BaseURL:      baseURL,
		Timeout:      2 * time.Second,
		BulkheadSize: 4,
		Service:      "wallet-service-test",
	})
	deps := purchase.Dependencies{
		Catalog:      catalog.Default(),
		Transactions: store.NewTransactionLog(),
		Tokens:       store.NewTokenStore(),
		Balances:     client,
		Confirmer:    client,
		TopUps:       client,
		Debits:       client,
	}
	if usePaySession {
		deps.Sessions = client
	}
	engine, err := purchase.NewEngine(deps, purchase.Config{})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return engine
}

func TestPurchaseAgainstWalletService(t *testing.T) {
	srv, ws := newWalletServer(t, "alice=1000")
	engine := newEngine(t, srv.URL, true)
	ctx := context.Background()

	token, err := engine.GeneratePurchaseToken(ctx, "1", decimal.RequireFromString("99.99"), "alice")
	if err != nil {
		t.Fatalf("GeneratePurchaseToken() error = %v", err)
	}
	ws.mutex.RLock()
	_, open := ws.sessions[token.TransactionID]
	ws.mutex.RUnlock()
	if !open {
		t.Fatal("expected the wallet session id to become the transaction id")
	}

	req := models.ConfirmPaymentRequest{
		SessionID: token.TransactionID,
		Token:     token.Token,
		UserID:    "alice",
		Amount:    token.Amount,
	}
	res, err := engine.ProcessPayment(ctx, req)
	if err != nil {
		t.Fatalf("ProcessPayment() error = %v", err)
	}
	if !res.NewBalance.Equal(decimal.RequireFromString("900.01")) {
		t.Fatalf("NewBalance = %s, want 900.01", res.NewBalance)
	}

	balance, err := engine.GetBalance(ctx, "alice")
	if err != nil {
		t.Fatalf("GetBalance() error = %v", err)
	}
	if !balance.Equal(decimal.RequireFromString("900.01")) {
		t.Fatalf("wallet balance = %s, want 900.01", balance)
	}

	// the session is closed once debited, so a replay is refused by the wallet too
	if _, err := engine.ProcessPayment(ctx, req); !errors.Is(err, purchase.ErrInvalidOrExpiredToken) {
		t.Fatalf("replay error = %v, want ErrInvalidOrExpiredToken", err)
	}
}

func TestPurchaseWithLocallyGeneratedIdentifiers(t *testing.T) {
	srv, _ := newWalletServer(t, "erin=1000")
	engine := newEngine(t, srv.URL, false)
	ctx := context.Background()

	token, err := engine.GeneratePurchaseToken(ctx, "1", decimal.RequireFromString("99.99"), "erin")
	if err != nil {
		t.Fatalf("GeneratePurchaseToken() error = %v", err)
	}
	if !strings.HasPrefix(token.TransactionID, "TRX-") {
		t.Fatalf("expected a locally generated transaction id, got %q", token.TransactionID)
	}

	req := models.ConfirmPaymentRequest{
		SessionID: token.TransactionID,
		Token:     token.Token,
		UserID:    "erin",
		Amount:    token.Amount,
	}
	res, err := engine.ProcessPayment(ctx, req)
	if err != nil {
		t.Fatalf("ProcessPayment() error = %v", err)
	}
	if !res.NewBalance.Equal(decimal.RequireFromString("900.01")) {
		t.Fatalf("NewBalance = %s, want 900.01", res.NewBalance)
	}

	txns := engine.GetTransactions("erin")
	if len(txns) != 1 || txns[0].Status != models.TransactionStatusCompleted {
		t.Fatalf("unexpected transactions: %+v", txns)
	}

	// the debit settled the session, so the wallet refuses a replay as well
	if _, err := engine.ProcessPayment(ctx, req); !errors.Is(err, purchase.ErrInvalidOrExpiredToken) {
		t.Fatalf("replay error = %v, want ErrInvalidOrExpiredToken", err)
	}
}

func TestConfirmWithoutSessionNeedsWallet(t *testing.T) {
	srv, _ := newWalletServer(t, "")
	client := wallet.NewHTTPClient(wallet.ClientConfig{BaseURL: srv.URL, Timeout: 2 * time.Second})

	err := client.ConfirmPayment(context.Background(), models.ConfirmPaymentRequest{
		SessionID: "TRX-0000000000000000",
		Token:     "abc",
		UserID:    "ghost",
		Amount:    decimal.RequireFromString("10"),
	})
	if !errors.Is(err, wallet.ErrRejected) {
		t.Fatalf("error = %v, want ErrRejected", err)
	}
}

func TestForgedTokenIsRefused(t *testing.T) {
	srv, _ := newWalletServer(t, "bob=1000")
	engine := newEngine(t, srv.URL, true)
	ctx := context.Background()

	token, err := engine.GeneratePurchaseToken(ctx, "2", decimal.RequireFromString("49.99"), "bob")
	if err != nil {
		t.Fatalf("GeneratePurchaseToken() error = %v", err)
	}

	_, err = engine.ProcessPayment(ctx, models.ConfirmPaymentRequest{
		SessionID: token.TransactionID,
		Token:     "forged",
		UserID:    "bob",
		Amount:    token.Amount,
	})
	if !errors.Is(err, purchase.ErrInvalidOrExpiredToken) {
		t.Fatalf("error = %v, want ErrInvalidOrExpiredToken", err)
	}
}

func TestUnknownWalletIsRejected(t *testing.T) {
	srv, _ := newWalletServer(t, "")
	engine := newEngine(t, srv.URL, true)

	_, err := engine.GetBalance(context.Background(), "ghost")
	if !errors.Is(err, wallet.ErrRejected) {
		t.Fatalf("error = %v, want ErrRejected", err)
	}
}

func TestTopUpAndDebitIdempotency(t *testing.T) {
	srv, ws := newWalletServer(t, "")
	client := wallet.NewHTTPClient(wallet.ClientConfig{BaseURL: srv.URL, Timeout: 2 * time.Second})
	ctx := context.Background()

	res, err := client.AddToWallet(ctx, models.TopUpRequest{
		Name:     "Carol",
		Email:    "carol@example.com",
		Document: "1234567",
		Phone:    "5551234567",
		Amount:   decimal.RequireFromString("100"),
	})
	if err != nil {
		t.Fatalf("AddToWallet() error = %v", err)
	}
	if !res.Success || !res.Amount.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("unexpected top-up response: %+v", res)
	}

	for i := 0; i < 2; i++ {
		balance, err := client.Debit(ctx, "1234567", decimal.RequireFromString("30"), "TRX-1")
		if err != nil {
			t.Fatalf("Debit() #%d error = %v", i, err)
		}
		if !balance.Equal(decimal.RequireFromString("70")) {
			t.Fatalf("Debit() #%d balance = %s, want 70", i, balance)
		}
	}

	if _, err := client.Debit(ctx, "1234567", decimal.RequireFromString("500"), "TRX-2"); !errors.Is(err, wallet.ErrRejected) {
		t.Fatalf("overdraft error = %v, want ErrRejected", err)
	}
	ws.mutex.RLock()
	got := ws.wallets["1234567"]
	ws.mutex.RUnlock()
	if !got.Equal(decimal.RequireFromString("70")) {
		t.Fatalf("stored balance = %s, want 70", got)
	}
}

func TestChaosEndpoints(t *testing.T) {
	srv, ws := newWalletServer(t, "dave=10")

	resp, err := http.Post(srv.URL+"/chaos/wallet/enable", "application/json", nil)
	if err != nil {
		t.Fatalf("enable chaos: %v", err)
	}
	resp.Body.Close()
	if !ws.getChaosEnabled() {
		t.Fatal("expected chaos enabled")
	}

	resp, err = http.Post(srv.URL+"/chaos/wallet/disable", "application/json", nil)
	if err != nil {
		t.Fatalf("disable chaos: %v", err)
	}
	resp.Body.Close()
	if ws.getChaosEnabled() || ws.getSlowMode() {
		t.Fatal("expected chaos and slow mode disabled")
	}
}

func TestParseSeed(t *testing.T) {
	seed, err := parseSeed(" a=1.50, b=2 ,")
	if err != nil {
		t.Fatalf("parseSeed() error = %v", err)
	}
	if len(seed) != 2 || !seed["a"].Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("unexpected seed: %v", seed)
	}
	if _, err := parseSeed("broken"); err == nil {
		t.Fatal("expected error for malformed pair")
	}
}
