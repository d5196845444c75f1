package store

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ashendes/purchase-ledger/internal/models"
	"github.com/shopspring/decimal"
)

func newTxn(id, user string, ts time.Time) models.Transaction {
	return models.Transaction{
		ID:        id,
		UserID:    user,
		ProductID: "1",
		Amount:    decimal.RequireFromString("99.99"),
		Status:    models.TransactionStatusPending,
		Timestamp: ts,
	}
}

func TestRecord_Get(t *testing.T) {
	l := NewTransactionLog()
	now := time.Now()

	if err := l.Record(newTxn("TRX-1", "u1", now)); err != nil {
		t.Fatalf("Record error: %v", err)
	}

	got, ok := l.Get("TRX-1")
	if !ok {
		t.Fatal("expected transaction to be visible immediately")
	}
	if got.Status != models.TransactionStatusPending {
		t.Fatalf("expected pending, got %s", got.Status)
	}

	err := l.Record(newTxn("TRX-1", "u1", now))
	if !errors.Is(err, ErrTransactionExists) {
		t.Fatalf("expected ErrTransactionExists on duplicate id, got %v", err)
	}
}

func TestMarkStatus_NotFound(t *testing.T) {
	l := NewTransactionLog()
	err := l.MarkStatus("missing", models.TransactionStatusFailed)
	if !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
}

func TestMarkStatus_TerminalStatusIsFinal(t *testing.T) {
	l := NewTransactionLog()
	_ = l.Record(newTxn("TRX-9", "u1", time.Now()))

	if err := l.MarkStatus("TRX-9", models.TransactionStatusCompleted); err != nil {
		t.Fatalf("MarkStatus() error = %v", err)
	}
	if err := l.MarkStatus("TRX-9", models.TransactionStatusCompleted); err != nil {
		t.Fatalf("repeating the same status should succeed, got %v", err)
	}
	err := l.MarkStatus("TRX-9", models.TransactionStatusFailed)
	if !errors.Is(err, ErrStatusMismatch) {
		t.Fatalf("expected ErrStatusMismatch, got %v", err)
	}
	if txn, _ := l.Get("TRX-9"); txn.Status != models.TransactionStatusCompleted {
		t.Fatalf("status = %q, want completed", txn.Status)
	}
}

func TestTransition_SuccessAndMismatch(t *testing.T) {
	l := NewTransactionLog()
	_ = l.Record(newTxn("TRX-2", "u1", time.Now()))

	// success: pending -> completed
	if err := l.Transition("TRX-2", models.TransactionStatusPending, models.TransactionStatusCompleted); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	// failure: pending -> failed (but current is completed)
	err := l.Transition("TRX-2", models.TransactionStatusPending, models.TransactionStatusFailed)
	if !errors.Is(err, ErrStatusMismatch) {
		t.Fatalf("expected ErrStatusMismatch, got %v", err)
	}

	got, _ := l.Get("TRX-2")
	if got.Status != models.TransactionStatusCompleted {
		t.Fatalf("terminal status changed to %s", got.Status)
	}
}

func TestListByUser_FiltersAndSortsNewestFirst(t *testing.T) {
	l := NewTransactionLog()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	_ = l.Record(newTxn("a", "u1", base))
	_ = l.Record(newTxn("b", "u2", base.Add(time.Minute)))
	_ = l.Record(newTxn("c", "u1", base.Add(2*time.Minute)))
	_ = l.Record(newTxn("d", "u1", base.Add(2*time.Minute)))

	got := l.ListByUser("u1")
	want := []string{"d", "c", "a"}
	if len(got) != len(want) {
		t.Fatalf("expected %d transactions, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], got[i].ID)
		}
		if got[i].UserID != "u1" {
			t.Fatalf("foreign transaction %s in result", got[i].ID)
		}
	}

	if len(l.ListByUser("nobody")) != 0 {
		t.Fatal("expected empty result for unknown user")
	}
}

func TestListByUser_ReturnsSnapshot(t *testing.T) {
	l := NewTransactionLog()
	_ = l.Record(newTxn("s1", "u1", time.Now()))

	snap := l.ListByUser("u1")
	_ = l.MarkStatus("s1", models.TransactionStatusFailed)
	_ = l.Record(newTxn("s2", "u1", time.Now()))

	if snap[0].Status != models.TransactionStatusPending || len(snap) != 1 {
		t.Fatal("snapshot was mutated by later log changes")
	}
	if len(l.ListByUser("u1")) != 2 {
		t.Fatal("expected new query to reflect current log")
	}
}

func TestTokenStore_IssueFindRevoke(t *testing.T) {
	s := NewTokenStore()
	tok := models.PurchaseToken{
		Token:         "abc",
		ProductID:     "1",
		Amount:        decimal.RequireFromString("99.99"),
		ExpiresAt:     time.Now().Add(5 * time.Minute),
		TransactionID: "TRX-1",
	}

	if err := s.Issue(tok); err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if err := s.Issue(tok); !errors.Is(err, ErrTokenExists) {
		t.Fatalf("expected ErrTokenExists, got %v", err)
	}

	got, ok := s.FindByToken("abc")
	if !ok || got.TransactionID != "TRX-1" {
		t.Fatalf("unexpected lookup result: %+v ok=%v", got, ok)
	}

	if !s.Revoke("abc") {
		t.Fatal("expected first revoke to remove the token")
	}
	if s.Revoke("abc") {
		t.Fatal("expected second revoke to be a no-op")
	}
	if _, ok := s.FindByToken("abc"); ok {
		t.Fatal("revoked token still live")
	}
}

func TestTokenStore_Expired(t *testing.T) {
	s := NewTokenStore()
	now := time.Now()
	_ = s.Issue(models.PurchaseToken{Token: "old", ExpiresAt: now.Add(-time.Second)})
	_ = s.Issue(models.PurchaseToken{Token: "edge", ExpiresAt: now})
	_ = s.Issue(models.PurchaseToken{Token: "new", ExpiresAt: now.Add(time.Minute)})

	expired := s.Expired(now)
	if len(expired) != 1 || expired[0].Token != "old" {
		t.Fatalf("expected only 'old' to be expired, got %+v", expired)
	}
	if s.Len() != 3 {
		t.Fatalf("Expired must not remove tokens, len=%d", s.Len())
	}
}

func TestConcurrentRecords_NoDataRace(t *testing.T) {
	l := NewTransactionLog()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = l.Record(newTxn(fmt.Sprintf("TRX-%d", n), "u1", time.Now()))
			l.ListByUser("u1")
		}(i)
	}
	wg.Wait()

	if l.Len() != 50 {
		t.Fatalf("expected 50 transactions, got %d", l.Len())
	}
}
