package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ashendes/purchase-ledger/internal/models"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrTransactionExists   = errors.New("transaction already recorded")
	// ErrStatusMismatch is returned by Transition when the current status is not the expected one
	ErrStatusMismatch = errors.New("status mismatch")
)

// TransactionRepository is the transaction log used by the purchase engine
type TransactionRepository interface {
	Record(txn models.Transaction) error
	Get(id string) (models.Transaction, bool)
	MarkStatus(id, status string) error
	Transition(id, expected, next string) error
	ListByUser(userID string) []models.Transaction
}

type txnEntry struct {
	txn models.Transaction
	seq int
}

// TransactionLog is an append-only, in-memory transaction log.
// Only the status of a recorded transaction can change.
type TransactionLog struct {
	mutex  sync.RWMutex
	byID   map[string]*txnEntry
	byUser map[string][]*txnEntry
	seq    int
}

// NewTransactionLog creates an empty log
func NewTransactionLog() *TransactionLog {
	return &TransactionLog{
		byID:   make(map[string]*txnEntry),
		byUser: make(map[string][]*txnEntry),
	}
}

// Record appends a transaction
func (l *TransactionLog) Record(txn models.Transaction) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if _, exists := l.byID[txn.ID]; exists {
		return fmt.Errorf("%w: %s", ErrTransactionExists, txn.ID)
	}
	l.seq++
	e := &txnEntry{txn: txn, seq: l.seq}
	l.byID[txn.ID] = e
	l.byUser[txn.UserID] = append(l.byUser[txn.UserID], e)
	return nil
}

// Get returns a copy of the transaction with the given id
func (l *TransactionLog) Get(id string) (models.Transaction, bool) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	e, ok := l.byID[id]
	if !ok {
		return models.Transaction{}, false
	}
	return e.txn, true
}

// MarkStatus sets the status of a transaction. A completed or failed
// transaction keeps its status.
func (l *TransactionLog) MarkStatus(id, status string) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	e, ok := l.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTransactionNotFound, id)
	}
	if models.IsTerminal(e.txn.Status) && e.txn.Status != status {
		return fmt.Errorf("%w: %s is already %s", ErrStatusMismatch, id, e.txn.Status)
	}
	e.txn.Status = status
	return nil
}

// Transition moves a transaction from expected to next, failing with
// ErrStatusMismatch if it is in any other state.
func (l *TransactionLog) Transition(id, expected, next string) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	e, ok := l.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTransactionNotFound, id)
	}
	if e.txn.Status != expected {
		return fmt.Errorf("%w: %s is %s, expected %s", ErrStatusMismatch, id, e.txn.Status, expected)
	}
	e.txn.Status = next
	return nil
}

// ListByUser returns a snapshot of the user's transactions, newest first.
// Transactions with equal timestamps are ordered by recording order, latest first.
func (l *TransactionLog) ListByUser(userID string) []models.Transaction {
	l.mutex.RLock()
	entries := make([]txnEntry, 0, len(l.byUser[userID]))
	for _, e := range l.byUser[userID] {
		entries = append(entries, *e)
	}
	l.mutex.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].txn.Timestamp.Equal(entries[j].txn.Timestamp) {
			return entries[i].txn.Timestamp.After(entries[j].txn.Timestamp)
		}
		return entries[i].seq > entries[j].seq
	})

	out := make([]models.Transaction, len(entries))
	for i, e := range entries {
		out[i] = e.txn
	}
	return out
}

// Len returns the number of recorded transactions
func (l *TransactionLog) Len() int {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return len(l.byID)
}
