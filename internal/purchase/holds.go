package purchase

import (
	"sync"

	"github.com/ashendes/purchase-ledger/internal/metrics"
	"github.com/shopspring/decimal"
)

type hold struct {
	userID string
	amount decimal.Decimal
}

// fundHolds tracks amounts reserved against open purchase tokens, keyed by transaction id
type fundHolds struct {
	mutex  sync.Mutex
	byTxn  map[string]hold
	byUser map[string]decimal.Decimal
	total  decimal.Decimal
}

func newFundHolds() *fundHolds {
	return &fundHolds{
		byTxn:  make(map[string]hold),
		byUser: make(map[string]decimal.Decimal),
	}
}

// Held returns the total amount currently held for a user
func (h *fundHolds) Held(userID string) decimal.Decimal {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.byUser[userID]
}

// Place reserves amount for a transaction
func (h *fundHolds) Place(transactionID, userID string, amount decimal.Decimal) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, exists := h.byTxn[transactionID]; exists {
		return
	}
	h.byTxn[transactionID] = hold{userID: userID, amount: amount}
	h.byUser[userID] = h.byUser[userID].Add(amount)
	h.total = h.total.Add(amount)
	metrics.HeldFunds.Set(h.total.InexactFloat64())
}

// Release frees the hold of a transaction; releasing twice is a no-op
func (h *fundHolds) Release(transactionID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	held, ok := h.byTxn[transactionID]
	if !ok {
		return
	}
	delete(h.byTxn, transactionID)

	remaining := h.byUser[held.userID].Sub(held.amount)
	if remaining.IsPositive() {
		h.byUser[held.userID] = remaining
	} else {
		delete(h.byUser, held.userID)
	}
	h.total = h.total.Sub(held.amount)
	metrics.HeldFunds.Set(h.total.InexactFloat64())
}

// HeldExcept returns the user's held total minus the hold of one transaction
func (h *fundHolds) HeldExcept(userID, transactionID string) decimal.Decimal {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	total := h.byUser[userID]
	if own, ok := h.byTxn[transactionID]; ok && own.userID == userID {
		total = total.Sub(own.amount)
	}
	return total
}
