package ledger

import (
	"time"

	"github.com/algorand/go-deadlock"
)

// ProcessedTx records a claim that was applied to the ledger
type ProcessedTx struct {
	Timestamp time.Time
	Sender    PK
	Recipient PK
	Amount    uint64
}

// History is a fixed capacity ring of the most recently processed
// transactions, the oldest entry is evicted when it is full.
type History struct {
	mu   deadlock.RWMutex
	txs  []ProcessedTx
	next int
	full bool
}

// NewHistory creates a history that keeps at most n transactions
func NewHistory(n int) *History {
	if n < 1 {
		n = 1
	}

	return &History{txs: make([]ProcessedTx, n)}
}

// Append a transaction, evicting the oldest one when at capacity
func (h *History) Append(tx ProcessedTx) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.txs[h.next] = tx
	h.next = (h.next + 1) % len(h.txs)
	if h.next == 0 {
		h.full = true
	}
}

// Len returns the number of transactions currently kept
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.full {
		return len(h.txs)
	}

	return h.next
}

// Latest returns a copy of the kept transactions in the order they were
// appended: oldest first, most recent last.
func (h *History) Latest() (txs []ProcessedTx) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.full {
		return append(txs, h.txs[:h.next]...)
	}

	txs = make([]ProcessedTx, 0, len(h.txs))
	txs = append(txs, h.txs[h.next:]...)
	return append(txs, h.txs[:h.next]...)
}
