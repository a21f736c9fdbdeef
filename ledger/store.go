package ledger

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// Store holds the account state of the ledger. Implementations are safe for
// concurrent use and every read observes a consistent snapshot.
type Store interface {

	// Get the account state, unknown accounts return the zero account
	Get(id PK) (acc Account, err error)

	// CompareAndApply atomically checks that the sender's last sequence equals
	// 'seq' and that it holds at least 'amount', then debits the sender, credits
	// the recipient and moves the sender's sequence to seq+1. It returns
	// ErrStaleSequence, ErrInsufficientBalance or ErrBalanceOverflow when the
	// transfer is rejected, any other error is a storage failure.
	CompareAndApply(sender, recipient PK, seq uint32, amount uint64) (err error)

	// ForEach calls f for every known account, in key order
	ForEach(f func(id PK, acc Account) error) (err error)

	// Genesis credits the allocations if the store is empty. When the store
	// was initialized before, the allocations must match the ones it was
	// initialized with.
	Genesis(allocs []Allocation) (err error)

	// Close the store, removing any open resources
	Close() (err error)
}

// Allocation credits an account in the genesis state
type Allocation struct {
	Account PK
	Balance uint64
}

// genesisHash identifies a set of allocations. Order matters: replicas are
// expected to be configured from the same file.
func genesisHash(allocs []Allocation) (h [sha256.Size]byte, err error) {
	seen := make(map[PK]struct{}, len(allocs))
	buf := make([]byte, 0, len(allocs)*(len(PK{})+8))

	var total uint64
	for _, a := range allocs {
		if _, ok := seen[a.Account]; ok {
			return h, ErrGenesisDuplicate
		}

		seen[a.Account] = struct{}{}
		if total > math.MaxUint64-a.Balance {
			return h, ErrBalanceOverflow
		}

		total += a.Balance
		buf = append(buf, a.Account[:]...)
		buf = binary.BigEndian.AppendUint64(buf, a.Balance)
	}

	return sha256.Sum256(buf), nil
}
