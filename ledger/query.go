package ledger

// Query serves read-only views on the ledger. It never takes the ledger's
// apply lock: reads come from store snapshots and the history.
type Query struct {
	store Store
	hist  *History
}

// GetBalance returns the account's balance, zero for unknown accounts
func (q *Query) GetBalance(id PK) (amount uint64, err error) {
	acc, err := q.store.Get(id)
	if err != nil {
		return 0, err
	}

	return acc.Balance, nil
}

// GetLastSequence returns the last applied sequence, zero for unknown accounts
func (q *Query) GetLastSequence(id PK) (seq uint32, err error) {
	acc, err := q.store.Get(id)
	if err != nil {
		return 0, err
	}

	return acc.LastSequence, nil
}

// GetLatestTransactions returns the most recently applied transactions,
// oldest first
func (q *Query) GetLatestTransactions() []ProcessedTx {
	return q.hist.Latest()
}
