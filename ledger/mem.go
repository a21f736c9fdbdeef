package ledger

import (
	"bytes"
	"sync"

	"github.com/advanderveer/at2/ledger/ssi"
	"github.com/pkg/errors"
)

// MemStore keeps accounts in memory, on top of the snapshot isolated ssi
// database. Readers work on their own snapshot and never wait for writers.
type MemStore struct {
	db *ssi.DB
	mu sync.Mutex
}

// NewMemStore creates an empty in-memory store
func NewMemStore() *MemStore {
	return &MemStore{db: ssi.NewDB()}
}

func memGet(tx *ssi.Tx, id PK) (acc Account, err error) {
	d := tx.Get(accountKey(id))
	if d == nil {
		return acc, nil
	}

	return decodeAccount(d)
}

// Get reads the account from a fresh snapshot
func (s *MemStore) Get(id PK) (acc Account, err error) {
	tx, err := s.db.NewTx()
	if err != nil {
		return acc, errors.Wrap(err, "failed to start transaction")
	}

	return memGet(tx, id)
}

// CompareAndApply reads both accounts and writes them back in one commit. The
// oracle rejects the commit if any of the read accounts changed in between.
func (s *MemStore) CompareAndApply(sender, recipient PK, seq uint32, amount uint64) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.NewTx()
	if err != nil {
		return errors.Wrap(err, "failed to start transaction")
	}

	from, err := memGet(tx, sender)
	if err != nil {
		return err
	}

	to, err := memGet(tx, recipient)
	if err != nil {
		return err
	}

	from, to, err = transfer(from, to, sender == recipient, seq, amount)
	if err != nil {
		return err
	}

	tx.Set(accountKey(sender), from.encode())
	if sender != recipient {
		tx.Set(accountKey(recipient), to.encode())
	}

	err = tx.Commit()
	if err != nil {
		return errors.Wrap(err, "failed to commit transfer")
	}

	return nil
}

// ForEach walks a snapshot of all accounts in key order
func (s *MemStore) ForEach(f func(id PK, acc Account) error) (err error) {
	tx, err := s.db.NewTx()
	if err != nil {
		return errors.Wrap(err, "failed to start transaction")
	}

	tx.Walk(accountPrefix, func(k, v []byte) bool {
		var id PK
		id, err = PKFromBytes(k[len(accountPrefix):])
		if err != nil {
			return false
		}

		var acc Account
		acc, err = decodeAccount(v)
		if err != nil {
			return false
		}

		err = f(id, acc)
		return err == nil
	})

	return
}

// Genesis writes the allocations if no genesis was written before
func (s *MemStore) Genesis(allocs []Allocation) (err error) {
	h, err := genesisHash(allocs)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.NewTx()
	if err != nil {
		return errors.Wrap(err, "failed to start transaction")
	}

	if d := tx.Get(genesisKey); d != nil {
		if !bytes.Equal(d, h[:]) {
			return ErrGenesisMismatch
		}

		return nil
	}

	for _, a := range allocs {
		tx.Set(accountKey(a.Account), Account{Balance: a.Balance}.encode())
	}

	tx.Set(genesisKey, h[:])
	return errors.Wrap(tx.Commit(), "failed to commit genesis")
}

// Close stops the underlying database
func (s *MemStore) Close() error {
	return s.db.Close()
}
