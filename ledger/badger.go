package ledger

import (
	"bytes"
	"io/ioutil"
	"os"
	"sync"

	"github.com/dgraph-io/badger"
	"github.com/pkg/errors"
)

//BadgerStore is a durable account store on top of badger
type BadgerStore struct {
	db *badger.DB
	mu sync.Mutex
}

//NewBadgerStore opens or creates a badger powered store in 'dir'
func NewBadgerStore(dir string) (s *BadgerStore, err error) {
	s = &BadgerStore{}

	opts := badger.DefaultOptions
	opts.Dir = dir
	opts.ValueDir = dir
	opts.SyncWrites = true
	s.db, err = badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open badger db")
	}

	return
}

//TempBadgerStore will return a temporary store that will be fully cleaned up when
//the 'clean' func is called. It panics if any of the operations fails so this
//function is mostly used for testing purposes
func TempBadgerStore() (s *BadgerStore, clean func()) {
	dir, err := ioutil.TempDir("", "at2_badger_")
	if err != nil {
		panic("failed to create tempdir: " + err.Error())
	}

	s, err = NewBadgerStore(dir)
	if err != nil {
		panic("failed to create store: " + err.Error())
	}

	return s, func() {
		err = s.Close()
		if err != nil {
			panic("failed to close store: " + err.Error())
		}

		err = os.RemoveAll(dir)
		if err != nil {
			panic("failed to remove dir: " + err.Error())
		}
	}
}

func badgerGet(txn *badger.Txn, id PK) (acc Account, err error) {
	it, err := txn.Get(accountKey(id))
	if err == badger.ErrKeyNotFound {
		return acc, nil
	} else if err != nil {
		return acc, errors.Wrap(err, "failed to get account")
	}

	d, err := it.Value()
	if err != nil {
		return acc, errors.Wrap(err, "failed to read account data")
	}

	return decodeAccount(d)
}

//Get reads the account in a read-only transaction
func (s *BadgerStore) Get(id PK) (acc Account, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		acc, err = badgerGet(txn, id)
		return err
	})

	return
}

//CompareAndApply performs the transfer in a single badger transaction
func (s *BadgerStore) CompareAndApply(sender, recipient PK, seq uint32, amount uint64) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rejected error
	err = s.db.Update(func(txn *badger.Txn) error {
		from, err := badgerGet(txn, sender)
		if err != nil {
			return err
		}

		to, err := badgerGet(txn, recipient)
		if err != nil {
			return err
		}

		from, to, rejected = transfer(from, to, sender == recipient, seq, amount)
		if rejected != nil {
			return nil //nothing to write
		}

		err = txn.Set(accountKey(sender), from.encode())
		if err != nil {
			return errors.Wrap(err, "failed to set sender account")
		}

		if sender == recipient {
			return nil
		}

		err = txn.Set(accountKey(recipient), to.encode())
		if err != nil {
			return errors.Wrap(err, "failed to set recipient account")
		}

		return nil
	})

	if err != nil {
		return errors.Wrap(err, "failed to update accounts")
	}

	return rejected
}

//ForEach iterates over all accounts in key order
func (s *BadgerStore) ForEach(f func(id PK, acc Account) error) (err error) {
	return s.db.View(func(txn *badger.Txn) error {
		iter := txn.NewIterator(badger.DefaultIteratorOptions)
		defer iter.Close()

		for iter.Seek(accountPrefix); iter.Valid(); iter.Next() {
			item := iter.Item()
			key := item.Key()
			if !bytes.HasPrefix(key, accountPrefix) {
				break
			}

			id, err := PKFromBytes(key[len(accountPrefix):])
			if err != nil {
				return err
			}

			d, err := item.Value()
			if err != nil {
				return errors.Wrap(err, "failed to read account data")
			}

			acc, err := decodeAccount(d)
			if err != nil {
				return err
			}

			err = f(id, acc)
			if err != nil {
				return err
			}
		}

		return nil
	})
}

//Genesis writes the allocations if the store holds no genesis yet
func (s *BadgerStore) Genesis(allocs []Allocation) (err error) {
	h, err := genesisHash(allocs)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(txn *badger.Txn) error {
		it, err := txn.Get(genesisKey)
		if err == nil {
			d, err := it.Value()
			if err != nil {
				return errors.Wrap(err, "failed to read genesis")
			}

			if !bytes.Equal(d, h[:]) {
				return ErrGenesisMismatch
			}

			return nil
		} else if err != badger.ErrKeyNotFound {
			return errors.Wrap(err, "failed to get genesis")
		}

		for _, a := range allocs {
			err = txn.Set(accountKey(a.Account), Account{Balance: a.Balance}.encode())
			if err != nil {
				return errors.Wrap(err, "failed to set genesis account")
			}
		}

		return errors.Wrap(txn.Set(genesisKey, h[:]), "failed to set genesis")
	})
}

//Close the store, removing any open resources
func (s *BadgerStore) Close() (err error) {
	return s.db.Close()
}
