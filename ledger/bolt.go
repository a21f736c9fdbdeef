package ledger

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"
	"github.com/pkg/errors"
)

var (
	boltBucketAccounts = []byte{0x01}
	boltBucketMeta     = []byte{0x00}
)

// BoltStore is an account store implementation that uses the Bolt db. Bolt
// allows a single writer at a time which gives us the atomic apply for free.
type BoltStore struct {
	dir string
	bdb *bolt.DB
}

// NewBoltStore will initialize a bolt database, the directory must exist
func NewBoltStore(dir string) (s *BoltStore, err error) {
	s = &BoltStore{dir: dir}

	s.bdb, err = bolt.Open(filepath.Join(dir, "at2.bolt"), 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open or create database file")
	}

	if err = s.bdb.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucketAccounts)
		if err != nil {
			return err
		}

		_, err = tx.CreateBucketIfNotExists(boltBucketMeta)
		return err
	}); err != nil {
		s.bdb.Close()
		return nil, errors.Wrap(err, "failed to create buckets")
	}

	return
}

// TempBoltStore will create a temporary Bolt store, calling clean closes it
// and removes all its data. It panics on failure.
func TempBoltStore() (s *BoltStore, clean func()) {
	dir, err := ioutil.TempDir("", "at2_bolt_")
	if err != nil {
		panic("failed to create tempdir: " + err.Error())
	}

	s, err = NewBoltStore(dir)
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

func boltGet(tx *bolt.Tx, id PK) (acc Account, err error) {
	d := tx.Bucket(boltBucketAccounts).Get(id[:])
	if d == nil {
		return acc, nil
	}

	return decodeAccount(d)
}

// Get reads an account in a read-only transaction
func (s *BoltStore) Get(id PK) (acc Account, err error) {
	err = s.bdb.View(func(tx *bolt.Tx) error {
		acc, err = boltGet(tx, id)
		return err
	})

	return
}

// CompareAndApply performs the transfer in a single bolt update
func (s *BoltStore) CompareAndApply(sender, recipient PK, seq uint32, amount uint64) (err error) {
	var rejected error
	err = s.bdb.Update(func(tx *bolt.Tx) error {
		from, err := boltGet(tx, sender)
		if err != nil {
			return err
		}

		to, err := boltGet(tx, recipient)
		if err != nil {
			return err
		}

		from, to, rejected = transfer(from, to, sender == recipient, seq, amount)
		if rejected != nil {
			return nil
		}

		b := tx.Bucket(boltBucketAccounts)
		err = b.Put(sender[:], from.encode())
		if err != nil {
			return errors.Wrap(err, "failed to put sender account")
		}

		if sender == recipient {
			return nil
		}

		return errors.Wrap(b.Put(recipient[:], to.encode()), "failed to put recipient account")
	})

	if err != nil {
		return errors.Wrap(err, "failed to update accounts")
	}

	return rejected
}

// ForEach walks the account bucket in key order
func (s *BoltStore) ForEach(f func(id PK, acc Account) error) (err error) {
	return s.bdb.View(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucketAccounts).ForEach(func(k, v []byte) error {
			id, err := PKFromBytes(k)
			if err != nil {
				return err
			}

			acc, err := decodeAccount(v)
			if err != nil {
				return err
			}

			return f(id, acc)
		})
	})
}

// Genesis writes the allocations if the store holds no genesis yet
func (s *BoltStore) Genesis(allocs []Allocation) (err error) {
	h, err := genesisHash(allocs)
	if err != nil {
		return err
	}

	return s.bdb.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket(boltBucketMeta)
		if d := meta.Get(genesisKey); d != nil {
			if !bytes.Equal(d, h[:]) {
				return ErrGenesisMismatch
			}

			return nil
		}

		b := tx.Bucket(boltBucketAccounts)
		for _, a := range allocs {
			err := b.Put(a.Account[:], Account{Balance: a.Balance}.encode())
			if err != nil {
				return errors.Wrap(err, "failed to put genesis account")
			}
		}

		return errors.Wrap(meta.Put(genesisKey, h[:]), "failed to put genesis")
	})
}

// Close the database file
func (s *BoltStore) Close() error {
	return errors.Wrap(s.bdb.Close(), "failed to close")
}
