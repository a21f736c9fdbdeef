package ssi

import (
	"encoding/binary"
	"sync"
	"testing"

	test "github.com/advanderveer/go-test"
)

func u64b(v uint64) []byte {
	d := make([]byte, 8)
	binary.BigEndian.PutUint64(d, v)
	return d
}

func newTx(t *testing.T, db *DB) *Tx {
	tx, err := db.NewTx()
	test.Ok(t, err)
	return tx
}

func TestBasicTimestamping(t *testing.T) {
	db := NewDB()
	defer db.Close()
	tx := newTx(t, db)

	test.Equals(t, uint64(1), tx.data.TimeStart)
	test.Equals(t, uint64(0), tx.data.TimeCommit)

	test.Ok(t, tx.Commit())
	test.Equals(t, uint64(1), tx.data.TimeStart)
	test.Equals(t, uint64(0), tx.data.TimeCommit) //read-only transaction
}

func TestBasicDataStorage(t *testing.T) {
	db := NewDB()
	defer db.Close()
	tx := newTx(t, db)

	tx.Set([]byte("alex"), u64b(100))
	c, ok := tx.data.WriteRows[keyHash([]byte("alex"))]
	test.Equals(t, true, ok)
	test.Equals(t, []byte("alex"), c.K)
	test.Equals(t, u64b(100), c.V)

	test.Equals(t, []byte(nil), tx.Get([]byte("bob")))

	_, ok = tx.data.ReadRows[keyHash([]byte("alex"))]
	test.Equals(t, false, ok)

	_, ok = tx.data.ReadRows[keyHash([]byte("bob"))]
	test.Equals(t, true, ok)
	test.Equals(t, u64b(100), tx.Get([]byte("alex")))

	test.Ok(t, tx.Commit())
	test.Equals(t, uint64(2), tx.data.TimeCommit)

	tx2 := newTx(t, db)
	test.Equals(t, u64b(100), tx2.Get([]byte("alex")))
	test.Equals(t, []byte(nil), tx2.Get([]byte("bob")))
}

func TestSetCopiesValue(t *testing.T) {
	db := NewDB()
	defer db.Close()
	tx := newTx(t, db)

	v := u64b(1)
	tx.Set([]byte("a"), v)
	v[7] = 2
	test.Equals(t, u64b(1), tx.Get([]byte("a")))
}

func TestReadWriteConflict(t *testing.T) {
	db := NewDB()
	defer db.Close()
	tx1 := newTx(t, db)
	tx2 := newTx(t, db)

	tx1.Get([]byte("alex"))
	tx1.Set([]byte("bob"), u64b(1))

	tx2.Get([]byte("bob")) //read from other tx's write
	tx2.Set([]byte("alex"), u64b(1))

	test.Ok(t, tx1.Commit())
	test.Equals(t, ErrConflict, tx2.Commit())
}

func TestWalkPrefix(t *testing.T) {
	db := NewDB()
	defer db.Close()

	tx := newTx(t, db)
	tx.Set([]byte("a/2"), u64b(2))
	tx.Set([]byte("a/1"), u64b(1))
	tx.Set([]byte("b/1"), u64b(3))
	test.Ok(t, tx.Commit())

	var keys []string
	newTx(t, db).Walk([]byte("a/"), func(k, v []byte) bool {
		keys = append(keys, string(k))
		return true
	})

	test.Equals(t, []string{"a/1", "a/2"}, keys)

	keys = nil
	newTx(t, db).Walk([]byte("a/"), func(k, v []byte) bool {
		keys = append(keys, string(k))
		return false
	})

	test.Equals(t, []string{"a/1"}, keys)
}

func TestConcurrentIncrements(t *testing.T) {
	db := NewDB()
	defer db.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				tx, err := db.NewTx()
				if err != nil {
					return
				}

				var n uint64
				if v := tx.Get([]byte("n")); v != nil {
					n = binary.BigEndian.Uint64(v)
				}

				tx.Set([]byte("n"), u64b(n+1))
				if tx.Commit() != ErrConflict {
					return
				}
			}
		}()
	}

	wg.Wait()
	test.Equals(t, u64b(20), newTx(t, db).Get([]byte("n")))
}

func TestClosed(t *testing.T) {
	db := NewDB()
	tx := newTx(t, db)
	tx.Set([]byte("a"), u64b(1))

	test.Ok(t, db.Close())
	test.Ok(t, db.Close())

	_, err := db.NewTx()
	test.Equals(t, ErrClosed, err)
	test.Equals(t, ErrClosed, tx.Commit())
}
