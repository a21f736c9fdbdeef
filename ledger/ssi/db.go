package ssi

import (
	"sync"

	iradix "github.com/hashicorp/go-immutable-radix"
)

//DB is an in-memory key-value database that provides serializable snapshot
//isolation. A single goroutine hands out snapshots and serializes commits.
type DB struct {
	txReqs     chan *txReq     //transaction starts
	commitReqs chan *commitReq //transaction commits
	closing    chan struct{}
	done       chan struct{}
	closeOnce  sync.Once

	oracle *Oracle
	store  *iradix.Tree
}

//NewDB sets up the database
func NewDB() (db *DB) {
	db = &DB{
		txReqs:     make(chan *txReq),
		commitReqs: make(chan *commitReq),
		closing:    make(chan struct{}),
		done:       make(chan struct{}),

		oracle: NewOracle(),
		store:  iradix.New(),
	}

	go func() {
		defer close(db.done)
		for {
			select {
			case <-db.closing:
				return
			case req := <-db.txReqs:
				req.tx <- &Tx{
					db:       db,
					snapshot: db.store.Txn(), //fetch a point-in-time copy
					data: &TxData{
						TimeStart: db.oracle.Curr(), //pick up a read time stamp
						ReadRows:  make(KeySet),
						WriteRows: make(KeyChangeSet),
					},
				}

			case req := <-db.commitReqs:

				//commit to the oracle for a timestamp
				tc := db.oracle.Commit(req.rr, req.rw.KeySet(), req.ts)
				if tc == 0 {
					req.tc <- tc //no commit time, must be a conflict
					break
				}

				//no conflict, write changes to a new version of the tree
				txn := db.store.Txn()
				for _, change := range req.rw {
					txn.Insert(change.K, change.V)
				}

				db.store = txn.Commit()
				req.tc <- tc
			}
		}
	}()

	return
}

//NewTx creates an new transaction
func (db *DB) NewTx() (tx *Tx, err error) {
	req := &txReq{tx: make(chan *Tx, 1)}
	select {
	case db.txReqs <- req:
	case <-db.closing:
		return nil, ErrClosed
	}

	return <-req.tx, nil
}

//Commit a transaction with just its data portion. Read-only transactions
//always succeed without receiving a commit time.
func (db *DB) Commit(txd *TxData) (err error) {
	if len(txd.WriteRows) < 1 {
		return nil //nothing to commit
	}

	req := &commitReq{
		tc: make(chan uint64, 1),
		rr: txd.ReadRows,
		rw: txd.WriteRows,
		ts: txd.TimeStart,
	}

	select {
	case db.commitReqs <- req:
	case <-db.closing:
		return ErrClosed
	}

	txd.TimeCommit = <-req.tc
	if txd.TimeCommit == 0 {
		return ErrConflict
	}

	return
}

//Close stops the database, transactions can no longer be started or committed
func (db *DB) Close() (err error) {
	db.closeOnce.Do(func() { close(db.closing) })
	<-db.done
	return nil
}

//txReq is send when a user requests a new transaction
type txReq struct {
	tx chan *Tx
}

//commitReq is send when a user wants to commit a transaction
type commitReq struct {
	rw KeyChangeSet
	rr KeySet

	ts uint64
	tc chan uint64
}
