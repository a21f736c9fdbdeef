package ssi

import (
	iradix "github.com/hashicorp/go-immutable-radix"
)

//TxData holds the transportable portion of the transaction
type TxData struct {
	TimeStart  uint64
	TimeCommit uint64
	ReadRows   KeySet
	WriteRows  KeyChangeSet
}

//Tx is a transaction on a point-in-time snapshot of the database
type Tx struct {
	db       *DB
	snapshot *iradix.Txn
	data     *TxData
}

//Set key 'k' to value 'v'
func (tx *Tx) Set(k, v []byte) {

	//we need to copy the data else changing the array outside
	//of the tx changes it in the snapshot
	kd := make([]byte, len(k))
	copy(kd, k)
	vd := make([]byte, len(v))
	copy(vd, v)

	tx.data.WriteRows.Add(kd, vd)
	tx.snapshot.Insert(kd, vd)
}

//Get the value 'v' at key 'k', nil if it doesn't exist
func (tx *Tx) Get(k []byte) (v []byte) {
	tx.data.ReadRows.Add(k)
	vraw, ok := tx.snapshot.Get(k)
	if !ok {
		return nil
	}

	//make sure to copy
	v = make([]byte, len(vraw.([]byte)))
	copy(v, vraw.([]byte))
	return
}

//Walk calls f for each key with the prefix in lexicographic order until it
//returns false. Walked keys are not tracked as reads, so a walk is only
//suitable for read-only transactions.
func (tx *Tx) Walk(prefix []byte, f func(k, v []byte) bool) {
	tx.snapshot.Root().WalkPrefix(prefix, func(k []byte, v interface{}) bool {
		return !f(k, v.([]byte))
	})
}

//Data returns the underlying data, suitable for transport
func (tx *Tx) Data() *TxData { return tx.data }

//Commit the transaction
func (tx *Tx) Commit() error {
	return tx.db.Commit(tx.data)
}
