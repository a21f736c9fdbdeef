package ssi

import (
	"crypto/sha256"
)

//KH is the key hash, cryptographically secure
type KH [sha256.Size]byte

//Change represents a key write
type Change struct {
	K []byte
	V []byte
}

//KeyChangeSet is a set of transaction keys with their values
type KeyChangeSet map[KH]*Change

//KeySet returns just the set of keys without any values
func (kvs KeyChangeSet) KeySet() (ks KeySet) {
	ks = make(KeySet, len(kvs))
	for k := range kvs {
		ks[k] = struct{}{}
	}

	return
}

//Add a key to our set
func (kvs KeyChangeSet) Add(k, v []byte) {
	kvs[keyHash(k)] = &Change{K: k, V: v}
}

//KeySet is a set of transaction keys
type KeySet map[KH]struct{}

//Add a key to our set
func (ks KeySet) Add(k []byte) {
	ks[keyHash(k)] = struct{}{}
}

// keyHash collisions only make two keys share conflict tracking, which can
// cause extra conflicts but never missed ones.
func keyHash(k []byte) KH {
	return sha256.Sum256(k)
}
