package ssi

import "errors"

var (
	//ErrConflict is returned when a commit read keys that were written by a
	//transaction that committed after it started
	ErrConflict = errors.New("transaction conflicts with a concurrent commit")

	//ErrClosed is returned when the database was closed
	ErrClosed = errors.New("database is closed")
)
