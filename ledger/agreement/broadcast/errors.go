package broadcast

import "errors"

var (
	//ErrClosed is returned when writing to a closed broadcast
	ErrClosed = errors.New("closed broadcast")

	//ErrPeerUnreachable is returned by writes while a peer can't be written to,
	//the endpoint keeps trying to reconnect in the background
	ErrPeerUnreachable = errors.New("peer unreachable")

	//ErrNotPinnable is returned for node certificates that peers can't pin
	ErrNotPinnable = errors.New("certificate can't be pinned by peers")
)
