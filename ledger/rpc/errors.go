package rpc

import "errors"

var (
	//ErrMalformedRequest is returned when a request can't be decoded
	ErrMalformedRequest = errors.New("malformed request")

	//ErrUnavailable is returned by the client when the node can't disseminate
	//claims
	ErrUnavailable = errors.New("node is unavailable")
)
