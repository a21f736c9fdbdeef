package node

import "errors"

var (
	//ErrNoNetwork is returned when a network transport is configured without
	//any other nodes to broadcast to
	ErrNoNetwork = errors.New("no other nodes configured for a network transport")

	//ErrUnknownTransport is returned for a transport that isn't supported
	ErrUnknownTransport = errors.New("unknown transport, expected one of: tcp, h2, memory")

	//ErrUnknownStorage is returned for a storage engine that isn't supported
	ErrUnknownStorage = errors.New("unknown storage, expected one of: badger, bolt, memory")

	//ErrNoDataDir is returned when a durable storage has nowhere to write
	ErrNoDataDir = errors.New("durable storage requires a data directory")

	//ErrNoAddress is returned when the node or rpc address is missing
	ErrNoAddress = errors.New("node and rpc address are required")

	//ErrInvalidHistorySize is returned when the history would keep nothing
	ErrInvalidHistorySize = errors.New("history size must be at least 1")
)
