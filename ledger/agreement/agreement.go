// Package agreement connects the ledger to a reliable broadcast. Claims that
// are submitted are written to the broadcast, every claim the broadcast
// delivers is handed to the ledger exactly once per delivery.
//
// The broadcast is assumed to deliver every written claim at least once to
// every replica, the writer included. It is not assumed to preserve the order
// in which one sender's claims were written: a claim that is delivered before
// its predecessor is dropped by the ledger and has to be submitted again by
// its client once the predecessor applied.
package agreement

import (
	"github.com/advanderveer/at2/ledger"
)

//Msg transports a claim over the broadcast network
type Msg struct {
	Claim *ledger.Claim
}

//Broadcast provides reliable message dissemination. Read blocks until a
//message is delivered and returns io.EOF once the broadcast is closed.
type Broadcast interface {
	Read(msg *Msg) (err error)
	Write(msg *Msg) (err error)
	Close() (err error)
}
