package agreement

import (
	"context"
	"io"
	"sync"

	"github.com/advanderveer/at2/ledger"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

//Deliverer receives claims as the broadcast delivers them
type Deliverer interface {
	OnDelivered(c *ledger.Claim) (o ledger.Outcome, err error)
}

// Adapter submits claims to the broadcast and feeds its deliveries into the
// ledger. It never reorders or buffers deliveries.
type Adapter struct {
	bc   Broadcast
	l    Deliverer
	logs logrus.FieldLogger

	mu   sync.RWMutex
	err  error
	done chan struct{}
}

// New starts an adapter that reads from the broadcast until it is closed or
// fails
func New(logs logrus.FieldLogger, bc Broadcast, l Deliverer) (a *Adapter) {
	a = &Adapter{
		bc:   bc,
		l:    l,
		logs: logs.WithField("component", "agreement"),
		done: make(chan struct{}),
	}

	go a.deliver()
	return
}

func (a *Adapter) deliver() {
	defer close(a.done)
	for {
		msg := &Msg{}
		err := a.bc.Read(msg)
		if err == io.EOF {
			a.logs.Info("broadcast closed, stopped delivering claims")
			a.fail(ErrUnavailable)
			return
		} else if err != nil {
			a.logs.WithError(err).Error("failed to read from broadcast")
			a.fail(errors.Wrap(err, "failed to read from broadcast"))
			return
		}

		if msg.Claim == nil {
			a.logs.Debug("dropping message without claim")
			continue
		}

		_, err = a.l.OnDelivered(msg.Claim)
		if err != nil {
			a.logs.WithError(err).Error("ledger failed to handle delivered claim")
			a.fail(errors.Wrap(err, "failed to handle delivered claim"))
			return
		}
	}
}

func (a *Adapter) fail(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err == nil {
		a.err = err
	}
}

// Err returns why the adapter stopped delivering, nil while it is running
func (a *Adapter) Err() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.err
}

// Done is closed when the adapter stopped delivering claims
func (a *Adapter) Done() <-chan struct{} { return a.done }

// Submit writes the claim to the broadcast. It says nothing about whether the
// claim will be accepted, clients find out by querying. If the broadcast
// blocks, Submit returns when the context is done. A broadcast that can't
// reach all of its peers makes Submit return ErrUnavailable until it can.
func (a *Adapter) Submit(ctx context.Context, c *ledger.Claim) (err error) {
	if c == nil {
		return ErrNoClaim
	}

	if a.Err() != nil {
		return ErrUnavailable
	}

	errc := make(chan error, 1)
	go func() { errc <- a.bc.Write(&Msg{Claim: c}) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err = <-errc:
	}

	if err != nil {
		a.logs.WithError(err).WithField("claim", c).Error("failed to write claim to broadcast")
		return ErrUnavailable
	}

	return nil
}

// Shutdown closes the broadcast and waits for the claim that is being applied,
// if any, before returning. It gives up when the context is done.
func (a *Adapter) Shutdown(ctx context.Context) (err error) {
	errc := make(chan error, 1)
	go func() { errc <- a.bc.Close() }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err = <-errc:
		if err != nil {
			return errors.Wrap(err, "failed to close broadcast")
		}
	}

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
