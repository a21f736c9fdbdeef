package ledger

import (
	"github.com/algorand/go-deadlock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Outcome describes what happened to a delivered claim
type Outcome int

const (
	//Applied claims changed the account state
	Applied Outcome = iota

	//Invalid claims failed validation and will never apply
	Invalid

	//Stale claims didn't follow the sender's last sequence, either because
	//they were applied before or because their predecessor hasn't been
	Stale

	//Insufficient claims tried to spend more than the sender holds
	Insufficient

	//Overflow claims would wrap the recipient's balance
	Overflow

	//Failed claims hit a storage failure
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Invalid:
		return "invalid"
	case Stale:
		return "stale"
	case Insufficient:
		return "insufficient"
	case Overflow:
		return "overflow"
	default:
		return "failed"
	}
}

// Ledger is the replicated state machine: it validates delivered claims and
// applies them to the store. Replicas that see the same deliveries in the same
// order end up with the same account state.
type Ledger struct {
	mu      deadlock.Mutex
	store   Store
	valid   *Validator
	hist    *History
	clock   Clock
	metrics *Metrics
	logs    logrus.FieldLogger
	halted  error
}

// New creates a ledger on top of an initialized store
func New(logs logrus.FieldLogger, s Store, p *Params) (l *Ledger) {
	if p == nil {
		p = DefaultParams()
	}

	l = &Ledger{
		store:   s,
		valid:   NewValidator(p.AllowSelfTransfer),
		hist:    NewHistory(p.HistorySize),
		clock:   p.Clock,
		metrics: p.Metrics,
		logs:    logs.WithField("component", "ledger"),
	}

	if l.clock == nil {
		l.clock = NewWallClock()
	}

	return
}

// OnDelivered handles a claim that was delivered by the broadcast. Claims that
// can't be applied are dropped, the returned outcome says why. An error is only
// returned for storage failures, after which the ledger refuses any further
// claims with ErrHalted: a replica that can't persist must not diverge from its
// peers by continuing.
func (l *Ledger) OnDelivered(c *Claim) (o Outcome, err error) {
	if l.Halted() != nil {
		return Failed, ErrHalted
	}

	if err = l.valid.Validate(c); err != nil {
		l.logs.WithFields(logrus.Fields{"claim": c, "reason": err}).Debug("dropping invalid claim")
		l.metrics.observe(Invalid, l.hist.Len())
		return Invalid, nil
	}

	if c.Sequence == 0 {
		l.logs.WithField("claim", c).Debug("dropping claim with zero sequence")
		l.metrics.observe(Stale, l.hist.Len())
		return Stale, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.halted != nil {
		return Failed, ErrHalted
	}

	err = l.store.CompareAndApply(c.Sender, c.Recipient, c.Sequence-1, c.Amount)
	switch err {
	case nil:
		o = Applied
		l.hist.Append(ProcessedTx{
			Timestamp: l.clock.Now(),
			Sender:    c.Sender,
			Recipient: c.Recipient,
			Amount:    c.Amount,
		})

	case ErrStaleSequence:
		o = Stale
	case ErrInsufficientBalance:
		o = Insufficient
	case ErrBalanceOverflow:
		o = Overflow
	default:
		l.halted = errors.Wrapf(err, "failed to apply claim %s", c)
		l.logs.WithError(err).WithField("claim", c).Error("storage failure, halting ledger")
		l.metrics.observe(Failed, l.hist.Len())
		return Failed, l.halted
	}

	l.logs.WithFields(logrus.Fields{"claim": c, "outcome": o}).Debug("handled claim")
	l.metrics.observe(o, l.hist.Len())
	return o, nil
}

// Halted returns the storage failure that halted the ledger, if any
func (l *Ledger) Halted() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.halted
}

// Query returns the read-only view on the ledger
func (l *Ledger) Query() *Query {
	return &Query{store: l.store, hist: l.hist}
}
