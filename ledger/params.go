package ledger

// Params configures the ledger state machine. Everything that influences
// whether a claim is accepted must be configured identically on all replicas.
type Params struct {

	//HistorySize is the number of processed transactions kept for queries
	HistorySize int

	//AllowSelfTransfer accepts claims where sender and recipient are the same
	//account. Such a claim only consumes a sequence number.
	AllowSelfTransfer bool

	//Clock stamps processed transactions
	Clock Clock

	//Metrics receives claim outcomes, it may be nil
	Metrics *Metrics
}

//DefaultParams returns sensible default params
func DefaultParams() *Params {
	return &Params{
		HistorySize: 10,
		Clock:       NewWallClock(),
	}
}
