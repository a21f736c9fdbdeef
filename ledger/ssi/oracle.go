package ssi

//Oracle represents the status oracle in "A critique of snapshot isolation" [M Yabandeh, 2012]
type Oracle struct {
	time    uint64
	commits map[KH]uint64
}

//NewOracle creates the status oracle
func NewOracle() *Oracle {
	return &Oracle{
		time:    1,
		commits: make(map[KH]uint64),
	}
}

//Curr returns the current time kept by the status oracle
func (o *Oracle) Curr() uint64 {
	return o.time
}

//Commit checks whether any of the rows read since 'ts' was written by another
//commit. If not, the written rows are marked with a new commit time which is
//returned. A zero commit time means the transaction conflicts.
func (o *Oracle) Commit(rr, rw KeySet, ts uint64) (tc uint64) {
	for r := range rr {
		if o.commits[r] > ts {
			return 0
		}
	}

	o.time++
	for r := range rw {
		o.commits[r] = o.time
	}

	return o.time
}
