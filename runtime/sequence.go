package runtime

import "sync/atomic"

// seqGen numbers a run's notifications. Sequence numbers are 1-indexed and
// strictly increasing; downstream stores order and resume by them.
type seqGen struct {
	counter atomic.Uint64
}

func newSeqGen() *seqGen {
	return &seqGen{}
}

// Next returns the next sequence number.
func (s *seqGen) Next() uint64 {
	return s.counter.Add(1)
}
