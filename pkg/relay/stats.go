package relay

import "sync/atomic"

// Stats tracks relay counters across all workers.
type Stats struct {
	total     atomic.Int64
	delivered atomic.Int64
	blocked   atomic.Int64
	trapped   atomic.Int64
	failed    atomic.Int64
	edits     atomic.Int64
	deletes   atomic.Int64
}

func (s *Stats) record(o Outcome) {
	s.total.Add(1)
	switch o {
	case OutcomeDelivered:
		s.delivered.Add(1)
	case OutcomeBlocked:
		s.blocked.Add(1)
	case OutcomeTrapped:
		s.trapped.Add(1)
	case OutcomeDeliveryFailed, OutcomeEditFailed, OutcomeDeleteFailed:
		s.failed.Add(1)
	case OutcomeEditCorrelated:
		s.edits.Add(1)
	case OutcomeDeleteCorrelated:
		s.deletes.Add(1)
	}
}

// Snapshot returns the current counters for the health endpoint.
func (s *Stats) Snapshot() map[string]int64 {
	return map[string]int64{
		"total":     s.total.Load(),
		"delivered": s.delivered.Load(),
		"blocked":   s.blocked.Load(),
		"trapped":   s.trapped.Load(),
		"failed":    s.failed.Load(),
		"edits":     s.edits.Load(),
		"deletes":   s.deletes.Load(),
	}
}
