package timeoutpolicy

import "time"

// Policy computes the three timeout bounds (connect, read, total) for a
// fetch attempt. Each grows linearly with the retry attempt index so a
// transient slow peer gets progressively more budget without unbounded
// growth: bound(i) = base + step*i.
type Policy struct {
	connectBase time.Duration
	connectStep time.Duration
	readBase    time.Duration
	readStep    time.Duration
	totalBase   time.Duration
	totalStep   time.Duration
}

// NewPolicy returns a Policy whose connect/read/total bounds grow by
// the respective step for every attempt past the first (attempt 0).
func NewPolicy(connectBase, readBase, totalBase, step time.Duration) Policy {
	return Policy{
		connectBase: connectBase,
		connectStep: step,
		readBase:    readBase,
		readStep:    step,
		totalBase:   totalBase,
		totalStep:   step,
	}
}

// Bounds is the resolved (connect, read, total) timeout triple for one
// attempt.
type Bounds struct {
	Connect time.Duration
	Read    time.Duration
	Total   time.Duration
}

// ForAttempt returns the timeout bounds for the given zero-indexed
// retry attempt.
func (p Policy) ForAttempt(attempt int) Bounds {
	n := time.Duration(attempt)
	return Bounds{
		Connect: p.connectBase + p.connectStep*n,
		Read:    p.readBase + p.readStep*n,
		Total:   p.totalBase + p.totalStep*n,
	}
}
