package sequence

import (
	"context"
	"sync/atomic"
)

// raceState arbitrates the "first error wins" rule spec.md §4.6's closing
// paragraph assigns to Fork, MergeEach, and Zip (First tracks its single
// item with its own flag and cancel func instead): whichever sibling
// fails or stops first claims the race, cancels every other sibling via
// cancel, and every later claim attempt is silently dropped so only the
// first outcome reaches the outer receiver.
type raceState struct {
	claimed atomic.Bool
	err     error
	cancel  context.CancelFunc
}

// newRaceState derives a cancelable child of ctx that every sibling
// subscribes under, so claim's cancel call reaches all of them.
func newRaceState(ctx context.Context) (*raceState, context.Context) {
	child, cancel := context.WithCancel(ctx)
	return &raceState{cancel: cancel}, child
}

// claim records err (nil meaning "stopped, not errored") as the race's
// winning outcome if no sibling has claimed yet, and cancels every other
// sibling. Returns whether this call won the race.
func (s *raceState) claim(err error) bool {
	if !s.claimed.CompareAndSwap(false, true) {
		return false
	}
	s.err = err
	s.cancel()
	return true
}

// claimedErr reports the race's winning outcome, if any sibling has
// claimed it yet.
func (s *raceState) claimedErr() (error, bool) {
	if !s.claimed.Load() {
		return nil, false
	}
	return s.err, true
}
