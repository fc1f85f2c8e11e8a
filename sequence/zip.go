package sequence

import (
	"context"
	"sync"
	"sync/atomic"

	sio "github.com/maikel/sio-go"
)

// Zip subscribes to every sender in seqs concurrently (one goroutine each)
// and emits one []T item per tuple of synchronized items: the k-th tuple is
// assembled, and delivered downstream, only once each input has delivered
// its k-th item (the "k-th-item barrier" of spec.md §8), with per-round
// item delivery serialized under a per-round mutex (spec.md §4.6). Zip
// stops as soon as the shortest input ends — a plain end-of-sequence on any
// child completes the outer sequence with Value() once the rest have
// drained, while an explicit Stopped() or Error() on any child races via
// raceState and wins over a later plain end. Ports
// original_source/source/sio/zip.hpp.
func Zip[T any](seqs ...sio.SequenceSender[T]) sio.SequenceSender[[]T] {
	return zipSender[T]{seqs: seqs}
}

type zipSender[T any] struct{ seqs []sio.SequenceSender[T] }

func (s zipSender[T]) Environment() sio.Environment {
	return sio.BasicEnvironment{Card: sio.CardinalityFinite, Par: sio.ParallelismConcurrent, StopOnItemEnd: true}
}

func (s zipSender[T]) Subscribe(ctx context.Context, r sio.SequenceReceiver[[]T]) sio.Operation {
	return &zipOperation[T]{seqs: s.seqs, ctx: ctx, outer: r}
}

type zipOperation[T any] struct {
	seqs  []sio.SequenceSender[T]
	ctx   context.Context
	outer sio.SequenceReceiver[[]T]
}

func (o *zipOperation[T]) Start() {
	n := len(o.seqs)
	if n == 0 {
		o.outer.Value(struct{}{})
		return
	}

	race, childCtx := newRaceState(o.ctx)
	state := &zipState[T]{n: n, ctx: o.ctx, outer: o.outer, race: race}
	state.current.Store(newZipRound[T](n))

	var wg sync.WaitGroup
	wg.Add(n)
	for i, seq := range o.seqs {
		i, seq := i, seq
		go func() {
			defer wg.Done()
			rec := &zipChildReceiver[T]{idx: i, state: state}
			op := seq.Subscribe(childCtx, rec)
			op.Start()
		}()
	}
	wg.Wait()

	if err, claimed := race.claimedErr(); claimed {
		if err != nil {
			o.outer.Error(err)
		} else {
			o.outer.Stopped()
		}
		return
	}
	o.outer.Value(struct{}{})
}

// zipOutcome is what a round resolves to: continue (zero value), or stop
// (with err set only for a genuine error, nil meaning a plain end or an
// explicit Stopped()).
type zipOutcome struct {
	stop bool
	err  error
}

// zipRound is the barrier for one tuple: every child writes its item into
// items[idx] under mu, the n-th arrival closes the round by emitting the
// assembled tuple downstream, and every arrival (including the closer)
// reads outcome once done is closed to learn whether it may produce its
// next item.
type zipRound[T any] struct {
	mu      sync.Mutex
	items   []T
	arrived int
	closed  bool
	outcome zipOutcome
	done    chan struct{}
}

func newZipRound[T any](n int) *zipRound[T] {
	return &zipRound[T]{items: make([]T, n), done: make(chan struct{})}
}

// zipState is the shared coordinator every child goroutine's receiver and
// item-sender operate against: the round currently collecting arrivals, the
// race that arbitrates the first error/stop, and ended, which lets only the
// first child to reach its own terminal completion force-close a round
// still waiting on arrivals that will now never come.
type zipState[T any] struct {
	n       int
	ctx     context.Context
	outer   sio.SequenceReceiver[[]T]
	race    *raceState
	ended   atomic.Bool
	current atomic.Pointer[zipRound[T]]
}

// arrive records idx's item v for the currently open round. The n-th
// arrival closes the round (emitting the tuple downstream and waiting for
// its ack); every other arrival blocks on the round's barrier and then
// applies whatever outcome the closer (or a concurrent terminate) decided.
func (s *zipState[T]) arrive(idx int, v T, cont sio.Receiver[struct{}]) {
	round := s.current.Load()

	round.mu.Lock()
	if round.closed {
		outcome := round.outcome
		round.mu.Unlock()
		s.deliver(outcome, cont)
		return
	}
	round.items[idx] = v
	round.arrived++
	last := round.arrived == s.n
	round.mu.Unlock()

	if !last {
		<-round.done
		s.deliver(round.outcome, cont)
		return
	}
	s.closeRound(round, cont)
}

// closeRound is run by the single arrival that completes a round: it hands
// the assembled tuple to the outer sequence receiver, waits for that item's
// own next-sender to settle, installs a fresh round for whichever children
// go on to produce a further item, then releases every sibling blocked on
// this round's barrier.
func (s *zipState[T]) closeRound(round *zipRound[T], cont sio.Receiver[struct{}]) {
	if err, claimed := s.race.claimedErr(); claimed {
		outcome := zipOutcome{stop: true, err: err}
		s.resolveRound(round, outcome)
		s.deliver(outcome, cont)
		return
	}

	tuple := make([]T, s.n)
	copy(tuple, round.items)

	ackCh := make(chan zipOutcome, 1)
	next := s.outer.SetNext(justSender[[]T]{v: tuple})
	op := next.Connect(s.ctx, funcReceiver[struct{}]{
		onValue: func(struct{}) { ackCh <- zipOutcome{} },
		onError: func(err error) {
			s.race.claim(err)
			ackCh <- zipOutcome{stop: true, err: err}
		},
		onStopped: func() {
			s.race.claim(nil)
			ackCh <- zipOutcome{stop: true}
		},
	})
	op.Start()
	outcome := <-ackCh

	s.current.Store(newZipRound[T](s.n))
	s.resolveRound(round, outcome)
	s.deliver(outcome, cont)
}

// resolveRound records outcome on round and releases every sibling blocked
// on round.done. A no-op if the round was already resolved (by closeRound
// itself or by a concurrent terminate racing to force-close it).
func (s *zipState[T]) resolveRound(round *zipRound[T], outcome zipOutcome) {
	round.mu.Lock()
	if round.closed {
		round.mu.Unlock()
		return
	}
	round.closed = true
	round.outcome = outcome
	round.mu.Unlock()
	close(round.done)
}

// terminate is called whenever a child reaches its own terminal completion
// — a plain end (err=nil, isStop=false), an explicit Stopped() (isStop
// true), or an Error(err) — or whenever an in-progress item sender fails or
// is stopped before contributing to the open round. The child that
// terminates can, by construction, never arrive into whatever round is
// currently open, so the first one to do so force-closes it; later
// terminations on the same zip are no-ops here (the round is already
// closed), though their race.claim calls still matter for which error or
// stop the outer sequence ultimately reports.
func (s *zipState[T]) terminate(err error, isStop bool) {
	if err != nil {
		s.race.claim(err)
	} else if isStop {
		s.race.claim(nil)
	}
	if !s.ended.CompareAndSwap(false, true) {
		return
	}
	raceErr, _ := s.race.claimedErr()
	s.resolveRound(s.current.Load(), zipOutcome{stop: true, err: raceErr})
}

func (s *zipState[T]) deliver(outcome zipOutcome, cont sio.Receiver[struct{}]) {
	if !outcome.stop {
		cont.Value(struct{}{})
		return
	}
	if outcome.err != nil {
		cont.Error(outcome.err)
		return
	}
	cont.Stopped()
}

// zipChildReceiver is the SequenceReceiver Zip subscribes to each input
// with. Its own terminal completion (not SetNext) is how that input
// reaching the end of its items — or being stopped, or erroring outright —
// reaches zipState.
type zipChildReceiver[T any] struct {
	idx   int
	state *zipState[T]
}

func (r *zipChildReceiver[T]) SetNext(item sio.Sender[T]) sio.Sender[struct{}] {
	return zipItemSender[T]{item: item, idx: r.idx, state: r.state}
}

func (r *zipChildReceiver[T]) Value(struct{}) { r.state.terminate(nil, false) }
func (r *zipChildReceiver[T]) Error(err error) { r.state.terminate(err, false) }
func (r *zipChildReceiver[T]) Stopped()        { r.state.terminate(nil, true) }

// zipItemSender is the void sender returned from SetNext: it connects the
// child's item sender to extract idx's value for the current round, then
// resolves once that round's outcome is known.
type zipItemSender[T any] struct {
	item  sio.Sender[T]
	idx   int
	state *zipState[T]
}

func (s zipItemSender[T]) Connect(ctx context.Context, cont sio.Receiver[struct{}]) sio.Operation {
	return &zipItemOperation[T]{item: s.item, idx: s.idx, state: s.state, cont: cont, ctx: ctx}
}

type zipItemOperation[T any] struct {
	item  sio.Sender[T]
	idx   int
	state *zipState[T]
	cont  sio.Receiver[struct{}]
	ctx   context.Context
}

func (o *zipItemOperation[T]) Start() {
	op := o.item.Connect(o.ctx, funcReceiver[T]{
		onValue: func(v T) { o.state.arrive(o.idx, v, o.cont) },
		onError: func(err error) {
			o.state.terminate(err, false)
			o.cont.Error(err)
		},
		onStopped: func() {
			o.state.terminate(nil, true)
			o.cont.Stopped()
		},
	})
	op.Start()
}
