package sequence

import (
	"context"
	"sync"
	"unsafe"

	sio "github.com/maikel/sio-go"
	"github.com/maikel/sio-go/pool"
)

// forkReservationSize is the nominal allocation Fork makes per item through
// the pool purely to gate concurrency the way an unbounded goroutine fan-out
// otherwise wouldn't: a pool exhausted of this bucket parks the next item's
// start until some in-flight item's reservation is returned, exactly the
// backpressure original_source/source/sio/fork.hpp gets for free from its
// allocator-backed operation-state storage.
const forkReservationSize = 64

// Fork requests concurrent starts of seq's item bodies: each item's next-
// sender is obtained and handed to p.Allocate-gated storage before Fork
// immediately resumes seq for the following item, so items are ordered by
// start but their completions are not serialized. The outer sequence
// completes once every forked item and seq's own driver have finished; the
// first error or stop among them wins and cancels the rest. Ports
// original_source/source/sio/fork.hpp.
func Fork[T any](seq sio.SequenceSender[T], p *pool.Pool) sio.SequenceSender[T] {
	return forkSender[T]{seq: seq, pool: p}
}

type forkSender[T any] struct {
	seq  sio.SequenceSender[T]
	pool *pool.Pool
}

func (s forkSender[T]) Environment() sio.Environment {
	return sio.BasicEnvironment{Card: s.seq.Environment().Cardinality(), Par: sio.ParallelismConcurrent, StopOnItemEnd: true}
}

func (s forkSender[T]) Subscribe(ctx context.Context, r sio.SequenceReceiver[T]) sio.Operation {
	return &forkOperation[T]{seq: s.seq, pool: s.pool, outer: r, ctx: ctx}
}

type forkOperation[T any] struct {
	seq   sio.SequenceSender[T]
	pool  *pool.Pool
	outer sio.SequenceReceiver[T]
	ctx   context.Context
}

func (o *forkOperation[T]) Start() {
	race, childCtx := newRaceState(o.ctx)
	driver := &forkDriverReceiver[T]{pool: o.pool, outer: o.outer, race: race}
	op := o.seq.Subscribe(childCtx, driver)
	op.Start()
}

type forkDriverReceiver[T any] struct {
	pool  *pool.Pool
	outer sio.SequenceReceiver[T]
	race  *raceState
	wg    sync.WaitGroup
}

func (d *forkDriverReceiver[T]) SetNext(item sio.Sender[T]) sio.Sender[struct{}] {
	return forkItemSender[T]{item: item, d: d}
}

func (d *forkDriverReceiver[T]) Value(struct{}) {
	d.wg.Wait()
	if err, claimed := d.race.claimedErr(); claimed {
		if err != nil {
			d.outer.Error(err)
		} else {
			d.outer.Stopped()
		}
		return
	}
	d.outer.Value(struct{}{})
}

func (d *forkDriverReceiver[T]) Error(err error) {
	d.race.claim(err)
	d.wg.Wait()
	stored, _ := d.race.claimedErr()
	d.outer.Error(stored)
}

func (d *forkDriverReceiver[T]) Stopped() {
	d.race.claim(nil)
	d.wg.Wait()
	if stored, claimed := d.race.claimedErr(); claimed && stored != nil {
		d.outer.Error(stored)
		return
	}
	d.outer.Stopped()
}

type forkItemSender[T any] struct {
	item sio.Sender[T]
	d    *forkDriverReceiver[T]
}

func (s forkItemSender[T]) Connect(ctx context.Context, cont sio.Receiver[struct{}]) sio.Operation {
	return &forkItemOperation[T]{item: s.item, d: s.d, cont: cont, ctx: ctx}
}

type forkItemOperation[T any] struct {
	item sio.Sender[T]
	d    *forkDriverReceiver[T]
	cont sio.Receiver[struct{}]
	ctx  context.Context
}

func (o *forkItemOperation[T]) Start() {
	o.d.wg.Add(1)
	allocOp := o.d.pool.Allocate(forkReservationSize).Connect(o.ctx, funcReceiver[unsafe.Pointer]{
		onValue: func(ptr unsafe.Pointer) {
			o.cont.Value(struct{}{})
			go o.runItem(ptr)
		},
		onError: func(err error) {
			o.d.race.claim(err)
			o.d.wg.Done()
			o.cont.Error(err)
		},
		onStopped: func() {
			o.d.wg.Done()
			o.cont.Stopped()
		},
	})
	allocOp.Start()
}

func (o *forkItemOperation[T]) runItem(ptr unsafe.Pointer) {
	defer func() {
		deallocOp := o.d.pool.Deallocate(ptr).Connect(o.ctx, funcReceiver[struct{}]{
			onValue: func(struct{}) { o.d.wg.Done() },
		})
		deallocOp.Start()
	}()

	next := o.d.outer.SetNext(o.item)
	nextOp := next.Connect(o.ctx, funcReceiver[struct{}]{
		onError:   func(err error) { o.d.race.claim(err) },
		onStopped: func() { o.d.race.claim(nil) },
	})
	nextOp.Start()
}

// MergeEach subscribes to every sender in seqs concurrently and forwards
// every item any of them produces to a single outer receiver, serialized
// under a mutex so at most one item is in flight downstream at a time. An
// error from any child cancels the rest via raceState; the outer sequence
// completes once every child has finished. Ports
// original_source/source/sio/merge_each.hpp.
func MergeEach[T any](seqs ...sio.SequenceSender[T]) sio.SequenceSender[T] {
	return mergeEachSender[T]{seqs: seqs}
}

type mergeEachSender[T any] struct{ seqs []sio.SequenceSender[T] }

func (s mergeEachSender[T]) Environment() sio.Environment {
	return sio.BasicEnvironment{Card: sio.CardinalityUnknown, Par: sio.ParallelismConcurrent, StopOnItemEnd: true}
}

func (s mergeEachSender[T]) Subscribe(ctx context.Context, r sio.SequenceReceiver[T]) sio.Operation {
	return &mergeEachOperation[T]{seqs: s.seqs, outer: r, ctx: ctx}
}

type mergeEachOperation[T any] struct {
	seqs  []sio.SequenceSender[T]
	outer sio.SequenceReceiver[T]
	ctx   context.Context
}

func (o *mergeEachOperation[T]) Start() {
	race, childCtx := newRaceState(o.ctx)
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(len(o.seqs))

	for _, seq := range o.seqs {
		seq := seq
		go func() {
			defer wg.Done()
			rec := &mergeChildReceiver[T]{mu: &mu, outer: o.outer, race: race}
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

type mergeChildReceiver[T any] struct {
	mu    *sync.Mutex
	outer sio.SequenceReceiver[T]
	race  *raceState
}

func (r *mergeChildReceiver[T]) SetNext(item sio.Sender[T]) sio.Sender[struct{}] {
	return mergeChildItemSender[T]{item: item, r: r}
}

func (r *mergeChildReceiver[T]) Value(struct{}) {}
func (r *mergeChildReceiver[T]) Error(err error) { r.race.claim(err) }
func (r *mergeChildReceiver[T]) Stopped()        {}

type mergeChildItemSender[T any] struct {
	item sio.Sender[T]
	r    *mergeChildReceiver[T]
}

func (s mergeChildItemSender[T]) Connect(ctx context.Context, cont sio.Receiver[struct{}]) sio.Operation {
	return &mergeChildItemOperation[T]{item: s.item, r: s.r, cont: cont, ctx: ctx}
}

type mergeChildItemOperation[T any] struct {
	item sio.Sender[T]
	r    *mergeChildReceiver[T]
	cont sio.Receiver[struct{}]
	ctx  context.Context
}

func (o *mergeChildItemOperation[T]) Start() {
	o.r.mu.Lock()
	next := o.r.outer.SetNext(o.item)
	nextOp := next.Connect(o.ctx, funcReceiver[struct{}]{
		onValue: func(struct{}) {
			o.r.mu.Unlock()
			o.cont.Value(struct{}{})
		},
		onError: func(err error) {
			o.r.mu.Unlock()
			o.r.race.claim(err)
			o.cont.Error(err)
		},
		onStopped: func() {
			o.r.mu.Unlock()
			o.cont.Stopped()
		},
	})
	nextOp.Start()
}
