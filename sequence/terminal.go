package sequence

import (
	"context"
	"sync"

	sio "github.com/maikel/sio-go"
)

// First collapses seq to a single-value sender carrying its first item,
// canceling the sequence's own context as soon as that item arrives so
// later items never run. A seq that ends before producing any item
// delivers Stopped(); an error before the first item propagates as-is.
func First[T any](seq sio.SequenceSender[T]) sio.Sender[T] {
	return firstSender[T]{seq: seq}
}

type firstSender[T any] struct{ seq sio.SequenceSender[T] }

func (s firstSender[T]) Connect(ctx context.Context, r sio.Receiver[T]) sio.Operation {
	return &firstOperation[T]{seq: s.seq, ctx: ctx, r: r}
}

type firstOperation[T any] struct {
	seq sio.SequenceSender[T]
	ctx context.Context
	r   sio.Receiver[T]
}

func (o *firstOperation[T]) Start() {
	childCtx, cancel := context.WithCancel(o.ctx)
	state := &firstState[T]{cancel: cancel, r: o.r}
	op := o.seq.Subscribe(childCtx, state)
	op.Start()
}

type firstState[T any] struct {
	cancel context.CancelFunc
	r      sio.Receiver[T]
	got    bool
}

func (s *firstState[T]) SetNext(item sio.Sender[T]) sio.Sender[struct{}] {
	return firstItemSender[T]{item: item, s: s}
}

func (s *firstState[T]) Value(struct{}) {
	if !s.got {
		s.r.Stopped()
	}
}

func (s *firstState[T]) Error(err error) {
	if !s.got {
		s.r.Error(err)
	}
}

func (s *firstState[T]) Stopped() {
	if !s.got {
		s.r.Stopped()
	}
}

type firstItemSender[T any] struct {
	item sio.Sender[T]
	s    *firstState[T]
}

func (fs firstItemSender[T]) Connect(ctx context.Context, cont sio.Receiver[struct{}]) sio.Operation {
	return &firstItemOperation[T]{item: fs.item, s: fs.s, cont: cont, ctx: ctx}
}

type firstItemOperation[T any] struct {
	item sio.Sender[T]
	s    *firstState[T]
	cont sio.Receiver[struct{}]
	ctx  context.Context
}

func (o *firstItemOperation[T]) Start() {
	op := o.item.Connect(o.ctx, funcReceiver[T]{
		onValue: func(v T) {
			o.s.got = true
			o.s.cancel()
			o.s.r.Value(v)
			o.cont.Stopped()
		},
		onError: func(err error) {
			o.s.r.Error(err)
			o.cont.Error(err)
		},
		onStopped: func() {
			o.s.r.Stopped()
			o.cont.Stopped()
		},
	})
	op.Start()
}

// Last collapses seq to a single-value sender carrying the most recently
// observed item at the moment seq completes normally; a seq that never
// produces an item delivers Stopped(), and an error/stopped completion of
// seq itself propagates as-is regardless of any item already observed.
func Last[T any](seq sio.SequenceSender[T]) sio.Sender[T] {
	return lastSender[T]{seq: seq}
}

type lastSender[T any] struct{ seq sio.SequenceSender[T] }

func (s lastSender[T]) Connect(ctx context.Context, r sio.Receiver[T]) sio.Operation {
	return &lastOperation[T]{seq: s.seq, ctx: ctx, r: r}
}

type lastOperation[T any] struct {
	seq sio.SequenceSender[T]
	ctx context.Context
	r   sio.Receiver[T]
}

func (o *lastOperation[T]) Start() {
	state := &lastState[T]{r: o.r}
	op := o.seq.Subscribe(o.ctx, state)
	op.Start()
}

type lastState[T any] struct {
	r    sio.Receiver[T]
	last T
	has  bool
}

func (s *lastState[T]) SetNext(item sio.Sender[T]) sio.Sender[struct{}] {
	return lastItemSender[T]{item: item, s: s}
}

func (s *lastState[T]) Value(struct{}) {
	if s.has {
		s.r.Value(s.last)
	} else {
		s.r.Stopped()
	}
}

func (s *lastState[T]) Error(err error) { s.r.Error(err) }
func (s *lastState[T]) Stopped()        { s.r.Stopped() }

type lastItemSender[T any] struct {
	item sio.Sender[T]
	s    *lastState[T]
}

func (ls lastItemSender[T]) Connect(ctx context.Context, cont sio.Receiver[struct{}]) sio.Operation {
	return &lastItemOperation[T]{item: ls.item, s: ls.s, cont: cont, ctx: ctx}
}

type lastItemOperation[T any] struct {
	item sio.Sender[T]
	s    *lastState[T]
	cont sio.Receiver[struct{}]
	ctx  context.Context
}

func (o *lastItemOperation[T]) Start() {
	op := o.item.Connect(o.ctx, funcReceiver[T]{
		onValue: func(v T) {
			o.s.last = v
			o.s.has = true
			o.cont.Value(struct{}{})
		},
		onError:   o.cont.Error,
		onStopped: o.cont.Stopped,
	})
	op.Start()
}

// Scan turns seq into a sequence of running accumulator values: item i of
// the result is f applied to every item of seq up to and including item
// i, seeded by init. The accumulator is protected by a mutex unconditionally
// — cheaper lock-free handling for a known-lock_step input isn't worth the
// extra code path this module never needs. Ports
// original_source/source/sio/sequence/scan.hpp.
func Scan[T, U any](seq sio.SequenceSender[T], init U, f func(U, T) U) sio.SequenceSender[U] {
	return scanSender[T, U]{seq: seq, init: init, f: f}
}

type scanSender[T, U any] struct {
	seq  sio.SequenceSender[T]
	init U
	f    func(U, T) U
}

func (s scanSender[T, U]) Environment() sio.Environment { return s.seq.Environment() }

func (s scanSender[T, U]) Subscribe(ctx context.Context, r sio.SequenceReceiver[U]) sio.Operation {
	state := &scanState[U]{acc: s.init}
	return s.seq.Subscribe(ctx, &scanReceiver[T, U]{f: s.f, state: state, outer: r})
}

type scanState[U any] struct {
	mu  sync.Mutex
	acc U
}

type scanReceiver[T, U any] struct {
	f     func(U, T) U
	state *scanState[U]
	outer sio.SequenceReceiver[U]
}

func (r *scanReceiver[T, U]) SetNext(item sio.Sender[T]) sio.Sender[struct{}] {
	return scanItemSender[T, U]{item: item, r: r}
}

func (r *scanReceiver[T, U]) Value(v struct{}) { r.outer.Value(v) }
func (r *scanReceiver[T, U]) Error(err error)  { r.outer.Error(err) }
func (r *scanReceiver[T, U]) Stopped()         { r.outer.Stopped() }

type scanItemSender[T, U any] struct {
	item sio.Sender[T]
	r    *scanReceiver[T, U]
}

func (s scanItemSender[T, U]) Connect(ctx context.Context, cont sio.Receiver[struct{}]) sio.Operation {
	return &scanItemOperation[T, U]{item: s.item, r: s.r, cont: cont, ctx: ctx}
}

type scanItemOperation[T, U any] struct {
	item sio.Sender[T]
	r    *scanReceiver[T, U]
	cont sio.Receiver[struct{}]
	ctx  context.Context
}

func (o *scanItemOperation[T, U]) Start() {
	op := o.item.Connect(o.ctx, funcReceiver[T]{
		onValue: func(v T) {
			o.r.state.mu.Lock()
			o.r.state.acc = o.r.f(o.r.state.acc, v)
			acc := o.r.state.acc
			o.r.state.mu.Unlock()

			next := o.r.outer.SetNext(justSender[U]{v: acc})
			nextOp := next.Connect(o.ctx, o.cont)
			nextOp.Start()
		},
		onError:   o.cont.Error,
		onStopped: o.cont.Stopped,
	})
	op.Start()
}

// Reduce is scan+last in one pass: a single-value sender carrying f
// applied across every item of seq, seeded by init (delivered unchanged if
// seq is empty).
func Reduce[T, U any](seq sio.SequenceSender[T], init U, f func(U, T) U) sio.Sender[U] {
	return reduceSender[T, U]{seq: seq, init: init, f: f}
}

type reduceSender[T, U any] struct {
	seq  sio.SequenceSender[T]
	init U
	f    func(U, T) U
}

func (s reduceSender[T, U]) Connect(ctx context.Context, r sio.Receiver[U]) sio.Operation {
	return &reduceOperation[T, U]{seq: s.seq, init: s.init, f: s.f, ctx: ctx, r: r}
}

type reduceOperation[T, U any] struct {
	seq  sio.SequenceSender[T]
	init U
	f    func(U, T) U
	ctx  context.Context
	r    sio.Receiver[U]
}

func (o *reduceOperation[T, U]) Start() {
	state := &reduceState[T, U]{acc: o.init, f: o.f, r: o.r}
	op := o.seq.Subscribe(o.ctx, state)
	op.Start()
}

type reduceState[T, U any] struct {
	acc U
	f   func(U, T) U
	r   sio.Receiver[U]
}

func (s *reduceState[T, U]) SetNext(item sio.Sender[T]) sio.Sender[struct{}] {
	return reduceItemSender[T, U]{item: item, s: s}
}

func (s *reduceState[T, U]) Value(struct{})  { s.r.Value(s.acc) }
func (s *reduceState[T, U]) Error(err error) { s.r.Error(err) }
func (s *reduceState[T, U]) Stopped()        { s.r.Stopped() }

type reduceItemSender[T, U any] struct {
	item sio.Sender[T]
	s    *reduceState[T, U]
}

func (rs reduceItemSender[T, U]) Connect(ctx context.Context, cont sio.Receiver[struct{}]) sio.Operation {
	return &reduceItemOperation[T, U]{item: rs.item, s: rs.s, cont: cont, ctx: ctx}
}

type reduceItemOperation[T, U any] struct {
	item sio.Sender[T]
	s    *reduceState[T, U]
	cont sio.Receiver[struct{}]
	ctx  context.Context
}

func (o *reduceItemOperation[T, U]) Start() {
	op := o.item.Connect(o.ctx, funcReceiver[T]{
		onValue: func(v T) {
			o.s.acc = o.s.f(o.s.acc, v)
			o.cont.Value(struct{}{})
		},
		onError:   o.cont.Error,
		onStopped: o.cont.Stopped,
	})
	op.Start()
}

// IgnoreAll drains seq, discarding every item's value, and collapses to
// Value(struct{}{}) on normal completion or seq's first error/stop.
func IgnoreAll[T any](seq sio.SequenceSender[T]) sio.Sender[struct{}] {
	return ignoreAllSender[T]{seq: seq}
}

type ignoreAllSender[T any] struct{ seq sio.SequenceSender[T] }

func (s ignoreAllSender[T]) Connect(ctx context.Context, r sio.Receiver[struct{}]) sio.Operation {
	return &ignoreAllOperation[T]{seq: s.seq, ctx: ctx, r: r}
}

type ignoreAllOperation[T any] struct {
	seq sio.SequenceSender[T]
	ctx context.Context
	r   sio.Receiver[struct{}]
}

func (o *ignoreAllOperation[T]) Start() {
	state := &ignoreAllState[T]{r: o.r}
	op := o.seq.Subscribe(o.ctx, state)
	op.Start()
}

type ignoreAllState[T any] struct{ r sio.Receiver[struct{}] }

func (s *ignoreAllState[T]) SetNext(item sio.Sender[T]) sio.Sender[struct{}] {
	return ignoreAllItemSender[T]{item: item, cont: s.r}
}

func (s *ignoreAllState[T]) Value(v struct{}) { s.r.Value(v) }
func (s *ignoreAllState[T]) Error(err error)  { s.r.Error(err) }
func (s *ignoreAllState[T]) Stopped()         { s.r.Stopped() }

type ignoreAllItemSender[T any] struct {
	item sio.Sender[T]
	cont sio.Receiver[struct{}]
}

func (s ignoreAllItemSender[T]) Connect(ctx context.Context, cont sio.Receiver[struct{}]) sio.Operation {
	return &ignoreAllItemOperation[T]{item: s.item, cont: cont, ctx: ctx}
}

type ignoreAllItemOperation[T any] struct {
	item sio.Sender[T]
	cont sio.Receiver[struct{}]
	ctx  context.Context
}

func (o *ignoreAllItemOperation[T]) Start() {
	op := o.item.Connect(o.ctx, funcReceiver[T]{
		onValue:   func(T) { o.cont.Value(struct{}{}) },
		onError:   o.cont.Error,
		onStopped: o.cont.Stopped,
	})
	op.Start()
}
