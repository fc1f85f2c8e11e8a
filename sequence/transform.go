package sequence

import (
	"context"

	sio "github.com/maikel/sio-go"
)

// TransformEach pipes every item-sender of seq through adaptor before
// handing the result to the outer receiver. The fundamental per-item
// combinator: ThenEach and LetValueEach are both expressed in terms of it,
// following original_source/source/sio/sequence/transform_each.hpp's role
// as the one primitive the other two are built from.
func TransformEach[T, U any](seq sio.SequenceSender[T], adaptor func(sio.Sender[T]) sio.Sender[U]) sio.SequenceSender[U] {
	return transformEachSender[T, U]{seq: seq, adaptor: adaptor}
}

type transformEachSender[T, U any] struct {
	seq     sio.SequenceSender[T]
	adaptor func(sio.Sender[T]) sio.Sender[U]
}

func (s transformEachSender[T, U]) Environment() sio.Environment { return s.seq.Environment() }

func (s transformEachSender[T, U]) Subscribe(ctx context.Context, r sio.SequenceReceiver[U]) sio.Operation {
	return s.seq.Subscribe(ctx, transformEachReceiver[T, U]{adaptor: s.adaptor, outer: r})
}

type transformEachReceiver[T, U any] struct {
	adaptor func(sio.Sender[T]) sio.Sender[U]
	outer   sio.SequenceReceiver[U]
}

func (r transformEachReceiver[T, U]) SetNext(item sio.Sender[T]) sio.Sender[struct{}] {
	return r.outer.SetNext(r.adaptor(item))
}

func (r transformEachReceiver[T, U]) Value(v struct{}) { r.outer.Value(v) }
func (r transformEachReceiver[T, U]) Error(err error)  { r.outer.Error(err) }
func (r transformEachReceiver[T, U]) Stopped()         { r.outer.Stopped() }

// ThenEach maps every item's value through the pure function f, preserving
// seq's cardinality and parallelism (TransformEach forwards
// Environment() unchanged).
func ThenEach[T, U any](seq sio.SequenceSender[T], f func(T) U) sio.SequenceSender[U] {
	return TransformEach(seq, func(item sio.Sender[T]) sio.Sender[U] {
		return thenSender[T, U]{item: item, f: f}
	})
}

type thenSender[T, U any] struct {
	item sio.Sender[T]
	f    func(T) U
}

func (s thenSender[T, U]) Connect(ctx context.Context, r sio.Receiver[U]) sio.Operation {
	return &thenOperation[T, U]{item: s.item, f: s.f, ctx: ctx, r: r}
}

type thenOperation[T, U any] struct {
	item sio.Sender[T]
	f    func(T) U
	ctx  context.Context
	r    sio.Receiver[U]
}

func (o *thenOperation[T, U]) Start() {
	op := o.item.Connect(o.ctx, funcReceiver[T]{
		onValue:   func(v T) { o.r.Value(o.f(v)) },
		onError:   o.r.Error,
		onStopped: o.r.Stopped,
	})
	op.Start()
}

// LetValueEach maps every item's value through the sender-returning
// function f and flattens: the item type becomes f's result sender's
// value type.
func LetValueEach[T, U any](seq sio.SequenceSender[T], f func(T) sio.Sender[U]) sio.SequenceSender[U] {
	return TransformEach(seq, func(item sio.Sender[T]) sio.Sender[U] {
		return letValueSender[T, U]{item: item, f: f}
	})
}

type letValueSender[T, U any] struct {
	item sio.Sender[T]
	f    func(T) sio.Sender[U]
}

func (s letValueSender[T, U]) Connect(ctx context.Context, r sio.Receiver[U]) sio.Operation {
	return &letValueOperation[T, U]{item: s.item, f: s.f, ctx: ctx, r: r}
}

type letValueOperation[T, U any] struct {
	item sio.Sender[T]
	f    func(T) sio.Sender[U]
	ctx  context.Context
	r    sio.Receiver[U]
}

func (o *letValueOperation[T, U]) Start() {
	op := o.item.Connect(o.ctx, funcReceiver[T]{
		onValue: func(v T) {
			next := o.f(v)
			nextOp := next.Connect(o.ctx, o.r)
			nextOp.Start()
		},
		onError:   o.r.Error,
		onStopped: o.r.Stopped,
	})
	op.Start()
}
