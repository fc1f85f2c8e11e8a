package sequence

import (
	"context"

	sio "github.com/maikel/sio-go"
)

// Iterate produces one item per element of values, in index order,
// lockstep: it waits for each item's next-sender to complete before
// advancing to the following element. Ports
// original_source/source/sio/sequence/iterate.hpp's range-to-sequence
// adaptor.
func Iterate[T any](values []T) sio.SequenceSender[T] {
	return iterateSender[T]{values: values}
}

type iterateSender[T any] struct{ values []T }

func (s iterateSender[T]) Environment() sio.Environment {
	return sio.BasicEnvironment{Card: sio.CardinalityFinite, Par: sio.ParallelismLockstep, StopOnItemEnd: true}
}

func (s iterateSender[T]) Subscribe(ctx context.Context, r sio.SequenceReceiver[T]) sio.Operation {
	return &iterateOperation[T]{values: s.values, ctx: ctx, r: r}
}

type iterateOperation[T any] struct {
	values []T
	ctx    context.Context
	r      sio.SequenceReceiver[T]
}

func (o *iterateOperation[T]) Start() { o.advance(0) }

func (o *iterateOperation[T]) advance(i int) {
	if o.ctx.Err() != nil {
		o.r.Stopped()
		return
	}
	if i >= len(o.values) {
		o.r.Value(struct{}{})
		return
	}

	item := justSender[T]{v: o.values[i]}
	next := o.r.SetNext(item)
	op := next.Connect(o.ctx, funcReceiver[struct{}]{
		onValue:   func(struct{}) { o.advance(i + 1) },
		onError:   o.r.Error,
		onStopped: o.r.Stopped,
	})
	op.Start()
}
