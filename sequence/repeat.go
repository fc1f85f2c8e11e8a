package sequence

import (
	"context"

	sio "github.com/maikel/sio-go"
)

// Repeat builds an unbounded sequence that restarts factory() every time
// the previous run completes with a value, stopping only when ctx is
// canceled or factory's sender itself errors or stops. Ports
// original_source/source/sio/sequence/repeat.hpp, rendered with a factory
// function since a Go Sender value here is otherwise already safely
// reusable across Connect calls — the factory exists only to let callers
// build fresh per-iteration state when they need it.
func Repeat[T any](factory func() sio.Sender[T]) sio.SequenceSender[T] {
	return repeatSender[T]{factory: factory}
}

type repeatSender[T any] struct{ factory func() sio.Sender[T] }

func (s repeatSender[T]) Environment() sio.Environment {
	return sio.BasicEnvironment{Card: sio.CardinalityUnbounded, Par: sio.ParallelismLockstep, StopOnItemEnd: true}
}

func (s repeatSender[T]) Subscribe(ctx context.Context, r sio.SequenceReceiver[T]) sio.Operation {
	return &repeatOperation[T]{factory: s.factory, ctx: ctx, r: r}
}

type repeatOperation[T any] struct {
	factory func() sio.Sender[T]
	ctx     context.Context
	r       sio.SequenceReceiver[T]
}

func (o *repeatOperation[T]) Start() { o.advance() }

func (o *repeatOperation[T]) advance() {
	if o.ctx.Err() != nil {
		o.r.Stopped()
		return
	}

	op := o.factory().Connect(o.ctx, funcReceiver[T]{
		onValue: func(v T) {
			next := o.r.SetNext(justSender[T]{v: v})
			contOp := next.Connect(o.ctx, funcReceiver[struct{}]{
				onValue:   func(struct{}) { o.advance() },
				onError:   o.r.Error,
				onStopped: o.r.Stopped,
			})
			contOp.Start()
		},
		onError:   o.r.Error,
		onStopped: o.r.Stopped,
	})
	op.Start()
}
