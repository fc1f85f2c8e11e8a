package sequence

import (
	"context"

	sio "github.com/maikel/sio-go"
)

// Finally runs final on every exit path of initial — value, error, or
// stopped — and preserves initial's own outcome: final's result only
// surfaces as the overall error when initial itself succeeded and final
// then fails. Ports original_source/source/sio/finally.hpp.
func Finally[T any](initial sio.Sender[T], final func() sio.Sender[struct{}]) sio.Sender[T] {
	return finallySender[T]{initial: initial, final: final}
}

type finallySender[T any] struct {
	initial sio.Sender[T]
	final   func() sio.Sender[struct{}]
}

func (s finallySender[T]) Connect(ctx context.Context, r sio.Receiver[T]) sio.Operation {
	return &finallyOperation[T]{initial: s.initial, final: s.final, ctx: ctx, r: r}
}

type finallyOperation[T any] struct {
	initial sio.Sender[T]
	final   func() sio.Sender[struct{}]
	ctx     context.Context
	r       sio.Receiver[T]
}

func (o *finallyOperation[T]) Start() {
	op := o.initial.Connect(o.ctx, funcReceiver[T]{
		onValue:   func(v T) { o.runFinal(finallyOutcome[T]{succeeded: true, value: v}) },
		onError:   func(err error) { o.runFinal(finallyOutcome[T]{err: err}) },
		onStopped: func() { o.runFinal(finallyOutcome[T]{stopped: true}) },
	})
	op.Start()
}

type finallyOutcome[T any] struct {
	succeeded bool
	value     T
	err       error
	stopped   bool
}

func (o *finallyOperation[T]) runFinal(outcome finallyOutcome[T]) {
	deliverOriginal := func() {
		switch {
		case outcome.succeeded:
			o.r.Value(outcome.value)
		case outcome.stopped:
			o.r.Stopped()
		default:
			o.r.Error(outcome.err)
		}
	}
	finalOp := o.final().Connect(o.ctx, funcReceiver[struct{}]{
		onValue: func(struct{}) { deliverOriginal() },
		onError: func(finalErr error) {
			if outcome.succeeded {
				o.r.Error(finalErr)
				return
			}
			deliverOriginal()
		},
		onStopped: func() { deliverOriginal() },
	})
	finalOp.Start()
}

// Tap is like Finally, but final runs only if initial completed
// successfully; otherwise the outer sender completes with whatever
// initial did, without ever calling final. Ports
// original_source/source/sio/tap.hpp.
func Tap[T any](initial sio.Sender[T], final func() sio.Sender[struct{}]) sio.Sender[T] {
	return tapSender[T]{initial: initial, final: final}
}

type tapSender[T any] struct {
	initial sio.Sender[T]
	final   func() sio.Sender[struct{}]
}

func (s tapSender[T]) Connect(ctx context.Context, r sio.Receiver[T]) sio.Operation {
	return &tapOperation[T]{initial: s.initial, final: s.final, ctx: ctx, r: r}
}

type tapOperation[T any] struct {
	initial sio.Sender[T]
	final   func() sio.Sender[struct{}]
	ctx     context.Context
	r       sio.Receiver[T]
}

func (o *tapOperation[T]) Start() {
	op := o.initial.Connect(o.ctx, funcReceiver[T]{
		onValue: func(v T) {
			finalOp := o.final().Connect(o.ctx, funcReceiver[struct{}]{
				onValue:   func(struct{}) { o.r.Value(v) },
				onError:   o.r.Error,
				onStopped: o.r.Stopped,
			})
			finalOp.Start()
		},
		onError:   o.r.Error,
		onStopped: o.r.Stopped,
	})
	op.Start()
}
