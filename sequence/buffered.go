package sequence

import (
	"context"

	sio "github.com/maikel/sio-go"
	"github.com/maikel/sio-go/buffer"
)

// BytesTransferred is the accessor BufferedSequence's item type must expose
// so the combinator can advance the view/offset after each call.
type BytesTransferred interface {
	BytesTransferred() int
}

// BufferedSequence turns a single large buffer and a starting offset into a
// sequence that repeatedly calls factory(currentView, currentOffset),
// reporting one Value(item) per call, until the view is drained or a call
// reports zero bytes transferred. After each successful item the view and
// offset advance by the reported byte count; failure or stoppage terminates
// the sequence with that same completion. resource.Read/Write compose a
// single-shot byte-range sender with this combinator to turn a possibly-
// short syscall into a full-range loop, per spec.md §4.4.
func BufferedSequence[T BytesTransferred](factory func(view buffer.MutableBuffer, offset int64) sio.Sender[T], buf buffer.MutableBuffer, offset int64) sio.SequenceSender[T] {
	return bufferedSender[T]{factory: factory, buf: buf, offset: offset}
}

type bufferedSender[T BytesTransferred] struct {
	factory func(view buffer.MutableBuffer, offset int64) sio.Sender[T]
	buf     buffer.MutableBuffer
	offset  int64
}

func (s bufferedSender[T]) Environment() sio.Environment {
	return sio.BasicEnvironment{Card: sio.CardinalityFinite, Par: sio.ParallelismLockstep, StopOnItemEnd: true}
}

func (s bufferedSender[T]) Subscribe(ctx context.Context, r sio.SequenceReceiver[T]) sio.Operation {
	return &bufferedOperation[T]{factory: s.factory, view: s.buf, offset: s.offset, ctx: ctx, r: r}
}

type bufferedOperation[T BytesTransferred] struct {
	factory func(view buffer.MutableBuffer, offset int64) sio.Sender[T]
	view    buffer.MutableBuffer
	offset  int64
	ctx     context.Context
	r       sio.SequenceReceiver[T]
}

func (o *bufferedOperation[T]) Start() { o.advance() }

func (o *bufferedOperation[T]) advance() {
	if o.ctx.Err() != nil {
		o.r.Stopped()
		return
	}
	if o.view.Empty() {
		o.r.Value(struct{}{})
		return
	}

	item := o.factory(o.view, o.offset)
	op := item.Connect(o.ctx, funcReceiver[T]{
		onValue: func(v T) {
			n := v.BytesTransferred()
			next := o.r.SetNext(justSender[T]{v: v})
			contOp := next.Connect(o.ctx, funcReceiver[struct{}]{
				onValue: func(struct{}) {
					if n <= 0 {
						o.r.Value(struct{}{})
						return
					}
					o.view = o.view.Advance(n)
					o.offset += int64(n)
					o.advance()
				},
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
