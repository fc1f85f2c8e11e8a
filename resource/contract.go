// Package resource implements the async-resource protocol of spec.md §4.5
// (Resource/Token, Use, UseResources) and the concrete File/Socket/
// Acceptor/Resolver handles of §4.3 built on top of ioruntime.Context. Every
// I/O operation here embeds a task.Task whose SQE-filling logic is ported
// 1:1 from ehrlich-b-go-iouring/sqe.go's Prep* functions, generalized to
// route through a Context's run loop instead of calling a Ring's Prep*
// methods directly from arbitrary goroutines.
package resource

import (
	"context"

	sio "github.com/maikel/sio-go"
	"github.com/maikel/sio-go/sequence"
)

// Resource exposes an asynchronous factory for a Token whose lifetime is
// scoped by Use/UseResources to the body that consumes it.
type Resource[T any] interface {
	Open() sio.Sender[T]
}

// Token is a value whose lifetime is closed deterministically on every exit
// path out of Use/UseResources's body.
type Token interface {
	Close() sio.Sender[struct{}]
}

// Use turns r into a sequence of exactly one item: the opened Token, valid
// for the duration of that item's use. Closing the Token is driven by the
// item's own next-sender completing, on every exit path — success, error,
// or stopped.
func Use[T Token](r Resource[T]) sio.SequenceSender[T] {
	return useSender[T]{r: r}
}

type useSender[T Token] struct{ r Resource[T] }

func (s useSender[T]) Environment() sio.Environment {
	return sio.BasicEnvironment{Card: sio.CardinalityFinite, Par: sio.ParallelismLockstep, StopOnItemEnd: true}
}

func (s useSender[T]) Subscribe(ctx context.Context, r sio.SequenceReceiver[T]) sio.Operation {
	return &useOperation[T]{r: s.r, ctx: ctx, outer: r}
}

type useOperation[T Token] struct {
	r     Resource[T]
	ctx   context.Context
	outer sio.SequenceReceiver[T]
}

func (o *useOperation[T]) Start() {
	openOp := o.r.Open().Connect(o.ctx, funcReceiver[T]{
		onValue:   o.runItem,
		onError:   o.outer.Error,
		onStopped: o.outer.Stopped,
	})
	openOp.Start()
}

func (o *useOperation[T]) runItem(tok T) {
	next := o.outer.SetNext(justSender[T]{v: tok})
	nextOp := next.Connect(o.ctx, funcReceiver[struct{}]{
		onValue: func(struct{}) {
			o.closeThen(tok, func(closeErr error) {
				if closeErr != nil {
					o.outer.Error(closeErr)
					return
				}
				o.outer.Value(struct{}{})
			})
		},
		onError: func(err error) {
			o.closeThen(tok, func(error) { o.outer.Error(err) })
		},
		onStopped: func() {
			o.closeThen(tok, func(closeErr error) {
				if closeErr != nil {
					o.outer.Error(closeErr)
					return
				}
				o.outer.Stopped()
			})
		},
	})
	nextOp.Start()
}

func (o *useOperation[T]) closeThen(tok T, cont func(closeErr error)) {
	closeOp := tok.Close().Connect(o.ctx, funcReceiver[struct{}]{
		onValue:   func(struct{}) { cont(nil) },
		onError:   func(err error) { cont(err) },
		onStopped: func() { cont(nil) },
	})
	closeOp.Start()
}

// UseResources opens every resource concurrently (unspecified order), zips
// the opened tokens into fn's variadic argument list, runs fn's returned
// sender as the combined item's body, and closes every successfully-opened
// token on every exit path regardless of order. Error precedence matches
// spec.md §4.5/§7 exactly: an open error propagates as the outer sender's
// error; a body error propagates once every close has completed; a close
// error surfaces only if no earlier error exists.
//
// The open/zip/run/close-on-every-exit discipline is sequence.Zip over each
// resource's own Use sequence: Use already brackets one resource's open and
// close around a single item, so zipping n of them produces exactly one
// tuple of tokens, and acking that tuple's item — after fn's returned
// sender settles — is exactly what releases every Use to close its token,
// with no separate close-tracking logic needed here.
func UseResources[R any](fn func(ctx context.Context, tokens ...Token) sio.Sender[R], resources ...Resource[Token]) sio.Sender[R] {
	return useResourcesSender[R]{fn: fn, resources: resources}
}

type useResourcesSender[R any] struct {
	fn        func(ctx context.Context, tokens ...Token) sio.Sender[R]
	resources []Resource[Token]
}

func (s useResourcesSender[R]) Connect(ctx context.Context, r sio.Receiver[R]) sio.Operation {
	return &useResourcesOperation[R]{fn: s.fn, resources: s.resources, ctx: ctx, r: r}
}

type useResourcesOperation[R any] struct {
	fn        func(ctx context.Context, tokens ...Token) sio.Sender[R]
	resources []Resource[Token]
	ctx       context.Context
	r         sio.Receiver[R]

	result   R
	hasValue bool
}

func (o *useResourcesOperation[R]) Start() {
	seqs := make([]sio.SequenceSender[Token], len(o.resources))
	for i, res := range o.resources {
		seqs[i] = Use[Token](res)
	}
	op := sequence.Zip(seqs...).Subscribe(o.ctx, o)
	op.Start()
}

// SetNext is called exactly once: every resource's Use sequence has
// exactly one item, so Zip produces exactly one tuple. It runs fn against
// the opened tokens and returns a sender that only settles once fn's own
// sender has, which is what Zip waits on before releasing every Use to
// close its token.
func (o *useResourcesOperation[R]) SetNext(item sio.Sender[[]Token]) sio.Sender[struct{}] {
	return useResourcesBodySender[R]{item: item, o: o}
}

func (o *useResourcesOperation[R]) Value(struct{}) {
	if o.hasValue {
		o.r.Value(o.result)
	}
}

func (o *useResourcesOperation[R]) Error(err error) { o.r.Error(err) }
func (o *useResourcesOperation[R]) Stopped()        { o.r.Stopped() }

type useResourcesBodySender[R any] struct {
	item sio.Sender[[]Token]
	o    *useResourcesOperation[R]
}

func (s useResourcesBodySender[R]) Connect(ctx context.Context, cont sio.Receiver[struct{}]) sio.Operation {
	return &useResourcesBodyOperation[R]{item: s.item, o: s.o, cont: cont, ctx: ctx}
}

type useResourcesBodyOperation[R any] struct {
	item sio.Sender[[]Token]
	o    *useResourcesOperation[R]
	cont sio.Receiver[struct{}]
	ctx  context.Context
}

func (o *useResourcesBodyOperation[R]) Start() {
	op := o.item.Connect(o.ctx, funcReceiver[[]Token]{
		onValue: func(tokens []Token) {
			bodyOp := o.o.fn(o.ctx, tokens...).Connect(o.ctx, funcReceiver[R]{
				onValue: func(v R) {
					o.o.result, o.o.hasValue = v, true
					o.cont.Value(struct{}{})
				},
				onError:   o.cont.Error,
				onStopped: o.cont.Stopped,
			})
			bodyOp.Start()
		},
		onError:   o.cont.Error,
		onStopped: o.cont.Stopped,
	})
	op.Start()
}
