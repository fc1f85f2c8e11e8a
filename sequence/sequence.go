// Package sequence implements the sequence algebra of SPEC_FULL.md §4.6:
// combinators over sio.SequenceSender built the way
// original_source/source/sio/sequence/*.hpp composes senders, rendered as
// Go generic functions instead of C++ template classes. Every combinator
// here is a plain value holding just enough state to build an Operation on
// Subscribe; none of them retain state across subscriptions.
package sequence

import (
	"context"

	sio "github.com/maikel/sio-go"
)

// funcReceiver adapts three plain callbacks to sio.Receiver[T], the
// connective tissue every combinator below uses to observe a child
// sender's completion without defining a fresh named type per call site.
type funcReceiver[T any] struct {
	onValue   func(T)
	onError   func(error)
	onStopped func()
}

func (r funcReceiver[T]) Value(v T) {
	if r.onValue != nil {
		r.onValue(v)
	}
}

func (r funcReceiver[T]) Error(err error) {
	if r.onError != nil {
		r.onError(err)
	}
}

func (r funcReceiver[T]) Stopped() {
	if r.onStopped != nil {
		r.onStopped()
	}
}

// justSender delivers v and nothing else; the item sender every
// value-producing combinator below hands to SetNext.
type justSender[T any] struct{ v T }

type justOperation[T any] struct {
	v T
	r sio.Receiver[T]
}

func (o *justOperation[T]) Start() { o.r.Value(o.v) }

func (s justSender[T]) Connect(ctx context.Context, r sio.Receiver[T]) sio.Operation {
	return &justOperation[T]{v: s.v, r: r}
}

// errorSender delivers err and nothing else.
type errorSender[T any] struct{ err error }

type errorOperation[T any] struct {
	err error
	r   sio.Receiver[T]
}

func (o *errorOperation[T]) Start() { o.r.Error(o.err) }

func (s errorSender[T]) Connect(ctx context.Context, r sio.Receiver[T]) sio.Operation {
	return &errorOperation[T]{err: s.err, r: r}
}

// envSender wraps an inner SequenceSender, reporting env instead of the
// inner sender's own Environment(). Supplements original_source/source/sio/
// with_env.hpp: every combinator in this package consults Environment() to
// decide how aggressively it may overlap item processing, and tests need a
// way to force both a lock-step and a concurrent double of the same
// sequence.
func WithEnv[T any](s sio.SequenceSender[T], env sio.Environment) sio.SequenceSender[T] {
	return envSender[T]{inner: s, env: env}
}

type envSender[T any] struct {
	inner sio.SequenceSender[T]
	env   sio.Environment
}

func (s envSender[T]) Environment() sio.Environment { return s.env }

func (s envSender[T]) Subscribe(ctx context.Context, r sio.SequenceReceiver[T]) sio.Operation {
	return s.inner.Subscribe(ctx, r)
}

// Empty is the zero-item sequence sender: it completes its terminal
// Receiver[struct{}] with Value(struct{}{}) without ever calling SetNext.
// Ports original_source/source/sio/sequence/empty_sequence.hpp.
func Empty[T any]() sio.SequenceSender[T] {
	return emptySender[T]{}
}

type emptySender[T any] struct{}

func (emptySender[T]) Environment() sio.Environment {
	return sio.BasicEnvironment{Card: sio.CardinalityFinite, Par: sio.ParallelismLockstep, StopOnItemEnd: true}
}

func (emptySender[T]) Subscribe(ctx context.Context, r sio.SequenceReceiver[T]) sio.Operation {
	return &emptyOperation[T]{r: r}
}

type emptyOperation[T any] struct{ r sio.SequenceReceiver[T] }

func (o *emptyOperation[T]) Start() { o.r.Value(struct{}{}) }
