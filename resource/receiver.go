package resource

import (
	"context"

	sio "github.com/maikel/sio-go"
)

// funcReceiver adapts three plain callbacks to sio.Receiver[T]. Duplicated
// from sequence's unexported helper of the same shape rather than shared
// across package boundaries — each package in this module that composes
// senders carries its own copy, the same way the teacher repeats small
// leaf helpers per file instead of factoring a micro-package for them.
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

// justSender delivers v and nothing else.
type justSender[T any] struct{ v T }

type justOperation[T any] struct {
	v T
	r sio.Receiver[T]
}

func (o *justOperation[T]) Start() { o.r.Value(o.v) }

func (s justSender[T]) Connect(ctx context.Context, r sio.Receiver[T]) sio.Operation {
	return &justOperation[T]{v: s.v, r: r}
}
