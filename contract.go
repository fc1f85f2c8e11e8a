// Package sio defines the sender/receiver/sequence contract every other
// package in this module builds operations on top of. Go has no coroutine
// or sender-composition substrate to mirror the original C++ design, so
// the contract is expressed with generics plus context.Context standing in
// for the hierarchical stop-token tree — the same substitution
// ehrlich-b-go-ublk's internal/queue.Runner and ianic-xnet/aio's Loop.Run
// make for their own cancellation plumbing.
package sio

import "context"

// Receiver observes exactly one of Value, Error, or Stopped, exactly once,
// for the sender it was connected to.
type Receiver[T any] interface {
	Value(v T)
	Error(err error)
	Stopped()
}

// Sender describes a single asynchronous value production. Connect never
// starts work; the returned Operation's Start does.
type Sender[T any] interface {
	Connect(ctx context.Context, r Receiver[T]) Operation
}

// Operation is the connected, not-yet-started state of a Sender.
type Operation interface {
	Start()
}

// NextReceiver is the per-item half of a sequence receiver. SetNext is
// invoked exactly once per item, before that item's sender starts, and
// returns a sender that completes when the receiver is ready to observe
// (or discard, via Stopped) the item that follows.
type NextReceiver[T any] interface {
	SetNext(item Sender[T]) Sender[struct{}]
}

// SequenceSender produces a (possibly unbounded) series of items before a
// single terminal completion.
type SequenceSender[T any] interface {
	Subscribe(ctx context.Context, r SequenceReceiver[T]) Operation
	Environment() Environment
}

// SequenceReceiver observes a sequence's items via NextReceiver and its own
// terminal completion via the embedded Receiver[struct{}].
type SequenceReceiver[T any] interface {
	NextReceiver[T]
	Receiver[struct{}]
}

// Cardinality describes how many items a sequence sender is known to
// produce, when known ahead of subscription.
type Cardinality int

const (
	// CardinalityUnknown means the sequence's item count cannot be
	// determined before subscribing.
	CardinalityUnknown Cardinality = iota
	// CardinalityFinite means the sequence produces a bounded, but not
	// otherwise known, number of items.
	CardinalityFinite
	// CardinalityUnbounded means the sequence may run forever absent
	// external cancellation (e.g. Repeat).
	CardinalityUnbounded
)

// Parallelism describes how a sequence's adapters are allowed to overlap
// item processing.
type Parallelism int

const (
	// ParallelismLockstep requires item N+1 to wait for item N's
	// next-sender to complete before starting.
	ParallelismLockstep Parallelism = iota
	// ParallelismConcurrent allows items to be in flight simultaneously.
	ParallelismConcurrent
	// ParallelismParallel additionally permits items to run on distinct
	// ioruntime.Context goroutines (meaningful only under a thread pool).
	ParallelismParallel
)

// Environment is the queryable bag of properties a sequence sender exposes
// about its own execution contract, consulted by adapters that need to
// decide how aggressively they may overlap work.
type Environment interface {
	Cardinality() Cardinality
	Parallelism() Parallelism
	StopsOnItemStop() bool
}

// BasicEnvironment is a plain value implementing Environment, used by leaf
// sequence senders and by WithEnv to override an inner sender's contract.
type BasicEnvironment struct {
	Card          Cardinality
	Par           Parallelism
	StopOnItemEnd bool
}

func (e BasicEnvironment) Cardinality() Cardinality { return e.Card }
func (e BasicEnvironment) Parallelism() Parallelism { return e.Par }
func (e BasicEnvironment) StopsOnItemStop() bool    { return e.StopOnItemEnd }

// DefaultEnvironment is the conservative default: unknown cardinality,
// lockstep parallelism, stops on the first item's Stopped().
var DefaultEnvironment = BasicEnvironment{
	Card:          CardinalityUnknown,
	Par:           ParallelismLockstep,
	StopOnItemEnd: true,
}
