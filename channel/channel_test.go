package channel

import (
	"context"
	"sync"
	"testing"
	"time"

	sio "github.com/maikel/sio-go"
)

// justSender delivers v and nothing else, mirroring the leaf helper every
// other package in this module carries under its own name.
type justSender[T any] struct{ v T }

func (s justSender[T]) Connect(ctx context.Context, r sio.Receiver[T]) sio.Operation {
	return justOperation[T]{v: s.v, r: r}
}

type justOperation[T any] struct {
	v T
	r sio.Receiver[T]
}

func (o justOperation[T]) Start() { o.r.Value(o.v) }

// oneItemSequence is a test-only SequenceSender producing exactly one item.
type oneItemSequence[T any] struct{ v T }

func (s oneItemSequence[T]) Environment() sio.Environment {
	return sio.BasicEnvironment{Card: sio.CardinalityFinite, Par: sio.ParallelismLockstep, StopOnItemEnd: true}
}

func (s oneItemSequence[T]) Subscribe(ctx context.Context, r sio.SequenceReceiver[T]) sio.Operation {
	return oneItemOperation[T]{v: s.v, ctx: ctx, r: r}
}

type oneItemOperation[T any] struct {
	v   T
	ctx context.Context
	r   sio.SequenceReceiver[T]
}

func (o oneItemOperation[T]) Start() {
	next := o.r.SetNext(justSender[T]{v: o.v})
	op := next.Connect(o.ctx, funcReceiver[struct{}]{onValue: func(struct{}) { o.r.Value(struct{}{}) }})
	op.Start()
}

// collectingReceiver observes every item delivered to a Subscribe
// sequence, recording them until the sequence ends.
type collectingReceiver[T any] struct {
	mu    sync.Mutex
	items []T
	done  chan struct{}
}

func newCollectingReceiver[T any]() *collectingReceiver[T] {
	return &collectingReceiver[T]{done: make(chan struct{})}
}

func (r *collectingReceiver[T]) SetNext(item sio.Sender[T]) sio.Sender[struct{}] {
	return ackSender[T]{r: r, item: item}
}

func (r *collectingReceiver[T]) Value(struct{}) { close(r.done) }
func (r *collectingReceiver[T]) Error(error)    { close(r.done) }
func (r *collectingReceiver[T]) Stopped()       { close(r.done) }

// ackSender records the delivered item and immediately acknowledges it,
// ready for the next one.
type ackSender[T any] struct {
	r    *collectingReceiver[T]
	item sio.Sender[T]
}

func (s ackSender[T]) Connect(ctx context.Context, r sio.Receiver[struct{}]) sio.Operation {
	return ackOperation[T]{s: s, r: r}
}

type ackOperation[T any] struct {
	s ackSender[T]
	r sio.Receiver[struct{}]
}

func (o ackOperation[T]) Start() {
	op := o.s.item.Connect(context.Background(), funcReceiver[T]{
		onValue: func(v T) {
			o.s.r.mu.Lock()
			o.s.r.items = append(o.s.r.items, v)
			o.s.r.mu.Unlock()
			o.r.Value(struct{}{})
		},
	})
	op.Start()
}

func TestNotifyAllReachesAllSubscribers(t *testing.T) {
	var ch Channel[int]

	const n = 4
	subs := make([]*collectingReceiver[int], n)
	for i := range subs {
		subs[i] = newCollectingReceiver[int]()
		op := ch.Subscribe().Subscribe(context.Background(), subs[i])
		op.Start()
	}

	done := make(chan struct{})
	op := ch.NotifyAll(context.Background(), oneItemSequence[int]{v: 7}).Connect(context.Background(), funcReceiver[struct{}]{
		onValue: func(struct{}) { close(done) },
	})
	op.Start()
	<-done

	ch.Close(context.Background())

	for i, sub := range subs {
		select {
		case <-sub.done:
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d never ended its sequence", i)
		}
		sub.mu.Lock()
		got := append([]int(nil), sub.items...)
		sub.mu.Unlock()
		if len(got) != 1 || got[0] != 7 {
			t.Errorf("subscriber %d items = %v, want [7]", i, got)
		}
	}
}

func TestSubscribeEndsOnContextCancel(t *testing.T) {
	var ch Channel[int]

	ctx, cancel := context.WithCancel(context.Background())
	sub := newCollectingReceiver[int]()
	op := ch.Subscribe().Subscribe(ctx, sub)
	op.Start()

	cancel()

	select {
	case <-sub.done:
	case <-time.After(time.Second):
		t.Fatal("subscribe sequence never ended after context cancellation")
	}
}
