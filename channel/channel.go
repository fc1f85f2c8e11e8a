// Package channel implements the multicast pub-sub point of spec.md §4.9:
// any number of concurrent Subscribe sequences, each fed every item passed
// to NotifyAll, guarded by an asyncmutex.Mutex instead of a blocking lock.
package channel

import (
	"context"
	"sync"

	sio "github.com/maikel/sio-go"
	"github.com/maikel/sio-go/asyncmutex"
)

// subscriber is one live registration, linked intrusively the way
// task.Task links onto the run loop's own queues.
type subscriber[T any] struct {
	next *subscriber[T]
	r    sio.SequenceReceiver[T]
}

// Channel is a multicast point: every item passed to NotifyAll reaches
// every subscriber registered through Subscribe at the time of delivery,
// concurrently.
type Channel[T any] struct {
	mu    asyncmutex.Mutex
	head  *subscriber[T]
	scope sync.WaitGroup
}

// Subscribe registers a new, unbounded sequence of items fed by future
// NotifyAll calls. The sequence ends when ctx is canceled or when Close is
// called on the channel.
func (c *Channel[T]) Subscribe() sio.SequenceSender[T] { return subscribeSender[T]{c: c} }

type subscribeSender[T any] struct{ c *Channel[T] }

func (s subscribeSender[T]) Environment() sio.Environment {
	return sio.BasicEnvironment{Card: sio.CardinalityUnbounded, Par: sio.ParallelismConcurrent, StopOnItemEnd: false}
}

func (s subscribeSender[T]) Subscribe(ctx context.Context, r sio.SequenceReceiver[T]) sio.Operation {
	return &subscribeOperation[T]{c: s.c, ctx: ctx, r: r}
}

type subscribeOperation[T any] struct {
	c    *Channel[T]
	ctx  context.Context
	r    sio.SequenceReceiver[T]
	node subscriber[T]
}

func (o *subscribeOperation[T]) Start() {
	o.node.r = o.r
	o.lock(func() {
		o.node.next = o.c.head
		o.c.head = &o.node
	})
	context.AfterFunc(o.ctx, o.unsubscribe)
}

func (o *subscribeOperation[T]) unsubscribe() {
	o.lock(func() { o.c.remove(&o.node) })
	o.r.Stopped()
}

func (o *subscribeOperation[T]) lock(fn func()) {
	op := o.c.mu.Lock().Connect(context.Background(), funcReceiver[struct{}]{onValue: func(struct{}) { fn() }})
	op.Start()
}

func (c *Channel[T]) remove(target *subscriber[T]) {
	if c.head == target {
		c.head = target.next
		return
	}
	for n := c.head; n != nil; n = n.next {
		if n.next == target {
			n.next = target.next
			return
		}
	}
}

// NotifyAll subscribes to items and, for each one delivered, fans it out
// concurrently to every subscriber registered at that moment, tracked by
// the channel's scope. The returned Sender completes once items itself
// completes — it does not wait for deliveries to be consumed; Close does.
func (c *Channel[T]) NotifyAll(ctx context.Context, items sio.SequenceSender[T]) sio.Sender[struct{}] {
	return notifyAllSender[T]{c: c, items: items}
}

type notifyAllSender[T any] struct {
	c     *Channel[T]
	items sio.SequenceSender[T]
}

func (s notifyAllSender[T]) Connect(ctx context.Context, r sio.Receiver[struct{}]) sio.Operation {
	return &notifyAllOperation[T]{c: s.c, items: s.items, ctx: ctx, r: r}
}

type notifyAllOperation[T any] struct {
	c     *Channel[T]
	items sio.SequenceSender[T]
	ctx   context.Context
	r     sio.Receiver[struct{}]
}

func (o *notifyAllOperation[T]) Start() {
	op := o.items.Subscribe(o.ctx, o)
	op.Start()
}

func (o *notifyAllOperation[T]) SetNext(item sio.Sender[T]) sio.Sender[struct{}] {
	return fanOutSender[T]{c: o.c, item: item}
}

func (o *notifyAllOperation[T]) Value(struct{}) { o.r.Value(struct{}{}) }
func (o *notifyAllOperation[T]) Error(err error) { o.r.Error(err) }
func (o *notifyAllOperation[T]) Stopped()        { o.r.Stopped() }

// fanOutSender delivers one item to the channel's current subscribers.
type fanOutSender[T any] struct {
	c    *Channel[T]
	item sio.Sender[T]
}

func (s fanOutSender[T]) Connect(ctx context.Context, r sio.Receiver[struct{}]) sio.Operation {
	return &fanOutOperation[T]{c: s.c, item: s.item, ctx: ctx, r: r}
}

type fanOutOperation[T any] struct {
	c    *Channel[T]
	item sio.Sender[T]
	ctx  context.Context
	r    sio.Receiver[struct{}]
}

func (o *fanOutOperation[T]) Start() {
	var subs []*subscriber[T]
	op := o.c.mu.Lock().Connect(o.ctx, funcReceiver[struct{}]{
		onValue: func(struct{}) {
			for n := o.c.head; n != nil; n = n.next {
				subs = append(subs, n)
			}
		},
	})
	op.Start()

	for _, sub := range subs {
		sub := sub
		o.c.scope.Add(1)
		go func() {
			defer o.c.scope.Done()
			next := sub.r.SetNext(o.item)
			nextOp := next.Connect(o.ctx, funcReceiver[struct{}]{
				onStopped: func() {
					o.lockRemove(sub)
					sub.r.Stopped()
				},
			})
			nextOp.Start()
		}()
	}
	o.r.Value(struct{}{})
}

func (o *fanOutOperation[T]) lockRemove(sub *subscriber[T]) {
	op := o.c.mu.Lock().Connect(context.Background(), funcReceiver[struct{}]{
		onValue: func(struct{}) { o.c.remove(sub) },
	})
	op.Start()
}

// Close completes every currently-registered subscriber's sequence with
// Value(), ending it normally, and waits for every in-flight NotifyAll
// delivery spawned by fanOutOperation to finish.
func (c *Channel[T]) Close(ctx context.Context) {
	op := c.mu.Lock().Connect(ctx, funcReceiver[struct{}]{
		onValue: func(struct{}) {
			for n := c.head; n != nil; n = n.next {
				n.r.Value(struct{}{})
			}
			c.head = nil
		},
	})
	op.Start()
	c.scope.Wait()
}
