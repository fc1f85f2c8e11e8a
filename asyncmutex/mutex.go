// Package asyncmutex implements the lock-free MPSC mutex of spec.md §4.8:
// a Lock() sender that never blocks a goroutine, queuing instead onto an
// intrusive MPSC stack and granting the lock inline to whichever batch of
// waiters the current drainer happens to own.
package asyncmutex

import (
	"context"
	"sync/atomic"

	sio "github.com/maikel/sio-go"
	"github.com/maikel/sio-go/internal/sys"
	"github.com/maikel/sio-go/task"
)

// Mutex grants mutual exclusion without ever parking a goroutine: Lock's
// Sender completes inline, synchronously, from whichever goroutine is
// currently draining the waiter queue. There is no separate Unlock — the
// next waiter in the batch is completed as soon as the current one's
// continuation returns control to the drain loop, per spec.md §4.8.
type Mutex struct {
	queue    task.MPSCQueue
	draining atomic.Bool
}

// Lock returns a Sender that completes once this goroutine's turn to hold
// the mutex arrives.
func (m *Mutex) Lock() sio.Sender[struct{}] { return lockSender{m: m} }

type lockSender struct{ m *Mutex }

func (s lockSender) Connect(ctx context.Context, r sio.Receiver[struct{}]) sio.Operation {
	return &lockOperation{m: s.m, r: r}
}

type lockOperation struct {
	self task.Task
	m    *Mutex
	r    sio.Receiver[struct{}]
}

func (o *lockOperation) Start() {
	o.self.CompleteFn = func(sys.CQE) { o.r.Value(struct{}{}) }
	o.m.queue.Push(&o.self)
	o.m.drain()
}

// drain claims the drainer role if nobody else holds it, then repeatedly
// pops whatever has been queued and completes it inline until the queue is
// observed empty. The CAS-release-then-recheck shape closes the race
// window where a waiter is pushed after the last batch is drained but
// before the draining flag is cleared.
func (m *Mutex) drain() {
	if !m.draining.CompareAndSwap(false, true) {
		return
	}
	for {
		for {
			batch := m.queue.DrainAll()
			t := batch.PopFront()
			if t == nil {
				break
			}
			for t != nil {
				t.Complete(sys.CQE{})
				t = batch.PopFront()
			}
		}
		m.draining.Store(false)
		if m.queue.Empty() {
			return
		}
		if !m.draining.CompareAndSwap(false, true) {
			return
		}
	}
}
