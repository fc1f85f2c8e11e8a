package asyncmutex

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	sio "github.com/maikel/sio-go"
)

type recordingReceiver struct {
	onValue func(struct{})
}

func (r recordingReceiver) Value(struct{}) { r.onValue(struct{}{}) }
func (r recordingReceiver) Error(error)     {}
func (r recordingReceiver) Stopped()        {}

// lockInline runs critical while holding m: the lock is held only for the
// duration of the completion callback, since there is no separate Unlock.
func lockInline(t *testing.T, m *Mutex, critical func()) {
	t.Helper()
	done := make(chan struct{})
	op := m.Lock().Connect(context.Background(), recordingReceiver{onValue: func(struct{}) {
		critical()
		close(done)
	}})
	op.Start()
	<-done
}

func TestMutexUncontendedLockCompletesInline(t *testing.T) {
	var m Mutex
	completed := false
	op := m.Lock().Connect(context.Background(), recordingReceiver{onValue: func(struct{}) { completed = true }})
	op.Start()
	if !completed {
		t.Fatal("Lock() did not complete inline with no contention")
	}
}

func TestMutexSerializesConcurrentHolders(t *testing.T) {
	var m Mutex
	var active atomic.Int32
	var maxActive atomic.Int32
	var total atomic.Int32

	const n = 64
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			lockInline(t, &m, func() {
				cur := active.Add(1)
				for {
					old := maxActive.Load()
					if cur <= old || maxActive.CompareAndSwap(old, cur) {
						break
					}
				}
				total.Add(1)
				active.Add(-1)
			})
		}()
	}
	wg.Wait()

	if got := total.Load(); got != n {
		t.Fatalf("held the lock %d times, want %d", got, n)
	}
	if got := maxActive.Load(); got != 1 {
		t.Errorf("max concurrently-active holders = %d, want 1", got)
	}
}

var _ sio.Sender[struct{}] = lockSender{}
