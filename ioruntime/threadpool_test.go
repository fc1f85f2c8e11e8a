//go:build linux

package ioruntime

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestStaticThreadPoolRoundRobinsSubmit(t *testing.T) {
	skipIfNoIOURing(t)

	p, err := NewStaticThreadPool(3, WithContextEntries(8))
	if err != nil {
		t.Fatalf("NewStaticThreadPool() error = %v", err)
	}
	defer p.Close()

	if p.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", p.Len())
	}

	p.Run(context.Background())
	defer func() {
		p.Stop()
		if err := p.Wait(); err != nil {
			t.Errorf("Wait() error = %v", err)
		}
	}()
	time.Sleep(20 * time.Millisecond)

	const nTasks = 30
	var done int32
	for i := 0; i < nTasks; i++ {
		tk, _ := readyTask()
		tk.CompleteFn = markDone(&done)
		if !p.Submit(tk) {
			t.Fatalf("Submit() = false at task %d", i)
		}
	}

	deadline := time.After(5 * time.Second)
	for atomic.LoadInt32(&done) < nTasks {
		select {
		case <-deadline:
			t.Fatalf("only %d/%d submitted tasks completed", atomic.LoadInt32(&done), nTasks)
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func TestStaticThreadPoolStopDrainsAndReturns(t *testing.T) {
	skipIfNoIOURing(t)

	p, err := NewStaticThreadPool(2, WithContextEntries(8))
	if err != nil {
		t.Fatalf("NewStaticThreadPool() error = %v", err)
	}
	defer p.Close()

	p.Run(context.Background())
	time.Sleep(20 * time.Millisecond)

	var done int32
	for i := 0; i < 5; i++ {
		tk, _ := readyTask()
		tk.CompleteFn = markDone(&done)
		if !p.Submit(tk) {
			t.Fatalf("Submit() = false at task %d", i)
		}
	}

	time.Sleep(20 * time.Millisecond)
	p.Stop()

	waitDone := make(chan error, 1)
	go func() { waitDone <- p.Wait() }()

	select {
	case err := <-waitDone:
		if err != nil {
			t.Errorf("Wait() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Wait() did not return after Stop()")
	}
}
