package task

import (
	"sync"
	"testing"
)

func TestMPSCQueueSingleProducerOrder(t *testing.T) {
	var q MPSCQueue
	var a, b, c Task
	q.Push(&a)
	q.Push(&b)
	q.Push(&c)

	drained := q.DrainAll()
	got := []*Task{drained.PopFront(), drained.PopFront(), drained.PopFront()}
	want := []*Task{&a, &b, &c}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("drained[%d] = %p, want %p", i, got[i], want[i])
		}
	}
	if !q.Empty() {
		t.Error("queue should report empty after DrainAll")
	}
}

func TestMPSCQueueConcurrentProducers(t *testing.T) {
	const producers = 20
	const perProducer = 500

	var q MPSCQueue
	tasks := make([]Task, producers*perProducer)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(&tasks[p*perProducer+i])
			}
		}(p)
	}
	wg.Wait()

	seen := make(map[*Task]bool, len(tasks))
	fifo := q.DrainAll()
	for {
		tk := fifo.PopFront()
		if tk == nil {
			break
		}
		if seen[tk] {
			t.Fatalf("task %p observed twice", tk)
		}
		seen[tk] = true
	}
	if len(seen) != len(tasks) {
		t.Fatalf("drained %d tasks, want %d", len(seen), len(tasks))
	}
}
