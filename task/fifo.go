package task

// IntrusiveFIFO is a plain singly-linked FIFO of *Task, used for the
// intra-thread pending and high-priority-pending queues of an io_uring
// context. It is not safe for concurrent use — only the owning goroutine
// ever touches it.
type IntrusiveFIFO struct {
	head *Task
	tail *Task
	n    int
}

// PushBack appends t to the tail of the queue.
func (q *IntrusiveFIFO) PushBack(t *Task) {
	t.SetNext(nil)
	if q.tail == nil {
		q.head = t
		q.tail = t
	} else {
		q.tail.SetNext(t)
		q.tail = t
	}
	q.n++
}

// PushFront re-queues t at the head of the queue. Used to put a task back
// when the submission queue turned out to be full mid-drain, so it is
// retried first on the next pass instead of losing its place in line.
func (q *IntrusiveFIFO) PushFront(t *Task) {
	t.SetNext(q.head)
	q.head = t
	if q.tail == nil {
		q.tail = t
	}
	q.n++
}

// PopFront removes and returns the task at the head of the queue, or nil
// if the queue is empty.
func (q *IntrusiveFIFO) PopFront() *Task {
	t := q.head
	if t == nil {
		return nil
	}
	q.head = t.Next()
	if q.head == nil {
		q.tail = nil
	}
	t.SetNext(nil)
	q.n--
	return t
}

// Len returns the number of tasks currently queued.
func (q *IntrusiveFIFO) Len() int { return q.n }

// Empty reports whether the queue has no tasks.
func (q *IntrusiveFIFO) Empty() bool { return q.head == nil }

// AppendAll drains other onto the tail of q, in other's order, leaving
// other empty. Used to fold the MPSC request queue into pending each loop
// iteration (spec §4.2 run-loop step 3).
func (q *IntrusiveFIFO) AppendAll(other *IntrusiveFIFO) {
	for {
		t := other.PopFront()
		if t == nil {
			return
		}
		q.PushBack(t)
	}
}
