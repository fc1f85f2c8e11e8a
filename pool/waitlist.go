package pool

// waiterList is an intrusive doubly-linked FIFO of parked allocateOperations,
// mirroring original_source's intrusive_list<&allocate_operation_base::next_,
// &allocate_operation_base::prev_>: pushBack/popFront for the common path,
// plus O(1) removal by identity for context-cancellation unparking, with no
// allocation on either path — fitting for a memory pool's own wait queue.
type waiterList struct {
	head *allocateOperation
	tail *allocateOperation
}

func (l *waiterList) pushBack(op *allocateOperation) {
	op.prev = l.tail
	op.next = nil
	if l.tail != nil {
		l.tail.next = op
	} else {
		l.head = op
	}
	l.tail = op
}

func (l *waiterList) popFront() *allocateOperation {
	op := l.head
	if op == nil {
		return nil
	}
	l.remove(op)
	return op
}

func (l *waiterList) remove(op *allocateOperation) bool {
	if op.prev == nil && op.next == nil && l.head != op {
		return false // op is not (or no longer) in the list
	}
	if op.prev != nil {
		op.prev.next = op.next
	} else {
		l.head = op.next
	}
	if op.next != nil {
		op.next.prev = op.prev
	} else {
		l.tail = op.prev
	}
	op.prev, op.next = nil, nil
	return true
}

func (l *waiterList) empty() bool { return l.head == nil }
