package pool

import (
	"context"
	"unsafe"

	sio "github.com/maikel/sio-go"
)

// errAllocateSender immediately errors every receiver it connects to; it
// exists so Allocate can reject an invalid size without a separate
// fallible-constructor step, matching the Go idiom of returning usable
// zero-cost values for invariant violations instead of panicking eagerly.
type errAllocateSender struct{ err error }

type errAllocateOperation struct {
	err error
	r   sio.Receiver[unsafe.Pointer]
}

func (o *errAllocateOperation) Start() { o.r.Error(o.err) }

func (s errAllocateSender) Connect(ctx context.Context, r sio.Receiver[unsafe.Pointer]) sio.Operation {
	return &errAllocateOperation{err: s.err, r: r}
}

type allocateSender struct {
	pool   *Pool
	bucket int
}

func (s allocateSender) Connect(ctx context.Context, r sio.Receiver[unsafe.Pointer]) sio.Operation {
	return &allocateOperation{pool: s.pool, bucket: s.bucket, ctx: ctx, r: r}
}

type allocateOperation struct {
	pool   *Pool
	bucket int
	ctx    context.Context
	r      sio.Receiver[unsafe.Pointer]
	stop   func() bool

	// prev/next link this operation into its bucket's waiterList while
	// parked; nil otherwise.
	prev, next *allocateOperation
}

func (o *allocateOperation) deliver(ptr unsafe.Pointer) {
	o.r.Value(ptr)
}

func (o *allocateOperation) Start() {
	p := o.pool
	bs := &p.buckets[o.bucket]

	p.mu.Lock()
	if bs.free != nil {
		blk := bs.free
		bs.free = blk.next
		p.mu.Unlock()
		o.deliver(blockToPtr(blk))
		return
	}
	p.mu.Unlock()

	buf, err := p.upstream(1 << o.bucket)
	if err != nil {
		p.mu.Lock()
		bs.waiters.pushBack(o)
		p.mu.Unlock()
		o.stop = context.AfterFunc(o.ctx, func() {
			p.mu.Lock()
			removed := bs.waiters.remove(o)
			p.mu.Unlock()
			if removed {
				o.r.Stopped()
			}
		})
		return
	}

	blk := (*blockHeader)(unsafe.Pointer(&buf[0]))
	blk.bucket = uint8(o.bucket)
	o.deliver(blockToPtr(blk))
}

type deallocateSender struct {
	pool *Pool
	ptr  unsafe.Pointer
}

func (s deallocateSender) Connect(ctx context.Context, r sio.Receiver[struct{}]) sio.Operation {
	return &deallocateOperation{pool: s.pool, ptr: s.ptr, r: r}
}

type deallocateOperation struct {
	pool *Pool
	ptr  unsafe.Pointer
	r    sio.Receiver[struct{}]
}

func (o *deallocateOperation) Start() {
	o.pool.reclaim(o.ptr)
	o.r.Value(struct{}{})
}
