// Package pool implements the async memory pool: 32 power-of-two
// free-lists, each with a FIFO wait list of parked allocation requests,
// falling through to an upstream allocator (mmap'd anonymous memory by
// default) on a free-list miss. Ported from
// original_source/source/sio/memory_pool.{hpp,cpp}: same bucket formula,
// same block header shape, same "oldest waiter wins on deallocate" rule,
// rendered as sio.Sender/Receiver instead of stdexec senders.
package pool

import (
	"errors"
	"math/bits"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	sio "github.com/maikel/sio-go"
)

// ErrInvalidBucket is returned when a requested size does not fall within
// any of the pool's 32 power-of-two buckets.
var ErrInvalidBucket = errors.New("pool: invalid size for bucket")

// ErrUpstreamExhausted is the error an Upstream may return on allocation
// failure; the pool responds by parking the request rather than failing
// it immediately.
var ErrUpstreamExhausted = errors.New("pool: upstream allocator exhausted")

const numBuckets = 32

// blockHeader precedes every block handed out by the pool. next links
// free blocks within a bucket's free-list; bucket records which free-list
// a block belongs to so Deallocate can find it again from a bare pointer.
type blockHeader struct {
	next   *blockHeader
	bucket uint8
}

var headerSize = int(unsafe.Sizeof(blockHeader{}))

// Upstream supplies fresh backing memory for a free-list miss. n is
// always a power of two. The default Upstream maps anonymous pages via
// golang.org/x/sys/unix.Mmap, matching the teacher's direct unix syscall
// style elsewhere in this module (internal/sys, resource).
type Upstream func(n int) ([]byte, error)

func defaultUpstream(n int) ([]byte, error) {
	pageSize := unix.Getpagesize()
	mapped := ((n + pageSize - 1) / pageSize) * pageSize
	buf, err := unix.Mmap(-1, 0, mapped, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

type bucketState struct {
	free    *blockHeader
	waiters waiterList
}

// Pool is the 32-bucket power-of-two memory pool. One mutex protects all
// free-lists and wait lists, matching spec §3's "one mutex" invariant.
type Pool struct {
	mu       sync.Mutex
	buckets  [numBuckets]bucketState
	upstream Upstream
}

// Option configures a Pool at construction time.
type Option func(*Pool)

// WithUpstream overrides the pool's backing allocator.
func WithUpstream(u Upstream) Option {
	return func(p *Pool) { p.upstream = u }
}

// New returns a Pool backed by defaultUpstream unless overridden.
func New(opts ...Option) *Pool {
	p := &Pool{upstream: defaultUpstream}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func bucketFor(size int) (int, error) {
	if size < 0 {
		return 0, ErrInvalidBucket
	}
	total := size + headerSize
	bucket := bits.Len(uint(total - 1))
	if total <= 1 {
		bucket = 0
	}
	if bucket < 0 || bucket >= numBuckets {
		return 0, ErrInvalidBucket
	}
	return bucket, nil
}

func blockToPtr(b *blockHeader) unsafe.Pointer {
	return unsafe.Add(unsafe.Pointer(b), headerSize)
}

func ptrToBlock(ptr unsafe.Pointer) *blockHeader {
	return (*blockHeader)(unsafe.Add(ptr, -headerSize))
}

// Allocate returns a Sender that completes with a pointer to at least size
// bytes of memory, parking until a matching block is deallocated if the
// pool and its upstream are both exhausted; a parked request completes
// with Stopped() if its context is canceled first.
func (p *Pool) Allocate(size int) sio.Sender[unsafe.Pointer] {
	bucket, err := bucketFor(size)
	if err != nil {
		return errAllocateSender{err: err}
	}
	return allocateSender{pool: p, bucket: bucket}
}

// Deallocate returns a Sender that returns ptr to the pool, either waking
// the oldest parked allocation request for its bucket or pushing it back
// onto the bucket's free-list.
func (p *Pool) Deallocate(ptr unsafe.Pointer) sio.Sender[struct{}] {
	return deallocateSender{pool: p, ptr: ptr}
}

func (p *Pool) reclaim(ptr unsafe.Pointer) {
	blk := ptrToBlock(ptr)
	bucket := int(blk.bucket)

	p.mu.Lock()
	bs := &p.buckets[bucket]
	if op := bs.waiters.popFront(); op != nil {
		p.mu.Unlock()
		if op.stop != nil {
			op.stop()
		}
		op.deliver(ptr)
		return
	}
	blk.next = bs.free
	bs.free = blk
	p.mu.Unlock()
}

// Close returns every free block in every bucket to the operating system.
// It does not wait for outstanding allocations; callers must ensure all
// blocks have been deallocated first.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	pageSize := unix.Getpagesize()
	for i := range p.buckets {
		blockSize := 1 << i
		mapped := ((blockSize + pageSize - 1) / pageSize) * pageSize
		blk := p.buckets[i].free
		for blk != nil {
			next := blk.next
			buf := unsafe.Slice((*byte)(unsafe.Pointer(blk)), mapped)
			if err := unix.Munmap(buf); err != nil && firstErr == nil {
				firstErr = err
			}
			blk = next
		}
		p.buckets[i].free = nil
	}
	return firstErr
}
