package ioruntime

import (
	"context"
	"sync"
	"sync/atomic"

	sio "github.com/maikel/sio-go"
	"github.com/maikel/sio-go/task"
)

// defaultStealRingCapacity bounds how many overflow tasks a single Context
// may shed to its siblings before Push starts failing and shedOverflow
// falls back to keeping the excess locally.
const defaultStealRingCapacity = 256

// defaultOverflowThreshold is the pending-queue length, per Context, above
// which a StaticThreadPool member starts shedding work for idle siblings
// to steal. Chosen small on purpose: shedding early keeps siblings fed
// without the owning Context ever starving itself.
const defaultOverflowThreshold = 4

// StaticThreadPool owns a fixed number of Contexts, each pinned for its
// lifetime to its own worker goroutine ("dedicated thread" rendered as
// "dedicated goroutine" — Go's scheduler, not the OS, does the
// multiplexing). External submitters round-robin across members; a
// Context's own callbacks should call that Context's Submit/Scheduler
// directly instead of going back through the pool, since Go has no
// ambient goroutine-local storage to recover "my own Context" from inside
// a callback automatically.
type StaticThreadPool struct {
	contexts []*Context
	next     atomic.Uint64

	wg      sync.WaitGroup
	cancel  context.CancelFunc
	runErrs []error
	mu      sync.Mutex
}

// ThreadPoolOption configures a StaticThreadPool at construction time.
type ThreadPoolOption func(*threadPoolConfig)

type threadPoolConfig struct {
	entries           uint32
	ringCapacity      int
	overflowThreshold int
	ctxOpts           []Option
}

// WithContextEntries overrides the io_uring size of every member Context
// (default 256, matching the teacher's default ring size elsewhere in this
// module).
func WithContextEntries(n uint32) ThreadPoolOption {
	return func(cfg *threadPoolConfig) { cfg.entries = n }
}

// WithStealRingCapacity overrides the per-Context work-stealing ring
// capacity (default defaultStealRingCapacity).
func WithStealRingCapacity(n int) ThreadPoolOption {
	return func(cfg *threadPoolConfig) { cfg.ringCapacity = n }
}

// WithOverflowThreshold overrides the pending-queue length at which a
// member Context starts shedding overflow for siblings to steal (default
// defaultOverflowThreshold).
func WithOverflowThreshold(n int) ThreadPoolOption {
	return func(cfg *threadPoolConfig) { cfg.overflowThreshold = n }
}

// WithContextOptions passes additional Options through to every member
// Context's construction (e.g. WithLogger).
func WithContextOptions(opts ...Option) ThreadPoolOption {
	return func(cfg *threadPoolConfig) { cfg.ctxOpts = append(cfg.ctxOpts, opts...) }
}

// NewStaticThreadPool constructs n Contexts, wires each one's work-stealing
// ring to every sibling, and returns the pool without starting any worker
// goroutine yet — call Run to start draining.
func NewStaticThreadPool(n int, opts ...ThreadPoolOption) (*StaticThreadPool, error) {
	if n < 1 {
		n = 1
	}
	cfg := threadPoolConfig{
		entries:           256,
		ringCapacity:      defaultStealRingCapacity,
		overflowThreshold: defaultOverflowThreshold,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	rings := make([]*task.SPMCRing, n)
	for i := range rings {
		rings[i] = task.NewSPMCRing(cfg.ringCapacity)
	}

	contexts := make([]*Context, n)
	for i := range contexts {
		ctxOpts := append(append([]Option(nil), cfg.ctxOpts...), WithStealRing(rings[i], cfg.overflowThreshold))
		c, err := New(cfg.entries, ctxOpts...)
		if err != nil {
			for j := 0; j < i; j++ {
				contexts[j].Close()
			}
			return nil, err
		}
		contexts[i] = c
	}
	for i, c := range contexts {
		siblings := make([]*task.SPMCRing, 0, n-1)
		for j, r := range rings {
			if j != i {
				siblings = append(siblings, r)
			}
		}
		c.setSiblings(siblings)
	}

	return &StaticThreadPool{contexts: contexts}, nil
}

// Len returns the number of Contexts in the pool.
func (p *StaticThreadPool) Len() int { return len(p.contexts) }

// Context returns the i'th member Context directly, e.g. so a caller can
// build its own Scheduler-bound work ahead of Run.
func (p *StaticThreadPool) Context(i int) *Context { return p.contexts[i] }

// Submit round-robins t across member Contexts' cross-thread request
// queues. Safe to call from any goroutine, including one of the pool's own
// worker goroutines — though code running inside a Context's own callback
// should prefer that Context's own Submit/Scheduler so it keeps running on
// the same goroutine instead of bouncing to a sibling.
func (p *StaticThreadPool) Submit(t *task.Task) bool {
	i := p.next.Add(1) - 1
	return p.contexts[i%uint64(len(p.contexts))].Submit(t)
}

// Scheduler returns a Scheduler that round-robins Schedule() calls across
// the pool's Contexts the same way Submit does.
func (p *StaticThreadPool) Scheduler() Scheduler {
	return poolScheduler{p: p}
}

type poolScheduler struct{ p *StaticThreadPool }

func (s poolScheduler) Schedule() sio.Sender[struct{}] {
	i := s.p.next.Add(1) - 1
	c := s.p.contexts[i%uint64(len(s.p.contexts))]
	return c.Scheduler().Schedule()
}

// Run starts one worker goroutine per Context, each calling
// RunUntilStopped(ctx) until ctx is canceled or Stop is called, and
// returns immediately. Wait blocks until every worker has returned.
func (p *StaticThreadPool) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	for _, c := range p.contexts {
		c := c
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			if err := c.RunUntilStopped(runCtx); err != nil {
				p.mu.Lock()
				p.runErrs = append(p.runErrs, err)
				p.mu.Unlock()
			}
		}()
	}
}

// Stop cancels every member Context's run loop. It does not block; call
// Wait to observe completion.
func (p *StaticThreadPool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	for _, c := range p.contexts {
		c.RequestStop()
	}
}

// Wait blocks until every worker goroutine started by Run has returned,
// then returns the first error (if any) reported by a member Context's
// RunUntilStopped.
func (p *StaticThreadPool) Wait() error {
	p.wg.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.runErrs) > 0 {
		return p.runErrs[0]
	}
	return nil
}

// Close closes every member Context. The pool must not be running.
func (p *StaticThreadPool) Close() error {
	var firstErr error
	for _, c := range p.contexts {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
