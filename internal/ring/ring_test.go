//go:build linux

package ring

import (
	"net"
	"os"
	"syscall"
	"testing"
	"time"
	"unsafe"
)

func skipIfNoIOURing(t *testing.T) {
	t.Helper()
	r, err := New(4)
	if err != nil {
		if err == syscall.ENOSYS {
			t.Skip("io_uring not supported on this kernel")
		}
		if err == syscall.EPERM {
			t.Skip("io_uring blocked by seccomp or permissions")
		}
		t.Skipf("io_uring unavailable: %v", err)
	}
	r.Close()
}

// withRing opens a ring with entries SQ slots, closing it on test cleanup.
func withRing(t *testing.T, entries uint32, opts ...Option) *Ring {
	t.Helper()
	skipIfNoIOURing(t)
	r, err := New(entries, opts...)
	if err != nil {
		t.Fatalf("New(%d) error = %v", entries, err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

// drain submits whatever is pending and waits for exactly n completions,
// returning them keyed by userData.
func drain(t *testing.T, r *Ring, n int) map[uint64]int32 {
	t.Helper()
	if _, err := r.Submit(); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	results := make(map[uint64]int32, n)
	for i := 0; i < n; i++ {
		userData, res, _, err := r.WaitCQE()
		if err != nil {
			t.Fatalf("WaitCQE() error = %v", err)
		}
		r.SeenCQE()
		results[userData] = res
	}
	return results
}

func TestNewRejectsZeroEntries(t *testing.T) {
	skipIfNoIOURing(t)

	if _, err := New(0); err != syscall.EINVAL {
		t.Fatalf("New(0) error = %v, want EINVAL", err)
	}
}

func TestNewRoundsEntriesAndOptionsApply(t *testing.T) {
	cases := []struct {
		name    string
		entries uint32
		opts    []Option
	}{
		{"small", 8, nil},
		{"non_power_of_two", 100, nil},
		{"single_issuer", 64, []Option{WithSingleIssuer()}},
		{"custom_cq_size", 64, []Option{WithCQSize(256)}},
		{"coop_taskrun", 64, []Option{WithCoopTaskrun()}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := withRing(t, tc.entries, tc.opts...)
			if r.Fd() < 0 {
				t.Error("Fd() < 0, want a valid descriptor")
			}
			if r.SQEntries() == 0 || r.CQEntries() == 0 {
				t.Errorf("SQEntries()=%d CQEntries()=%d, want both non-zero", r.SQEntries(), r.CQEntries())
			}
			if n := r.SQEntries(); n < tc.entries || n&(n-1) != 0 {
				t.Errorf("SQEntries() = %d, want a power of two >= %d", n, tc.entries)
			}
		})
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	r := withRing(t, 64)

	if err := r.Close(); err != nil {
		t.Fatalf("first Close() error = %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second Close() error = %v, want nil", err)
	}

	if _, err := r.Submit(); err != ErrRingClosed {
		t.Errorf("Submit() on closed ring = %v, want ErrRingClosed", err)
	}
}

// TestSingleGoroutineReuseWithoutLocking hammers GetSQE/Submit/PeekCQE
// sequentially from the one goroutine that is ever allowed to touch a Ring,
// the way ioruntime.Context's run loop does. There is no lock guarding this
// path any more, so the bookkeeping (sqPending, sqTail, cqHead) has to stay
// correct purely from sequential reuse across many rounds.
func TestSingleGoroutineReuseWithoutLocking(t *testing.T) {
	r := withRing(t, 32)

	const rounds = 200
	for round := 0; round < rounds; round++ {
		sqe := r.GetSQE()
		if sqe == nil {
			t.Fatalf("round %d: GetSQE() = nil, want a free SQE", round)
		}
		sqe.Opcode = uint8(0) // IORING_OP_NOP, avoids importing sys here
		sqe.UserData = uint64(round)

		if err := r.PrepNop(uint64(round) | 1<<32); err != nil {
			t.Fatalf("round %d: PrepNop() error = %v", round, err)
		}

		results := drain(t, r, 2)
		if _, ok := results[uint64(round)]; !ok {
			t.Fatalf("round %d: missing completion for raw GetSQE userData", round)
		}
		if _, ok := results[uint64(round)|1<<32]; !ok {
			t.Fatalf("round %d: missing completion for PrepNop userData", round)
		}
	}
}

func TestNopRoundTripThroughSubmitAndWait(t *testing.T) {
	r := withRing(t, 64)

	const n = 16
	for i := 0; i < n; i++ {
		if err := r.PrepNop(uint64(i) + 1); err != nil {
			t.Fatalf("PrepNop(%d) error = %v", i, err)
		}
	}
	if r.SQReady() != n {
		t.Fatalf("SQReady() = %d, want %d", r.SQReady(), n)
	}

	if _, err := r.SubmitAndWait(n); err != nil {
		t.Fatalf("SubmitAndWait() error = %v", err)
	}

	seen := make(map[uint64]bool, n)
	count := r.ForEachCQE(func(userData uint64, res int32, _ uint32) bool {
		if res != 0 {
			t.Errorf("userData %d: res = %d, want 0", userData, res)
		}
		seen[userData] = true
		return true
	})
	if count != n {
		t.Fatalf("ForEachCQE processed %d, want %d", count, n)
	}
	for i := 1; i <= n; i++ {
		if !seen[uint64(i)] {
			t.Errorf("missing completion for userData %d", i)
		}
	}
	if r.CQReady() != 0 {
		t.Errorf("CQReady() = %d after ForEachCQE, want 0", r.CQReady())
	}
}

func TestFileWriteThenReadRoundTrips(t *testing.T) {
	r := withRing(t, 64)

	f, err := os.CreateTemp(t.TempDir(), "ring-roundtrip")
	if err != nil {
		t.Fatalf("CreateTemp() error = %v", err)
	}
	defer f.Close()

	payload := []byte("the quick brown fox")
	if err := r.PrepWrite(int(f.Fd()), payload, 0, 1); err != nil {
		t.Fatalf("PrepWrite() error = %v", err)
	}
	results := drain(t, r, 1)
	if got := results[1]; got != int32(len(payload)) {
		t.Fatalf("write res = %d, want %d", got, len(payload))
	}

	readBuf := make([]byte, len(payload))
	if err := r.PrepRead(int(f.Fd()), readBuf, 0, 2); err != nil {
		t.Fatalf("PrepRead() error = %v", err)
	}
	results = drain(t, r, 1)
	if got := results[2]; got != int32(len(payload)) {
		t.Fatalf("read res = %d, want %d", got, len(payload))
	}
	if string(readBuf) != string(payload) {
		t.Errorf("read data = %q, want %q", readBuf, payload)
	}
}

func TestVectoredReadWriteRoundTrips(t *testing.T) {
	r := withRing(t, 64)

	f, err := os.CreateTemp(t.TempDir(), "ring-vectored")
	if err != nil {
		t.Fatalf("CreateTemp() error = %v", err)
	}
	defer f.Close()

	part1, part2 := []byte("hello, "), []byte("vectored io_uring")
	writeVecs := []syscall.Iovec{
		{Base: &part1[0], Len: uint64(len(part1))},
		{Base: &part2[0], Len: uint64(len(part2))},
	}
	if err := r.PrepWritev(int(f.Fd()), writeVecs, 0, 1); err != nil {
		t.Fatalf("PrepWritev() error = %v", err)
	}
	total := len(part1) + len(part2)
	results := drain(t, r, 1)
	if got := results[1]; got != int32(total) {
		t.Fatalf("writev res = %d, want %d", got, total)
	}

	buf1, buf2 := make([]byte, len(part1)), make([]byte, len(part2))
	readVecs := []syscall.Iovec{
		{Base: &buf1[0], Len: uint64(len(buf1))},
		{Base: &buf2[0], Len: uint64(len(buf2))},
	}
	if err := r.PrepReadv(int(f.Fd()), readVecs, 0, 2); err != nil {
		t.Fatalf("PrepReadv() error = %v", err)
	}
	results = drain(t, r, 1)
	if got := results[2]; got != int32(total) {
		t.Fatalf("readv res = %d, want %d", got, total)
	}
	if string(buf1)+string(buf2) != string(part1)+string(part2) {
		t.Errorf("readv data = %q%q, want %q%q", buf1, buf2, part1, part2)
	}
}

func TestSubmissionQueueFullThenDrains(t *testing.T) {
	r := withRing(t, 4)

	sqEntries := r.SQEntries()
	for i := uint32(0); i < sqEntries; i++ {
		if err := r.PrepNop(uint64(i) + 1); err != nil {
			t.Fatalf("PrepNop(%d) error = %v", i, err)
		}
	}
	if err := r.PrepNop(999); err != ErrSQFull {
		t.Fatalf("PrepNop on a full queue = %v, want ErrSQFull", err)
	}

	drain(t, r, int(sqEntries))

	if err := r.PrepNop(1000); err != nil {
		t.Errorf("PrepNop() after drain error = %v, want nil", err)
	}
}

func TestTimeoutExpiresAfterItsDuration(t *testing.T) {
	r := withRing(t, 64)

	ts := &Timespec{Sec: 0, Nsec: 60_000_000}
	if err := r.PrepTimeout(ts, 0, 0, 1); err != nil {
		t.Fatalf("PrepTimeout() error = %v", err)
	}

	start := time.Now()
	results := drain(t, r, 1)
	elapsed := time.Since(start)

	const etime = -62 // -ETIME
	if got := results[1]; got != etime {
		t.Errorf("timeout res = %d, want %d (ETIME)", got, etime)
	}
	if elapsed < 30*time.Millisecond {
		t.Errorf("timeout fired after %s, want at least 30ms", elapsed)
	}
}

func TestCancelRemovesAPendingTimeout(t *testing.T) {
	r := withRing(t, 64)

	longTimeout := &Timespec{Sec: 5, Nsec: 0}
	if err := r.PrepTimeout(longTimeout, 0, 0, 100); err != nil {
		t.Fatalf("PrepTimeout() error = %v", err)
	}
	if _, err := r.Submit(); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if err := r.PrepCancel(100, 0, 200); err != nil {
		t.Fatalf("PrepCancel() error = %v", err)
	}

	results := drain(t, r, 2)

	const ecanceled = -125
	if got, ok := results[100]; !ok || got != ecanceled {
		t.Errorf("cancelled timeout res = %d (present=%v), want %d (ECANCELED)", got, ok, ecanceled)
	}
	if got, ok := results[200]; !ok || got != 0 {
		t.Errorf("cancel op res = %d (present=%v), want 0", got, ok)
	}
}

func TestRegisterAndUnregisterBuffers(t *testing.T) {
	r := withRing(t, 64)

	bufs := [][]byte{make([]byte, 4096), make([]byte, 4096)}
	if err := r.RegisterBuffers(bufs); err != nil {
		t.Fatalf("RegisterBuffers() error = %v", err)
	}
	if err := r.UnregisterBuffers(); err != nil {
		t.Errorf("UnregisterBuffers() error = %v", err)
	}
	if err := r.RegisterBuffers(nil); err != syscall.EINVAL {
		t.Errorf("RegisterBuffers(nil) error = %v, want EINVAL", err)
	}
}

func TestRegisterAndUnregisterFiles(t *testing.T) {
	r := withRing(t, 64)

	f, err := os.CreateTemp(t.TempDir(), "ring-register-files")
	if err != nil {
		t.Fatalf("CreateTemp() error = %v", err)
	}
	defer f.Close()

	if err := r.RegisterFiles([]int{int(f.Fd())}); err != nil {
		t.Fatalf("RegisterFiles() error = %v", err)
	}
	if err := r.UnregisterFiles(); err != nil {
		t.Errorf("UnregisterFiles() error = %v", err)
	}
	if err := r.RegisterFiles(nil); err != syscall.EINVAL {
		t.Errorf("RegisterFiles(nil) error = %v, want EINVAL", err)
	}
}

func TestAcceptAndConnectOverLoopback(t *testing.T) {
	r := withRing(t, 64)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()
	addr := ln.Addr().(*net.TCPAddr)

	lnFile, err := ln.(*net.TCPListener).File()
	if err != nil {
		t.Fatalf("File() error = %v", err)
	}
	defer lnFile.Close()

	clientFd, err := syscall.Socket(syscall.AF_INET, syscall.SOCK_STREAM|syscall.SOCK_NONBLOCK, 0)
	if err != nil {
		t.Fatalf("Socket() error = %v", err)
	}
	defer syscall.Close(clientFd)

	if err := r.PrepAccept(int(lnFile.Fd()), nil, nil, syscall.SOCK_NONBLOCK, 1); err != nil {
		t.Fatalf("PrepAccept() error = %v", err)
	}

	rawAddr := syscall.RawSockaddrInet4{Family: syscall.AF_INET, Port: htons(uint16(addr.Port))}
	copy(rawAddr.Addr[:], addr.IP.To4())
	if err := r.PrepConnect(clientFd, unsafe.Pointer(&rawAddr), uint32(unsafe.Sizeof(rawAddr)), 2); err != nil {
		t.Fatalf("PrepConnect() error = %v", err)
	}

	results := drain(t, r, 2)
	acceptRes, ok := results[1]
	if !ok || acceptRes < 0 {
		t.Fatalf("accept res = %d (present=%v), want >= 0", acceptRes, ok)
	}
	defer syscall.Close(int(acceptRes))

	connectRes, ok := results[2]
	if !ok || (connectRes < 0 && connectRes != -int32(syscall.EINPROGRESS)) {
		t.Fatalf("connect res = %d (present=%v), want >= 0 or -EINPROGRESS", connectRes, ok)
	}
}

func TestSendAndRecvOverSocketpair(t *testing.T) {
	r := withRing(t, 64)

	fds, err := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socketpair() error = %v", err)
	}
	defer syscall.Close(fds[0])
	defer syscall.Close(fds[1])

	payload := []byte("greetings over a unix socketpair")
	if err := r.PrepSend(fds[0], payload, 0, 1); err != nil {
		t.Fatalf("PrepSend() error = %v", err)
	}
	results := drain(t, r, 1)
	if got := results[1]; got != int32(len(payload)) {
		t.Fatalf("send res = %d, want %d", got, len(payload))
	}

	recvBuf := make([]byte, 128)
	if err := r.PrepRecv(fds[1], recvBuf, 0, 2); err != nil {
		t.Fatalf("PrepRecv() error = %v", err)
	}
	results = drain(t, r, 1)
	got := results[2]
	if got != int32(len(payload)) {
		t.Fatalf("recv res = %d, want %d", got, len(payload))
	}
	if string(recvBuf[:got]) != string(payload) {
		t.Errorf("recv data = %q, want %q", recvBuf[:got], payload)
	}
}

func TestPollAddReportsWriteReadiness(t *testing.T) {
	r := withRing(t, 64)

	fds, err := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socketpair() error = %v", err)
	}
	defer syscall.Close(fds[0])
	defer syscall.Close(fds[1])

	const pollout = 0x0004
	if err := r.PrepPollAdd(fds[0], pollout, 1); err != nil {
		t.Fatalf("PrepPollAdd() error = %v", err)
	}
	results := drain(t, r, 1)
	if got := results[1]; got <= 0 {
		t.Errorf("poll res = %d, want > 0 (a ready event mask)", got)
	}
}

func TestCloseOpClosesTheUnderlyingFd(t *testing.T) {
	r := withRing(t, 64)

	f, err := os.CreateTemp(t.TempDir(), "ring-close-op")
	if err != nil {
		t.Fatalf("CreateTemp() error = %v", err)
	}
	defer f.Close()

	if err := r.PrepClose(int(f.Fd()), 1); err != nil {
		t.Fatalf("PrepClose() error = %v", err)
	}
	results := drain(t, r, 1)
	if got := results[1]; got != 0 {
		t.Errorf("close res = %d, want 0", got)
	}
}

func TestProbeReportsSupportedOps(t *testing.T) {
	r := withRing(t, 64)

	probe, err := r.Probe()
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	// NOP has been supported since the very first io_uring release.
	if !probe.SupportsOp(0) {
		t.Error("SupportsOp(IORING_OP_NOP) = false, want true")
	}
}

// htons converts a uint16 to network byte order.
func htons(v uint16) uint16 {
	return (v << 8) | (v >> 8)
}

func BenchmarkNopSubmitAndWaitOneAtATime(b *testing.B) {
	r, err := New(1024)
	if err != nil {
		b.Skipf("io_uring unavailable: %v", err)
	}
	defer r.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.PrepNop(uint64(i))
		r.Submit()
		r.WaitCQE()
		r.SeenCQE()
	}
}

func BenchmarkNopBatchedSubmission(b *testing.B) {
	r, err := New(1024)
	if err != nil {
		b.Skipf("io_uring unavailable: %v", err)
	}
	defer r.Close()

	const batch = 32

	b.ResetTimer()
	for i := 0; i < b.N; i += batch {
		n := batch
		if i+n > b.N {
			n = b.N - i
		}
		for j := 0; j < n; j++ {
			r.PrepNop(uint64(i + j))
		}
		r.Submit()
		for j := 0; j < n; j++ {
			r.WaitCQE()
			r.SeenCQE()
		}
	}
}
