package resource

import (
	"context"
	"unsafe"

	"golang.org/x/sys/unix"

	sio "github.com/maikel/sio-go"
	"github.com/maikel/sio-go/buffer"
	"github.com/maikel/sio-go/internal/ring"
	"github.com/maikel/sio-go/internal/sys"
	"github.com/maikel/sio-go/ioruntime"
	"github.com/maikel/sio-go/sequence"
)

// File is a Resource over a seekable byte-stream opened via OPENAT. The
// memfd round-trip of spec.md §8 scenario 2 drives an already-open fd
// through OpenFD instead, since memfd_create has no io_uring opcode and
// runs as a setup-path syscall per spec.md §6.
type File struct {
	c     *ioruntime.Context
	path  string
	flags int
	mode  uint32
}

// NewFile describes an OPENAT against path with the given open(2) flags
// and creation mode.
func NewFile(c *ioruntime.Context, path string, flags int, mode uint32) *File {
	return &File{c: c, path: path, flags: flags, mode: mode}
}

func (f *File) Open() sio.Sender[*FileToken] { return fileOpenSender{f: f} }

type fileOpenSender struct{ f *File }

func (s fileOpenSender) Connect(ctx context.Context, r sio.Receiver[*FileToken]) sio.Operation {
	return &fileOpenOperation{f: s.f, ctx: ctx, r: r}
}

type fileOpenOperation struct {
	cancelableOp
	f       *File
	ctx     context.Context
	r       sio.Receiver[*FileToken]
	pathPtr *byte
}

func (o *fileOpenOperation) Start() {
	pathPtr, err := unix.BytePtrFromString(o.f.path)
	if err != nil {
		o.r.Error(err)
		return
	}
	o.pathPtr = pathPtr
	o.self.SubmitFn = func(sqe *sys.SQE) {
		sqe.Opcode = uint8(sys.IORING_OP_OPENAT)
		sqe.Fd = int32(unix.AT_FDCWD)
		sqe.Addr = uint64(uintptr(unsafe.Pointer(o.pathPtr)))
		sqe.Len = o.f.mode
		sqe.OpFlags = uint32(o.f.flags)
		sqe.UserData = o.self.UserData()
	}
	o.self.CompleteFn = func(cqe sys.CQE) { o.originalComplete(cqe, o.deliver) }
	o.armCancel(o.ctx, o.f.c)
	o.f.c.Submit(&o.self)
}

func (o *fileOpenOperation) deliver(cqe sys.CQE) {
	if isCanceled(cqe) {
		o.r.Stopped()
		return
	}
	if err := ring.ResultError(cqe.Res); err != nil {
		o.r.Error(err)
		return
	}
	o.r.Value(&FileToken{fd: int(cqe.Res), c: o.f.c})
}

// FileToken is the opened file handle. Every operation takes an explicit
// offset: io_uring has no implicit per-fd cursor shared across concurrent
// reads and writes the way a single-threaded read/write loop would assume.
type FileToken struct {
	fd int
	c  *ioruntime.Context
}

// OpenFD wraps an already-open fd (e.g. from unix.MemfdCreate, run outside
// the ring per spec.md §6) as a FileToken without issuing an OPENAT.
func OpenFD(c *ioruntime.Context, fd int) *FileToken { return &FileToken{fd: fd, c: c} }

func (t *FileToken) Fd() int { return t.fd }

func (t *FileToken) Close() sio.Sender[struct{}] { return closeSender{fd: t.fd, c: t.c} }

// ReadAt issues one READ at offset; the result may be short of len(buf).
func (t *FileToken) ReadAt(buf []byte, offset int64) sio.Sender[Transferred] {
	return readAtSender{c: t.c, fd: t.fd, buf: buf, offset: offset}
}

// WriteAt issues one WRITE at offset; the result may be short of len(buf).
func (t *FileToken) WriteAt(buf []byte, offset int64) sio.Sender[Transferred] {
	return writeAtSender{c: t.c, fd: t.fd, buf: buf, offset: offset}
}

// Read drives ReadAt in a loop via sequence.BufferedSequence until buf is
// fully populated or a zero-length read ends the stream; a short read
// advances the view and reads again.
func (t *FileToken) Read(buf buffer.MutableBuffer, offset int64) sio.SequenceSender[Transferred] {
	return sequence.BufferedSequence(func(view buffer.MutableBuffer, off int64) sio.Sender[Transferred] {
		return t.ReadAt(view.Data(), off)
	}, buf, offset)
}

// Write drives WriteAt the same way Read drives ReadAt.
func (t *FileToken) Write(buf buffer.MutableBuffer, offset int64) sio.SequenceSender[Transferred] {
	return sequence.BufferedSequence(func(view buffer.MutableBuffer, off int64) sio.Sender[Transferred] {
		return t.WriteAt(view.Data(), off)
	}, buf, offset)
}
