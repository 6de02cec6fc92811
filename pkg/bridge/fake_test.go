package bridge

import (
	"sync"
	"time"

	"github.com/objectfs/rgwbridge/pkg/native"
	"github.com/objectfs/rgwbridge/pkg/native/memfs"
)

// scripted wraps memfs with call counters and per-operation overrides.
type scripted struct {
	*memfs.Library

	mu     sync.Mutex
	calls  map[string]int
	closed []native.FH

	// writeFn, when set, replaces Write.
	writeFn func(call int, off int64, buf []byte) (int, native.Status)
	// readdirFn, when set, replaces Readdir.
	readdirFn func(call int, offset uint64, fn native.ReaddirFunc) (uint64, bool, native.Status)
	// mountFn, when set, replaces Mount.
	mountFn func() (native.FS, native.Status)
	// readFn, when set, replaces Read.
	readFn func(buf []byte) (int, native.Status)
	// closeFn, when set, replaces Close.
	closeFn func(fh native.FH) native.Status
}

func newScripted(opts ...memfs.Option) *scripted {
	return &scripted{Library: memfs.New(opts...), calls: make(map[string]int)}
}

func (s *scripted) count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op]++
	return s.calls[op]
}

func (s *scripted) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *scripted) Create(args []string) (native.Runtime, native.Status) {
	s.count("create")
	return s.Library.Create(args)
}

func (s *scripted) Mount(rt native.Runtime, uid, ak, sk, root string) (native.FS, native.Status) {
	s.count("mount")
	if s.mountFn != nil {
		return s.mountFn()
	}
	return s.Library.Mount(rt, uid, ak, sk, root)
}

func (s *scripted) Umount(fs native.FS) native.Status {
	s.count("umount")
	return s.Library.Umount(fs)
}

func (s *scripted) Close(fs native.FS, fh native.FH, flags native.CloseFlags) native.Status {
	s.count("close")
	s.mu.Lock()
	s.closed = append(s.closed, fh)
	s.mu.Unlock()
	if s.closeFn != nil {
		return s.closeFn(fh)
	}
	return s.Library.Close(fs, fh, flags)
}

func (s *scripted) Read(fs native.FS, fh native.FH, off int64, buf []byte) (int, native.Status) {
	s.count("read")
	if s.readFn != nil {
		return s.readFn(buf)
	}
	return s.Library.Read(fs, fh, off, buf)
}

func (s *scripted) Write(fs native.FS, fh native.FH, off int64, buf []byte) (int, native.Status) {
	call := s.count("write")
	if s.writeFn != nil {
		return s.writeFn(call, off, buf)
	}
	return s.Library.Write(fs, fh, off, buf)
}

func (s *scripted) Readdir(fs native.FS, dir native.FH, offset uint64, fn native.ReaddirFunc) (uint64, bool, native.Status) {
	call := s.count("readdir")
	if s.readdirFn != nil {
		return s.readdirFn(call, offset, fn)
	}
	return s.Library.Readdir(fs, dir, offset, fn)
}

// recorder collects bridge observations.
type recorder struct {
	mu   sync.Mutex
	ops  []string
	errs int
}

func (r *recorder) RecordOperation(op string, _ time.Duration, _ int64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
	if err != nil {
		r.errs++
	}
}
