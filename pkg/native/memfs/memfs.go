// Package memfs is an in-memory native library. It keeps a single namespace
// shared by every mount of the same Library value and hands out fresh handle
// tokens per lookup, the way librgw does.
package memfs

import (
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/objectfs/rgwbridge/pkg/native"
)

// Options tune the library's behaviour.
type Options struct {
	// PageSize caps the entries delivered by one Readdir call. Zero
	// delivers the whole directory at once.
	PageSize int

	// MaxWriteChunk caps the bytes accepted by one Write call. Zero accepts
	// everything.
	MaxWriteChunk int

	// MaxFileSize bounds the end offset of a write. Writes past it fail
	// with EFBIG.
	MaxFileSize int64

	// CreateStatus, when failed, is returned by Create.
	CreateStatus native.Status

	Clock func() time.Time
}

// DefaultMaxFileSize is the MaxFileSize used when none is set.
const DefaultMaxFileSize int64 = 1 << 32

// Option configures a Library.
type Option func(*Library)

// WithPageSize sets the number of entries delivered per Readdir call.
func WithPageSize(n int) Option {
	return func(l *Library) { l.opts.PageSize = n }
}

// WithMaxWriteChunk limits how many bytes a single Write accepts.
func WithMaxWriteChunk(n int) Option {
	return func(l *Library) { l.opts.MaxWriteChunk = n }
}

// WithMaxFileSize bounds file sizes; zero keeps DefaultMaxFileSize.
func WithMaxFileSize(n int64) Option {
	return func(l *Library) { l.opts.MaxFileSize = n }
}

// WithCreateStatus makes Create fail with st.
func WithCreateStatus(st native.Status) Option {
	return func(l *Library) { l.opts.CreateStatus = st }
}

// WithClock replaces the time source used for timestamps.
func WithClock(clock func() time.Time) Option {
	return func(l *Library) { l.opts.Clock = clock }
}

// WithCredentials registers an identity. Once any identity is registered,
// mounts with unknown identities or wrong keys fail with EACCES.
func WithCredentials(uid, accessKey, secretKey string) Option {
	return func(l *Library) {
		l.creds[uid] = credential{accessKey: accessKey, secretKey: secretKey}
	}
}

type credential struct {
	accessKey string
	secretKey string
}

type node struct {
	name     string
	parent   *node
	dir      bool
	mode     uint32
	uid      uint32
	gid      uint32
	atime    int64
	mtime    int64
	data     []byte
	children map[string]*node
}

func (n *node) stat() native.Stat {
	size := int64(len(n.data))
	if n.dir {
		size = 0
	}
	return native.Stat{
		Size:  size,
		Mode:  n.mode,
		UID:   n.uid,
		GID:   n.gid,
		Atime: n.atime,
		Mtime: n.mtime,
	}
}

func (n *node) sortedNames() []string {
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (n *node) isAncestorOf(other *node) bool {
	for p := other; p != nil; p = p.parent {
		if p == n {
			return true
		}
	}
	return false
}

type mount struct {
	uid     string
	rootFH  native.FH
	handles map[native.FH]*node
}

// Library is an in-memory implementation of native.Library.
type Library struct {
	mu       sync.Mutex
	opts     Options
	creds    map[string]credential
	runtimes map[native.Runtime]bool
	mounts   map[native.FS]*mount
	root     *node
	next     uintptr
	logger   *slog.Logger
}

// New creates an empty library whose namespace holds only the root directory.
func New(opts ...Option) *Library {
	l := &Library{
		creds:    make(map[string]credential),
		runtimes: make(map[native.Runtime]bool),
		mounts:   make(map[native.FS]*mount),
		next:     0x1000,
		logger:   slog.Default().With("component", "memfs"),
	}
	l.opts.Clock = time.Now
	for _, opt := range opts {
		opt(l)
	}
	if l.opts.MaxFileSize <= 0 {
		l.opts.MaxFileSize = DefaultMaxFileSize
	}
	now := l.opts.Clock().Unix()
	l.root = &node{
		dir:      true,
		mode:     native.ModeDir | 0o755,
		atime:    now,
		mtime:    now,
		children: make(map[string]*node),
	}
	return l
}

func (l *Library) token() uintptr {
	l.next += 0x10
	return l.next
}

func (l *Library) now() int64 {
	return l.opts.Clock().Unix()
}

// Name implements native.Library.
func (l *Library) Name() string { return "memory" }

// Create implements native.Library.
func (l *Library) Create(args []string) (native.Runtime, native.Status) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.opts.CreateStatus.Failed() {
		return 0, l.opts.CreateStatus
	}
	rt := native.Runtime(l.token())
	l.runtimes[rt] = true
	l.logger.Debug("runtime created", "args", len(args))
	return rt, native.OK
}

// Mount implements native.Library.
func (l *Library) Mount(rt native.Runtime, uid, accessKey, secretKey, root string) (native.FS, native.Status) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.runtimes[rt] {
		return 0, native.EINVAL
	}
	if len(l.creds) > 0 {
		c, ok := l.creds[uid]
		if !ok || c.accessKey != accessKey || c.secretKey != secretKey {
			return 0, native.EACCES
		}
	}

	n := l.root
	for _, part := range strings.Split(strings.Trim(root, "/"), "/") {
		if part == "" {
			continue
		}
		child, ok := n.children[part]
		if !ok {
			return 0, native.ENOENT
		}
		if !child.dir {
			return 0, native.ENOTDIR
		}
		n = child
	}

	fs := native.FS(l.token())
	m := &mount{uid: uid, handles: make(map[native.FH]*node)}
	m.rootFH = native.FH(l.token())
	m.handles[m.rootFH] = n
	l.mounts[fs] = m
	return fs, native.OK
}

// Umount implements native.Library.
func (l *Library) Umount(fs native.FS) native.Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.mounts[fs]; !ok {
		return native.EINVAL
	}
	delete(l.mounts, fs)
	return native.OK
}

// Root implements native.Library.
func (l *Library) Root(fs native.FS) native.FH {
	l.mu.Lock()
	defer l.mu.Unlock()

	if m, ok := l.mounts[fs]; ok {
		return m.rootFH
	}
	return 0
}

// HandleCount returns the number of live handles of a mount, root included.
func (l *Library) HandleCount(fs native.FS) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if m, ok := l.mounts[fs]; ok {
		return len(m.handles)
	}
	return 0
}

// resolve must be called with l.mu held.
func (l *Library) resolve(fs native.FS, fh native.FH) (*mount, *node, native.Status) {
	m, ok := l.mounts[fs]
	if !ok {
		return nil, nil, native.EINVAL
	}
	n, ok := m.handles[fh]
	if !ok {
		return nil, nil, native.EBADF
	}
	return m, n, native.OK
}

func (l *Library) resolveDir(fs native.FS, fh native.FH) (*mount, *node, native.Status) {
	m, n, st := l.resolve(fs, fh)
	if st.Failed() {
		return nil, nil, st
	}
	if !n.dir {
		return nil, nil, native.ENOTDIR
	}
	return m, n, native.OK
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.Contains(name, "/")
}

// Open implements native.Library.
func (l *Library) Open(fs native.FS, fh native.FH, flags uint32) native.Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, n, st := l.resolve(fs, fh)
	if st.Failed() {
		return st
	}
	n.atime = l.now()
	return native.OK
}

// Close implements native.Library.
func (l *Library) Close(fs native.FS, fh native.FH, flags native.CloseFlags) native.Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, _, st := l.resolve(fs, fh)
	if st.Failed() {
		return st
	}
	if flags&native.CloseFlagRelease != 0 && fh != m.rootFH {
		delete(m.handles, fh)
	}
	return native.OK
}

// Read implements native.Library.
func (l *Library) Read(fs native.FS, fh native.FH, off int64, buf []byte) (int, native.Status) {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, n, st := l.resolve(fs, fh)
	if st.Failed() {
		return 0, st
	}
	if n.dir {
		return 0, native.EISDIR
	}
	if off < 0 {
		return 0, native.EINVAL
	}
	n.atime = l.now()
	if off >= int64(len(n.data)) {
		return 0, native.OK
	}
	return copy(buf, n.data[off:]), native.OK
}

// Write implements native.Library.
func (l *Library) Write(fs native.FS, fh native.FH, off int64, buf []byte) (int, native.Status) {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, n, st := l.resolve(fs, fh)
	if st.Failed() {
		return 0, st
	}
	if n.dir {
		return 0, native.EISDIR
	}
	if off < 0 {
		return 0, native.EINVAL
	}

	chunk := buf
	if l.opts.MaxWriteChunk > 0 && len(chunk) > l.opts.MaxWriteChunk {
		chunk = chunk[:l.opts.MaxWriteChunk]
	}
	if off > l.opts.MaxFileSize-int64(len(chunk)) {
		return 0, native.EFBIG
	}
	end := off + int64(len(chunk))
	if end > int64(len(n.data)) {
		grown := make([]byte, end)
		copy(grown, n.data)
		n.data = grown
	}
	copy(n.data[off:], chunk)
	n.mtime = l.now()
	return len(chunk), native.OK
}

// Lookup implements native.Library.
func (l *Library) Lookup(fs native.FS, parent native.FH, name string, flags native.LookupFlags) (native.FH, native.Status) {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, dir, st := l.resolveDir(fs, parent)
	if st.Failed() {
		return 0, st
	}
	if !validName(name) {
		return 0, native.EINVAL
	}

	n, ok := dir.children[name]
	switch {
	case !ok && flags&native.LookupFlagCreate == 0:
		return 0, native.ENOENT
	case !ok:
		now := l.now()
		n = &node{
			name:   name,
			parent: dir,
			mode:   native.ModeFile | 0o644,
			atime:  now,
			mtime:  now,
		}
		dir.children[name] = n
		dir.mtime = now
	case flags&native.LookupFlagDir != 0 && !n.dir:
		return 0, native.ENOTDIR
	case flags&native.LookupFlagFile != 0 && n.dir:
		return 0, native.EISDIR
	}

	fh := native.FH(l.token())
	m.handles[fh] = n
	return fh, native.OK
}

// Getattr implements native.Library.
func (l *Library) Getattr(fs native.FS, fh native.FH) (native.Stat, native.Status) {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, n, st := l.resolve(fs, fh)
	if st.Failed() {
		return native.Stat{}, st
	}
	return n.stat(), native.OK
}

// Readdir implements native.Library. The cursor is the number of entries
// already delivered in name order.
func (l *Library) Readdir(fs native.FS, dir native.FH, offset uint64, fn native.ReaddirFunc) (uint64, bool, native.Status) {
	l.mu.Lock()
	_, d, st := l.resolveDir(fs, dir)
	if st.Failed() {
		l.mu.Unlock()
		return offset, false, st
	}
	names := d.sortedNames()
	type entry struct {
		name  string
		stat  native.Stat
		flags native.LookupFlags
	}
	var page []entry
	for i := offset; i < uint64(len(names)); i++ {
		if l.opts.PageSize > 0 && len(page) == l.opts.PageSize {
			break
		}
		child := d.children[names[i]]
		flags := native.LookupFlagFile
		if child.dir {
			flags = native.LookupFlagDir
		}
		page = append(page, entry{name: child.name, stat: child.stat(), flags: flags})
	}
	total := uint64(len(names))
	l.mu.Unlock()

	// fn runs without the lock so callers may issue further calls from it.
	next := offset
	for _, e := range page {
		next++
		st := e.stat
		if !fn(e.name, &st, native.SetattrMode|native.SetattrUID|native.SetattrGID|native.SetattrSize, e.flags, next) {
			break
		}
	}
	return next, next >= total, native.OK
}

// Mkdir implements native.Library.
func (l *Library) Mkdir(fs native.FS, parent native.FH, name string, attrs native.Stat, mask native.SetattrMask) (native.FH, native.Status) {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, dir, st := l.resolveDir(fs, parent)
	if st.Failed() {
		return 0, st
	}
	if !validName(name) {
		return 0, native.EINVAL
	}
	if _, exists := dir.children[name]; exists {
		return 0, native.EEXIST
	}

	now := l.now()
	n := &node{
		name:     name,
		parent:   dir,
		dir:      true,
		mode:     native.ModeDir | 0o755,
		atime:    now,
		mtime:    now,
		children: make(map[string]*node),
	}
	if mask&native.SetattrMode != 0 {
		n.mode = native.ModeDir | attrs.Mode&native.ModePerm
	}
	if mask&native.SetattrUID != 0 {
		n.uid = attrs.UID
	}
	if mask&native.SetattrGID != 0 {
		n.gid = attrs.GID
	}
	dir.children[name] = n
	dir.mtime = now

	fh := native.FH(l.token())
	m.handles[fh] = n
	return fh, native.OK
}

// Rename implements native.Library.
func (l *Library) Rename(fs native.FS, srcDir native.FH, srcName string, dstDir native.FH, dstName string) native.Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, from, st := l.resolveDir(fs, srcDir)
	if st.Failed() {
		return st
	}
	_, to, st := l.resolveDir(fs, dstDir)
	if st.Failed() {
		return st
	}
	if !validName(srcName) || !validName(dstName) {
		return native.EINVAL
	}

	n, ok := from.children[srcName]
	if !ok {
		return native.ENOENT
	}
	if n.dir && n.isAncestorOf(to) {
		return native.EINVAL
	}
	if existing, ok := to.children[dstName]; ok && existing != n {
		switch {
		case existing.dir && !n.dir:
			return native.EISDIR
		case !existing.dir && n.dir:
			return native.ENOTDIR
		case existing.dir && len(existing.children) > 0:
			return native.ENOTEMPTY
		}
	}

	now := l.now()
	delete(from.children, srcName)
	n.name = dstName
	n.parent = to
	to.children[dstName] = n
	from.mtime = now
	to.mtime = now
	return native.OK
}

// Unlink implements native.Library.
func (l *Library) Unlink(fs native.FS, parent native.FH, name string) native.Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, dir, st := l.resolveDir(fs, parent)
	if st.Failed() {
		return st
	}
	n, ok := dir.children[name]
	if !ok {
		return native.ENOENT
	}
	if n.dir && len(n.children) > 0 {
		return native.ENOTEMPTY
	}
	delete(dir.children, name)
	n.parent = nil
	dir.mtime = l.now()
	return native.OK
}

var _ native.Library = (*Library)(nil)
