// Package native defines the boundary between the bridge and a native
// object-storage filesystem library.
//
// A Library speaks in opaque tokens (Runtime, FS, FH) and integer status
// codes: zero on success, a negated errno on failure. Implementations must be
// safe for concurrent use; the bridge adds no locking of its own.
package native

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// Runtime is the process-wide library context.
type Runtime uintptr

// FS is a mount session token. Zero is the null session.
type FS uintptr

// FH is a file handle token. Zero is the null handle.
type FH uintptr

// Status is a native return code.
type Status int32

// OK is the success status.
const OK Status = 0

// Errno converts a system errno into a failure status.
func Errno(e syscall.Errno) Status {
	return Status(-int32(e))
}

// Failed reports whether the status is an error.
func (s Status) Failed() bool { return s != OK }

// Is reports whether the status carries errno e.
func (s Status) Is(e syscall.Errno) bool { return s == Errno(e) }

// Frequently checked statuses.
var (
	ENOENT    = Errno(unix.ENOENT)
	EEXIST    = Errno(unix.EEXIST)
	ENOTEMPTY = Errno(unix.ENOTEMPTY)
	ENOTDIR   = Errno(unix.ENOTDIR)
	EISDIR    = Errno(unix.EISDIR)
	EINVAL    = Errno(unix.EINVAL)
	EFBIG     = Errno(unix.EFBIG)
	EIO       = Errno(unix.EIO)
	EACCES    = Errno(unix.EACCES)
	EPERM     = Errno(unix.EPERM)
	EBADF     = Errno(unix.EBADF)
	ENOTSUP   = Errno(unix.EOPNOTSUPP)
)

// File type and permission bits as laid out in st_mode.
const (
	ModeDir  uint32 = unix.S_IFDIR
	ModeFile uint32 = unix.S_IFREG
	ModeType uint32 = unix.S_IFMT
	ModePerm uint32 = 0o777
)

// Stat mirrors the fields of struct stat the bridge reads. Times are whole
// seconds since the epoch.
type Stat struct {
	Size  int64
	Mode  uint32
	UID   uint32
	GID   uint32
	Atime int64
	Mtime int64
}

// IsDir reports whether the directory type bit is set.
func (s Stat) IsDir() bool { return s.Mode&ModeType == ModeDir }

// SetattrMask selects the Stat fields a creation or setattr call honours.
type SetattrMask uint32

const (
	SetattrMode  SetattrMask = 0x0001
	SetattrUID   SetattrMask = 0x0002
	SetattrGID   SetattrMask = 0x0004
	SetattrMtime SetattrMask = 0x0008
	SetattrAtime SetattrMask = 0x0010
	SetattrSize  SetattrMask = 0x0020
)

// LookupFlags modify lookup and are reported per readdir entry.
type LookupFlags uint32

const (
	LookupFlagNone   LookupFlags = 0x0000
	LookupFlagCreate LookupFlags = 0x0001
	LookupFlagRCB    LookupFlags = 0x0002
	LookupFlagDir    LookupFlags = 0x0004
	LookupFlagFile   LookupFlags = 0x0008
)

// CloseFlags modify close.
type CloseFlags uint32

const (
	CloseFlagNone    CloseFlags = 0x0000
	CloseFlagRelease CloseFlags = 0x0002
)

// ReaddirFunc receives one directory entry. Returning false asks the library
// to stop delivering entries for the current call. The stat pointer may be
// nil or partially filled; mask says which fields are valid.
type ReaddirFunc func(name string, st *Stat, mask SetattrMask, flags LookupFlags, offset uint64) bool

// Library is a native object-storage filesystem. Implementations must be
// comparable, typically pointers, since the bridge keys per-library state on
// the value.
type Library interface {
	// Name identifies the implementation in logs and metrics.
	Name() string

	Create(args []string) (Runtime, Status)
	Mount(rt Runtime, uid, accessKey, secretKey, root string) (FS, Status)
	Umount(fs FS) Status

	// Root returns the root handle of a mounted session, zero for the
	// null session.
	Root(fs FS) FH

	Open(fs FS, fh FH, flags uint32) Status
	Close(fs FS, fh FH, flags CloseFlags) Status

	// Read fills buf from offset off. A count smaller than len(buf) is not
	// an error.
	Read(fs FS, fh FH, off int64, buf []byte) (int, Status)

	// Write stores buf at offset off and reports how much was accepted,
	// which may be less than len(buf).
	Write(fs FS, fh FH, off int64, buf []byte) (int, Status)

	Lookup(fs FS, parent FH, name string, flags LookupFlags) (FH, Status)
	Getattr(fs FS, fh FH) (Stat, Status)

	// Readdir delivers entries of dir starting at cursor offset through fn
	// and returns the cursor to resume from. eof is set once the listing is
	// exhausted.
	Readdir(fs FS, dir FH, offset uint64, fn ReaddirFunc) (next uint64, eof bool, st Status)

	Mkdir(fs FS, parent FH, name string, attrs Stat, mask SetattrMask) (FH, Status)
	Rename(fs FS, srcDir FH, srcName string, dstDir FH, dstName string) Status
	Unlink(fs FS, parent FH, name string) Status
}
