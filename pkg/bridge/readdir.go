package bridge

import (
	"iter"
	"time"

	"github.com/objectfs/rgwbridge/pkg/errors"
	"github.com/objectfs/rgwbridge/pkg/native"
)

// DirEntry is one child reported by a directory listing.
type DirEntry struct {
	Name       string
	Attributes Attributes
	Flags      native.LookupFlags
	Mask       native.SetattrMask
	Offset     uint64
}

// IsDir reports whether the library flagged the entry as a directory.
func (e DirEntry) IsDir() bool { return e.Flags&native.LookupFlagDir != 0 }

// ReadDir enumerates dir, calling fn once per entry in native order. Each
// entry is delivered from inside the native callback. Returning false from
// fn ends the listing without error. On a native failure the entries already
// delivered stay delivered and the error is returned.
func (b *Bridge) ReadDir(fs native.FS, dir native.FH, fn func(DirEntry) bool) (err error) {
	start := time.Now()
	var count int64
	defer func() { b.observe("readdir", start, count, err) }()

	var (
		cursor  uint64
		stopped bool
	)
	for eof := false; !eof && !stopped; {
		delivered := 0
		next, last, st := b.lib.Readdir(fs, dir, cursor, func(name string, st *native.Stat, mask native.SetattrMask, flags native.LookupFlags, offset uint64) bool {
			if stopped {
				return false
			}
			delivered++
			count++
			entry := DirEntry{
				Name:       name,
				Attributes: entryAttributes(st, flags, b.unit),
				Flags:      flags,
				Mask:       mask,
				Offset:     offset,
			}
			if !fn(entry) {
				stopped = true
				return false
			}
			return true
		})
		if st.Failed() {
			return b.fail("rgw_readdir", st, "fh", hex(uintptr(dir)), "offset", cursor)
		}
		if !last && !stopped && delivered == 0 && next == cursor {
			return errors.NewError(errors.ErrCodeInvalidState, "native readdir made no progress").
				WithComponent(component).
				WithOperation("rgw_readdir").
				WithParam("fh", hex(uintptr(dir))).
				WithParam("offset", cursor)
		}
		cursor, eof = next, last
	}
	return nil
}

// ListDirectory returns a lazy sequence over the entries of dir. The
// sequence is finite and cannot be restarted mid-way; ranging over it again
// starts a new listing. A failure is yielded once, as the final pair, with a
// zero DirEntry.
func (b *Bridge) ListDirectory(fs native.FS, dir native.FH) iter.Seq2[DirEntry, error] {
	return func(yield func(DirEntry, error) bool) {
		stopped := false
		err := b.ReadDir(fs, dir, func(e DirEntry) bool {
			if !yield(e, nil) {
				stopped = true
				return false
			}
			return true
		})
		if err != nil && !stopped {
			yield(DirEntry{}, err)
		}
	}
}
