package bridge

import (
	"fmt"
	"time"

	"github.com/objectfs/rgwbridge/pkg/errors"
	"github.com/objectfs/rgwbridge/pkg/native"
)

// Lookup resolves name under parent, creating an empty file when create is
// set and the name is missing.
func (b *Bridge) Lookup(fs native.FS, parent native.FH, name string, create bool) (native.FH, error) {
	flags := native.LookupFlagNone
	if create {
		flags = native.LookupFlagCreate
	}
	return b.LookupWithFlags(fs, parent, name, flags)
}

// LookupWithFlags resolves name under parent with explicit lookup flags.
func (b *Bridge) LookupWithFlags(fs native.FS, parent native.FH, name string, flags native.LookupFlags) (fh native.FH, err error) {
	start := time.Now()
	defer func() { b.observe("lookup", start, 0, err) }()

	fh, st := b.lib.Lookup(fs, parent, name, flags)
	if st.Failed() {
		return 0, b.fail("rgw_lookup", st, "fh_parent", hex(uintptr(parent)), "name", name, "flags", fmt.Sprintf("0x%x", uint32(flags)))
	}
	return fh, nil
}

// Mkdir creates directory name under parent with the given permission bits.
// Ownership follows the bridge's policy. The new directory's handle is
// released before returning.
func (b *Bridge) Mkdir(fs native.FS, parent native.FH, name string, mode uint32) (err error) {
	start := time.Now()
	defer func() { b.observe("mkdir", start, 0, err) }()

	uid, gid, err := b.owner.Resolve()
	if err != nil {
		return errors.NewError(errors.ErrCodeInvalidArgument, err.Error()).
			WithComponent(component).
			WithOperation("rgw_mkdir")
	}
	st, mask := FromRecord(Attributes{Mode: mode, UID: uid, GID: gid})

	fh, status := b.lib.Mkdir(fs, parent, name, st, mask)
	if status.Failed() {
		return b.fail("rgw_mkdir", status, "fh_parent", hex(uintptr(parent)), "name", name,
			"uid", uid, "gid", gid, "mode", fmt.Sprintf("%#o", mode))
	}
	if fh != 0 {
		if status := b.lib.Close(fs, fh, native.CloseFlagRelease); status.Failed() {
			return b.fail("rgw_close", status, "fh", hex(uintptr(fh)), "name", name)
		}
	}
	return nil
}

// Rename moves srcName in srcDir to dstName in dstDir.
func (b *Bridge) Rename(fs native.FS, srcDir native.FH, srcName string, dstDir native.FH, dstName string) (err error) {
	start := time.Now()
	defer func() { b.observe("rename", start, 0, err) }()

	if st := b.lib.Rename(fs, srcDir, srcName, dstDir, dstName); st.Failed() {
		return b.fail("rgw_rename", st, "fh_src", hex(uintptr(srcDir)), "fh_dst", hex(uintptr(dstDir)),
			"srcName", srcName, "dstName", dstName)
	}
	return nil
}

// Unlink removes name from parent.
func (b *Bridge) Unlink(fs native.FS, parent native.FH, name string) (err error) {
	start := time.Now()
	defer func() { b.observe("unlink", start, 0, err) }()

	if st := b.lib.Unlink(fs, parent, name); st.Failed() {
		return b.fail("rgw_unlink", st, "fh_parent", hex(uintptr(parent)), "name", name)
	}
	return nil
}

// GetAttributes returns a snapshot of fh's attributes.
func (b *Bridge) GetAttributes(fs native.FS, fh native.FH) (attrs Attributes, err error) {
	start := time.Now()
	defer func() { b.observe("getattr", start, 0, err) }()

	st, status := b.lib.Getattr(fs, fh)
	if status.Failed() {
		return Attributes{}, b.fail("rgw_getattr", status, "fh", hex(uintptr(fh)))
	}
	return ToRecord(st, b.unit), nil
}
