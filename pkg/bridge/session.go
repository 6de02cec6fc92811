package bridge

import (
	"time"

	"github.com/objectfs/rgwbridge/pkg/errors"
	"github.com/objectfs/rgwbridge/pkg/native"
)

// redact keeps the first four characters of a key.
func redact(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return key[:4] + "****"
}

// Mount opens an authenticated session rooted at MountRoot.
func (b *Bridge) Mount(identity, accessKey, secretKey string) (fs native.FS, err error) {
	start := time.Now()
	defer func() { b.observe("mount", start, 0, err) }()

	fs, st := b.lib.Mount(b.rt, identity, accessKey, secretKey, MountRoot)
	if st.Failed() {
		return 0, b.fail("rgw_mount2", st, "uid", identity, "access_key", redact(accessKey), "root", MountRoot)
	}
	if fs == 0 {
		return 0, errors.NewError(errors.ErrCodeInvalidState, "mount returned a null session").
			WithComponent(component).
			WithOperation("rgw_mount2").
			WithParam("uid", identity)
	}
	b.logger.Debug("mounted", "uid", identity, "fs", hex(uintptr(fs)))
	return fs, nil
}

// Unmount releases a session. The null session is ignored.
func (b *Bridge) Unmount(fs native.FS) (err error) {
	if fs == 0 {
		return nil
	}
	start := time.Now()
	defer func() { b.observe("unmount", start, 0, err) }()

	if st := b.lib.Umount(fs); st.Failed() {
		return b.fail("rgw_umount", st, "fs", hex(uintptr(fs)))
	}
	return nil
}

// RootHandle returns the root handle of a session.
func (b *Bridge) RootHandle(fs native.FS) (native.FH, error) {
	if fs == 0 {
		return 0, errors.NewError(errors.ErrCodeInvalidState, "null session").
			WithComponent(component).
			WithOperation("getRootFH")
	}
	return b.lib.Root(fs), nil
}

// Open prepares a handle for I/O.
func (b *Bridge) Open(fs native.FS, fh native.FH) (err error) {
	start := time.Now()
	defer func() { b.observe("open", start, 0, err) }()

	if st := b.lib.Open(fs, fh, 0); st.Failed() {
		return b.fail("rgw_open", st, "fh", hex(uintptr(fh)))
	}
	return nil
}

// Close releases a handle. It does nothing for the null handle, the null
// session or the session's root handle.
func (b *Bridge) Close(fs native.FS, fh native.FH) (err error) {
	if fh == 0 || fs == 0 || fh == b.lib.Root(fs) {
		return nil
	}
	start := time.Now()
	defer func() { b.observe("close", start, 0, err) }()

	if st := b.lib.Close(fs, fh, native.CloseFlagRelease); st.Failed() {
		return b.fail("rgw_close", st, "fh", hex(uintptr(fh)))
	}
	return nil
}
