package bridge

import (
	"time"

	"github.com/objectfs/rgwbridge/pkg/errors"
	"github.com/objectfs/rgwbridge/pkg/native"
)

// window validates that buf[off:off+length] is addressable.
func window(operation string, buf []byte, off, length int) error {
	if off < 0 || length < 0 || off > len(buf) || length > len(buf)-off {
		return errors.NewError(errors.ErrCodeInvalidArgument, "buffer window out of range").
			WithComponent(component).
			WithOperation(operation).
			WithParam("offset", off).
			WithParam("len", length).
			WithParam("cap", len(buf))
	}
	return nil
}

// Read reads up to length bytes at pos into buf[off:]. Fewer bytes than
// requested is not an error. On a native failure the count read so far is
// returned together with the error; check the error first.
func (b *Bridge) Read(fs native.FS, fh native.FH, pos int64, buf []byte, off, length int) (n int, err error) {
	start := time.Now()
	defer func() { b.observe("read", start, int64(n), err) }()

	if err := window("rgw_read", buf, off, length); err != nil {
		return 0, err
	}
	n, st := b.lib.Read(fs, fh, pos, buf[off:off+length])
	if st.Failed() {
		return n, b.fail("rgw_read", st, "fh", hex(uintptr(fh)), "pos", pos, "len", length, "offset", off)
	}
	return n, nil
}

// Write stores buf[off:off+length] at pos, resubmitting the remainder until
// every byte is accepted. It stops at the first native error, returning the
// bytes accepted so far, or with a ShortWriteStall error when a call
// succeeds without accepting anything.
func (b *Bridge) Write(fs native.FS, fh native.FH, pos int64, buf []byte, off, length int) (done int, err error) {
	start := time.Now()
	defer func() { b.observe("write", start, int64(done), err) }()

	if err := window("rgw_write", buf, off, length); err != nil {
		return 0, err
	}
	if length == 0 {
		if _, st := b.lib.Write(fs, fh, pos, buf[off:off]); st.Failed() {
			return 0, b.fail("rgw_write", st, "fh", hex(uintptr(fh)), "pos", pos, "len", 0, "offset", off)
		}
		return 0, nil
	}

	for done < length {
		remaining := length - done
		n, st := b.lib.Write(fs, fh, pos+int64(done), buf[off+done:off+length])
		if st.Failed() {
			return done, b.fail("rgw_write", st, "fh", hex(uintptr(fh)), "pos", pos+int64(done), "len", remaining, "offset", off+done)
		}
		if n <= 0 {
			b.logger.Warn("write made no progress", "fh", hex(uintptr(fh)), "pos", pos+int64(done), "remaining", remaining)
			return done, errors.NewError(errors.ErrCodeShortWriteStall, "native write accepted no bytes").
				WithComponent(component).
				WithOperation("rgw_write").
				WithParam("fh", hex(uintptr(fh))).
				WithParam("pos", pos+int64(done)).
				WithParam("remaining", remaining)
		}
		done += min(n, remaining)
	}
	return done, nil
}
