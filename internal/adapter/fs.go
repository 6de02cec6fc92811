package adapter

import (
	"io"
	"iter"

	"github.com/objectfs/rgwbridge/internal/buffer"
	"github.com/objectfs/rgwbridge/pkg/bridge"
	"github.com/objectfs/rgwbridge/pkg/errors"
	"github.com/objectfs/rgwbridge/pkg/native"
)

// walk looks up parts one component at a time from the mount root and
// returns the final handle, which the caller must close. Intermediate
// handles are released as the walk moves on. last applies to the final
// lookup only.
func (a *Adapter) walk(b *bridge.Bridge, fs native.FS, parts []string, last native.LookupFlags) (native.FH, error) {
	fh, err := b.RootHandle(fs)
	if err != nil {
		return 0, err
	}
	for i, name := range parts {
		flags := native.LookupFlagDir
		if i == len(parts)-1 {
			flags = last
		}
		next, err := b.LookupWithFlags(fs, fh, name, flags)
		_ = b.Close(fs, fh)
		if err != nil {
			return 0, err
		}
		fh = next
	}
	return fh, nil
}

func (a *Adapter) resolve(p string, flags native.LookupFlags) (*bridge.Bridge, native.FS, native.FH, error) {
	b, fs, err := a.mounted()
	if err != nil {
		return nil, 0, 0, err
	}
	parts, err := a.components(p)
	if err != nil {
		return nil, 0, 0, err
	}
	fh, err := a.walk(b, fs, parts, flags)
	if err != nil {
		return nil, 0, 0, err
	}
	return b, fs, fh, nil
}

// resolveParent returns a handle on the directory holding p's final
// component, and that component's name.
func (a *Adapter) resolveParent(p string) (*bridge.Bridge, native.FS, native.FH, string, error) {
	b, fs, err := a.mounted()
	if err != nil {
		return nil, 0, 0, "", err
	}
	parts, err := a.components(p)
	if err != nil {
		return nil, 0, 0, "", err
	}
	if len(parts) == 0 {
		return nil, 0, 0, "", errors.NewError(errors.ErrCodeInvalidArgument, "path names the mount root").
			WithComponent(component).
			WithParam("path", p)
	}
	dir, err := a.walk(b, fs, parts[:len(parts)-1], native.LookupFlagDir)
	if err != nil {
		return nil, 0, 0, "", err
	}
	return b, fs, dir, parts[len(parts)-1], nil
}

// Stat returns the attributes of p.
func (a *Adapter) Stat(p string) (bridge.Attributes, error) {
	b, fs, fh, err := a.resolve(p, native.LookupFlagNone)
	if err != nil {
		return bridge.Attributes{}, err
	}
	defer b.Close(fs, fh)
	return b.GetAttributes(fs, fh)
}

// List enumerates the directory at p. A failure, including a failure to
// resolve p, is yielded once as the final pair.
func (a *Adapter) List(p string) iter.Seq2[bridge.DirEntry, error] {
	return func(yield func(bridge.DirEntry, error) bool) {
		b, fs, fh, err := a.resolve(p, native.LookupFlagDir)
		if err != nil {
			yield(bridge.DirEntry{}, err)
			return
		}
		defer b.Close(fs, fh)
		for entry, err := range b.ListDirectory(fs, fh) {
			if !yield(entry, err) {
				return
			}
		}
	}
}

// ReadFile copies the file at p to w in IOBufferSize chunks.
func (a *Adapter) ReadFile(p string, w io.Writer) (int64, error) {
	b, fs, fh, err := a.resolve(p, native.LookupFlagFile)
	if err != nil {
		return 0, err
	}
	defer b.Close(fs, fh)

	if err := b.Open(fs, fh); err != nil {
		return 0, err
	}
	buf := buffer.Get(a.ioBuffer)
	defer buffer.Put(buf)
	var pos int64
	for {
		n, err := b.Read(fs, fh, pos, buf, 0, len(buf))
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return pos, werr
			}
			pos += int64(n)
		}
		if err != nil {
			return pos, err
		}
		if n == 0 {
			return pos, nil
		}
	}
}

// WriteFile writes the contents of r at the start of the file at p,
// creating it when missing. There is no truncate, so bytes past the end of
// r in an existing longer file are kept. Data reaches the store no later
// than the final close.
func (a *Adapter) WriteFile(p string, r io.Reader) (written int64, err error) {
	b, fs, dir, name, err := a.resolveParent(p)
	if err != nil {
		return 0, err
	}
	fh, err := b.LookupWithFlags(fs, dir, name, native.LookupFlagCreate|native.LookupFlagFile)
	_ = b.Close(fs, dir)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := b.Close(fs, fh); err == nil {
			err = cerr
		}
	}()

	if err := b.Open(fs, fh); err != nil {
		return 0, err
	}
	buf := buffer.Get(a.ioBuffer)
	defer buffer.Put(buf)
	for {
		n, rerr := io.ReadFull(r, buf)
		if n > 0 {
			done, err := b.Write(fs, fh, written, buf, 0, n)
			written += int64(done)
			if err != nil {
				return written, err
			}
		}
		switch rerr {
		case nil:
		case io.EOF, io.ErrUnexpectedEOF:
			return written, nil
		default:
			return written, rerr
		}
	}
}

// Mkdir creates the directory p. With parents set, missing ancestors are
// created and existing directories are not an error.
func (a *Adapter) Mkdir(p string, mode uint32, parents bool) error {
	if !parents {
		b, fs, dir, name, err := a.resolveParent(p)
		if err != nil {
			return err
		}
		defer b.Close(fs, dir)
		return b.Mkdir(fs, dir, name, mode)
	}

	b, fs, err := a.mounted()
	if err != nil {
		return err
	}
	parts, err := a.components(p)
	if err != nil {
		return err
	}
	fh, err := b.RootHandle(fs)
	if err != nil {
		return err
	}
	for _, name := range parts {
		if err := b.Mkdir(fs, fh, name, mode); err != nil && !errors.IsExist(err) {
			_ = b.Close(fs, fh)
			return err
		}
		next, err := b.LookupWithFlags(fs, fh, name, native.LookupFlagDir)
		_ = b.Close(fs, fh)
		if err != nil {
			return err
		}
		fh = next
	}
	return b.Close(fs, fh)
}

// Rename moves src to dst.
func (a *Adapter) Rename(src, dst string) error {
	b, fs, srcDir, srcName, err := a.resolveParent(src)
	if err != nil {
		return err
	}
	defer b.Close(fs, srcDir)

	_, _, dstDir, dstName, err := a.resolveParent(dst)
	if err != nil {
		return err
	}
	defer b.Close(fs, dstDir)

	return b.Rename(fs, srcDir, srcName, dstDir, dstName)
}

// Remove unlinks p. With recursive set, a directory's contents are removed
// depth first before the directory itself.
func (a *Adapter) Remove(p string, recursive bool) error {
	b, fs, dir, name, err := a.resolveParent(p)
	if err != nil {
		return err
	}
	defer b.Close(fs, dir)

	if recursive {
		if err := a.removeChildren(b, fs, dir, name); err != nil {
			return err
		}
	}
	return b.Unlink(fs, dir, name)
}

func (a *Adapter) removeChildren(b *bridge.Bridge, fs native.FS, parent native.FH, name string) error {
	fh, err := b.LookupWithFlags(fs, parent, name, native.LookupFlagNone)
	if err != nil {
		return err
	}
	defer b.Close(fs, fh)

	attrs, err := b.GetAttributes(fs, fh)
	if err != nil {
		return err
	}
	if !attrs.IsDir() {
		return nil
	}

	// Collect first; unlinking while the listing is open would move the
	// cursor under it.
	var children []string
	for entry, err := range b.ListDirectory(fs, fh) {
		if err != nil {
			return err
		}
		children = append(children, entry.Name)
	}
	for _, child := range children {
		if err := a.removeChildren(b, fs, fh, child); err != nil {
			return err
		}
		if err := b.Unlink(fs, fh, child); err != nil && !errors.IsNotExist(err) {
			return err
		}
	}
	return nil
}
