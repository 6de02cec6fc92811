//go:build librgw && cgo

// Package librgw binds the Ceph RADOS gateway file API (librgw).
package librgw

/*
#cgo LDFLAGS: -lrgw
#include <stdlib.h>
#include <stdbool.h>
#include <stdint.h>
#include <sys/stat.h>
#include <rados/librgw.h>
#include <rados/rgw_file.h>

extern bool goReaddirEntry(char *name, uintptr_t arg, uint64_t offset, struct stat *st, uint32_t mask, uint32_t flags);

static bool readdir_trampoline(const char *name, void *arg, uint64_t offset,
                               struct stat *st, uint32_t mask, uint32_t flags) {
	return goReaddirEntry((char *)name, (uintptr_t)arg, offset, st, mask, flags);
}

static int bridge_readdir(struct rgw_fs *fs, struct rgw_file_handle *fh,
                          uint64_t *offset, uintptr_t arg, bool *eof) {
	return rgw_readdir(fs, fh, offset, readdir_trampoline, (void *)arg, eof,
	                   RGW_READDIR_FLAG_NONE);
}

static struct rgw_file_handle *bridge_root(struct rgw_fs *fs) {
	return fs->root_fh;
}
*/
import "C"

import (
	"runtime/cgo"
	"unsafe"

	"github.com/objectfs/rgwbridge/pkg/native"
)

// Library calls into librgw. Tokens are the library's C pointers.
type Library struct{}

// Open returns the librgw binding.
func Open() (native.Library, error) {
	return &Library{}, nil
}

// Available reports whether the binding was compiled in.
func Available() bool { return true }

func fsPtr(fs native.FS) *C.struct_rgw_fs {
	return (*C.struct_rgw_fs)(unsafe.Pointer(uintptr(fs)))
}

func fhPtr(fh native.FH) *C.struct_rgw_file_handle {
	return (*C.struct_rgw_file_handle)(unsafe.Pointer(uintptr(fh)))
}

func status(rc C.int) native.Status {
	return native.Status(int32(rc))
}

func bufPtr(buf []byte) unsafe.Pointer {
	if len(buf) == 0 {
		return nil
	}
	return unsafe.Pointer(&buf[0])
}

// Name implements native.Library.
func (l *Library) Name() string { return "librgw" }

// Create implements native.Library.
func (l *Library) Create(args []string) (native.Runtime, native.Status) {
	argv := make([]*C.char, len(args))
	for i, a := range args {
		argv[i] = C.CString(a)
	}
	defer func() {
		for _, p := range argv {
			C.free(unsafe.Pointer(p))
		}
	}()

	var rgw C.librgw_t
	var argvPtr **C.char
	if len(argv) > 0 {
		argvPtr = &argv[0]
	}
	rc := C.librgw_create(&rgw, C.int(len(argv)), argvPtr)
	if rc != 0 {
		return 0, status(rc)
	}
	return native.Runtime(uintptr(unsafe.Pointer(rgw))), native.OK
}

// Mount implements native.Library.
func (l *Library) Mount(rt native.Runtime, uid, accessKey, secretKey, root string) (native.FS, native.Status) {
	cuid := C.CString(uid)
	defer C.free(unsafe.Pointer(cuid))
	cak := C.CString(accessKey)
	defer C.free(unsafe.Pointer(cak))
	csk := C.CString(secretKey)
	defer C.free(unsafe.Pointer(csk))
	croot := C.CString(root)
	defer C.free(unsafe.Pointer(croot))

	var fs *C.struct_rgw_fs
	rc := C.rgw_mount2(C.librgw_t(unsafe.Pointer(uintptr(rt))), cuid, cak, csk, croot, &fs, C.RGW_MOUNT_FLAG_NONE)
	if rc != 0 {
		return 0, status(rc)
	}
	return native.FS(uintptr(unsafe.Pointer(fs))), native.OK
}

// Umount implements native.Library.
func (l *Library) Umount(fs native.FS) native.Status {
	return status(C.rgw_umount(fsPtr(fs), C.RGW_UMOUNT_FLAG_NONE))
}

// Root implements native.Library.
func (l *Library) Root(fs native.FS) native.FH {
	if fs == 0 {
		return 0
	}
	return native.FH(uintptr(unsafe.Pointer(C.bridge_root(fsPtr(fs)))))
}

// Open implements native.Library.
func (l *Library) Open(fs native.FS, fh native.FH, flags uint32) native.Status {
	return status(C.rgw_open(fsPtr(fs), fhPtr(fh), C.uint32_t(flags), 0))
}

// Close implements native.Library.
func (l *Library) Close(fs native.FS, fh native.FH, flags native.CloseFlags) native.Status {
	cflags := C.uint32_t(0)
	if flags&native.CloseFlagRelease != 0 {
		cflags = C.RGW_CLOSE_FLAG_RELE
	}
	return status(C.rgw_close(fsPtr(fs), fhPtr(fh), cflags))
}

// Read implements native.Library.
func (l *Library) Read(fs native.FS, fh native.FH, off int64, buf []byte) (int, native.Status) {
	var n C.size_t
	rc := C.rgw_read(fsPtr(fs), fhPtr(fh), C.uint64_t(off), C.size_t(len(buf)), &n, bufPtr(buf), C.RGW_READ_FLAG_NONE)
	return int(n), status(rc)
}

// Write implements native.Library.
func (l *Library) Write(fs native.FS, fh native.FH, off int64, buf []byte) (int, native.Status) {
	var n C.size_t
	rc := C.rgw_write(fsPtr(fs), fhPtr(fh), C.uint64_t(off), C.size_t(len(buf)), &n, bufPtr(buf), C.RGW_WRITE_FLAG_NONE)
	return int(n), status(rc)
}

// Lookup implements native.Library.
func (l *Library) Lookup(fs native.FS, parent native.FH, name string, flags native.LookupFlags) (native.FH, native.Status) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	var fh *C.struct_rgw_file_handle
	rc := C.rgw_lookup(fsPtr(fs), fhPtr(parent), cname, &fh, nil, 0, C.uint32_t(flags))
	if rc != 0 {
		return 0, status(rc)
	}
	return native.FH(uintptr(unsafe.Pointer(fh))), native.OK
}

func toStat(st *C.struct_stat) native.Stat {
	return native.Stat{
		Size:  int64(st.st_size),
		Mode:  uint32(st.st_mode),
		UID:   uint32(st.st_uid),
		GID:   uint32(st.st_gid),
		Atime: int64(st.st_atim.tv_sec),
		Mtime: int64(st.st_mtim.tv_sec),
	}
}

// Getattr implements native.Library.
func (l *Library) Getattr(fs native.FS, fh native.FH) (native.Stat, native.Status) {
	var st C.struct_stat
	rc := C.rgw_getattr(fsPtr(fs), fhPtr(fh), &st, C.RGW_GETATTR_FLAG_NONE)
	if rc != 0 {
		return native.Stat{}, status(rc)
	}
	return toStat(&st), native.OK
}

// Readdir implements native.Library.
func (l *Library) Readdir(fs native.FS, dir native.FH, offset uint64, fn native.ReaddirFunc) (uint64, bool, native.Status) {
	h := cgo.NewHandle(fn)
	defer h.Delete()

	cursor := C.uint64_t(offset)
	var eof C.bool
	rc := C.bridge_readdir(fsPtr(fs), fhPtr(dir), &cursor, C.uintptr_t(h), &eof)
	return uint64(cursor), bool(eof), status(rc)
}

// Mkdir implements native.Library.
func (l *Library) Mkdir(fs native.FS, parent native.FH, name string, attrs native.Stat, mask native.SetattrMask) (native.FH, native.Status) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	var st C.struct_stat
	st.st_mode = C.mode_t(attrs.Mode)
	st.st_uid = C.uid_t(attrs.UID)
	st.st_gid = C.gid_t(attrs.GID)

	var fh *C.struct_rgw_file_handle
	rc := C.rgw_mkdir(fsPtr(fs), fhPtr(parent), cname, &st, C.uint32_t(mask), &fh, C.RGW_MKDIR_FLAG_NONE)
	if rc != 0 {
		return 0, status(rc)
	}
	return native.FH(uintptr(unsafe.Pointer(fh))), native.OK
}

// Rename implements native.Library.
func (l *Library) Rename(fs native.FS, srcDir native.FH, srcName string, dstDir native.FH, dstName string) native.Status {
	csrc := C.CString(srcName)
	defer C.free(unsafe.Pointer(csrc))
	cdst := C.CString(dstName)
	defer C.free(unsafe.Pointer(cdst))

	return status(C.rgw_rename(fsPtr(fs), fhPtr(srcDir), csrc, fhPtr(dstDir), cdst, C.RGW_RENAME_FLAG_NONE))
}

// Unlink implements native.Library.
func (l *Library) Unlink(fs native.FS, parent native.FH, name string) native.Status {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	return status(C.rgw_unlink(fsPtr(fs), fhPtr(parent), cname, C.RGW_UNLINK_FLAG_NONE))
}

var _ native.Library = (*Library)(nil)
