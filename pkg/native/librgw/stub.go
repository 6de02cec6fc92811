//go:build !librgw || !cgo

// Package librgw binds the Ceph RADOS gateway file API (librgw). This build
// was compiled without it; build with -tags librgw and cgo enabled.
package librgw

import (
	"github.com/objectfs/rgwbridge/pkg/errors"
	"github.com/objectfs/rgwbridge/pkg/native"
)

// Open reports that librgw support is not compiled in.
func Open() (native.Library, error) {
	return nil, errors.NewError(errors.ErrCodeInitializationFailed, "built without librgw support (use -tags librgw)").
		WithComponent("librgw")
}

// Available reports whether the binding was compiled in.
func Available() bool { return false }
