// Package bridge adapts a native object-storage filesystem library to Go
// callers. It owns handle lifecycle, attribute marshaling, the directory
// enumeration protocol, the write-until-complete loop and the translation of
// native status codes into structured errors.
//
// All operations are synchronous and run exactly the native calls they
// describe. The bridge keeps no per-session state, so a Bridge may be shared
// by any number of goroutines as long as the underlying library allows it.
package bridge

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/objectfs/rgwbridge/pkg/errors"
	"github.com/objectfs/rgwbridge/pkg/native"
)

const component = "bridge"

// MountRoot is the path every session is rooted at.
const MountRoot = "/"

// Recorder receives one observation per bridge operation.
type Recorder interface {
	RecordOperation(operation string, duration time.Duration, bytes int64, err error)
}

type nopRecorder struct{}

func (nopRecorder) RecordOperation(string, time.Duration, int64, error) {}

// Option configures a Bridge.
type Option func(*Bridge)

// WithTimeUnit sets the unit of timestamps in returned attributes.
func WithTimeUnit(u TimeUnit) Option {
	return func(b *Bridge) { b.unit = u }
}

// WithOwnership sets the ownership policy applied by Mkdir.
func WithOwnership(o Ownership) Option {
	return func(b *Bridge) { b.owner = o }
}

// WithLogger replaces the default component logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) { b.logger = l.With("component", component) }
}

// WithRecorder reports every operation to r.
func WithRecorder(r Recorder) Option {
	return func(b *Bridge) { b.rec = r }
}

// WithRuntimeArgs sets the arguments passed to the native runtime on first
// initialization. Later bridges over the same library reuse the existing
// runtime and ignore their arguments.
func WithRuntimeArgs(args ...string) Option {
	return func(b *Bridge) { b.args = args }
}

// Bridge is the entry point for all operations against one native library.
type Bridge struct {
	lib    native.Library
	rt     native.Runtime
	unit   TimeUnit
	owner  Ownership
	args   []string
	logger *slog.Logger
	rec    Recorder
}

type runtimeCell struct {
	once sync.Once
	rt   native.Runtime
	err  error
}

// runtimes holds the single runtime handle of each library for the life of
// the process.
var runtimes sync.Map

// New returns a Bridge for lib, creating the library's runtime handle on the
// first call. A creation failure is permanent for that library.
func New(lib native.Library, opts ...Option) (*Bridge, error) {
	b := &Bridge{
		lib:    lib,
		unit:   Milliseconds,
		owner:  Ownership{Policy: OwnerRoot},
		logger: slog.Default().With("component", component),
		rec:    nopRecorder{},
	}
	for _, opt := range opts {
		opt(b)
	}
	if lib == nil {
		return nil, errors.NewError(errors.ErrCodeInitializationFailed, "no native library").
			WithComponent(component)
	}
	if _, _, err := b.owner.Resolve(); err != nil {
		return nil, errors.NewError(errors.ErrCodeInitializationFailed, err.Error()).
			WithComponent(component)
	}

	if !reflect.TypeOf(lib).Comparable() {
		return nil, errors.NewError(errors.ErrCodeInitializationFailed, "native library is not comparable").
			WithComponent(component).
			WithParam("type", reflect.TypeOf(lib).String())
	}
	v, _ := runtimes.LoadOrStore(lib, &runtimeCell{})
	cell := v.(*runtimeCell)
	cell.once.Do(func() {
		args := b.args
		if len(args) == 0 {
			args = []string{"NULL"}
		}
		rt, st := lib.Create(args)
		if st.Failed() {
			err := errors.NewError(errors.ErrCodeInitializationFailed, errors.StatusText(int32(st))).
				WithComponent(component).
				WithOperation("librgw_create").
				WithParam("library", lib.Name())
			err.Errno = int32(st)
			cell.err = err
			return
		}
		cell.rt = rt
		b.logger.Info("native runtime initialized", "library", lib.Name())
	})
	if cell.err != nil {
		return nil, cell.err
	}
	b.rt = cell.rt
	return b, nil
}

// Library returns the native library behind the bridge.
func (b *Bridge) Library() native.Library { return b.lib }

// TimeUnit returns the unit of timestamps in returned attributes.
func (b *Bridge) TimeUnit() TimeUnit { return b.unit }

func hex(v uintptr) string {
	return fmt.Sprintf("0x%x", v)
}

// fail converts a failed native status into a NativeError. kv holds
// alternating parameter names and values.
func (b *Bridge) fail(operation string, st native.Status, kv ...any) error {
	err := errors.NewNativeError(operation, int32(st)).WithComponent(component)
	for i := 0; i+1 < len(kv); i += 2 {
		err.WithParam(fmt.Sprint(kv[i]), kv[i+1])
	}
	b.logger.Debug("native call failed", "operation", operation, "errno", int32(st), "detail", err.Diagnostic())
	return err
}

func (b *Bridge) observe(operation string, start time.Time, bytes int64, err error) {
	b.rec.RecordOperation(operation, time.Since(start), bytes, err)
}
