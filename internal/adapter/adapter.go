package adapter

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/url"
	"strings"
	"sync"

	"github.com/objectfs/rgwbridge/internal/config"
	"github.com/objectfs/rgwbridge/internal/metrics"
	"github.com/objectfs/rgwbridge/internal/storage/s3"
	"github.com/objectfs/rgwbridge/pkg/bridge"
	"github.com/objectfs/rgwbridge/pkg/errors"
	"github.com/objectfs/rgwbridge/pkg/native"
	"github.com/objectfs/rgwbridge/pkg/native/librgw"
	"github.com/objectfs/rgwbridge/pkg/native/memfs"
	"github.com/objectfs/rgwbridge/pkg/utils"
)

const component = "adapter"

// URIScheme is the scheme of fully qualified bridge paths, rgw://bucket/key.
const URIScheme = "rgw"

// Adapter owns one mounted session and everything it needs: the native
// library, the bridge over it, the metrics collector and the logger.
type Adapter struct {
	config    *config.Configuration
	base      *slog.Logger
	logger    *slog.Logger
	logCloser io.Closer

	library native.Library
	bridge  *bridge.Bridge
	metrics *metrics.Collector

	ioBuffer int

	mu      sync.RWMutex
	session native.FS
	started bool
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLibrary uses lib instead of the library selected by backend.type.
func WithLibrary(lib native.Library) Option {
	return func(a *Adapter) { a.library = lib }
}

// WithLogger uses logger instead of one built from the global settings.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) { a.logger = logger }
}

// New creates an adapter from a validated configuration. Nothing is mounted
// until Start.
func New(cfg *config.Configuration, opts ...Option) (*Adapter, error) {
	if cfg == nil {
		cfg = config.NewDefault()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &Adapter{config: cfg}
	for _, opt := range opts {
		opt(a)
	}

	if a.logger == nil {
		logger, closer, err := utils.NewLogger(cfg.LoggerConfig())
		if err != nil {
			return nil, errors.NewError(errors.ErrCodeInitializationFailed, "failed to create logger").
				WithComponent(component).
				WithCause(err)
		}
		a.logger, a.logCloser = logger, closer
	}
	a.base = a.logger
	a.logger = a.base.With("component", component)

	size, err := cfg.IOBufferBytes()
	if err != nil {
		return nil, err
	}
	a.ioBuffer = int(min(size, math.MaxInt32))

	if a.library == nil {
		lib, err := newLibrary(cfg, a.base)
		if err != nil {
			return nil, err
		}
		a.library = lib
	}

	m := cfg.Monitoring.Metrics
	a.metrics, err = metrics.NewCollector(&metrics.Config{
		Enabled:   m.Enabled,
		Port:      m.Port,
		Path:      m.Path,
		Namespace: m.Namespace,
	})
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeInitializationFailed, "failed to create metrics collector").
			WithComponent(component).
			WithCause(err)
	}
	if err := registerBackendGauges(a.metrics, a.library); err != nil {
		return nil, errors.NewError(errors.ErrCodeInitializationFailed, "failed to register backend metrics").
			WithComponent(component).
			WithCause(err)
	}
	return a, nil
}

func newLibrary(cfg *config.Configuration, logger *slog.Logger) (native.Library, error) {
	switch cfg.Backend.Type {
	case config.BackendMemory:
		return memfs.New(
			memfs.WithPageSize(cfg.Backend.Memory.PageSize),
			memfs.WithMaxWriteChunk(cfg.Backend.Memory.MaxWriteChunk),
		), nil
	case config.BackendS3:
		s3cfg := cfg.Backend.S3
		return s3.New(&s3cfg, s3.WithLogger(logger)), nil
	case config.BackendLibRGW:
		return librgw.Open()
	default:
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "unknown backend type").
			WithComponent(component).
			WithParam("type", cfg.Backend.Type)
	}
}

type backendMetrics interface {
	GetMetrics() s3.BackendMetrics
}

// registerBackendGauges exports the request counters of libraries that keep
// their own.
func registerBackendGauges(c *metrics.Collector, lib native.Library) error {
	bm, ok := lib.(backendMetrics)
	if !ok {
		return nil
	}
	gauges := []struct {
		name, help string
		value      func(s3.BackendMetrics) int64
	}{
		{"backend_requests", "Requests issued to the object store", func(m s3.BackendMetrics) int64 { return m.Requests }},
		{"backend_errors", "Failed object store requests", func(m s3.BackendMetrics) int64 { return m.Errors }},
		{"backend_retries", "Retried object store requests", func(m s3.BackendMetrics) int64 { return m.Retries }},
		{"backend_bytes_uploaded", "Bytes uploaded to the object store", func(m s3.BackendMetrics) int64 { return m.BytesUploaded }},
		{"backend_bytes_downloaded", "Bytes downloaded from the object store", func(m s3.BackendMetrics) int64 { return m.BytesDownloaded }},
		{"backend_cargoship_uploads", "Uploads routed through CargoShip", func(m s3.BackendMetrics) int64 { return m.CargoShipUploads }},
		{"backend_cargoship_fallbacks", "CargoShip uploads retried with PutObject", func(m s3.BackendMetrics) int64 { return m.CargoShipFallbacks }},
		{"backend_circuit_rejections", "Requests rejected by the open circuit breaker", func(m s3.BackendMetrics) int64 { return m.CircuitRejections }},
	}
	for _, g := range gauges {
		value := g.value
		if err := c.RegisterGaugeFunc(g.name, g.help, func() float64 {
			return float64(value(bm.GetMetrics()))
		}); err != nil {
			return err
		}
	}
	return nil
}

// Start initializes the native runtime, mounts the configured identity and
// starts the metrics server.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return errors.NewError(errors.ErrCodeInvalidState, "adapter already started").
			WithComponent(component)
	}

	unit, err := a.config.TimeUnit()
	if err != nil {
		return err
	}
	if a.bridge == nil {
		b, err := bridge.New(a.library,
			bridge.WithTimeUnit(unit),
			bridge.WithOwnership(a.config.Ownership()),
			bridge.WithLogger(a.base),
			bridge.WithRecorder(a.metrics),
			bridge.WithRuntimeArgs(a.config.Backend.LibRGW.Args...),
		)
		if err != nil {
			return err
		}
		a.bridge = b
	}

	// The per-operation summary covers the current session only.
	a.metrics.ResetMetrics()
	mc := a.config.Mount
	fs, err := a.bridge.Mount(mc.UserID, mc.AccessKey, mc.SecretKey)
	if err != nil {
		return err
	}

	if mc.Bucket != "" {
		root, _ := a.bridge.RootHandle(fs)
		fh, err := a.bridge.LookupWithFlags(fs, root, mc.Bucket, native.LookupFlagDir)
		if err != nil {
			_ = a.bridge.Unmount(fs)
			return err
		}
		_ = a.bridge.Close(fs, fh)
	}

	if err := a.metrics.Start(ctx); err != nil {
		_ = a.bridge.Unmount(fs)
		return errors.NewError(errors.ErrCodeInitializationFailed, "failed to start metrics server").
			WithComponent(component).
			WithCause(err)
	}

	a.session = fs
	a.started = true
	a.logger.Info("adapter started",
		"library", a.library.Name(),
		"user", mc.UserID,
		"bucket", mc.Bucket,
		"time_unit", unit.String())
	return nil
}

// Stop unmounts the session, shuts the metrics server down and closes a log
// file opened by New. Stopping a stopped adapter does nothing.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return nil
	}

	var errs []error
	if err := a.bridge.Unmount(a.session); err != nil {
		errs = append(errs, err)
	}
	if err := a.metrics.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop metrics server: %w", err))
	}
	a.session = 0
	a.started = false
	a.logger.Info("adapter stopped")

	if a.logCloser != nil {
		if err := a.logCloser.Close(); err != nil {
			errs = append(errs, err)
		}
		a.logCloser = nil
	}
	return stderrors.Join(errs...)
}

// Bridge returns the bridge, nil before the first Start.
func (a *Adapter) Bridge() *bridge.Bridge {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.bridge
}

// Session returns the mounted session, zero when stopped.
func (a *Adapter) Session() native.FS {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.session
}

// Metrics returns the collector the bridge reports to.
func (a *Adapter) Metrics() *metrics.Collector { return a.metrics }

// IOBufferSize is the chunk size used by ReadFile and WriteFile.
func (a *Adapter) IOBufferSize() int { return a.ioBuffer }

// Logger returns the adapter's logger.
func (a *Adapter) Logger() *slog.Logger { return a.logger }

func (a *Adapter) mounted() (*bridge.Bridge, native.FS, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.started {
		return nil, 0, errors.NewError(errors.ErrCodeInvalidState, "adapter not started").
			WithComponent(component)
	}
	return a.bridge, a.session, nil
}

// components maps a user path to components below the mount root.
// rgw://bucket/key and /bucket/key are absolute; any other path is relative
// to mount.bucket when one is configured.
func (a *Adapter) components(p string) ([]string, error) {
	if strings.Contains(p, "://") {
		bucket, key, err := parseURI(p)
		if err != nil {
			return nil, err
		}
		parts, err := utils.SplitPath(key)
		if err != nil {
			return nil, invalidPath(p, err)
		}
		return append([]string{bucket}, parts...), nil
	}

	parts, err := utils.SplitPath(p)
	if err != nil {
		return nil, invalidPath(p, err)
	}
	if !strings.HasPrefix(p, "/") && a.config.Mount.Bucket != "" {
		parts = append([]string{a.config.Mount.Bucket}, parts...)
	}
	return parts, nil
}

// Canonical returns p as an absolute /bucket/key path.
func (a *Adapter) Canonical(p string) (string, error) {
	parts, err := a.components(p)
	if err != nil {
		return "", err
	}
	return utils.JoinPath(parts...), nil
}

// parseURI splits rgw://bucket/key into the bucket and the key path.
func parseURI(uri string) (string, string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", invalidPath(uri, err)
	}
	if u.Scheme != URIScheme {
		return "", "", errors.NewError(errors.ErrCodeInvalidArgument, "unsupported URI scheme").
			WithComponent(component).
			WithParam("uri", uri).
			WithParam("scheme", u.Scheme)
	}
	if u.Host == "" {
		return "", "", errors.NewError(errors.ErrCodeInvalidArgument, "URI must name a bucket").
			WithComponent(component).
			WithParam("uri", uri)
	}
	return u.Host, u.Path, nil
}

func invalidPath(p string, cause error) error {
	return errors.NewError(errors.ErrCodeInvalidArgument, "invalid path").
		WithComponent(component).
		WithParam("path", p).
		WithCause(cause)
}
