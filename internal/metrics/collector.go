package metrics

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/objectfs/rgwbridge/pkg/errors"
)

// Collector records bridge operations into a Prometheus registry and keeps
// a per-operation summary for the debug endpoint. It implements
// bridge.Recorder.
type Collector struct {
	mu       sync.RWMutex
	config   *Config
	registry *prometheus.Registry
	logger   *slog.Logger

	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesCounter      *prometheus.CounterVec
	nativeErrors      *prometheus.CounterVec
	errorCounter      *prometheus.CounterVec

	operations map[string]*OperationMetrics
	lastReset  time.Time

	server   *http.Server
	listener net.Listener
}

// Config represents metrics configuration
type Config struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// OperationMetrics summarizes one operation name.
type OperationMetrics struct {
	Count         int64         `json:"count"`
	Errors        int64         `json:"errors"`
	Bytes         int64         `json:"bytes"`
	TotalDuration time.Duration `json:"total_duration"`
	MinDuration   time.Duration `json:"min_duration"`
	MaxDuration   time.Duration `json:"max_duration"`
	AvgDuration   time.Duration `json:"avg_duration"`
	LastOperation time.Time     `json:"last_operation"`
	LastErrno     int32         `json:"last_errno,omitempty"`
}

// NewCollector creates a collector. A nil config enables collection with
// the default namespace; a disabled config yields a collector that drops
// everything.
func NewCollector(config *Config) (*Collector, error) {
	if config == nil {
		config = &Config{Enabled: true, Path: "/metrics", Namespace: "rgwbridge"}
	}
	if config.Path == "" {
		config.Path = "/metrics"
	}

	c := &Collector{
		config:     config,
		logger:     slog.Default().With("component", "metrics"),
		operations: make(map[string]*OperationMetrics),
		lastReset:  time.Now(),
	}
	if !config.Enabled {
		return c, nil
	}

	c.registry = prometheus.NewRegistry()
	c.initMetrics()
	if err := c.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return c, nil
}

func (c *Collector) initMetrics() {
	ns := c.config.Namespace

	c.operationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "operations_total",
			Help:      "Total number of bridge operations",
		},
		[]string{"operation", "status"},
	)
	c.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "operation_duration_seconds",
			Help:      "Duration of bridge operations in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 18), // 100us to ~13s
		},
		[]string{"operation"},
	)
	c.bytesCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "bytes_total",
			Help:      "Bytes moved by read and write operations",
		},
		[]string{"operation"},
	)
	c.nativeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "native_errors_total",
			Help:      "Native calls that returned a negative status",
		},
		[]string{"operation", "errno"},
	)
	c.errorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "errors_total",
			Help:      "Failed bridge operations by error code",
		},
		[]string{"operation", "code"},
	)
}

func (c *Collector) registerMetrics() error {
	for _, m := range []prometheus.Collector{
		c.operationCounter,
		c.operationDuration,
		c.bytesCounter,
		c.nativeErrors,
		c.errorCounter,
	} {
		if err := c.registry.Register(m); err != nil {
			return err
		}
	}
	return nil
}

// Enabled reports whether the collector records anything.
func (c *Collector) Enabled() bool { return c.config.Enabled }

// Registry exposes the underlying registry, nil when disabled.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// RegisterGaugeFunc exports a value sampled at scrape time, such as a
// native library's request counters.
func (c *Collector) RegisterGaugeFunc(name, help string, fn func() float64) error {
	if !c.config.Enabled {
		return nil
	}
	return c.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: c.config.Namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// RecordOperation records one bridge operation.
func (c *Collector) RecordOperation(operation string, duration time.Duration, bytes int64, err error) {
	if !c.config.Enabled {
		return
	}

	status := "success"
	if err != nil {
		status = "error"
	}
	errno, native := errors.ErrnoOf(err)

	c.mu.Lock()
	m, ok := c.operations[operation]
	if !ok {
		m = &OperationMetrics{MinDuration: duration}
		c.operations[operation] = m
	}
	m.Count++
	m.Bytes += bytes
	m.TotalDuration += duration
	m.MinDuration = min(m.MinDuration, duration)
	m.MaxDuration = max(m.MaxDuration, duration)
	m.AvgDuration = time.Duration(int64(m.TotalDuration) / m.Count)
	m.LastOperation = time.Now()
	if err != nil {
		m.Errors++
		if native {
			m.LastErrno = errno
		}
	}
	c.mu.Unlock()

	c.operationCounter.WithLabelValues(operation, status).Inc()
	c.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if bytes > 0 {
		c.bytesCounter.WithLabelValues(operation).Add(float64(bytes))
	}
	if err != nil {
		c.errorCounter.WithLabelValues(operation, errorCode(err)).Inc()
		if native {
			c.nativeErrors.WithLabelValues(operation, strconv.Itoa(int(errno))).Inc()
		}
	}
}

func errorCode(err error) string {
	var be *errors.BridgeError
	if stderrors.As(err, &be) {
		return string(be.Code)
	}
	return "UNKNOWN"
}

// Snapshot returns a copy of the per-operation summary.
func (c *Collector) Snapshot() map[string]OperationMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]OperationMetrics, len(c.operations))
	for k, v := range c.operations {
		out[k] = *v
	}
	return out
}

// ResetMetrics clears the summary; Prometheus counters are monotonic and
// keep their values.
func (c *Collector) ResetMetrics() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.operations = make(map[string]*OperationMetrics)
	c.lastReset = time.Now()
}

// Handler serves the metrics path, /health and /debug/operations.
func (c *Collector) Handler() http.Handler {
	mux := http.NewServeMux()
	if c.registry != nil {
		mux.Handle(c.config.Path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}))
	}
	mux.HandleFunc("/health", c.healthHandler)
	mux.HandleFunc("/debug/operations", c.debugOperationsHandler)
	return mux
}

// Start serves Handler on the configured port. Port 0 picks a free port;
// see Addr.
func (c *Collector) Start(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", fmt.Sprintf(":%d", c.config.Port))
	if err != nil {
		return fmt.Errorf("failed to listen for metrics: %w", err)
	}

	c.mu.Lock()
	c.listener = ln
	c.server = &http.Server{
		Handler:           c.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	server := c.server
	c.mu.Unlock()

	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			c.logger.Error("metrics server stopped", "error", err)
		}
	}()
	c.logger.Info("metrics server started", "addr", ln.Addr().String(), "path", c.config.Path)
	return nil
}

// Addr returns the listening address once started.
func (c *Collector) Addr() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.listener == nil {
		return ""
	}
	return c.listener.Addr().String()
}

// Stop shuts the metrics server down
func (c *Collector) Stop(ctx context.Context) error {
	c.mu.Lock()
	server := c.server
	c.server, c.listener = nil, nil
	c.mu.Unlock()

	if server != nil {
		return server.Shutdown(ctx)
	}
	return nil
}

func (c *Collector) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy","service":"rgwbridge-metrics"}`))
}

func (c *Collector) debugOperationsHandler(w http.ResponseWriter, r *http.Request) {
	c.mu.RLock()
	since := c.lastReset
	c.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Uptime     string                      `json:"uptime"`
		LastReset  time.Time                   `json:"last_reset"`
		Operations map[string]OperationMetrics `json:"operations"`
	}{
		Uptime:     time.Since(since).Round(time.Second).String(),
		LastReset:  since,
		Operations: c.Snapshot(),
	})
}
