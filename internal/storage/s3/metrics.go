package s3

import (
	"maps"
	"sync"
	"sync/atomic"
	"time"
)

// BackendMetrics is a snapshot of the library's request statistics.
type BackendMetrics struct {
	Requests        int64 `json:"requests"`
	Errors          int64 `json:"errors"`
	Retries         int64 `json:"retries"`
	BytesUploaded   int64 `json:"bytes_uploaded"`
	BytesDownloaded int64 `json:"bytes_downloaded"`

	// Operations counts requests by S3 operation name.
	Operations map[string]int64 `json:"operations"`

	// AverageLatency is an exponentially weighted mean, retries included.
	AverageLatency time.Duration `json:"average_latency"`

	LastError          string    `json:"last_error,omitempty"`
	LastErrorOperation string    `json:"last_error_operation,omitempty"`
	LastErrorTime      time.Time `json:"last_error_time,omitempty"`

	CargoShipUploads   int64 `json:"cargoship_uploads"`
	CargoShipFallbacks int64 `json:"cargoship_fallbacks"`

	// Empty when the breaker is disabled.
	CircuitState      string `json:"circuit_state,omitempty"`
	CircuitRejections int64  `json:"circuit_rejections"`
}

// requestStats accumulates BackendMetrics. Counters are atomic; the latency
// average and error details share a mutex.
type requestStats struct {
	requests, errors, retries       atomic.Int64
	uploaded, downloaded            atomic.Int64
	cargoShipUploads, cargoShipFall atomic.Int64

	mu         sync.Mutex
	operations map[string]int64
	latency    time.Duration
	lastErr    string
	lastErrOp  string
	lastErrAt  time.Time
}

func newRequestStats() *requestStats {
	return &requestStats{operations: make(map[string]int64)}
}

// request records one finished call of operation.
func (s *requestStats) request(operation string, took time.Duration, err error, now time.Time) {
	n := s.requests.Add(1)
	if err != nil {
		s.errors.Add(1)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.operations[operation]++
	if n == 1 {
		s.latency = took
	} else {
		s.latency = (s.latency*9 + took) / 10
	}
	if err != nil {
		s.lastErr, s.lastErrOp, s.lastErrAt = err.Error(), operation, now
	}
}

func (s *requestStats) retry() { s.retries.Add(1) }

func (s *requestStats) upload(n int64, viaCargoShip bool) {
	s.uploaded.Add(n)
	if viaCargoShip {
		s.cargoShipUploads.Add(1)
	}
}

func (s *requestStats) cargoShipFallback() { s.cargoShipFall.Add(1) }

func (s *requestStats) download(n int64) { s.downloaded.Add(n) }

func (s *requestStats) snapshot() BackendMetrics {
	m := BackendMetrics{
		Requests:           s.requests.Load(),
		Errors:             s.errors.Load(),
		Retries:            s.retries.Load(),
		BytesUploaded:      s.uploaded.Load(),
		BytesDownloaded:    s.downloaded.Load(),
		CargoShipUploads:   s.cargoShipUploads.Load(),
		CargoShipFallbacks: s.cargoShipFall.Load(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m.Operations = maps.Clone(s.operations)
	m.AverageLatency = s.latency
	m.LastError, m.LastErrorOperation, m.LastErrorTime = s.lastErr, s.lastErrOp, s.lastErrAt
	return m
}
