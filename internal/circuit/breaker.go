// Package circuit stops a native library from hammering an object store
// that keeps failing. After a run of consecutive failures the breaker opens
// and calls fail fast until a cool-down passes; then a limited number of
// probe calls decide whether it closes again.
package circuit

import (
	"sync"
	"time"

	"github.com/objectfs/rgwbridge/pkg/errors"
)

// State represents the circuit breaker state
type State int

const (
	// StateClosed lets every call through.
	StateClosed State = iota
	// StateOpen rejects calls until the cool-down expires.
	StateOpen
	// StateHalfOpen lets a limited number of probe calls through.
	StateHalfOpen
)

// String returns string representation of state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config contains circuit breaker configuration
type Config struct {
	Enabled bool `yaml:"enabled"`

	// FailureThreshold is the number of consecutive failures that opens
	// the breaker.
	FailureThreshold uint32 `yaml:"failure_threshold"`

	// Timeout is how long the breaker stays open.
	Timeout time.Duration `yaml:"timeout"`

	// HalfOpenRequests is the number of probes allowed while half-open.
	HalfOpenRequests uint32 `yaml:"half_open_requests"`

	// IsFailure decides which errors count against the breaker. The
	// default counts every non-nil error.
	IsFailure func(err error) bool `yaml:"-"`

	OnStateChange func(from, to State) `yaml:"-"`
}

// DefaultConfig returns a disabled breaker configuration with the defaults
// used once it is enabled.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		Timeout:          30 * time.Second,
		HalfOpenRequests: 1,
	}
}

// Counts holds the numbers of requests and their outcomes in the current
// state.
type Counts struct {
	Requests            uint32 `json:"requests"`
	Failures            uint32 `json:"failures"`
	ConsecutiveFailures uint32 `json:"consecutive_failures"`
	Rejected            uint64 `json:"rejected"`
}

// Breaker implements the circuit breaker pattern
type Breaker struct {
	config Config
	now    func() time.Time

	mu      sync.Mutex
	state   State
	counts  Counts
	expires time.Time
}

// New creates a breaker. Zero fields of config take their defaults.
func New(config Config) *Breaker {
	d := DefaultConfig()
	if config.FailureThreshold == 0 {
		config.FailureThreshold = d.FailureThreshold
	}
	if config.Timeout <= 0 {
		config.Timeout = d.Timeout
	}
	if config.HalfOpenRequests == 0 {
		config.HalfOpenRequests = d.HalfOpenRequests
	}
	if config.IsFailure == nil {
		config.IsFailure = func(err error) bool { return err != nil }
	}
	return &Breaker{config: config, now: time.Now}
}

// WithClock replaces the time source.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.now = now
	return b
}

// Execute runs fn unless the breaker is open. A rejected call returns a
// BACKEND_FAILURE error with Retryable unset, so retry loops stop at once.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.before(); err != nil {
		return err
	}
	err := fn()
	b.after(err)
	return err
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := b.current()
	if state == StateOpen || (state == StateHalfOpen && b.counts.Requests >= b.config.HalfOpenRequests) {
		b.counts.Rejected++
		return errors.NewError(errors.ErrCodeBackendFailure, "circuit breaker is open").
			WithComponent("circuit").
			WithParam("state", state.String()).
			WithParam("retry_after", b.expires.Sub(b.now()).Round(time.Millisecond).String())
	}
	b.counts.Requests++
	return nil
}

func (b *Breaker) after(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := b.current()
	if !b.config.IsFailure(err) {
		b.counts.ConsecutiveFailures = 0
		if state == StateHalfOpen {
			b.setState(StateClosed)
		}
		return
	}

	b.counts.Failures++
	b.counts.ConsecutiveFailures++
	switch {
	case state == StateHalfOpen:
		b.setState(StateOpen)
	case state == StateClosed && b.counts.ConsecutiveFailures >= b.config.FailureThreshold:
		b.setState(StateOpen)
	}
}

// current moves an expired open breaker to half-open. Callers hold mu.
func (b *Breaker) current() State {
	if b.state == StateOpen && !b.now().Before(b.expires) {
		b.setState(StateHalfOpen)
	}
	return b.state
}

func (b *Breaker) setState(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	rejected := b.counts.Rejected
	b.counts = Counts{Rejected: rejected}
	b.expires = time.Time{}
	if to == StateOpen {
		b.expires = b.now().Add(b.config.Timeout)
	}
	if b.config.OnStateChange != nil {
		b.config.OnStateChange(from, to)
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current()
}

// Counts returns a copy of the counters.
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Reset closes the breaker and clears the counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setState(StateClosed)
	b.counts = Counts{}
}
