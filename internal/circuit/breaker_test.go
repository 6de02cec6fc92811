package circuit

import (
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/rgwbridge/pkg/errors"
)

var errStore = stderrors.New("store unavailable")

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newBreaker(cfg Config) (*Breaker, *clock) {
	c := &clock{t: time.Unix(1700000000, 0)}
	return New(cfg).WithClock(c.now), c
}

func fail() error    { return errStore }
func succeed() error { return nil }

func TestState_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "CLOSED"},
		{StateOpen, "OPEN"},
		{StateHalfOpen, "HALF_OPEN"},
		{State(999), "UNKNOWN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()
	b := New(Config{})

	assert.Equal(t, uint32(5), b.config.FailureThreshold)
	assert.Equal(t, 30*time.Second, b.config.Timeout)
	assert.Equal(t, uint32(1), b.config.HalfOpenRequests)
	assert.NotNil(t, b.config.IsFailure)
	assert.Equal(t, StateClosed, b.State())
	assert.False(t, DefaultConfig().Enabled)
}

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()
	b, _ := newBreaker(Config{FailureThreshold: 3})

	assert.ErrorIs(t, b.Execute(fail), errStore)
	assert.ErrorIs(t, b.Execute(fail), errStore)
	require.NoError(t, b.Execute(succeed), "a success resets the run")
	assert.ErrorIs(t, b.Execute(fail), errStore)
	assert.ErrorIs(t, b.Execute(fail), errStore)
	assert.Equal(t, StateClosed, b.State())

	assert.ErrorIs(t, b.Execute(fail), errStore)
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Execute(func() error { called = true; return nil })
	assert.False(t, called)
	assert.True(t, errors.HasCode(err, errors.ErrCodeBackendFailure))

	var be *errors.BridgeError
	require.ErrorAs(t, err, &be)
	assert.False(t, be.Retryable)
	state, _ := be.Param("state")
	assert.Equal(t, "OPEN", state)
	assert.Equal(t, uint64(1), b.Counts().Rejected)
}

func TestHalfOpenProbe(t *testing.T) {
	t.Parallel()

	t.Run("success closes", func(t *testing.T) {
		b, clk := newBreaker(Config{FailureThreshold: 1, Timeout: time.Minute})
		_ = b.Execute(fail)
		require.Equal(t, StateOpen, b.State())

		clk.advance(59 * time.Second)
		assert.Equal(t, StateOpen, b.State())
		clk.advance(time.Second)
		assert.Equal(t, StateHalfOpen, b.State())

		require.NoError(t, b.Execute(succeed))
		assert.Equal(t, StateClosed, b.State())
	})

	t.Run("failure reopens", func(t *testing.T) {
		b, clk := newBreaker(Config{FailureThreshold: 1, Timeout: time.Minute})
		_ = b.Execute(fail)
		clk.advance(time.Minute)

		assert.ErrorIs(t, b.Execute(fail), errStore)
		assert.Equal(t, StateOpen, b.State())
	})

	t.Run("probe limit", func(t *testing.T) {
		b, clk := newBreaker(Config{FailureThreshold: 1, Timeout: time.Minute, HalfOpenRequests: 1})
		_ = b.Execute(fail)
		clk.advance(time.Minute)

		release := make(chan struct{})
		done := make(chan error)
		go func() {
			done <- b.Execute(func() error { <-release; return nil })
		}()
		require.Eventually(t, func() bool { return b.Counts().Requests == 1 }, time.Second, time.Millisecond)

		err := b.Execute(succeed)
		assert.True(t, errors.HasCode(err, errors.ErrCodeBackendFailure), "second probe rejected")

		close(release)
		require.NoError(t, <-done)
		assert.Equal(t, StateClosed, b.State())
	})
}

func TestIsFailureFilter(t *testing.T) {
	t.Parallel()
	notFound := stderrors.New("not found")
	b, _ := newBreaker(Config{
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return err != nil && err != notFound },
	})

	for range 10 {
		assert.ErrorIs(t, b.Execute(func() error { return notFound }), notFound)
	}
	assert.Equal(t, StateClosed, b.State())
	assert.Zero(t, b.Counts().Failures)
}

func TestOnStateChange(t *testing.T) {
	t.Parallel()
	var transitions []string
	b, clk := newBreaker(Config{
		FailureThreshold: 1,
		Timeout:          time.Second,
		OnStateChange: func(from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	_ = b.Execute(fail)
	clk.advance(time.Second)
	_ = b.Execute(succeed)

	assert.Equal(t, []string{"CLOSED->OPEN", "OPEN->HALF_OPEN", "HALF_OPEN->CLOSED"}, transitions)
}

func TestReset(t *testing.T) {
	t.Parallel()
	b, _ := newBreaker(Config{FailureThreshold: 1})
	_ = b.Execute(fail)
	_ = b.Execute(succeed)
	require.Equal(t, StateOpen, b.State())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, Counts{}, b.Counts())
	require.NoError(t, b.Execute(succeed))
}

func TestConcurrentExecute(t *testing.T) {
	t.Parallel()
	b, _ := newBreaker(Config{FailureThreshold: 1000})

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				_ = b.Execute(fail)
			} else {
				_ = b.Execute(succeed)
			}
		}()
	}
	wg.Wait()

	c := b.Counts()
	assert.Equal(t, uint32(50), c.Requests)
	assert.Equal(t, uint32(25), c.Failures)
	assert.Equal(t, StateClosed, b.State())
}
