// Package breaker guards calls to the profile service with a count-based
// circuit breaker in CLOSED, OPEN and HALF_OPEN states.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// State is the breaker position.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func stateOf(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return Open
	case gobreaker.StateHalfOpen:
		return HalfOpen
	default:
		return Closed
	}
}

// ErrOpen is returned without attempting the call while the breaker rejects traffic.
var ErrOpen = errors.New("breaker: circuit open")

// Settings configures a Breaker. Zero values fall back to defaults.
type Settings struct {
	Name string
	// FailureRateThreshold in (0,1]. The breaker trips when the failure rate
	// over the last WindowSize calls reaches it.
	FailureRateThreshold float64
	WindowSize           int
	// MinimumCalls recorded before the failure rate is evaluated.
	MinimumCalls int
	// OpenTimeout is the cool-down before trial calls are let through.
	OpenTimeout time.Duration
	// HalfOpenMaxCalls trial calls must all succeed to close the breaker.
	HalfOpenMaxCalls int
	// IsFailure classifies call results. Defaults to err != nil.
	IsFailure func(error) bool
	// IsIgnored results count neither way and free their half-open slot.
	// Defaults to caller cancellation.
	IsIgnored func(error) bool
	// OnStateChange runs while the breaker is locked and must not call back into it.
	OnStateChange func(name string, from, to State)
}

const (
	defaultFailureRate  = 0.5
	defaultWindowSize   = 10
	defaultMinimumCalls = 5
	defaultOpenTimeout  = 30 * time.Second
	defaultHalfOpen     = 3
)

// Breaker guards calls to an unreliable dependency. It is safe for concurrent use.
type Breaker struct {
	name string
	cb   *gobreaker.TwoStepCircuitBreaker[any]
}

// New validates settings and returns a closed breaker.
func New(s Settings) (*Breaker, error) {
	if s.FailureRateThreshold == 0 {
		s.FailureRateThreshold = defaultFailureRate
	}
	if s.WindowSize == 0 {
		s.WindowSize = defaultWindowSize
	}
	if s.MinimumCalls == 0 {
		s.MinimumCalls = min(defaultMinimumCalls, s.WindowSize)
	}
	if s.OpenTimeout == 0 {
		s.OpenTimeout = defaultOpenTimeout
	}
	if s.HalfOpenMaxCalls == 0 {
		s.HalfOpenMaxCalls = defaultHalfOpen
	}
	switch {
	case s.FailureRateThreshold < 0 || s.FailureRateThreshold > 1:
		return nil, fmt.Errorf("breaker: failure rate threshold %v out of range (0,1]", s.FailureRateThreshold)
	case s.WindowSize < 0:
		return nil, fmt.Errorf("breaker: window size must be positive")
	case s.MinimumCalls < 0 || s.MinimumCalls > s.WindowSize:
		return nil, fmt.Errorf("breaker: minimum calls must be within (0,%d]", s.WindowSize)
	case s.OpenTimeout < 0:
		return nil, fmt.Errorf("breaker: open timeout must be positive")
	case s.HalfOpenMaxCalls < 0:
		return nil, fmt.Errorf("breaker: half-open calls must be positive")
	}
	isFailure := s.IsFailure
	if isFailure == nil {
		isFailure = func(err error) bool { return err != nil }
	}
	isIgnored := s.IsIgnored
	if isIgnored == nil {
		isIgnored = func(err error) bool { return errors.Is(err, context.Canceled) }
	}

	w := newWindow(s.WindowSize, s.MinimumCalls, s.FailureRateThreshold)
	st := gobreaker.Settings{
		Name:         s.Name,
		MaxRequests:  uint32(s.HalfOpenMaxCalls),
		Timeout:      s.OpenTimeout,
		ReadyToTrip:  w.tripped,
		IsSuccessful: func(err error) bool { return !isFailure(err) },
		IsExcluded:   isIgnored,
	}
	if hook := s.OnStateChange; hook != nil {
		st.OnStateChange = func(name string, from, to gobreaker.State) {
			hook(name, stateOf(from), stateOf(to))
		}
	}
	return &Breaker{name: s.Name, cb: gobreaker.NewTwoStepCircuitBreaker[any](st)}, nil
}

// Name returns the configured breaker name.
func (b *Breaker) Name() string { return b.name }

// State returns the current state, applying the open timeout if it elapsed.
func (b *Breaker) State() State { return stateOf(b.cb.State()) }

// Allow reserves a call slot. On success the caller must invoke done exactly once with the call result.
// Results reported after a state change are ignored.
func (b *Breaker) Allow() (done func(error), err error) {
	report, err := b.cb.Allow()
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w (%s)", ErrOpen, b.name)
		}
		return nil, err
	}
	var once sync.Once
	return func(callErr error) { once.Do(func() { report(callErr) }) }, nil
}

// Execute runs fn under the breaker.
func Execute[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	done, err := b.Allow()
	if err != nil {
		return zero, err
	}
	res, err := fn(ctx)
	done(err)
	return res, err
}

// window keeps the outcomes of the last calls in the closed state. gobreaker
// only consults it on failures, under its own mutex, so the successes since
// the previous failure are replayed from the cumulative counts.
type window struct {
	outcomes  []bool // ring buffer, true = failure
	next      int
	recorded  int
	failures  int
	minimum   int
	threshold float64

	seenFailures  uint32
	seenSuccesses uint32
}

func newWindow(size, minimum int, threshold float64) *window {
	return &window{outcomes: make([]bool, size), minimum: minimum, threshold: threshold}
}

func (w *window) tripped(c gobreaker.Counts) bool {
	// Counts restart from zero with every new closed generation.
	if c.TotalFailures != w.seenFailures+1 || c.TotalSuccesses < w.seenSuccesses {
		w.reset()
	}
	for n := min(c.TotalSuccesses-w.seenSuccesses, uint32(len(w.outcomes))); n > 0; n-- {
		w.push(false)
	}
	w.push(true)
	w.seenFailures, w.seenSuccesses = c.TotalFailures, c.TotalSuccesses

	if w.recorded < w.minimum {
		return false
	}
	if float64(w.failures)/float64(w.recorded) < w.threshold {
		return false
	}
	w.reset()
	return true
}

func (w *window) push(failure bool) {
	if w.recorded == len(w.outcomes) {
		if w.outcomes[w.next] {
			w.failures--
		}
	} else {
		w.recorded++
	}
	w.outcomes[w.next] = failure
	if failure {
		w.failures++
	}
	w.next = (w.next + 1) % len(w.outcomes)
}

func (w *window) reset() {
	clear(w.outcomes)
	w.next, w.recorded, w.failures = 0, 0, 0
	w.seenFailures, w.seenSuccesses = 0, 0
}
