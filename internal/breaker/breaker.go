// Package breaker implements a circuit breaker for unreliable external
// dependencies: the context store and the inference backends.
//
// Each dependency gets its own Breaker instance; a failure in one dependency
// never trips the breaker guarding another.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Do without invoking the wrapped function when
// the circuit is open (or a half-open trial is already in flight).
var ErrCircuitOpen = errors.New("breaker: circuit open")

// State is the current circuit state.
type State int

const (
	// StateClosed passes calls through and counts failures.
	StateClosed State = iota

	// StateOpen fails fast without invoking the dependency.
	StateOpen

	// StateHalfOpen permits a single trial call to test recovery.
	StateHalfOpen
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Settings holds the breaker tuning parameters.
type Settings struct {
	// FailureRatio is the rolling failure ratio at or above which the
	// circuit opens. Inclusive, so a ratio of 1.0 still trips on a fully
	// failed window.
	FailureRatio float64

	// WindowSize is the number of recent call outcomes considered.
	WindowSize int

	// MinSamples is the minimum number of recorded outcomes before the
	// failure ratio is evaluated. Prevents a single early failure from
	// tripping the circuit.
	MinSamples int

	// Cooldown is how long the circuit stays open before allowing a
	// half-open trial call.
	Cooldown time.Duration
}

// DefaultSettings returns conservative breaker defaults.
func DefaultSettings() Settings {
	return Settings{
		FailureRatio: 0.5,
		WindowSize:   10,
		MinSamples:   3,
		Cooldown:     30 * time.Second,
	}
}

// Breaker guards calls to one unreliable dependency.
// Safe for concurrent use.
type Breaker struct {
	name     string
	settings Settings

	mu            sync.Mutex
	state         State
	openedAt      time.Time
	trialInFlight bool

	// Sliding window of recent outcomes, true = failure.
	window  []bool
	nextIdx int
	filled  int

	// now is injectable for tests.
	now func() time.Time
}

// New creates a breaker for the named dependency. Invalid settings fields
// fall back to defaults; configuration validation happens at startup in the
// config package, so this is a safety net, not the enforcement point.
func New(name string, settings Settings) *Breaker {
	def := DefaultSettings()
	if settings.FailureRatio <= 0 || settings.FailureRatio > 1 {
		settings.FailureRatio = def.FailureRatio
	}
	if settings.WindowSize <= 0 {
		settings.WindowSize = def.WindowSize
	}
	if settings.MinSamples <= 0 || settings.MinSamples > settings.WindowSize {
		settings.MinSamples = min(def.MinSamples, settings.WindowSize)
	}
	if settings.Cooldown <= 0 {
		settings.Cooldown = def.Cooldown
	}

	return &Breaker{
		name:     name,
		settings: settings,
		state:    StateClosed,
		window:   make([]bool, settings.WindowSize),
		now:      time.Now,
	}
}

// Name returns the dependency name this breaker guards.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current circuit state, accounting for cooldown expiry.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.settings.Cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Do invokes fn through the circuit. When the circuit is open it returns
// ErrCircuitOpen without invoking fn. Any non-nil error from fn counts as a
// failure against the sliding window.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	trial, err := b.beforeCall()
	if err != nil {
		return err
	}

	callErr := fn(ctx)
	b.afterCall(trial, callErr)
	return callErr
}

// beforeCall decides whether the call may proceed and whether it is a
// half-open trial.
func (b *Breaker) beforeCall() (trial bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.settings.Cooldown {
			return false, fmt.Errorf("%w: %s", ErrCircuitOpen, b.name)
		}
		b.state = StateHalfOpen
		b.trialInFlight = true
		return true, nil

	case StateHalfOpen:
		if b.trialInFlight {
			return false, fmt.Errorf("%w: %s (trial in flight)", ErrCircuitOpen, b.name)
		}
		b.trialInFlight = true
		return true, nil

	default:
		return false, nil
	}
}

// afterCall records the outcome and drives state transitions.
func (b *Breaker) afterCall(trial bool, callErr error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	failed := callErr != nil

	if trial {
		b.trialInFlight = false
		if failed {
			// Trial failed: reopen and restart the cooldown.
			b.state = StateOpen
			b.openedAt = b.now()
			return
		}
		// Trial succeeded: close with a fresh window.
		b.state = StateClosed
		b.resetWindowLocked()
		return
	}

	// State may have changed to Open while this closed-state call was in
	// flight; its outcome still belongs to the window.
	b.recordLocked(failed)

	if b.state == StateClosed && b.filled >= b.settings.MinSamples &&
		b.failureRatioLocked() >= b.settings.FailureRatio {
		b.state = StateOpen
		b.openedAt = b.now()
	}
}

func (b *Breaker) recordLocked(failed bool) {
	b.window[b.nextIdx] = failed
	b.nextIdx = (b.nextIdx + 1) % len(b.window)
	if b.filled < len(b.window) {
		b.filled++
	}
}

func (b *Breaker) failureRatioLocked() float64 {
	if b.filled == 0 {
		return 0
	}
	failures := 0
	for i := 0; i < b.filled; i++ {
		if b.window[i] {
			failures++
		}
	}
	return float64(failures) / float64(b.filled)
}

func (b *Breaker) resetWindowLocked() {
	for i := range b.window {
		b.window[i] = false
	}
	b.nextIdx = 0
	b.filled = 0
	b.trialInFlight = false
}
