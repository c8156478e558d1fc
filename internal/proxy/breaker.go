// Package proxy forwards authenticated API traffic to the downstream
// services, guarding each one with a circuit breaker and stamping the
// verified identity onto forwarded requests.
package proxy

import (
	"sync"
	"time"

	dErrors "talentgate/pkg/domain-errors"
)

// BreakerState is the circuit breaker state machine position.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half_open"
)

// Breaker is a per-service circuit breaker. Consecutive failures open the
// circuit; after the reset timeout exactly one trial request probes the
// service, and its outcome decides between closing and re-opening.
type Breaker struct {
	service      string
	maxFailures  int
	resetTimeout time.Duration
	onTransition func(service string, state BreakerState)
	clock        func() time.Time

	mu            sync.Mutex
	state         BreakerState
	failures      int
	openedAt      time.Time
	trialInFlight bool
}

// BreakerOption configures a Breaker.
type BreakerOption func(*Breaker)

// WithTransitionHook registers a callback fired on every state change.
func WithTransitionHook(hook func(service string, state BreakerState)) BreakerOption {
	return func(b *Breaker) { b.onTransition = hook }
}

// WithBreakerClock overrides the time source, for tests.
func WithBreakerClock(clock func() time.Time) BreakerOption {
	return func(b *Breaker) { b.clock = clock }
}

func NewBreaker(service string, maxFailures int, resetTimeout time.Duration, opts ...BreakerOption) *Breaker {
	b := &Breaker{
		service:      service,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		clock:        time.Now,
		state:        StateClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Allow reports whether a request may proceed. While open it fails fast with
// an upstream-unavailable error; once the reset timeout elapses it admits a
// single trial and holds everything else back until that trial resolves.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.clock().Sub(b.openedAt) < b.resetTimeout {
			return b.rejection()
		}
		b.transition(StateHalfOpen)
		b.trialInFlight = true
		return nil
	case StateHalfOpen:
		if b.trialInFlight {
			return b.rejection()
		}
		b.trialInFlight = true
		return nil
	}
	return nil
}

// RecordSuccess notes a successful downstream response.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.trialInFlight = false
	if b.state != StateClosed {
		b.transition(StateClosed)
	}
}

// RecordFailure notes a downstream failure; the trip threshold counts
// consecutive failures only.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		// The trial failed; back to open with a fresh timeout.
		b.trialInFlight = false
		b.openedAt = b.clock()
		b.transition(StateOpen)
	case StateClosed:
		b.failures++
		if b.failures >= b.maxFailures {
			b.openedAt = b.clock()
			b.transition(StateOpen)
		}
	}
}

// CancelTrial releases the half-open trial slot when the trial resolved
// without a usable outcome, such as the client disconnecting mid-call. The
// breaker goes back to open with a fresh timeout so a later request can
// probe again. Outside an in-flight trial this is a no-op.
func (b *Breaker) CancelTrial() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateHalfOpen || !b.trialInFlight {
		return
	}
	b.trialInFlight = false
	b.openedAt = b.clock()
	b.transition(StateOpen)
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) transition(state BreakerState) {
	b.state = state
	if b.onTransition != nil {
		b.onTransition(b.service, state)
	}
}

func (b *Breaker) rejection() error {
	return dErrors.NewReason(dErrors.CodeUnavailable, dErrors.ReasonCircuitOpen,
		"service temporarily unavailable: "+b.service)
}

// Registry holds one breaker per downstream service.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker

	maxFailures  int
	resetTimeout time.Duration
	opts         []BreakerOption
}

func NewRegistry(maxFailures int, resetTimeout time.Duration, opts ...BreakerOption) *Registry {
	return &Registry{
		breakers:     make(map[string]*Breaker),
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		opts:         opts,
	}
}

// Get returns the breaker for a service, creating it on first use.
func (r *Registry) Get(service string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[service]; ok {
		return b
	}
	b := NewBreaker(service, r.maxFailures, r.resetTimeout, r.opts...)
	r.breakers[service] = b
	return b
}

// States snapshots every known breaker, for health reporting.
func (r *Registry) States() map[string]BreakerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]BreakerState, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.State()
	}
	return out
}
