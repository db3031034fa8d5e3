// Package circuit counts consecutive failures of a dependency and tells the
// caller when to switch to a fallback and when the primary has recovered.
package circuit

import "sync"

type State string

const (
	StateClosed State = "closed"
	StateOpen   State = "open"
)

// StateChange reports a transition caused by the recorded outcome.
type StateChange struct {
	Opened bool
	Closed bool
}

type Breaker struct {
	name             string
	failureThreshold int
	successThreshold int

	mu        sync.Mutex
	state     State
	failures  int
	successes int
}

type Option func(*Breaker)

// WithFailureThreshold sets how many consecutive failures open the circuit.
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.failureThreshold = n
		}
	}
}

// WithSuccessThreshold sets how many consecutive successes close it again.
func WithSuccessThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.successThreshold = n
		}
	}
}

func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:             name,
		failureThreshold: 5,
		successThreshold: 2,
		state:            StateClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Breaker) Name() string { return b.name }

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) IsOpen() bool { return b.State() == StateOpen }

// RecordFailure returns whether the caller should use the fallback.
func (b *Breaker) RecordFailure() (useFallback bool, change StateChange) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.successes = 0
	if b.state == StateOpen {
		return true, StateChange{}
	}
	b.failures++
	if b.failures < b.failureThreshold {
		return false, StateChange{}
	}
	b.state = StateOpen
	b.failures = 0
	return true, StateChange{Opened: true}
}

// RecordSuccess returns whether the primary is trusted again.
func (b *Breaker) RecordSuccess() (usePrimary bool, change StateChange) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	if b.state == StateClosed {
		return true, StateChange{}
	}
	b.successes++
	if b.successes < b.successThreshold {
		return false, StateChange{}
	}
	b.state = StateClosed
	b.successes = 0
	return true, StateChange{Closed: true}
}

func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.successes = 0
}
