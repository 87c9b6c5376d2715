package circuit

import (
	"sync"
	"time"

	"quorum/internal/logger"
)

type State int

const (
	StateInactive State = iota
	StateActive
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "INACTIVE"
	case StateActive:
		return "ACTIVE"
	default:
		return "UNKNOWN"
	}
}

// Status is a point-in-time snapshot of the breaker.
type Status struct {
	Active      bool      `json:"active"`
	Reason      string    `json:"trigger_reason,omitempty"`
	TriggeredAt time.Time `json:"triggered_at,omitempty"`
}

// Breaker is a process-wide latch over order flow. Unlike a classic
// failure-counting breaker it never half-opens: once tripped it stays ACTIVE
// until an operator calls Reset. The first trip reason wins; later trips while
// ACTIVE are no-ops so concurrent gate checks cannot overwrite the cause.
type Breaker struct {
	mu          sync.Mutex
	state       State
	reason      string
	triggeredAt time.Time
	name        string
	onChange    func(name string, from, to State, reason string)
}

func NewBreaker(name string) *Breaker {
	return &Breaker{name: name, state: StateInactive}
}

func (b *Breaker) SetStateChangeHandler(handler func(name string, from, to State, reason string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onChange = handler
}

// Trip latches the breaker ACTIVE. Returns true only for the transition that
// actually flipped the state.
func (b *Breaker) Trip(reason string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateActive {
		return false
	}
	b.reason = reason
	b.triggeredAt = time.Now()
	b.transition(StateActive)
	return true
}

// Reset clears the latch. This is the only path back to INACTIVE.
func (b *Breaker) Reset() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateInactive {
		return false
	}
	b.reason = ""
	b.triggeredAt = time.Time{}
	b.transition(StateInactive)
	return true
}

func (b *Breaker) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == StateActive
}

func (b *Breaker) Snapshot() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Status{
		Active:      b.state == StateActive,
		Reason:      b.reason,
		TriggeredAt: b.triggeredAt,
	}
}

func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	if b.onChange != nil {
		go b.onChange(b.name, from, to, b.reason)
	} else {
		logger.Warnf("CircuitBreaker %s state change: %s -> %s (reason=%q)", b.name, from, to, b.reason)
	}
}
