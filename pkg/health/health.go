// Package health tracks the health of maintained components and derives an
// overall state from the worst of them.
package health

import (
	"sort"
	"sync"
	"time"

	"github.com/vwsim/framework/pkg/errors"
)

// HealthState represents the health state of a component
type HealthState int

const (
	// StateHealthy indicates the component is fully operational
	StateHealthy HealthState = iota

	// StateDegraded indicates repeated failures below the unavailable threshold
	StateDegraded

	// StateUnavailable indicates the component keeps failing
	StateUnavailable
)

// String returns the string representation of a health state
func (s HealthState) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON documents.
func (s HealthState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ComponentHealth is a snapshot of one component.
type ComponentHealth struct {
	Name              string      `json:"name"`
	State             HealthState `json:"state"`
	LastStateChange   time.Time   `json:"last_state_change"`
	LastCheck         time.Time   `json:"last_check"`
	ConsecutiveErrors int         `json:"consecutive_errors"`
	LastErrorMessage  string      `json:"last_error_message,omitempty"`
}

// TrackerConfig configures state thresholds
type TrackerConfig struct {
	// ErrorThreshold is the number of consecutive errors before a component is degraded
	ErrorThreshold int `yaml:"error_threshold" json:"error_threshold"`

	// UnavailableThreshold is the number of consecutive errors before it is unavailable
	UnavailableThreshold int `yaml:"unavailable_threshold" json:"unavailable_threshold"`
}

// DefaultConfig returns a default tracker configuration
func DefaultConfig() TrackerConfig {
	return TrackerConfig{
		ErrorThreshold:       3,
		UnavailableThreshold: 10,
	}
}

// Validate checks that both thresholds are positive and ordered.
func (c TrackerConfig) Validate() error {
	if c.ErrorThreshold < 1 {
		return errors.Newf(errors.ErrCodeInvalidConfig, "error threshold must be positive, got %d", c.ErrorThreshold)
	}
	if c.UnavailableThreshold < c.ErrorThreshold {
		return errors.Newf(errors.ErrCodeInvalidConfig,
			"unavailable threshold %d must not be below error threshold %d",
			c.UnavailableThreshold, c.ErrorThreshold)
	}
	return nil
}

// StateChangeCallback is called when a component's health state changes
type StateChangeCallback func(component string, oldState, newState HealthState, err error)

type componentHealth struct {
	state             HealthState
	lastStateChange   time.Time
	lastCheck         time.Time
	consecutiveErrors int
	lastError         string
}

// Tracker tracks component health. Components are registered on first
// report. A single success restores a component to healthy.
type Tracker struct {
	mu         sync.RWMutex
	config     TrackerConfig
	components map[string]*componentHealth
	callbacks  []StateChangeCallback
	now        func() time.Time
}

// NewTracker creates a new health tracker
func NewTracker(config TrackerConfig) (*Tracker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Tracker{
		config:     config,
		components: make(map[string]*componentHealth),
		now:        time.Now,
	}, nil
}

// RecordSuccess records a successful run for a component
func (t *Tracker) RecordSuccess(component string) {
	t.record(component, nil)
}

// RecordError records a failed run for a component
func (t *Tracker) RecordError(component string, err error) {
	if err == nil {
		err = errors.NewError(errors.ErrCodeInternalError, "unspecified failure")
	}
	t.record(component, err)
}

func (t *Tracker) record(component string, err error) {
	t.mu.Lock()
	now := t.now()
	h, exists := t.components[component]
	if !exists {
		h = &componentHealth{state: StateHealthy, lastStateChange: now}
		t.components[component] = h
	}
	h.lastCheck = now

	oldState := h.state
	if err == nil {
		h.consecutiveErrors = 0
		h.lastError = ""
		h.state = StateHealthy
	} else {
		h.consecutiveErrors++
		h.lastError = err.Error()
		switch {
		case h.consecutiveErrors >= t.config.UnavailableThreshold:
			h.state = StateUnavailable
		case h.consecutiveErrors >= t.config.ErrorThreshold:
			h.state = StateDegraded
		}
	}

	changed := h.state != oldState
	if changed {
		h.lastStateChange = now
	}
	newState := h.state
	callbacks := t.callbacks
	t.mu.Unlock()

	if changed {
		for _, cb := range callbacks {
			cb(component, oldState, newState, err)
		}
	}
}

// Remove forgets a component.
func (t *Tracker) Remove(component string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.components, component)
}

// GetState returns the state of a component; unknown components are healthy.
func (t *Tracker) GetState(component string) HealthState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if h, exists := t.components[component]; exists {
		return h.state
	}
	return StateHealthy
}

// GetComponentHealth returns a snapshot of one component
func (t *Tracker) GetComponentHealth(component string) (ComponentHealth, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	h, exists := t.components[component]
	if !exists {
		return ComponentHealth{}, errors.Newf(errors.ErrCodeKeyNotFound, "component %s not tracked", component)
	}
	return h.snapshot(component), nil
}

// GetAllComponents returns snapshots of every component, sorted by name.
func (t *Tracker) GetAllComponents() []ComponentHealth {
	t.mu.RLock()
	defer t.mu.RUnlock()

	names := make([]string, 0, len(t.components))
	for name := range t.components {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]ComponentHealth, 0, len(names))
	for _, name := range names {
		out = append(out, t.components[name].snapshot(name))
	}
	return out
}

// GetOverallHealth returns the worst component state
func (t *Tracker) GetOverallHealth() HealthState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	overall := StateHealthy
	for _, h := range t.components {
		if h.state > overall {
			overall = h.state
		}
	}
	return overall
}

// AddStateChangeCallback registers a callback run after every state change.
func (t *Tracker) AddStateChangeCallback(callback StateChangeCallback) {
	t.mu.Lock()
	defer t.mu.Unlock()

	callbacks := make([]StateChangeCallback, len(t.callbacks), len(t.callbacks)+1)
	copy(callbacks, t.callbacks)
	t.callbacks = append(callbacks, callback)
}

func (h *componentHealth) snapshot(name string) ComponentHealth {
	return ComponentHealth{
		Name:              name,
		State:             h.state,
		LastStateChange:   h.lastStateChange,
		LastCheck:         h.lastCheck,
		ConsecutiveErrors: h.consecutiveErrors,
		LastErrorMessage:  h.lastError,
	}
}
