package maintenance

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/vwsim/framework/internal/stats"
	"github.com/vwsim/framework/pkg/errors"
	"github.com/vwsim/framework/pkg/health"
	"github.com/vwsim/framework/pkg/types"
	"github.com/vwsim/framework/pkg/utils"
)

// Recorder receives per-target maintenance results. *metrics.Collector
// satisfies it.
type Recorder interface {
	RecordMaintenance(target string, duration time.Duration, purged int)
	RecordMaintenanceError(target string)
}

// Config represents maintenance driver configuration
type Config struct {
	Interval    time.Duration `yaml:"interval"`
	HistorySize int           `yaml:"history_size"`
}

// DefaultConfig returns a 10 second interval with a 128 run history.
func DefaultConfig() *Config {
	return &Config{Interval: 10 * time.Second, HistorySize: 128}
}

// Stats summarises driver activity.
type Stats struct {
	Targets    int           `json:"targets"`
	Runs       uint64        `json:"runs"`
	Purged     uint64        `json:"purged"`
	Failures   uint64        `json:"failures"`
	AverageRun time.Duration `json:"average_run"`
	LastRun    time.Time     `json:"last_run"`
}

// Driver calls Maintain on every registered target at a fixed interval. Runs
// are serialised, so no target sees concurrent Maintain calls from the
// driver, and a panicking target is recovered and reported.
type Driver struct {
	mu      sync.Mutex
	runMu   sync.Mutex
	config  Config
	targets map[string]types.Maintainer

	recorder Recorder
	health   *health.Tracker
	logger   *utils.StructuredLogger
	history  *stats.FixedSizeMRU[time.Duration]

	runs     atomic.Uint64
	purged   atomic.Uint64
	failures atomic.Uint64
	lastRun  atomic.Time

	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewDriver creates a driver. recorder and logger may be nil.
func NewDriver(config *Config, recorder Recorder, logger *utils.StructuredLogger) (*Driver, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Interval <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidConfig, "maintenance interval must be positive, got %s", config.Interval).
			WithComponent("maintenance").
			WithOperation("NewDriver")
	}
	if logger == nil {
		logger = utils.NopLogger()
	}

	return &Driver{
		config:   *config,
		targets:  make(map[string]types.Maintainer),
		recorder: recorder,
		logger:   logger.WithComponent("maintenance"),
		history:  stats.NewFixedSizeMRU[time.Duration](config.HistorySize),
	}, nil
}

// SetHealthTracker reports every target outcome to tracker. Call before Start.
func (d *Driver) SetHealthTracker(tracker *health.Tracker) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.health = tracker
}

// Register adds a target under a unique name.
func (d *Driver) Register(name string, target types.Maintainer) error {
	if target == nil {
		return errors.NewError(errors.ErrCodeInvalidArgument, "maintenance target must not be nil").
			WithComponent("maintenance").
			WithOperation("Register")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.targets[name]; exists {
		return errors.Newf(errors.ErrCodeDuplicateRegistration, "maintenance target %q already registered", name).
			WithComponent("maintenance").
			WithOperation("Register")
	}
	d.targets[name] = target
	d.logger.Debug("registered maintenance target", utils.Fields{"target": name})
	return nil
}

// Unregister removes a target; returns false if name was unknown.
func (d *Driver) Unregister(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.targets[name]; !exists {
		return false
	}
	delete(d.targets, name)
	if d.health != nil {
		d.health.Remove(name)
	}
	return true
}

// Targets returns the registered names in sorted order.
func (d *Driver) Targets() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	names := make([]string, 0, len(d.targets))
	for name := range d.targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunOnce maintains every target in name order and returns the total
// purged. Concurrent calls are serialised.
func (d *Driver) RunOnce() int {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	d.mu.Lock()
	names := make([]string, 0, len(d.targets))
	for name := range d.targets {
		names = append(names, name)
	}
	targets := make(map[string]types.Maintainer, len(d.targets))
	for name, target := range d.targets {
		targets[name] = target
	}
	tracker := d.health
	d.mu.Unlock()
	sort.Strings(names)

	start := time.Now()
	total := 0
	for _, name := range names {
		targetStart := time.Now()
		purged, err := maintain(name, targets[name])
		elapsed := time.Since(targetStart)

		if err != nil {
			d.failures.Inc()
			if d.recorder != nil {
				d.recorder.RecordMaintenanceError(name)
			}
			if tracker != nil {
				tracker.RecordError(name, err)
			}
			d.logger.Error("maintenance failed", utils.Fields{"target": name, "error": err})
			continue
		}

		if tracker != nil {
			tracker.RecordSuccess(name)
		}
		total += purged
		if d.recorder != nil {
			d.recorder.RecordMaintenance(name, elapsed, purged)
		}
		if purged > 0 {
			d.logger.Debug("maintenance purged entries", utils.Fields{
				"target":   name,
				"purged":   purged,
				"duration": elapsed.String(),
			})
		}
	}

	d.history.Add(time.Since(start))
	d.runs.Inc()
	d.purged.Add(uint64(total))
	d.lastRun.Store(start)
	return total
}

// Start runs RunOnce every interval until ctx is cancelled or Stop is called.
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return errors.NewError(errors.ErrCodeAlreadyStarted, "maintenance driver already started").
			WithComponent("maintenance").
			WithOperation("Start")
	}

	d.started = true
	d.stopCh = make(chan struct{})
	d.doneCh = make(chan struct{})
	go d.loop(ctx, d.stopCh, d.doneCh)

	d.logger.Info("maintenance driver started", utils.Fields{
		"interval": d.config.Interval.String(),
		"targets":  len(d.targets),
	})
	return nil
}

// Stop halts the loop and waits for an in-flight run to finish.
func (d *Driver) Stop() error {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return errors.NewError(errors.ErrCodeNotStarted, "maintenance driver not started").
			WithComponent("maintenance").
			WithOperation("Stop")
	}
	d.started = false
	stopCh, doneCh := d.stopCh, d.doneCh
	d.mu.Unlock()

	close(stopCh)
	<-doneCh

	d.logger.Info("maintenance driver stopped", utils.Fields{"runs": d.runs.Load()})
	return nil
}

// Running reports whether the loop has been started and not stopped.
func (d *Driver) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started
}

// Stats returns driver counters and the mean run time over the history.
func (d *Driver) Stats() Stats {
	d.mu.Lock()
	targets := len(d.targets)
	d.mu.Unlock()

	return Stats{
		Targets:    targets,
		Runs:       d.runs.Load(),
		Purged:     d.purged.Load(),
		Failures:   d.failures.Load(),
		AverageRun: time.Duration(d.history.Average()),
		LastRun:    d.lastRun.Load(),
	}
}

// RecentRuns returns the durations of the most recent runs, oldest first.
func (d *Driver) RecentRuns() []time.Duration {
	return d.history.Values()
}

func (d *Driver) loop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(d.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			d.RunOnce()
		}
	}
}

// maintain calls target.Maintain, converting a panic into an error.
func maintain(name string, target types.Maintainer) (purged int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewError(errors.ErrCodePanicRecovered, fmt.Sprintf("maintenance of %q panicked: %v", name, r)).
				WithComponent("maintenance").
				WithOperation("Maintain").
				WithStack()
		}
	}()
	return target.Maintain(), nil
}
