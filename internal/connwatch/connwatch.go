// Package connwatch tracks whether the configured model providers are
// reachable. Transport-level retries live in httpkit; connwatch covers
// the longer outages, such as a local Ollama that is still starting or
// a remote endpoint that went away.
//
// Each [Watcher] probes one provider in two phases:
//  1. Startup: exponential backoff (2s, 4s, 8s, ... capped at 60s)
//  2. Background: periodic polling (every 60s) reporting transitions
package connwatch

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nugget/helloclaw/internal/events"
)

// Probe checks whether a provider is reachable. Return nil if healthy.
type Probe func(ctx context.Context) error

// Schedule controls probe timing.
type Schedule struct {
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration
	// MaxDelay caps backoff growth.
	MaxDelay time.Duration
	// Multiplier scales the delay after each failed startup probe.
	Multiplier float64
	// Attempts is the number of startup probes before falling back
	// to background polling.
	Attempts int
	// PollInterval is the background check interval.
	PollInterval time.Duration
	// ProbeTimeout bounds a single probe.
	ProbeTimeout time.Duration
}

// DefaultSchedule returns 2s, 4s, 8s, 16s, 32s, 60s (capped) with ten
// startup attempts and 60-second background polling.
func DefaultSchedule() Schedule {
	return Schedule{
		InitialDelay: 2 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		Attempts:     10,
		PollInterval: 60 * time.Second,
		ProbeTimeout: 10 * time.Second,
	}
}

// withDefaults fills zero fields from [DefaultSchedule].
func (s Schedule) withDefaults() Schedule {
	d := DefaultSchedule()
	if s.InitialDelay <= 0 {
		s.InitialDelay = d.InitialDelay
	}
	if s.MaxDelay <= 0 {
		s.MaxDelay = d.MaxDelay
	}
	if s.Multiplier <= 0 {
		s.Multiplier = d.Multiplier
	}
	if s.Attempts <= 0 {
		s.Attempts = d.Attempts
	}
	if s.PollInterval <= 0 {
		s.PollInterval = d.PollInterval
	}
	if s.ProbeTimeout <= 0 {
		s.ProbeTimeout = d.ProbeTimeout
	}
	return s
}

// Status is the reachability of one provider as reported by /health.
type Status struct {
	Name      string    `json:"name"`
	Ready     bool      `json:"ready"`
	LastCheck time.Time `json:"last_check"`
	LastError string    `json:"last_error,omitempty"`
	Failures  int       `json:"consecutive_failures"`
}

// Watcher monitors one provider.
type Watcher struct {
	name   string
	probe  Probe
	sched  Schedule
	bus    *events.Bus
	logger *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	ready     bool
	lastErr   error
	lastCheck time.Time
	failures  int
}

// Ready reports whether the provider answered its most recent probe.
func (w *Watcher) Ready() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ready
}

// Status returns the current reachability.
func (w *Watcher) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := Status{
		Name:      w.name,
		Ready:     w.ready,
		LastCheck: w.lastCheck,
		Failures:  w.failures,
	}
	if w.lastErr != nil {
		s.LastError = w.lastErr.Error()
	}
	return s
}

// Stop cancels the watcher and waits for its goroutine to exit.
func (w *Watcher) Stop() {
	w.cancel()
	<-w.done
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	delay := w.sched.InitialDelay
	for attempt := 1; attempt <= w.sched.Attempts; attempt++ {
		err := w.check(ctx)
		if err == nil {
			w.logger.Info("provider reachable", "provider", w.name, "attempts", attempt)
			w.bus.Emit(events.SourceProvider, events.KindProviderUp, map[string]any{
				"provider": w.name,
				"attempts": attempt,
			})
			break
		}
		if ctx.Err() != nil {
			return
		}
		if attempt == w.sched.Attempts {
			w.logger.Warn("provider unreachable, falling back to background polling",
				"provider", w.name, "attempts", attempt, "error", err)
			break
		}
		w.logger.Debug("provider probe failed, retrying",
			"provider", w.name, "attempt", attempt, "next_delay", delay, "error", err)

		if !sleepCtx(ctx, delay) {
			return
		}
		delay = min(time.Duration(float64(delay)*w.sched.Multiplier), w.sched.MaxDelay)
	}

	ticker := time.NewTicker(w.sched.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			wasReady := w.Ready()
			err := w.check(ctx)
			switch {
			case ctx.Err() != nil:
				return
			case wasReady && err != nil:
				w.logger.Warn("provider became unreachable", "provider", w.name, "error", err)
				w.bus.Emit(events.SourceProvider, events.KindProviderDown, map[string]any{
					"provider": w.name,
					"error":    err.Error(),
				})
			case !wasReady && err == nil:
				w.logger.Info("provider recovered", "provider", w.name)
				w.bus.Emit(events.SourceProvider, events.KindProviderUp, map[string]any{
					"provider": w.name,
				})
			case err != nil:
				w.logger.Debug("provider still unreachable", "provider", w.name, "error", err)
			}
		}
	}
}

// check runs one probe under the probe timeout and records the result.
func (w *Watcher) check(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, w.sched.ProbeTimeout)
	defer cancel()
	err := w.probe(probeCtx)

	w.mu.Lock()
	w.ready = err == nil
	w.lastErr = err
	w.lastCheck = time.Now()
	if err != nil {
		w.failures++
	} else {
		w.failures = 0
	}
	w.mu.Unlock()
	return err
}

// sleepCtx sleeps for d or until ctx is cancelled. Returns false if cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Manager owns one watcher per provider.
type Manager struct {
	bus    *events.Bus
	logger *slog.Logger

	mu       sync.RWMutex
	watchers map[string]*Watcher
}

// NewManager creates a manager publishing transitions to bus (which may
// be nil).
func NewManager(bus *events.Bus, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		bus:      bus,
		logger:   logger.With("component", "connwatch"),
		watchers: make(map[string]*Watcher),
	}
}

// Watch starts probing a provider in the background until ctx is
// cancelled or [Manager.Stop] is called. Zero schedule fields take
// their defaults. Watching a name twice replaces the earlier watcher.
func (m *Manager) Watch(ctx context.Context, name string, probe Probe, sched Schedule) *Watcher {
	watchCtx, cancel := context.WithCancel(ctx)
	w := &Watcher{
		name:   name,
		probe:  probe,
		sched:  sched.withDefaults(),
		bus:    m.bus,
		logger: m.logger,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	m.mu.Lock()
	old := m.watchers[name]
	m.watchers[name] = w
	m.mu.Unlock()
	if old != nil {
		old.Stop()
	}

	go w.run(watchCtx)
	return w
}

// Status returns every watched provider, sorted by name.
func (m *Manager) Status() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Status, 0, len(m.watchers))
	for _, w := range m.watchers {
		out = append(out, w.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Stop shuts down all watchers and waits for them to exit.
func (m *Manager) Stop() {
	m.mu.RLock()
	watchers := make([]*Watcher, 0, len(m.watchers))
	for _, w := range m.watchers {
		watchers = append(watchers, w)
	}
	m.mu.RUnlock()

	for _, w := range watchers {
		w.Stop()
	}
}
