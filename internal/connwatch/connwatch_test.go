package connwatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nugget/helloclaw/internal/events"
)

// fastSchedule returns a schedule short enough for tests.
func fastSchedule() Schedule {
	return Schedule{
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
		Attempts:     5,
		PollInterval: 5 * time.Millisecond,
		ProbeTimeout: 100 * time.Millisecond,
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func kinds(bus *events.Bus) []string {
	var out []string
	for _, e := range bus.Recent() {
		if e.Source == events.SourceProvider {
			out = append(out, e.Kind)
		}
	}
	return out
}

func TestDefaultSchedule(t *testing.T) {
	s := DefaultSchedule()
	if s.InitialDelay != 2*time.Second || s.MaxDelay != 60*time.Second {
		t.Errorf("delays = %v/%v", s.InitialDelay, s.MaxDelay)
	}
	if s.Attempts != 10 || s.PollInterval != 60*time.Second || s.ProbeTimeout != 10*time.Second {
		t.Errorf("schedule = %+v", s)
	}

	filled := Schedule{Attempts: 3}.withDefaults()
	if filled.Attempts != 3 || filled.Multiplier != 2.0 || filled.PollInterval != 60*time.Second {
		t.Errorf("withDefaults = %+v", filled)
	}
}

func TestWatcher_ImmediateSuccess(t *testing.T) {
	t.Parallel()
	bus := events.New()
	m := NewManager(bus, nil)
	defer m.Stop()

	w := m.Watch(context.Background(), "ollama", func(context.Context) error { return nil }, fastSchedule())
	waitFor(t, "ready", w.Ready)

	st := w.Status()
	if st.Name != "ollama" || st.LastError != "" || st.Failures != 0 || st.LastCheck.IsZero() {
		t.Errorf("status = %+v", st)
	}
	waitFor(t, "provider_up event", func() bool { return len(kinds(bus)) == 1 })
	if got := kinds(bus); got[0] != events.KindProviderUp {
		t.Errorf("events = %v", got)
	}
}

func TestWatcher_BackoffThenSuccess(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	probe := func(context.Context) error {
		if calls.Add(1) < 3 {
			return errors.New("connection refused")
		}
		return nil
	}

	m := NewManager(nil, nil)
	defer m.Stop()
	w := m.Watch(context.Background(), "openai", probe, fastSchedule())

	waitFor(t, "ready after retries", w.Ready)
	if n := calls.Load(); n < 3 {
		t.Errorf("probe calls = %d, want >= 3", n)
	}
}

func TestWatcher_DownAndRecover(t *testing.T) {
	t.Parallel()
	var failing atomic.Bool
	probe := func(context.Context) error {
		if failing.Load() {
			return errors.New("timeout")
		}
		return nil
	}

	bus := events.New()
	m := NewManager(bus, nil)
	defer m.Stop()
	w := m.Watch(context.Background(), "anthropic", probe, fastSchedule())
	waitFor(t, "initial ready", w.Ready)

	failing.Store(true)
	waitFor(t, "down", func() bool { return !w.Ready() })
	if st := w.Status(); st.LastError != "timeout" || st.Failures < 1 {
		t.Errorf("status while down = %+v", st)
	}

	failing.Store(false)
	waitFor(t, "recovered", w.Ready)
	waitFor(t, "transition events", func() bool { return len(kinds(bus)) >= 3 })

	got := kinds(bus)
	want := []string{events.KindProviderUp, events.KindProviderDown, events.KindProviderUp}
	for i, k := range want {
		if got[i] != k {
			t.Fatalf("events = %v, want prefix %v", got, want)
		}
	}
}

func TestWatcher_StopsOnCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	m := NewManager(nil, nil)

	var calls atomic.Int32
	w := m.Watch(ctx, "down", func(context.Context) error {
		calls.Add(1)
		return errors.New("unreachable")
	}, Schedule{InitialDelay: time.Hour, Attempts: 3})

	waitFor(t, "first probe", func() bool { return calls.Load() == 1 })
	cancel()

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not exit after cancel")
	}
	if w.Ready() {
		t.Error("failing provider reported ready")
	}
}

func TestManager_Status(t *testing.T) {
	t.Parallel()
	m := NewManager(nil, nil)
	defer m.Stop()

	ok := m.Watch(context.Background(), "ollama", func(context.Context) error { return nil }, fastSchedule())
	bad := m.Watch(context.Background(), "anthropic", func(context.Context) error { return errors.New("401") }, fastSchedule())
	waitFor(t, "probes", func() bool { return ok.Ready() && !bad.Status().LastCheck.IsZero() })

	st := m.Status()
	if len(st) != 2 || st[0].Name != "anthropic" || st[1].Name != "ollama" {
		t.Fatalf("status = %+v", st)
	}
	if st[0].Ready || st[0].LastError != "401" || !st[1].Ready {
		t.Errorf("status = %+v", st)
	}
}
