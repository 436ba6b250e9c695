package fleet

import (
	"context"
	"errors"
	"testing"
)

func newTestManager(t *testing.T, sim *busSim, displays []string) *Manager {
	t.Helper()

	identities := twoDisplays()[:len(displays)]
	d := NewDiscoverer(DiscovererOptions{
		Displays: stubDisplays{list: identities},
		Buses:    stubBuses{primary: displays},
		Timing:   probeTiming(),
		Open:     sim.open,
	})
	m := NewManager(ManagerOptions{Discoverer: d})
	t.Cleanup(m.Close)
	return m
}

// drainAll waits for every device's lane to empty.
func drainAll(m *Manager) {
	for _, d := range m.snapshot() {
		drain(d)
	}
}

func TestManagerDiscoverPopulatesSet(t *testing.T) {
	sim := &busSim{responders: map[string]bool{
		"/dev/i2c-4": true,
		"/dev/i2c-5": true,
	}}
	m := newTestManager(t, sim, []string{"/dev/i2c-4", "/dev/i2c-5"})

	if got := m.Discover(context.Background()); got != 2 {
		t.Fatalf("Discover() = %d, want 2", got)
	}
	drainAll(m)

	snapshots := m.Snapshots()
	if len(snapshots) != 2 {
		t.Fatalf("Snapshots() = %d entries, want 2", len(snapshots))
	}

	// The initial probe read the fake monitor's values.
	for i, s := range snapshots {
		if !s.ReadInitial {
			t.Errorf("snapshots[%d].ReadInitial = false", i)
		}
		if s.Brightness != 60 || s.Volume != 40 {
			t.Errorf("snapshots[%d] = %d/%d, want probed 60/40", i, s.Brightness, s.Volume)
		}
	}
}

func TestManagerRediscoverReplacesSet(t *testing.T) {
	sim := &busSim{responders: map[string]bool{"/dev/i2c-4": true}}
	m := newTestManager(t, sim, []string{"/dev/i2c-4"})

	m.Discover(context.Background())
	drainAll(m)
	firstHandles := len(sim.opened)

	m.Discover(context.Background())
	drainAll(m)

	if got := m.Count(); got != 1 {
		t.Errorf("Count() after rediscovery = %d, want 1", got)
	}

	// Every handle from the first pass is released.
	for i, h := range sim.opened[:firstHandles] {
		if !h.isClosed() {
			t.Errorf("first-pass handle %d still open after rediscovery", i)
		}
	}
}

func TestManagerFanOutAndAverages(t *testing.T) {
	sim := &busSim{responders: map[string]bool{
		"/dev/i2c-4": true,
		"/dev/i2c-5": true,
	}}
	m := newTestManager(t, sim, []string{"/dev/i2c-4", "/dev/i2c-5"})
	m.Discover(context.Background())
	drainAll(m)

	if err := m.SetBrightness(1, 20); err != nil {
		t.Fatalf("SetBrightness(1) error = %v", err)
	}
	if err := m.SetBrightness(2, 40); err != nil {
		t.Fatalf("SetBrightness(2) error = %v", err)
	}
	if got := m.AverageBrightness(); got != 30 {
		t.Errorf("AverageBrightness() = %d, want 30", got)
	}

	m.AdjustAllBrightness(10)
	if got := m.AverageBrightness(); got != 40 {
		t.Errorf("AverageBrightness() after step = %d, want 40", got)
	}

	if err := m.SetVolume(1, 10); err != nil {
		t.Fatalf("SetVolume(1) error = %v", err)
	}
	if err := m.SetVolume(2, 30); err != nil {
		t.Fatalf("SetVolume(2) error = %v", err)
	}
	if got := m.AverageVolume(); got != 20 {
		t.Errorf("AverageVolume() = %d, want 20", got)
	}

	m.ToggleAllMute()
	for i, s := range m.Snapshots() {
		if !s.Muted {
			t.Errorf("snapshots[%d].Muted = false after ToggleAllMute", i)
		}
	}

	drainAll(m)
}

func TestManagerEmptySetAverages(t *testing.T) {
	m := NewManager(ManagerOptions{Discoverer: NewDiscoverer(DiscovererOptions{
		Displays: stubDisplays{},
		Buses:    stubBuses{},
		Timing:   probeTiming(),
		Open:     (&busSim{missing: map[string]bool{"/dev/i2c-fb": true}}).open,
	})})
	t.Cleanup(m.Close)

	m.Discover(context.Background())

	if got := m.AverageBrightness(); got != 0 {
		t.Errorf("AverageBrightness() = %d, want 0 for empty set", got)
	}
	if got := m.AverageVolume(); got != 0 {
		t.Errorf("AverageVolume() = %d, want 0 for empty set", got)
	}
}

func TestManagerUnknownDevice(t *testing.T) {
	sim := &busSim{responders: map[string]bool{"/dev/i2c-4": true}}
	m := newTestManager(t, sim, []string{"/dev/i2c-4"})
	m.Discover(context.Background())

	if err := m.SetBrightness(99, 50); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("SetBrightness(99) error = %v, want ErrDeviceNotFound", err)
	}
	if err := m.ToggleMute(99); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("ToggleMute(99) error = %v, want ErrDeviceNotFound", err)
	}
}

func TestManagerStatsAggregate(t *testing.T) {
	sim := &busSim{responders: map[string]bool{"/dev/i2c-4": true}}
	m := newTestManager(t, sim, []string{"/dev/i2c-4"})
	m.Discover(context.Background())
	drainAll(m)

	stats := m.Stats()
	// The initial probe issues two reads per device.
	if stats.Reads < 2 {
		t.Errorf("Reads = %d, want at least 2", stats.Reads)
	}
}
