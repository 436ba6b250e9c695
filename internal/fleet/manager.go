package fleet

import (
	"context"
	"sync"

	"github.com/displaybus/monitord/internal/ddc"
	"github.com/displaybus/monitord/internal/display"
)

// SeedSource supplies persisted starting values for a display, keyed
// by its identity. Implemented by the database store.
type SeedSource interface {
	Seed(identity display.Identity) (Seed, bool)
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Discoverer *Discoverer

	// Seeds, when set, supplies persisted starting values applied to
	// newly discovered devices before their initial probe.
	Seeds SeedSource

	// OnChange receives a snapshot after every device state change.
	OnChange func(Snapshot)

	Logger Logger
}

// Manager is the single-writer container for the device set and the
// fan-out point for fleet-wide operations.
//
// Discovery rebuilds the set wholesale and swaps it atomically; no
// reader ever observes a partially rebuilt set. Per-device commands
// stay serialized on each device's own lane, so fleet operations run
// in parallel across devices with no ordering guarantee between them.
type Manager struct {
	discoverer *Discoverer
	seeds      SeedSource
	onChange   func(Snapshot)
	logger     Logger

	mu      sync.RWMutex
	devices []*Device
}

// NewManager creates a manager. Call Discover to populate the device
// set.
func NewManager(opts ManagerOptions) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Manager{
		discoverer: opts.Discoverer,
		seeds:      opts.Seeds,
		onChange:   opts.OnChange,
		logger:     logger,
	}
}

// Discover runs a full discovery pass and replaces the device set.
// The previous set is closed after the swap; its in-flight bus
// operations wind down off the caller's path. Returns the new device
// count. An empty result is a normal steady state.
func (m *Manager) Discover(ctx context.Context) int {
	pairings := m.discoverer.Discover(ctx)

	devices := make([]*Device, 0, len(pairings))
	for _, p := range pairings {
		opts := DeviceOptions{
			Identity:   p.Identity,
			Controller: p.Controller,
			WriteOnly:  p.WriteOnly,
			SharedBus:  p.SharedBus,
			OnChange:   m.onChange,
			Logger:     m.logger,
		}
		if m.seeds != nil {
			if seed, ok := m.seeds.Seed(p.Identity); ok {
				opts.Seed = &seed
			}
		}
		devices = append(devices, NewDevice(opts))
	}

	m.mu.Lock()
	old := m.devices
	m.devices = devices
	m.mu.Unlock()

	for _, d := range old {
		d.Close()
	}
	for _, d := range devices {
		d.ReadInitial()
	}

	m.logger.Info("device set replaced", "devices", len(devices))
	return len(devices)
}

// snapshot returns the current device slice without copying devices.
func (m *Manager) snapshot() []*Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	devices := make([]*Device, len(m.devices))
	copy(devices, m.devices)
	return devices
}

// Count returns the current device count.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.devices)
}

// Snapshots returns the observable state of every device, in
// discovery order.
func (m *Manager) Snapshots() []Snapshot {
	devices := m.snapshot()
	snapshots := make([]Snapshot, 0, len(devices))
	for _, d := range devices {
		snapshots = append(snapshots, d.Snapshot())
	}
	return snapshots
}

// device finds a device by display id.
func (m *Manager) device(id uint32) (*Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.devices {
		if d.identity.ID == id {
			return d, nil
		}
	}
	return nil, ErrDeviceNotFound
}

// SetBrightness sets one device's brightness.
func (m *Manager) SetBrightness(id uint32, v int) error {
	d, err := m.device(id)
	if err != nil {
		return err
	}
	d.SetBrightness(v)
	return nil
}

// SetVolume sets one device's volume.
func (m *Manager) SetVolume(id uint32, v int) error {
	d, err := m.device(id)
	if err != nil {
		return err
	}
	d.SetVolume(v)
	return nil
}

// SetMuted sets one device's mute state.
func (m *Manager) SetMuted(id uint32, muted bool) error {
	d, err := m.device(id)
	if err != nil {
		return err
	}
	d.SetMuted(muted)
	return nil
}

// ToggleMute flips one device's mute state.
func (m *Manager) ToggleMute(id uint32) error {
	d, err := m.device(id)
	if err != nil {
		return err
	}
	d.ToggleMute()
	return nil
}

// AdjustAllBrightness applies a signed step to every device.
func (m *Manager) AdjustAllBrightness(step int) {
	for _, d := range m.snapshot() {
		d.AdjustBrightness(step)
	}
}

// AdjustAllVolume applies a signed step to every device.
func (m *Manager) AdjustAllVolume(step int) {
	for _, d := range m.snapshot() {
		d.AdjustVolume(step)
	}
}

// ToggleAllMute flips every device's mute state independently.
func (m *Manager) ToggleAllMute() {
	for _, d := range m.snapshot() {
		d.ToggleMute()
	}
}

// AverageBrightness returns the mean stored brightness, 0 for an
// empty set. A stored-value reduction, not a bus read.
func (m *Manager) AverageBrightness() int {
	return m.average(func(s Snapshot) int { return s.Brightness })
}

// AverageVolume returns the mean stored volume, 0 for an empty set.
func (m *Manager) AverageVolume() int {
	return m.average(func(s Snapshot) int { return s.Volume })
}

func (m *Manager) average(field func(Snapshot) int) int {
	snapshots := m.Snapshots()
	if len(snapshots) == 0 {
		return 0
	}
	sum := 0
	for _, s := range snapshots {
		sum += field(s)
	}
	return sum / len(snapshots)
}

// Stats aggregates the bus counters across the device set.
func (m *Manager) Stats() ddc.Stats {
	var total ddc.Stats
	for _, d := range m.snapshot() {
		s := d.Stats()
		total.Writes += s.Writes
		total.WriteFailures += s.WriteFailures
		total.Reads += s.Reads
		total.ReadFailures += s.ReadFailures
		total.Retries += s.Retries
	}
	return total
}

// Close shuts down every device and empties the set.
func (m *Manager) Close() {
	m.mu.Lock()
	devices := m.devices
	m.devices = nil
	m.mu.Unlock()

	for _, d := range devices {
		d.Close()
	}
}
