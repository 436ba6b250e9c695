package fleet

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/displaybus/monitord/internal/ddc"
	"github.com/displaybus/monitord/internal/display"
	"github.com/displaybus/monitord/internal/i2c"
)

// replyFrame builds a valid 11-byte VCP reply for a fake monitor.
func replyFrame(code ddc.ControlCode, current, max uint16) []byte {
	buf := []byte{
		0x6E, 0x88, 0x02, 0x00, byte(code), 0x00,
		byte(max >> 8), byte(max),
		byte(current >> 8), byte(current),
		0x00,
	}
	var sum byte = 0x50
	for _, b := range buf[:10] {
		sum ^= b
	}
	buf[10] = sum
	return buf
}

// fakeMonitorHandle emulates a DDC/CI monitor behind one bus node:
// it remembers the control a get frame asked for and answers the
// following read with a well-formed reply.
type fakeMonitorHandle struct {
	mu      sync.Mutex
	name    string
	respond bool
	values  map[ddc.ControlCode]uint16
	lastGet ddc.ControlCode
	closed  bool
}

func (h *fakeMonitorHandle) Write(_ byte, data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return i2c.ErrClosed
	}
	if len(data) == 4 && data[1] == 0x01 {
		h.lastGet = ddc.ControlCode(data[2])
	}
	return nil
}

func (h *fakeMonitorHandle) Read(_ byte, buf []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, i2c.ErrClosed
	}
	if !h.respond {
		return 0, errors.New("no ack")
	}
	return copy(buf, replyFrame(h.lastGet, h.values[h.lastGet], 100)), nil
}

func (h *fakeMonitorHandle) Name() string { return h.name }

func (h *fakeMonitorHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

func (h *fakeMonitorHandle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// busSim opens fake monitor handles by path.
type busSim struct {
	mu         sync.Mutex
	responders map[string]bool
	missing    map[string]bool
	opened     []*fakeMonitorHandle
}

func (b *busSim) open(path string) (i2c.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.missing[path] {
		return nil, i2c.ErrOpenFailed
	}
	h := &fakeMonitorHandle{
		name:    path,
		respond: b.responders[path],
		values: map[ddc.ControlCode]uint16{
			ddc.Brightness: 60,
			ddc.Volume:     40,
		},
	}
	b.opened = append(b.opened, h)
	return h, nil
}

type stubDisplays struct{ list []display.Identity }

func (s stubDisplays) Displays() []display.Identity { return s.list }

type stubBuses struct {
	primary   []string
	secondary []string
	fallback  string
}

func (s stubBuses) Candidates() ([]string, []string) { return s.primary, s.secondary }

func (s stubBuses) Fallback() string {
	if s.fallback == "" {
		return "/dev/i2c-fb"
	}
	return s.fallback
}

func probeTiming() ddc.TimingConfig {
	return ddc.TimingConfig{
		WriteDelay:  time.Microsecond,
		ReadDelay:   time.Microsecond,
		RetryDelay:  time.Microsecond,
		MaxRetries:  1,
		WriteCycles: 1,
	}
}

func twoDisplays() []display.Identity {
	return []display.Identity{
		{ID: 1, Name: "Left Panel", Connector: "card0-DP-1"},
		{ID: 2, Name: "Right Panel", Connector: "card0-HDMI-A-1"},
	}
}

func TestDiscoverProbePairing(t *testing.T) {
	sim := &busSim{responders: map[string]bool{
		"/dev/i2c-4": false,
		"/dev/i2c-5": true,
		"/dev/i2c-6": true,
	}}

	d := NewDiscoverer(DiscovererOptions{
		Displays: stubDisplays{list: twoDisplays()},
		Buses:    stubBuses{primary: []string{"/dev/i2c-4", "/dev/i2c-5", "/dev/i2c-6"}},
		Timing:   probeTiming(),
		Open:     sim.open,
	})

	pairings := d.Discover(context.Background())
	if len(pairings) != 2 {
		t.Fatalf("pairings = %d, want 2", len(pairings))
	}

	// Greedy in-order matching: first display takes the first bus
	// that answers a probe, second display the next.
	if got := pairings[0].Controller.Name(); got != "/dev/i2c-5" {
		t.Errorf("pairings[0] bus = %s, want /dev/i2c-5", got)
	}
	if got := pairings[1].Controller.Name(); got != "/dev/i2c-6" {
		t.Errorf("pairings[1] bus = %s, want /dev/i2c-6", got)
	}
	for i, p := range pairings {
		if p.WriteOnly {
			t.Errorf("pairings[%d] write-only after successful probe", i)
		}
	}

	// The unresponsive node is released.
	for _, h := range sim.opened {
		if h.name == "/dev/i2c-4" && !h.isClosed() {
			t.Error("unpaired bus handle left open")
		}
	}
}

func TestDiscoverFallbackNextUnused(t *testing.T) {
	sim := &busSim{responders: map[string]bool{
		"/dev/i2c-4": true,
		"/dev/i2c-5": false,
	}}

	d := NewDiscoverer(DiscovererOptions{
		Displays: stubDisplays{list: twoDisplays()},
		Buses:    stubBuses{primary: []string{"/dev/i2c-4", "/dev/i2c-5"}},
		Timing:   probeTiming(),
		Open:     sim.open,
	})

	pairings := d.Discover(context.Background())
	if len(pairings) != 2 {
		t.Fatalf("pairings = %d, want 2", len(pairings))
	}
	if pairings[0].WriteOnly {
		t.Error("probed pairing marked write-only")
	}
	if !pairings[1].WriteOnly {
		t.Error("unprobed pairing not marked write-only")
	}
	if pairings[1].SharedBus {
		t.Error("pairing shared a bus while an unused one existed")
	}
	if got := pairings[1].Controller.Name(); got != "/dev/i2c-5" {
		t.Errorf("fallback bus = %s, want /dev/i2c-5", got)
	}
}

func TestDiscoverFallbackSharesLoneBus(t *testing.T) {
	// Two displays, one bus: both get a device, the second sharing
	// the first's handle in write-only mode.
	sim := &busSim{responders: map[string]bool{"/dev/i2c-4": true}}

	d := NewDiscoverer(DiscovererOptions{
		Displays: stubDisplays{list: twoDisplays()},
		Buses:    stubBuses{primary: []string{"/dev/i2c-4"}},
		Timing:   probeTiming(),
		Open:     sim.open,
	})

	pairings := d.Discover(context.Background())
	if len(pairings) != 2 {
		t.Fatalf("pairings = %d, want 2", len(pairings))
	}
	if !pairings[1].WriteOnly || !pairings[1].SharedBus {
		t.Errorf("pairings[1] = %+v, want write-only shared", pairings[1])
	}
	if pairings[0].Controller != pairings[1].Controller {
		t.Error("displays do not share the lone controller")
	}
}

func TestDiscoverSecondaryIgnoredWhilePrimaryUsable(t *testing.T) {
	// A blind secondary node must never shadow the primary class: the
	// unmatched display shares the lone primary node rather than
	// binding to an untried secondary one.
	sim := &busSim{responders: map[string]bool{
		"/dev/i2c-4":  true,
		"/dev/i2c-20": true,
	}}

	d := NewDiscoverer(DiscovererOptions{
		Displays: stubDisplays{list: twoDisplays()},
		Buses: stubBuses{
			primary:   []string{"/dev/i2c-4"},
			secondary: []string{"/dev/i2c-20"},
		},
		Timing: probeTiming(),
		Open:   sim.open,
	})

	pairings := d.Discover(context.Background())
	if len(pairings) != 2 {
		t.Fatalf("pairings = %d, want 2", len(pairings))
	}
	for i, p := range pairings {
		if got := p.Controller.Name(); got != "/dev/i2c-4" {
			t.Errorf("pairings[%d] bus = %s, want the primary node", i, got)
		}
	}
	for _, h := range sim.opened {
		if h.name == "/dev/i2c-20" {
			t.Error("secondary node opened while the primary class was usable")
		}
	}
}

func TestDiscoverSecondaryUsedWhenPrimaryEmpty(t *testing.T) {
	sim := &busSim{responders: map[string]bool{"/dev/i2c-20": true}}

	d := NewDiscoverer(DiscovererOptions{
		Displays: stubDisplays{list: twoDisplays()[:1]},
		Buses:    stubBuses{secondary: []string{"/dev/i2c-20"}},
		Timing:   probeTiming(),
		Open:     sim.open,
	})

	pairings := d.Discover(context.Background())
	if len(pairings) != 1 {
		t.Fatalf("pairings = %d, want 1", len(pairings))
	}
	if got := pairings[0].Controller.Name(); got != "/dev/i2c-20" {
		t.Errorf("bus = %s, want the secondary node", got)
	}
}

func TestDiscoverSecondaryUsedWhenPrimaryUnopenable(t *testing.T) {
	// Enumerated-but-unopenable primary nodes count as an empty
	// primary class.
	sim := &busSim{
		responders: map[string]bool{"/dev/i2c-20": true},
		missing:    map[string]bool{"/dev/i2c-4": true},
	}

	d := NewDiscoverer(DiscovererOptions{
		Displays: stubDisplays{list: twoDisplays()[:1]},
		Buses: stubBuses{
			primary:   []string{"/dev/i2c-4"},
			secondary: []string{"/dev/i2c-20"},
		},
		Timing: probeTiming(),
		Open:   sim.open,
	})

	pairings := d.Discover(context.Background())
	if len(pairings) != 1 {
		t.Fatalf("pairings = %d, want 1", len(pairings))
	}
	if got := pairings[0].Controller.Name(); got != "/dev/i2c-20" {
		t.Errorf("bus = %s, want the secondary node", got)
	}
}

func TestDiscoverNoDisplays(t *testing.T) {
	sim := &busSim{responders: map[string]bool{"/dev/i2c-4": true}}

	d := NewDiscoverer(DiscovererOptions{
		Displays: stubDisplays{},
		Buses:    stubBuses{primary: []string{"/dev/i2c-4"}},
		Timing:   probeTiming(),
		Open:     sim.open,
	})

	if pairings := d.Discover(context.Background()); len(pairings) != 0 {
		t.Errorf("pairings = %d, want 0", len(pairings))
	}
}

func TestDiscoverNoUsableBuses(t *testing.T) {
	sim := &busSim{missing: map[string]bool{"/dev/i2c-fb": true}}

	d := NewDiscoverer(DiscovererOptions{
		Displays: stubDisplays{list: twoDisplays()},
		Buses:    stubBuses{}, // no candidates; fallback also missing
		Timing:   probeTiming(),
		Open:     sim.open,
	})

	// Displays exist but no handle can be opened: empty set, no error.
	if pairings := d.Discover(context.Background()); len(pairings) != 0 {
		t.Errorf("pairings = %d, want 0", len(pairings))
	}
}

func TestDiscoverFallbackBusWhenNoneEnumerated(t *testing.T) {
	sim := &busSim{responders: map[string]bool{"/dev/i2c-fb": true}}

	d := NewDiscoverer(DiscovererOptions{
		Displays: stubDisplays{list: twoDisplays()[:1]},
		Buses:    stubBuses{},
		Timing:   probeTiming(),
		Open:     sim.open,
	})

	pairings := d.Discover(context.Background())
	if len(pairings) != 1 {
		t.Fatalf("pairings = %d, want 1", len(pairings))
	}
	if got := pairings[0].Controller.Name(); got != "/dev/i2c-fb" {
		t.Errorf("bus = %s, want the global fallback", got)
	}
}

func TestDiscoverIdempotent(t *testing.T) {
	sim := &busSim{responders: map[string]bool{
		"/dev/i2c-4": true,
		"/dev/i2c-5": true,
	}}

	d := NewDiscoverer(DiscovererOptions{
		Displays: stubDisplays{list: twoDisplays()},
		Buses:    stubBuses{primary: []string{"/dev/i2c-4", "/dev/i2c-5"}},
		Timing:   probeTiming(),
		Open:     sim.open,
	})

	first := d.Discover(context.Background())
	second := d.Discover(context.Background())

	if len(first) != len(second) {
		t.Fatalf("pairing counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Identity != second[i].Identity {
			t.Errorf("pairing %d identity differs: %+v vs %+v", i, first[i].Identity, second[i].Identity)
		}
		if first[i].Controller.Name() != second[i].Controller.Name() {
			t.Errorf("pairing %d bus differs: %s vs %s", i, first[i].Controller.Name(), second[i].Controller.Name())
		}
		if first[i].WriteOnly != second[i].WriteOnly {
			t.Errorf("pairing %d write-only flag differs", i)
		}
	}
}
