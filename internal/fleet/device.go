// Package fleet owns the runtime device model: one Device per paired
// display with a private serial lane for its bus traffic, the
// Discoverer that pairs bus handles to displays by probing, and the
// Manager that fans key-press adjustments out across the whole set.
package fleet

import (
	"context"
	"sync"

	"github.com/displaybus/monitord/internal/ddc"
	"github.com/displaybus/monitord/internal/display"
)

// Documented starting values before the initial probe overwrites them.
const (
	DefaultBrightness = 50
	DefaultVolume     = 50
)

// laneCapacity bounds the per-device operation queue. A full lane
// drops the newest operation rather than blocking the caller.
const laneCapacity = 32

// BusController is the device's view of its control bus. Implemented
// by *ddc.Controller; faked in tests.
type BusController interface {
	Write(ctx context.Context, code ddc.ControlCode, value uint16) error
	Read(ctx context.Context, code ddc.ControlCode) (ddc.Value, error)
	Name() string
	Stats() ddc.Stats
	Close() error
}

// Compile-time check that the real controller satisfies the interface.
var _ BusController = (*ddc.Controller)(nil)

// Seed is a persisted starting state restored before the initial
// probe, so a restart does not snap sliders back to the defaults.
type Seed struct {
	Brightness int
	Volume     int
	Muted      bool
}

// Snapshot is the UI-observable view of one device. Value semantics;
// safe to hand across goroutines.
type Snapshot struct {
	ID         uint32 `json:"id"`
	Name       string `json:"name"`
	Connector  string `json:"connector"`
	VendorID   string `json:"vendor_id,omitempty"`
	ProductID  uint16 `json:"product_id,omitempty"`
	Serial     uint32 `json:"serial,omitempty"`
	Bus        string `json:"bus"`
	Brightness int    `json:"brightness"`
	Volume     int    `json:"volume"`
	Muted      bool   `json:"muted"`

	// ReadInitial reports whether the startup probe has completed.
	// It is set after the attempt regardless of outcome; values still
	// at their defaults are the only hint the probe failed.
	ReadInitial bool `json:"read_initial"`

	// WriteOnly marks a device paired without a successful probe;
	// its stored values are never confirmed by reads.
	WriteOnly bool `json:"write_only"`
}

// DeviceOptions configures a Device.
type DeviceOptions struct {
	Identity   display.Identity
	Controller BusController

	// WriteOnly marks a fallback pairing (no successful probe).
	WriteOnly bool

	// SharedBus marks a controller shared with an earlier device
	// (fallback pairing under handle scarcity). Close leaves a shared
	// controller open; the first owner closes it.
	SharedBus bool

	// Seed overrides the default starting values when a previous run
	// persisted state for this display.
	Seed *Seed

	// OnChange, when set, receives a snapshot after every state
	// change. Called synchronously from the mutating goroutine; keep
	// it cheap.
	OnChange func(Snapshot)

	Logger Logger
}

// Device is one paired display. All bus traffic for the display flows
// through the device's serial lane: a bounded queue drained by a
// single worker goroutine that owns the controller. State mutations
// are optimistic — the stored value changes before the bus write is
// even scheduled, and a failed write leaves it out of sync with the
// hardware until the next successful read.
//
// No method returns a hard error; bus flakiness is logged, never
// propagated.
type Device struct {
	identity   display.Identity
	ctrl       BusController
	writeOnly  bool
	sharedBus  bool
	onChange   func(Snapshot)
	logger     Logger

	mu          sync.RWMutex
	brightness  int
	volume      int
	muted       bool
	readInitial bool

	lane      chan func(context.Context)
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// NewDevice creates a device and starts its lane worker. Call
// ReadInitial to schedule the startup probe.
func NewDevice(opts DeviceOptions) *Device {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	d := &Device{
		identity:   opts.Identity,
		ctrl:       opts.Controller,
		writeOnly:  opts.WriteOnly,
		sharedBus:  opts.SharedBus,
		onChange:   opts.OnChange,
		logger:     logger,
		brightness: DefaultBrightness,
		volume:     DefaultVolume,
		lane:       make(chan func(context.Context), laneCapacity),
		done:       make(chan struct{}),
	}
	if opts.Seed != nil {
		d.brightness = clamp(opts.Seed.Brightness)
		d.volume = clamp(opts.Seed.Volume)
		d.muted = opts.Seed.Muted
	}

	d.ctx, d.cancel = context.WithCancel(context.Background())
	go d.worker()
	return d
}

// worker drains the lane one operation at a time. This is the sole
// goroutine that touches the controller, which is what keeps two
// logically concurrent commands from interleaving their physical
// transactions on the bus.
func (d *Device) worker() {
	defer close(d.done)
	for {
		select {
		case <-d.ctx.Done():
			return
		case op := <-d.lane:
			op(d.ctx)
		}
	}
}

// submit enqueues a bus operation on the serial lane. A full lane
// drops the operation; the stored value already reflects the intent,
// so the next operation carries the device to the right state anyway.
func (d *Device) submit(op func(context.Context)) {
	select {
	case d.lane <- op:
	default:
		d.logger.Warn("device lane full, dropping bus operation",
			"device", d.identity.Name, "bus", d.ctrl.Name())
	}
}

// ReadInitial schedules the startup probe: Brightness then Volume.
// Stored values update on success; the read_initial flag is set after
// the attempt either way.
func (d *Device) ReadInitial() {
	d.submit(func(ctx context.Context) {
		if value, err := d.ctrl.Read(ctx, ddc.Brightness); err == nil {
			d.mu.Lock()
			d.brightness = clamp(int(value.Current))
			d.mu.Unlock()
		} else {
			d.logger.Debug("initial brightness probe failed",
				"device", d.identity.Name, "error", err)
		}

		if value, err := d.ctrl.Read(ctx, ddc.Volume); err == nil {
			d.mu.Lock()
			d.volume = clamp(int(value.Current))
			d.mu.Unlock()
		} else {
			d.logger.Debug("initial volume probe failed",
				"device", d.identity.Name, "error", err)
		}

		d.mu.Lock()
		d.readInitial = true
		d.mu.Unlock()
		d.notify()
	})
}

// SetBrightness clamps v to [0,100], updates the stored value
// immediately and enqueues the bus write.
func (d *Device) SetBrightness(v int) {
	v = clamp(v)
	d.mu.Lock()
	d.brightness = v
	d.mu.Unlock()
	d.notify()

	d.submit(func(ctx context.Context) {
		if err := d.ctrl.Write(ctx, ddc.Brightness, uint16(v)); err != nil {
			d.logger.Warn("brightness write failed",
				"device", d.identity.Name, "value", v, "error", err)
		}
	})
}

// SetVolume clamps v to [0,100], updates the stored value immediately
// and enqueues the bus write.
func (d *Device) SetVolume(v int) {
	v = clamp(v)
	d.mu.Lock()
	d.volume = v
	d.mu.Unlock()
	d.notify()

	d.submit(func(ctx context.Context) {
		if err := d.ctrl.Write(ctx, ddc.Volume, uint16(v)); err != nil {
			d.logger.Warn("volume write failed",
				"device", d.identity.Name, "value", v, "error", err)
		}
	})
}

// AdjustBrightness applies a signed step to the stored brightness.
func (d *Device) AdjustBrightness(step int) {
	d.mu.RLock()
	current := d.brightness
	d.mu.RUnlock()
	d.SetBrightness(current + step)
}

// AdjustVolume applies a signed step to the stored volume.
func (d *Device) AdjustVolume(step int) {
	d.mu.RLock()
	current := d.volume
	d.mu.RUnlock()
	d.SetVolume(current + step)
}

// ToggleMute flips the stored mute state and enqueues the mute write
// (1 = muted, 2 = unmuted).
func (d *Device) ToggleMute() {
	d.mu.Lock()
	d.muted = !d.muted
	muted := d.muted
	d.mu.Unlock()
	d.notify()

	d.submitMuteWrite(muted)
}

// SetMuted sets the mute state explicitly.
func (d *Device) SetMuted(muted bool) {
	d.mu.Lock()
	changed := d.muted != muted
	d.muted = muted
	d.mu.Unlock()
	if changed {
		d.notify()
	}

	d.submitMuteWrite(muted)
}

func (d *Device) submitMuteWrite(muted bool) {
	value := ddc.MuteOff
	if muted {
		value = ddc.MuteOn
	}
	d.submit(func(ctx context.Context) {
		if err := d.ctrl.Write(ctx, ddc.Mute, value); err != nil {
			d.logger.Warn("mute write failed",
				"device", d.identity.Name, "muted", muted, "error", err)
		}
	})
}

// Identity returns the display identity this device was paired with.
func (d *Device) Identity() display.Identity {
	return d.identity
}

// Snapshot returns the device's UI-observable state.
func (d *Device) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Snapshot{
		ID:          d.identity.ID,
		Name:        d.identity.Name,
		Connector:   d.identity.Connector,
		VendorID:    d.identity.VendorID,
		ProductID:   d.identity.ProductID,
		Serial:      d.identity.Serial,
		Bus:         d.ctrl.Name(),
		Brightness:  d.brightness,
		Volume:      d.volume,
		Muted:       d.muted,
		ReadInitial: d.readInitial,
		WriteOnly:   d.writeOnly,
	}
}

// Stats returns the bus counters of the device's controller.
func (d *Device) Stats() ddc.Stats {
	return d.ctrl.Stats()
}

// Close stops the lane worker and releases the controller. In-flight
// retries run to completion; queued operations are discarded. Safe to
// call more than once.
func (d *Device) Close() {
	d.closeOnce.Do(func() {
		d.cancel()
		<-d.done
		if !d.sharedBus {
			if err := d.ctrl.Close(); err != nil {
				d.logger.Debug("controller close failed",
					"device", d.identity.Name, "error", err)
			}
		}
	})
}

func (d *Device) notify() {
	if d.onChange != nil {
		d.onChange(d.Snapshot())
	}
}

// clamp bounds a continuous control value to [0,100].
func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
