package ddc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/displaybus/monitord/internal/i2c"
)

// TimingConfig holds the delay and retry policy for one bus handle.
//
// Monitor firmware is slow and lossy; the delays give the scaler time
// to service the bus and the retries paper over dropped transactions.
// One config is shared by all devices unless overridden per device.
type TimingConfig struct {
	// WriteDelay is slept before every physical write cycle.
	WriteDelay time.Duration `yaml:"write_delay"`

	// ReadDelay is slept between sending a get request and reading
	// the reply, letting the display prepare its answer.
	ReadDelay time.Duration `yaml:"read_delay"`

	// RetryDelay is slept between failed attempts.
	RetryDelay time.Duration `yaml:"retry_delay"`

	// MaxRetries is the number of attempts before giving up.
	MaxRetries int `yaml:"max_retries"`

	// WriteCycles is the number of physical writes per set attempt.
	// Displays drop single writes often enough that sending the frame
	// twice is the difference between flaky and dependable.
	WriteCycles int `yaml:"write_cycles"`
}

// DefaultTimingConfig returns the timing policy that works across the
// monitors tested against.
func DefaultTimingConfig() TimingConfig {
	return TimingConfig{
		WriteDelay:  10 * time.Millisecond,
		ReadDelay:   50 * time.Millisecond,
		RetryDelay:  40 * time.Millisecond,
		MaxRetries:  3,
		WriteCycles: 2,
	}
}

// withDefaults fills zero retry/cycle counts so a partially populated
// config never produces a controller that attempts nothing.
func (t TimingConfig) withDefaults() TimingConfig {
	if t.MaxRetries <= 0 {
		t.MaxRetries = DefaultTimingConfig().MaxRetries
	}
	if t.WriteCycles <= 0 {
		t.WriteCycles = DefaultTimingConfig().WriteCycles
	}
	return t
}

// Stats is a point-in-time snapshot of a controller's bus counters.
type Stats struct {
	Writes        uint64 `json:"writes"`
	WriteFailures uint64 `json:"write_failures"`
	Reads         uint64 `json:"reads"`
	ReadFailures  uint64 `json:"read_failures"`
	Retries       uint64 `json:"retries"`
}

// Controller performs logical read/write operations against one bus
// handle, applying the timing and retry policy.
//
// A controller has no shared state with other controllers; calls on
// the same controller must not overlap (the device's serial lane
// enforces this structurally).
type Controller struct {
	handle i2c.Handle
	timing TimingConfig

	logger   Logger
	loggerMu sync.RWMutex

	writes        atomic.Uint64
	writeFailures atomic.Uint64
	reads         atomic.Uint64
	readFailures  atomic.Uint64
	retries       atomic.Uint64
}

// NewController creates a controller over the given handle. The
// controller takes ownership of the handle and closes it on Close.
func NewController(handle i2c.Handle, timing TimingConfig) *Controller {
	return &Controller{
		handle: handle,
		timing: timing.withDefaults(),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger. Safe to call concurrently with bus
// operations.
func (c *Controller) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	defer c.loggerMu.Unlock()
	c.logger = logger
}

// Name identifies the underlying bus node.
func (c *Controller) Name() string {
	return c.handle.Name()
}

// Write sets a control to the given value.
//
// Each attempt performs WriteCycles physical writes of the same frame
// (sleeping WriteDelay before each); the attempt succeeds if any
// cycle's transport call succeeds. Failed attempts sleep RetryDelay
// before the next. Returns ErrWriteFailed after exhausting MaxRetries
// attempts, or the context error if cancelled between steps.
func (c *Controller) Write(ctx context.Context, code ControlCode, value uint16) error {
	c.writes.Add(1)
	packet := BuildSetPacket(code, value)

	for attempt := 0; attempt < c.timing.MaxRetries; attempt++ {
		if attempt > 0 {
			c.retries.Add(1)
			if err := sleep(ctx, c.timing.RetryDelay); err != nil {
				return err
			}
		}

		ok := false
		for cycle := 0; cycle < c.timing.WriteCycles; cycle++ {
			if err := sleep(ctx, c.timing.WriteDelay); err != nil {
				return err
			}
			if err := c.handle.Write(i2c.WriteDataAddress, packet); err != nil {
				c.logDebug("bus write cycle failed",
					"bus", c.handle.Name(), "control", code.String(),
					"attempt", attempt+1, "cycle", cycle+1, "error", err)
				continue
			}
			ok = true
		}
		if ok {
			return nil
		}
	}

	c.writeFailures.Add(1)
	c.logWarn("write exhausted retries",
		"bus", c.handle.Name(), "control", code.String(), "value", value,
		"attempts", c.timing.MaxRetries)
	return fmt.Errorf("%w: %s on %s", ErrWriteFailed, code, c.handle.Name())
}

// Read queries a control's current and maximum value.
//
// Each attempt sends the get frame, sleeps ReadDelay so the display
// can prepare its reply, reads a fixed-size reply and parses it.
// Transport and parse failures are indistinguishable to the caller;
// both retry. Returns ErrNoReply after exhausting MaxRetries attempts.
func (c *Controller) Read(ctx context.Context, code ControlCode) (Value, error) {
	c.reads.Add(1)
	packet := BuildGetPacket(code)

	for attempt := 0; attempt < c.timing.MaxRetries; attempt++ {
		if attempt > 0 {
			c.retries.Add(1)
			if err := sleep(ctx, c.timing.RetryDelay); err != nil {
				return Value{}, err
			}
		}

		if err := c.handle.Write(i2c.WriteDataAddress, packet); err != nil {
			c.logDebug("get request failed",
				"bus", c.handle.Name(), "control", code.String(),
				"attempt", attempt+1, "error", err)
			continue
		}

		if err := sleep(ctx, c.timing.ReadDelay); err != nil {
			return Value{}, err
		}

		buf := make([]byte, ReplyLength)
		n, err := c.handle.Read(i2c.ReadDataAddress, buf)
		if err != nil {
			c.logDebug("reply read failed",
				"bus", c.handle.Name(), "control", code.String(),
				"attempt", attempt+1, "error", err)
			continue
		}

		value, err := ParseReply(buf[:n], code)
		if err != nil {
			c.logDebug("reply parse failed",
				"bus", c.handle.Name(), "control", code.String(),
				"attempt", attempt+1, "error", err)
			continue
		}

		return value, nil
	}

	c.readFailures.Add(1)
	return Value{}, fmt.Errorf("%w: %s on %s", ErrNoReply, code, c.handle.Name())
}

// Stats returns a snapshot of the bus counters.
func (c *Controller) Stats() Stats {
	return Stats{
		Writes:        c.writes.Load(),
		WriteFailures: c.writeFailures.Load(),
		Reads:         c.reads.Load(),
		ReadFailures:  c.readFailures.Load(),
		Retries:       c.retries.Load(),
	}
}

// Close releases the underlying bus handle.
func (c *Controller) Close() error {
	return c.handle.Close()
}

// sleep blocks for d or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Controller) logDebug(msg string, args ...any) {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	c.logger.Debug(msg, args...)
}

func (c *Controller) logWarn(msg string, args ...any) {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	c.logger.Warn(msg, args...)
}
