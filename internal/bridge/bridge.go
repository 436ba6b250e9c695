package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/displaybus/monitord/internal/ddc"
	"github.com/displaybus/monitord/internal/fleet"
	"github.com/displaybus/monitord/internal/infrastructure/mqtt"
)

// Bridge operation constants.
const (
	// discoverTimeout bounds a re-discovery triggered over MQTT.
	discoverTimeout = 30 * time.Second

	// commandQoS is the QoS level for command subscriptions and acks.
	commandQoS = 1
)

// Bridge connects the device fleet to MQTT.
// It handles:
//   - Receiving fleet commands via MQTT and applying them to devices
//   - Publishing retained per-device state on every change
//   - Publishing retained fleet averages
//   - Health reporting and graceful shutdown
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	mqtt   MQTTClient
	fleet  FleetController
	health *HealthReporter
	topics mqtt.Topics

	// Shutdown coordination
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc

	// Logger
	logger   Logger
	loggerMu sync.RWMutex
}

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

var _ MQTTClient = (*mqtt.Client)(nil)

// FleetController is the slice of the fleet manager the bridge drives.
type FleetController interface {
	Discover(ctx context.Context) int
	Count() int
	Snapshots() []fleet.Snapshot
	SetBrightness(id uint32, v int) error
	SetVolume(id uint32, v int) error
	SetMuted(id uint32, muted bool) error
	ToggleMute(id uint32) error
	AdjustAllBrightness(step int)
	AdjustAllVolume(step int)
	ToggleAllMute()
	AverageBrightness() int
	AverageVolume() int
	Stats() ddc.Stats
}

var _ FleetController = (*fleet.Manager)(nil)

// Options holds configuration for creating a bridge.
type Options struct {
	// MQTTClient is the MQTT client implementation.
	MQTTClient MQTTClient

	// Fleet is the device fleet to drive.
	Fleet FleetController

	// Version is the service version reported in health messages.
	Version string

	// HealthInterval is how often to publish health status.
	// Default: 30 seconds.
	HealthInterval time.Duration

	// Logger is optional structured logger.
	Logger Logger
}

// New creates a new bridge instance.
// Call Start() to begin operation.
func New(opts Options) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("bridge: MQTT client is required")
	}
	if opts.Fleet == nil {
		return nil, fmt.Errorf("bridge: fleet controller is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	// Bridge-level context aborts in-flight discovery on Stop()
	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		mqtt:      opts.MQTTClient,
		fleet:     opts.Fleet,
		done:      make(chan struct{}),
		ctx:       ctx,
		ctxCancel: ctxCancel,
		logger:    logger,
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		Version:   opts.Version,
		Interval:  opts.HealthInterval,
		Publisher: opts.MQTTClient,
		Fleet:     opts.Fleet,
	})
	b.health.SetLogger(logger)

	return b, nil
}

// Start begins bridge operation.
// This subscribes to command topics, publishes the current device set as
// retained state, and starts health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.getLogger().Warn("failed to publish starting status", "error", err)
	}

	commandTopic := b.topics.AllCommands()
	if err := b.mqtt.Subscribe(commandTopic, commandQoS, b.handleCommandMessage); err != nil {
		return fmt.Errorf("bridge: subscribe to commands: %w", err)
	}
	b.getLogger().Info("subscribed to commands", "topic", commandTopic)

	// Seed retained state for the current set
	for _, snap := range b.fleet.Snapshots() {
		b.PublishSnapshot(snap)
	}
	b.PublishAverages()

	b.health.Start(ctx)

	if err := b.health.PublishNow(); err != nil {
		b.getLogger().Warn("failed to publish healthy status", "error", err)
	}

	b.getLogger().Info("bridge started", "devices", b.fleet.Count())
	return nil
}

// Stop gracefully shuts down the bridge.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)

		// Abort in-flight discovery
		b.ctxCancel()

		// Stop health reporting (publishes "stopping" status)
		b.health.Stop()

		b.wg.Wait()

		b.getLogger().Info("bridge stopped")
	})
}

// SetLogger sets the logger for the bridge and its health reporter.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
	b.health.SetLogger(logger)
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

// PublishSnapshot publishes retained device state.
// Called on every stored-value change.
func (b *Bridge) PublishSnapshot(snap fleet.Snapshot) {
	msg := NewStateMessage(snap)
	payload, err := json.Marshal(msg)
	if err != nil {
		b.getLogger().Error("failed to marshal state message", "error", err)
		return
	}

	topic := b.topics.DeviceState(snap.ID)
	if err := b.mqtt.Publish(topic, payload, commandQoS, true); err != nil {
		b.getLogger().Warn("failed to publish device state", "topic", topic, "error", err)
	}
}

// PublishAverages publishes retained fleet-wide averages.
func (b *Bridge) PublishAverages() {
	msg := AveragesMessage{
		Timestamp:   time.Now().UTC(),
		Brightness:  b.fleet.AverageBrightness(),
		Volume:      b.fleet.AverageVolume(),
		DeviceCount: b.fleet.Count(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		b.getLogger().Error("failed to marshal averages message", "error", err)
		return
	}

	if err := b.mqtt.Publish(b.topics.FleetAverages(), payload, commandQoS, true); err != nil {
		b.getLogger().Warn("failed to publish fleet averages", "error", err)
	}
}

// handleCommandMessage processes an inbound command.
// The action is taken from the topic: monitord/command/{action}.
func (b *Bridge) handleCommandMessage(topic string, payload []byte) error {
	prefix := b.topics.Command("")
	if !strings.HasPrefix(topic, prefix) {
		return fmt.Errorf("bridge: unexpected topic %q", topic)
	}
	action := strings.TrimPrefix(topic, prefix)

	var cmd CommandMessage
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &cmd); err != nil {
			b.getLogger().Warn("failed to parse command", "topic", topic, "error", err)
			return err
		}
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}

	b.getLogger().Info("received command",
		"command_id", cmd.ID,
		"action", action,
		"device_id", cmd.DeviceID,
		"source", cmd.Source)

	if err := b.executeCommand(action, cmd); err != nil {
		b.getLogger().Warn("command failed", "command_id", cmd.ID, "action", action, "error", err)
		return err
	}
	return nil
}

// executeCommand applies a command to the fleet and publishes an ack.
func (b *Bridge) executeCommand(action string, cmd CommandMessage) error {
	switch action {
	case "adjust_brightness":
		delta, err := intParam(cmd, "delta")
		if err != nil {
			b.publishAckError(cmd, action, ErrCodeInvalidParameters, err.Error())
			return err
		}
		b.fleet.AdjustAllBrightness(delta)
		b.publishAck(cmd, action)
		b.PublishAverages()
		return nil

	case "adjust_volume":
		delta, err := intParam(cmd, "delta")
		if err != nil {
			b.publishAckError(cmd, action, ErrCodeInvalidParameters, err.Error())
			return err
		}
		b.fleet.AdjustAllVolume(delta)
		b.publishAck(cmd, action)
		b.PublishAverages()
		return nil

	case "toggle_mute":
		if cmd.DeviceID != 0 {
			if err := b.fleet.ToggleMute(cmd.DeviceID); err != nil {
				b.publishAckError(cmd, action, ErrCodeDeviceNotFound, err.Error())
				return err
			}
		} else {
			b.fleet.ToggleAllMute()
		}
		b.publishAck(cmd, action)
		return nil

	case "set_brightness":
		return b.executeSet(action, cmd, "value", b.fleet.SetBrightness)

	case "set_volume":
		return b.executeSet(action, cmd, "value", b.fleet.SetVolume)

	case "set_muted":
		muted, err := boolParam(cmd, "muted")
		if err != nil {
			b.publishAckError(cmd, action, ErrCodeInvalidParameters, err.Error())
			return err
		}
		if cmd.DeviceID == 0 {
			err := fmt.Errorf("set_muted requires device_id")
			b.publishAckError(cmd, action, ErrCodeInvalidParameters, err.Error())
			return err
		}
		if err := b.fleet.SetMuted(cmd.DeviceID, muted); err != nil {
			b.publishAckError(cmd, action, ErrCodeDeviceNotFound, err.Error())
			return err
		}
		b.publishAck(cmd, action)
		return nil

	case "discover":
		// Re-discovery takes seconds; run it off the MQTT handler
		// goroutine with the bridge's own context.
		b.wg.Add(1)
		go b.runDiscovery(cmd)
		b.publishAck(cmd, action)
		return nil

	default:
		err := fmt.Errorf("unknown command: %s", action)
		b.publishAckError(cmd, action, ErrCodeInvalidCommand, err.Error())
		return err
	}
}

// executeSet applies a per-device absolute setter.
func (b *Bridge) executeSet(action string, cmd CommandMessage, param string, set func(uint32, int) error) error {
	value, err := intParam(cmd, param)
	if err != nil {
		b.publishAckError(cmd, action, ErrCodeInvalidParameters, err.Error())
		return err
	}
	if cmd.DeviceID == 0 {
		err := fmt.Errorf("%s requires device_id", action)
		b.publishAckError(cmd, action, ErrCodeInvalidParameters, err.Error())
		return err
	}
	if err := set(cmd.DeviceID, value); err != nil {
		b.publishAckError(cmd, action, ErrCodeDeviceNotFound, err.Error())
		return err
	}
	b.publishAck(cmd, action)
	return nil
}

// runDiscovery performs a fleet re-discovery and republishes state.
func (b *Bridge) runDiscovery(cmd CommandMessage) {
	defer b.wg.Done()

	ctx, cancel := context.WithTimeout(b.ctx, discoverTimeout)
	defer cancel()

	count := b.fleet.Discover(ctx)
	b.getLogger().Info("discovery complete", "command_id", cmd.ID, "devices", count)

	for _, snap := range b.fleet.Snapshots() {
		b.PublishSnapshot(snap)
	}
	b.PublishAverages()
}

// publishAck publishes a successful command acknowledgement.
func (b *Bridge) publishAck(cmd CommandMessage, action string) {
	b.publish(NewAckMessage(cmd, action, AckAccepted), cmd.ID)
}

// publishAckError publishes a failed command acknowledgement.
func (b *Bridge) publishAckError(cmd CommandMessage, action, code, message string) {
	b.publish(NewAckError(cmd, action, code, message), cmd.ID)
}

func (b *Bridge) publish(ack AckMessage, commandID string) {
	payload, err := json.Marshal(ack)
	if err != nil {
		b.getLogger().Error("failed to marshal ack", "error", err)
		return
	}

	topic := b.topics.Ack(commandID)
	if err := b.mqtt.Publish(topic, payload, commandQoS, false); err != nil {
		b.getLogger().Warn("failed to publish ack", "topic", topic, "error", err)
	}
}

// intParam extracts an integer parameter from a command.
// JSON numbers arrive as float64; whole-number floats are accepted.
func intParam(cmd CommandMessage, name string) (int, error) {
	raw, ok := cmd.Parameters[name]
	if !ok {
		return 0, fmt.Errorf("missing %q parameter", name)
	}
	f, ok := raw.(float64)
	if !ok {
		return 0, fmt.Errorf("%q must be a number", name)
	}
	return int(f), nil
}

// boolParam extracts a boolean parameter from a command.
func boolParam(cmd CommandMessage, name string) (bool, error) {
	raw, ok := cmd.Parameters[name]
	if !ok {
		return false, fmt.Errorf("missing %q parameter", name)
	}
	v, ok := raw.(bool)
	if !ok {
		return false, fmt.Errorf("%q must be a boolean", name)
	}
	return v, nil
}
