// monitord - DDC/CI display control daemon
//
// monitord drives the brightness, volume, and mute of external
// monitors over DDC/CI on Linux i2c-dev buses. Displays are
// discovered from DRM sysfs and probed to find their bus nodes;
// commands arrive over HTTP, WebSocket, and MQTT; state persists
// in SQLite and is optionally recorded to InfluxDB.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/displaybus/monitord/migrations"

	"github.com/displaybus/monitord/internal/api"
	"github.com/displaybus/monitord/internal/bridge"
	"github.com/displaybus/monitord/internal/display"
	"github.com/displaybus/monitord/internal/fleet"
	"github.com/displaybus/monitord/internal/i2c"
	"github.com/displaybus/monitord/internal/infrastructure/config"
	"github.com/displaybus/monitord/internal/infrastructure/database"
	"github.com/displaybus/monitord/internal/infrastructure/influxdb"
	"github.com/displaybus/monitord/internal/infrastructure/logging"
	"github.com/displaybus/monitord/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// discoverTimeout bounds one discovery pass. Probing every candidate
// bus node with retries takes a few seconds per display at the
// default timings.
const discoverTimeout = 60 * time.Second

// historyRetention is how long value-history rows are kept; pruning
// runs every pruneInterval.
const (
	historyRetention = 7 * 24 * time.Hour
	pruneInterval    = 6 * time.Hour
)

// telemetryInterval is how often bus counters and fleet averages are
// written to InfluxDB.
const telemetryInterval = time.Minute

// persistQueueSize is the persistence worker's snapshot backlog. When
// it fills, snapshots are dropped; the next change for the device
// re-queues its full state.
const persistQueueSize = 256

// persistTimeout bounds one snapshot write to SQLite.
const persistTimeout = 5 * time.Second

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Run the application
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting monitord",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	store := database.NewStore(db)

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Bus discovery over DRM sysfs and i2c-dev
	discoverer := fleet.NewDiscoverer(fleet.DiscovererOptions{
		Displays: &display.Enumerator{},
		Buses:    &i2c.Enumerator{FallbackPath: cfg.Discovery.FallbackBus},
		Timing:   cfg.Timing(),
		Logger:   log.With("component", "discovery"),
	})

	// The change sink fans out to persistence, telemetry, WebSocket,
	// and MQTT. Device workers fire it asynchronously, so consumers
	// created after the manager attach under a lock.
	// Persistence runs on its own worker: change callbacks fire on
	// device lanes and in HTTP handlers, so a slow or locked database
	// must not stall them.
	saveCh := make(chan fleet.Snapshot, persistQueueSize)
	go persistLoop(ctx, store, saveCh, log)

	sink := &changeSink{}
	sink.attach(func(snap fleet.Snapshot) {
		enqueueSnapshot(saveCh, snap, log)
	})
	if influxClient != nil {
		sink.attach(func(snap fleet.Snapshot) {
			influxClient.WriteDeviceState(snap.ID, snap.Name, snap.Brightness, snap.Volume, snap.Muted)
		})
	}

	manager := fleet.NewManager(fleet.ManagerOptions{
		Discoverer: discoverer,
		Seeds:      store,
		OnChange:   sink.dispatch,
		Logger:     log.With("component", "fleet"),
	})
	defer func() {
		log.Info("closing device fleet")
		manager.Close()
	}()

	// API server
	srv, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log.With("component", "api"),
		Fleet:    manager,
		Store:    store,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port))
	sink.attach(srv.BroadcastSnapshot)

	// Initial discovery. An empty result is a normal state (laptop
	// undocked, displays asleep); the daemon keeps running and rescans
	// on the configured interval or on explicit trigger.
	discCtx, discCancel := context.WithTimeout(ctx, discoverTimeout)
	count := manager.Discover(discCtx)
	discCancel()
	log.Info("initial discovery complete", "devices", count)

	// Connect to MQTT broker and start the bridge (optional)
	var mqttClient *mqtt.Client
	var br *bridge.Bridge
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		br, err = bridge.New(bridge.Options{
			MQTTClient: mqttClient,
			Fleet:      manager,
			Version:    version,
			Logger:     log.With("component", "bridge"),
		})
		if err != nil {
			return fmt.Errorf("creating MQTT bridge: %w", err)
		}
		if err := br.Start(ctx); err != nil {
			return fmt.Errorf("starting MQTT bridge: %w", err)
		}
		defer func() {
			log.Info("stopping MQTT bridge")
			br.Stop()
		}()
		log.Info("MQTT bridge started")
		sink.attach(br.PublishSnapshot)
	} else {
		log.Info("MQTT disabled")
	}

	// Background loops: periodic re-discovery, history pruning,
	// telemetry recording.
	if interval := cfg.RescanInterval(); interval > 0 {
		go rescanLoop(ctx, interval, manager, br, log)
		log.Info("periodic rescan enabled", "interval", interval)
	}
	go pruneLoop(ctx, store, log)
	if influxClient != nil {
		go telemetryLoop(ctx, influxClient, manager)
	}

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, srv, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. MQTT bridge, then MQTT client (if enabled)
	// 2. API server
	// 3. Device fleet
	// 4. InfluxDB (if enabled)
	// 5. Database

	log.Info("monitord stopped")
	return nil
}

// changeSink fans device state changes out to a set of consumers.
// Device workers call dispatch concurrently with run() attaching
// consumers during startup, hence the lock.
type changeSink struct {
	mu  sync.RWMutex
	fns []func(fleet.Snapshot)
}

func (s *changeSink) attach(fn func(fleet.Snapshot)) {
	s.mu.Lock()
	s.fns = append(s.fns, fn)
	s.mu.Unlock()
}

func (s *changeSink) dispatch(snap fleet.Snapshot) {
	s.mu.RLock()
	fns := s.fns
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// getConfigPath returns the configuration file path.
// Uses MONITORD_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("MONITORD_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// rescanLoop re-runs discovery on a fixed interval so dock/undock
// events are picked up without an explicit trigger.
func rescanLoop(ctx context.Context, interval time.Duration, manager *fleet.Manager, br *bridge.Bridge, log *logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			discCtx, cancel := context.WithTimeout(ctx, discoverTimeout)
			count := manager.Discover(discCtx)
			cancel()
			log.Debug("periodic rescan complete", "devices", count)

			// Republish the full retained set; discovery may have
			// removed devices whose last state would otherwise linger.
			if br != nil {
				for _, snap := range manager.Snapshots() {
					br.PublishSnapshot(snap)
				}
				br.PublishAverages()
			}
		}
	}
}

// enqueueSnapshot hands a snapshot to the persistence worker without
// blocking the caller. Dropping under backlog is safe: snapshots carry
// the device's full state, so the next change supersedes a lost one.
func enqueueSnapshot(ch chan<- fleet.Snapshot, snap fleet.Snapshot, log *logging.Logger) {
	select {
	case ch <- snap:
	default:
		log.Warn("persistence queue full, dropping snapshot", "device_id", snap.ID)
	}
}

// persistLoop drains queued snapshots into the store, one write at a
// time. Pending snapshots are flushed on shutdown so the last state
// survives a restart.
func persistLoop(ctx context.Context, store *database.Store, ch <-chan fleet.Snapshot, log *logging.Logger) {
	save := func(snap fleet.Snapshot) {
		saveCtx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := store.SaveSnapshot(saveCtx, snap); err != nil {
			log.Error("persisting device state failed", "device_id", snap.ID, "error", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case snap := <-ch:
					save(snap)
				default:
					return
				}
			}
		case snap := <-ch:
			save(snap)
		}
	}
}

// pruneLoop trims old value-history rows.
func pruneLoop(ctx context.Context, store *database.Store, log *logging.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pruneCtx, cancel := context.WithTimeout(ctx, time.Minute)
			if err := store.PruneHistory(pruneCtx, historyRetention); err != nil {
				log.Error("pruning value history failed", "error", err)
			}
			cancel()
		}
	}
}

// telemetryLoop records aggregate bus counters and fleet averages.
func telemetryLoop(ctx context.Context, client *influxdb.Client, manager *fleet.Manager) {
	ticker := time.NewTicker(telemetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := manager.Stats()
			client.WriteBusStats("fleet", stats.Writes, stats.Reads, stats.Retries, stats.WriteFailures+stats.ReadFailures)
			client.WriteFleetAverages(manager.AverageBrightness(), manager.AverageVolume(), manager.Count())
		}
	}
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - srv: API server to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, srv *api.Server, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	// Check database
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	// Check API server
	if err := srv.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	// Check MQTT (if enabled)
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	// Check InfluxDB (if enabled)
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
