package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/displaybus/monitord/internal/display"
	"github.com/displaybus/monitord/internal/fleet"
	"github.com/displaybus/monitord/internal/infrastructure/config"
	"github.com/displaybus/monitord/internal/infrastructure/database"
	"github.com/displaybus/monitord/internal/infrastructure/logging"
)

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("MONITORD_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingDatabasePath verifies run fails when database path is invalid.
func TestRun_MissingDatabasePath(t *testing.T) {
	configPath := writeTestConfig(t, `
site:
  id: test-site

database:
  path: ""
  wal_mode: true
  busy_timeout: 5

mqtt:
  enabled: false

influxdb:
  enabled: false

logging:
  level: error
  format: text
  output: stderr

api:
  host: "127.0.0.1"
  port: 18099
  timeouts:
    read: 30
    write: 60
    idle: 120

security:
  jwt:
    secret: "test-secret-0123456789abcdef0123456789"
`)
	t.Setenv("MONITORD_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with empty database path")
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("MONITORD_CONFIG", "")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv("MONITORD_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

// TestRun_StartupAndShutdown starts the daemon with MQTT and InfluxDB
// disabled and lets the context deadline drive a clean shutdown.
// Discovery finds whatever displays the host actually has (usually
// none in CI), which is a normal state.
func TestRun_StartupAndShutdown(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	configPath := writeTestConfig(t, `
site:
  id: test-site

database:
  path: "`+dbPath+`"
  wal_mode: true
  busy_timeout: 5

discovery:
  rescan_interval: 0
  fallback_bus: "`+filepath.Join(tmpDir, "no-such-bus")+`"

mqtt:
  enabled: false

influxdb:
  enabled: false

logging:
  level: error
  format: text
  output: stderr

api:
  host: "127.0.0.1"
  port: 18099
  timeouts:
    read: 30
    write: 60
    idle: 120

security:
  jwt:
    secret: "test-secret-0123456789abcdef0123456789"
  admin:
    username: admin
    password: test-only
`)
	t.Setenv("MONITORD_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Fatalf("run() error = %v", err)
	}
}

// TestEnqueueSnapshotDropsWhenFull verifies the change callback never
// blocks on a saturated persistence queue.
func TestEnqueueSnapshotDropsWhenFull(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stderr"}, "test")
	ch := make(chan fleet.Snapshot, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		enqueueSnapshot(ch, fleet.Snapshot{ID: 1, Brightness: 10}, log)
		enqueueSnapshot(ch, fleet.Snapshot{ID: 1, Brightness: 20}, log)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueueSnapshot blocked on a full queue")
	}

	if len(ch) != 1 {
		t.Errorf("queue length = %d, want 1", len(ch))
	}
	if snap := <-ch; snap.Brightness != 10 {
		t.Errorf("queued brightness = %d, want the first snapshot", snap.Brightness)
	}
}

// TestPersistLoopSavesSnapshot verifies queued snapshots reach the
// store off the caller's goroutine.
func TestPersistLoopSavesSnapshot(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.Open(database.Config{Path: dbPath, WALMode: true, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	store := database.NewStore(db)
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stderr"}, "test")

	ch := make(chan fleet.Snapshot, 4)
	go persistLoop(ctx, store, ch, log)

	identity := display.Identity{
		VendorID:  "DEL",
		ProductID: 0xA0C5,
		Serial:    42,
		Connector: "card0-DP-1",
	}
	ch <- fleet.Snapshot{
		ID:         31,
		Name:       "P2415Q",
		Connector:  identity.Connector,
		VendorID:   identity.VendorID,
		ProductID:  identity.ProductID,
		Serial:     identity.Serial,
		Brightness: 70,
		Volume:     35,
		Muted:      true,
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		if seed, ok := store.Seed(identity); ok {
			if seed.Brightness != 70 || seed.Volume != 35 || !seed.Muted {
				t.Errorf("seed = %+v, want 70/35/muted", seed)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("snapshot never persisted")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test-config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}
