package database

import (
	"context"
	"testing"
	"time"

	"github.com/displaybus/monitord/internal/display"
	"github.com/displaybus/monitord/internal/fleet"
)

// openStoreDB opens a test database with the store schema applied.
func openStoreDB(t *testing.T) (*DB, *Store) {
	t.Helper()
	db := openTestDB(t)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	ctx := context.Background()
	schema := []string{
		`CREATE TABLE device_values (
			display_key TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			brightness  INTEGER NOT NULL DEFAULT 50,
			volume      INTEGER NOT NULL DEFAULT 50,
			muted       INTEGER NOT NULL DEFAULT 0,
			updated_at  TEXT NOT NULL
		)`,
		`CREATE TABLE value_history (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			display_key TEXT NOT NULL,
			name        TEXT NOT NULL,
			brightness  INTEGER NOT NULL,
			volume      INTEGER NOT NULL,
			muted       INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("creating store schema: %v", err)
		}
	}
	return db, NewStore(db)
}

func testIdentity() display.Identity {
	return display.Identity{
		ID:        1,
		Name:      "P2415Q",
		Connector: "card0-DP-1",
		VendorID:  "DEL",
		ProductID: 0xA0C5,
		Serial:    42,
	}
}

func testSnapshot(brightness, volume int, muted bool) fleet.Snapshot {
	id := testIdentity()
	return fleet.Snapshot{
		ID:         id.ID,
		Name:       id.Name,
		Connector:  id.Connector,
		VendorID:   id.VendorID,
		ProductID:  id.ProductID,
		Serial:     id.Serial,
		Brightness: brightness,
		Volume:     volume,
		Muted:      muted,
	}
}

func TestStoreSeedRoundTrip(t *testing.T) {
	_, store := openStoreDB(t)
	ctx := context.Background()

	if _, ok := store.Seed(testIdentity()); ok {
		t.Error("Seed() found values before any snapshot was saved")
	}

	if err := store.SaveSnapshot(ctx, testSnapshot(80, 25, true)); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}

	seed, ok := store.Seed(testIdentity())
	if !ok {
		t.Fatal("Seed() found nothing after save")
	}
	if seed.Brightness != 80 || seed.Volume != 25 || !seed.Muted {
		t.Errorf("seed = %+v, want 80/25/muted", seed)
	}
}

func TestStoreSnapshotUpsert(t *testing.T) {
	_, store := openStoreDB(t)
	ctx := context.Background()

	if err := store.SaveSnapshot(ctx, testSnapshot(80, 25, false)); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}
	if err := store.SaveSnapshot(ctx, testSnapshot(30, 25, false)); err != nil {
		t.Fatalf("second SaveSnapshot() error = %v", err)
	}

	// Latest values win; both changes appear in history.
	seed, ok := store.Seed(testIdentity())
	if !ok || seed.Brightness != 30 {
		t.Errorf("seed after upsert = %+v (ok=%v), want brightness 30", seed, ok)
	}

	entries, err := store.History(ctx, DisplayKey(testIdentity()), 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("history entries = %d, want 2", len(entries))
	}
	// Newest first.
	if entries[0].Brightness != 30 {
		t.Errorf("entries[0].Brightness = %d, want 30", entries[0].Brightness)
	}
}

func TestStoreHistoryLimit(t *testing.T) {
	_, store := openStoreDB(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := store.SaveSnapshot(ctx, testSnapshot(10*i, 50, false)); err != nil {
			t.Fatalf("SaveSnapshot() error = %v", err)
		}
	}

	entries, err := store.History(ctx, DisplayKey(testIdentity()), 3)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("history entries = %d, want 3", len(entries))
	}
}

func TestStoreHistoryUnknownKey(t *testing.T) {
	_, store := openStoreDB(t)

	entries, err := store.History(context.Background(), "nope", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("history entries = %d, want 0", len(entries))
	}
}

func TestStorePruneHistory(t *testing.T) {
	db, store := openStoreDB(t)
	ctx := context.Background()

	// One old row, one fresh row.
	old := time.Now().UTC().Add(-48 * time.Hour).Format(time.RFC3339)
	if _, err := db.ExecContext(ctx, `
		INSERT INTO value_history (display_key, name, brightness, volume, muted, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		DisplayKey(testIdentity()), "P2415Q", 10, 10, 0, old); err != nil {
		t.Fatalf("inserting old row: %v", err)
	}
	if err := store.SaveSnapshot(ctx, testSnapshot(20, 20, false)); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}

	if err := store.PruneHistory(ctx, 24*time.Hour); err != nil {
		t.Fatalf("PruneHistory() error = %v", err)
	}

	entries, err := store.History(ctx, DisplayKey(testIdentity()), 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("history entries after prune = %d, want 1", len(entries))
	}
}

func TestDisplayKeyDisambiguatesConnector(t *testing.T) {
	a := testIdentity()
	b := testIdentity()
	b.Connector = "card0-DP-2"

	if DisplayKey(a) == DisplayKey(b) {
		t.Error("identical panels on different connectors share a key")
	}
}
