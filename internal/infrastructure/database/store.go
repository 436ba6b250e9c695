package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/displaybus/monitord/internal/display"
	"github.com/displaybus/monitord/internal/fleet"
)

// seedQueryTimeout bounds the lookup performed during discovery,
// which has no caller-supplied context.
const seedQueryTimeout = 2 * time.Second

// Store persists last-known device values and their change history.
//
// The fleet's optimistic state is written on every change and read
// back as seed values on the next start, so a restart does not snap
// every display back to the defaults.
type Store struct {
	db *DB
}

// Compile-time check that Store can seed the fleet.
var _ fleet.SeedSource = (*Store)(nil)

// HistoryEntry is one persisted value change.
type HistoryEntry struct {
	Name       string    `json:"name"`
	Brightness int       `json:"brightness"`
	Volume     int       `json:"volume"`
	Muted      bool      `json:"muted"`
	RecordedAt time.Time `json:"recorded_at"`
}

// NewStore creates a store over an open database.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// DisplayKey derives the stable persistence key for a display. The
// EDID triplet identifies the panel; the connector disambiguates two
// identical monitors.
func DisplayKey(identity display.Identity) string {
	return fmt.Sprintf("%s:%04X:%08X:%s",
		identity.VendorID, identity.ProductID, identity.Serial, identity.Connector)
}

// SaveSnapshot upserts the device's last-known values and appends a
// history row.
func (s *Store) SaveSnapshot(ctx context.Context, snap fleet.Snapshot) error {
	key := DisplayKey(display.Identity{
		VendorID:  snap.VendorID,
		ProductID: snap.ProductID,
		Serial:    snap.Serial,
		Connector: snap.Connector,
	})
	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO device_values (display_key, name, brightness, volume, muted, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(display_key) DO UPDATE SET
			name = excluded.name,
			brightness = excluded.brightness,
			volume = excluded.volume,
			muted = excluded.muted,
			updated_at = excluded.updated_at
	`, key, snap.Name, snap.Brightness, snap.Volume, boolToInt(snap.Muted), now); err != nil {
		return fmt.Errorf("upserting device values: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO value_history (display_key, name, brightness, volume, muted, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, key, snap.Name, snap.Brightness, snap.Volume, boolToInt(snap.Muted), now); err != nil {
		return fmt.Errorf("appending value history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}
	return nil
}

// Seed returns the persisted starting values for a display, if any.
// Implements fleet.SeedSource.
func (s *Store) Seed(identity display.Identity) (fleet.Seed, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), seedQueryTimeout)
	defer cancel()

	var (
		brightness, volume, muted int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT brightness, volume, muted FROM device_values WHERE display_key = ?
	`, DisplayKey(identity)).Scan(&brightness, &volume, &muted)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			// A broken database must not block discovery.
			return fleet.Seed{}, false
		}
		return fleet.Seed{}, false
	}

	return fleet.Seed{
		Brightness: brightness,
		Volume:     volume,
		Muted:      muted != 0,
	}, true
}

// History returns the most recent value changes for a display key,
// newest first.
func (s *Store) History(ctx context.Context, key string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.DB.QueryContext(ctx, `
		SELECT name, brightness, volume, muted, recorded_at
		FROM value_history
		WHERE display_key = ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?
	`, key, limit)
	if err != nil {
		return nil, fmt.Errorf("querying value history: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor

	var entries []HistoryEntry
	for rows.Next() {
		var (
			entry    HistoryEntry
			muted    int
			recorded string
		)
		if err := rows.Scan(&entry.Name, &entry.Brightness, &entry.Volume, &muted, &recorded); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		entry.Muted = muted != 0
		if ts, err := time.Parse(time.RFC3339, recorded); err == nil {
			entry.RecordedAt = ts
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history rows: %w", err)
	}
	return entries, nil
}

// PruneHistory deletes history rows older than the retention window.
func (s *Store) PruneHistory(ctx context.Context, retention time.Duration) error {
	cutoff := time.Now().UTC().Add(-retention).Format(time.RFC3339)
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM value_history WHERE recorded_at < ?", cutoff); err != nil {
		return fmt.Errorf("pruning value history: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
