package store

import (
	"database/sql"
	"errors"
	"time"
)

// Snapshot is a persisted capture of one device's status at a point in time.
type Snapshot struct {
	ID         int64
	DeviceID   string
	Power      bool
	Brightness int
	ColorTemp  int
	Online     bool
	TakenAt    time.Time
}

// SnapshotRepository provides access to state snapshots.
type SnapshotRepository struct {
	store *Store
}

// Snapshots returns the snapshot repository for this store.
func (s *Store) Snapshots() *SnapshotRepository {
	return &SnapshotRepository{store: s}
}

// Record inserts a snapshot for the given device.
func (r *SnapshotRepository) Record(snap *Snapshot) error {
	if snap.TakenAt.IsZero() {
		snap.TakenAt = time.Now()
	}

	result, err := r.store.db.Exec(
		`INSERT INTO state_snapshots (device_id, power, brightness, color_temp, online, taken_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		snap.DeviceID, boolToInt(snap.Power), snap.Brightness, snap.ColorTemp,
		boolToInt(snap.Online), snap.TakenAt,
	)
	if err != nil {
		return err
	}

	snap.ID, err = result.LastInsertId()
	return err
}

// Latest returns the most recent snapshot for a device.
func (r *SnapshotRepository) Latest(deviceID string) (*Snapshot, error) {
	snap := &Snapshot{}
	var power, online int

	err := r.store.db.QueryRow(
		`SELECT id, device_id, power, brightness, color_temp, online, taken_at
		 FROM state_snapshots WHERE device_id = ?
		 ORDER BY taken_at DESC, id DESC LIMIT 1`,
		deviceID,
	).Scan(&snap.ID, &snap.DeviceID, &power, &snap.Brightness, &snap.ColorTemp, &online, &snap.TakenAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	snap.Power = power != 0
	snap.Online = online != 0
	return snap, nil
}

// Prune deletes snapshots older than the cutoff, returning how many rows
// were removed. Keeps the database from growing without bound.
func (r *SnapshotRepository) Prune(cutoff time.Time) (int64, error) {
	result, err := r.store.db.Exec(
		`DELETE FROM state_snapshots WHERE taken_at < ?`, cutoff,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
