package store

import (
	"time"
)

// DeviceRecord is a device registry row. The ID is the display name from
// the configuration file.
type DeviceRecord struct {
	ID        string
	Name      string
	Kind      string
	Addr      string
	Model     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DeviceRepository provides registry operations for devices.
type DeviceRepository struct {
	store *Store
}

// Devices returns the device repository for this store.
func (s *Store) Devices() *DeviceRepository {
	return &DeviceRepository{store: s}
}

// Upsert inserts the device or, if it already exists, refreshes its
// attributes. Called at startup for every configured device so the registry
// follows the configuration file across runs.
func (r *DeviceRepository) Upsert(d *DeviceRecord) error {
	now := time.Now()
	_, err := r.store.db.Exec(
		`INSERT INTO devices (id, name, kind, addr, model, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			kind = excluded.kind,
			addr = excluded.addr,
			model = excluded.model,
			updated_at = excluded.updated_at`,
		d.ID, d.Name, d.Kind, d.Addr, d.Model, now, now,
	)
	return err
}

// List retrieves all registered devices ordered by name.
func (r *DeviceRepository) List() ([]*DeviceRecord, error) {
	rows, err := r.store.db.Query(
		`SELECT id, name, kind, addr, model, created_at, updated_at
		 FROM devices ORDER BY name`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []*DeviceRecord
	for rows.Next() {
		d := &DeviceRecord{}
		if err := rows.Scan(&d.ID, &d.Name, &d.Kind, &d.Addr, &d.Model, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return devices, nil
}

// Delete removes a device and, via cascade, its snapshots.
func (r *DeviceRepository) Delete(id string) error {
	result, err := r.store.db.Exec(`DELETE FROM devices WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
