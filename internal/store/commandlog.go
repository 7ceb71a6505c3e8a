package store

import (
	"time"
)

// CommandEntry is one per-device outcome of a dispatched command batch.
type CommandEntry struct {
	ID        string
	BatchID   string
	DeviceID  string
	Action    string
	Delta     int
	OK        bool
	Reason    string
	CreatedAt time.Time
}

// CommandLogRepository provides access to the command history.
type CommandLogRepository struct {
	store *Store
}

// CommandLog returns the command log repository for this store.
func (s *Store) CommandLog() *CommandLogRepository {
	return &CommandLogRepository{store: s}
}

// Append inserts one command outcome.
func (r *CommandLogRepository) Append(e *CommandEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err := r.store.db.Exec(
		`INSERT INTO command_log (id, batch_id, device_id, action, delta, ok, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.BatchID, e.DeviceID, e.Action, e.Delta, boolToInt(e.OK), e.Reason, e.CreatedAt,
	)
	return err
}

// Recent retrieves the newest entries, most recent first.
func (r *CommandLogRepository) Recent(limit int) ([]*CommandEntry, error) {
	rows, err := r.store.db.Query(
		`SELECT id, batch_id, device_id, action, delta, ok, reason, created_at
		 FROM command_log ORDER BY created_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*CommandEntry
	for rows.Next() {
		e := &CommandEntry{}
		var ok int
		if err := rows.Scan(&e.ID, &e.BatchID, &e.DeviceID, &e.Action, &e.Delta, &ok, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.OK = ok != 0
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}
