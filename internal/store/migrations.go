package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Devices table - registry of configured devices, synced at startup
		`CREATE TABLE IF NOT EXISTS devices (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			kind TEXT NOT NULL DEFAULT 'light',
			addr TEXT NOT NULL,
			model TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// State snapshots table - periodic captures of device status
		`CREATE TABLE IF NOT EXISTS state_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			device_id TEXT NOT NULL REFERENCES devices(id) ON DELETE CASCADE,
			power INTEGER NOT NULL,
			brightness INTEGER NOT NULL,
			color_temp INTEGER NOT NULL,
			online INTEGER NOT NULL,
			taken_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Command log table - per-device outcome of every dispatched batch
		`CREATE TABLE IF NOT EXISTS command_log (
			id TEXT PRIMARY KEY,
			batch_id TEXT NOT NULL,
			device_id TEXT NOT NULL,
			action TEXT NOT NULL,
			delta INTEGER NOT NULL DEFAULT 0,
			ok INTEGER NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Settings table - application settings as key-value pairs
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		// Indexes for better query performance
		`CREATE INDEX IF NOT EXISTS idx_state_snapshots_device_id ON state_snapshots(device_id)`,
		`CREATE INDEX IF NOT EXISTS idx_command_log_batch_id ON command_log(batch_id)`,
		`CREATE INDEX IF NOT EXISTS idx_command_log_device_id ON command_log(device_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
