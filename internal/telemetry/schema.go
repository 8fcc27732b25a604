package telemetry

import (
	"database/sql"

	"codeberg.org/navik/boardburn/internal/errors"
)

const (
	SchemaVersion = 1

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS samples (
	       timestamp        INTEGER PRIMARY KEY,
	       elapsed_seconds  REAL NOT NULL,
	       temperature_c    REAL NOT NULL,
	       severity         TEXT NOT NULL,
	       cpu_avg_percent  REAL NOT NULL,
	       core_util        TEXT NOT NULL,
	       core_freq_mhz    TEXT NOT NULL,
	       under_voltage    INTEGER NOT NULL CHECK (under_voltage IN (0, 1)),
	       freq_capped      INTEGER NOT NULL CHECK (freq_capped IN (0, 1)),
	       throttling       INTEGER NOT NULL CHECK (throttling IN (0, 1)),
	       soft_limit       INTEGER NOT NULL CHECK (soft_limit IN (0, 1)),
	       memory_used      INTEGER NOT NULL,
	       memory_total     INTEGER NOT NULL,
	       memory_percent   REAL NOT NULL,
	       gpu_memory       TEXT,
	       gpu_freq_mhz     REAL,
	       voltage_v        REAL,
	       current_a        REAL
	   );`

	insertSampleSQL = `
    INSERT INTO samples (
        timestamp, elapsed_seconds, temperature_c, severity,
        cpu_avg_percent, core_util, core_freq_mhz,
        under_voltage, freq_capped, throttling, soft_limit,
        memory_used, memory_total, memory_percent,
        gpu_memory, gpu_freq_mhz, voltage_v, current_a
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    ON CONFLICT(timestamp) DO NOTHING`
)

// initSchema creates the archive schema and records its version.
func initSchema(db *sql.DB) error {
	errFactory := errors.New()

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	if _, err := tx.Exec(`
        INSERT OR IGNORE INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	return nil
}
