package db

import (
	"database/sql"
	"fmt"
	"time"
)

// StartTransaction starts a new database transaction.
func StartTransaction(db *sql.DB) (*sql.Tx, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	return tx, nil
}

// CommitTransaction commits the given transaction.
func CommitTransaction(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RollbackTransaction rolls back the given transaction.
func RollbackTransaction(tx *sql.Tx) {
	tx.Rollback()
}

// SaveRefreshToken replaces the stored refresh token. The backend rotates tokens on every
// refresh, so the old one is useless once this is called.
func SaveRefreshToken(db *sql.DB, token string, at time.Time) error {
	_, err := db.Exec(`INSERT INTO tokens (id, refresh_token, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET refresh_token = excluded.refresh_token, updated_at = excluded.updated_at`,
		token, at.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}
	return nil
}

// RecordSetpoints appends one history row per record in a single transaction.
func RecordSetpoints(db *sql.DB, records []SetpointRecord) error {
	if db == nil || len(records) == 0 {
		return nil
	}

	tx, err := StartTransaction(db)
	if err != nil {
		return err
	}
	for _, r := range records {
		if err := insertSetpointWithTx(tx, r); err != nil {
			RollbackTransaction(tx)
			return err
		}
	}
	return CommitTransaction(tx)
}

func insertSetpointWithTx(tx *sql.Tx, r SetpointRecord) error {
	var now, in30, in60 any
	if r.HasData {
		now, in30, in60 = r.Now, r.In30, r.In60
	}
	_, err := tx.Exec(`INSERT INTO setpoints (zone, recorded_at, has_data, setpoint_now, setpoint_30m, setpoint_60m) VALUES (?, ?, ?, ?, ?, ?)`,
		r.Zone, r.RecordedAt.UTC().Format(time.RFC3339), r.HasData, now, in30, in60)
	if err != nil {
		return fmt.Errorf("insert setpoint for %s: %w", r.Zone, err)
	}
	return nil
}

// PruneSetpoints deletes history recorded before cutoff and returns the number of rows removed.
func PruneSetpoints(db *sql.DB, cutoff time.Time) (int64, error) {
	if db == nil {
		return 0, nil
	}
	res, err := db.Exec(`DELETE FROM setpoints WHERE recorded_at < ?`, cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("prune setpoints: %w", err)
	}
	return res.RowsAffected()
}
