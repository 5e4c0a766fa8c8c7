package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SetpointRecord is one row of the published setpoint history.
type SetpointRecord struct {
	Zone       string
	RecordedAt time.Time
	HasData    bool
	Now        float64
	In30       float64
	In60       float64
}

// GetRefreshToken returns the stored backend refresh token, or "" if none was saved yet.
func GetRefreshToken(db *sql.DB) (string, error) {
	var token string
	err := db.QueryRow(`SELECT refresh_token FROM tokens WHERE id = 1`).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get refresh token: %w", err)
	}
	return token, nil
}

// GetLatestSetpoints returns the most recent record for every zone, ordered by zone.
func GetLatestSetpoints(db *sql.DB) ([]SetpointRecord, error) {
	rows, err := db.Query(`
		SELECT s.zone, s.recorded_at, s.has_data, s.setpoint_now, s.setpoint_30m, s.setpoint_60m
		FROM setpoints s
		WHERE s.id = (SELECT MAX(id) FROM setpoints WHERE zone = s.zone)
		ORDER BY s.zone`)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest setpoints: %w", err)
	}
	defer rows.Close()
	return scanSetpoints(rows)
}

// GetSetpointHistory returns up to limit records for zone, newest first.
func GetSetpointHistory(db *sql.DB, zone string, limit int) ([]SetpointRecord, error) {
	rows, err := db.Query(`
		SELECT zone, recorded_at, has_data, setpoint_now, setpoint_30m, setpoint_60m
		FROM setpoints WHERE zone = ? ORDER BY id DESC LIMIT ?`, zone, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query setpoint history for %s: %w", zone, err)
	}
	defer rows.Close()
	return scanSetpoints(rows)
}

func scanSetpoints(rows *sql.Rows) ([]SetpointRecord, error) {
	var out []SetpointRecord
	for rows.Next() {
		var r SetpointRecord
		var recordedAt string
		var now, in30, in60 sql.NullFloat64
		if err := rows.Scan(&r.Zone, &recordedAt, &r.HasData, &now, &in30, &in60); err != nil {
			return nil, fmt.Errorf("failed to scan setpoint: %w", err)
		}
		r.RecordedAt, _ = time.Parse(time.RFC3339, recordedAt)
		r.Now, r.In30, r.In60 = now.Float64, in30.Float64, in60.Float64
		out = append(out, r)
	}
	return out, rows.Err()
}
