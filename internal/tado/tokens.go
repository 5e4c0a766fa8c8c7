package tado

import (
	"database/sql"
	"time"

	"github.com/thatsimonsguy/tado-setpoint-exporter/db"
)

// SQLiteTokenStore keeps the refresh token in the exporter database.
type SQLiteTokenStore struct {
	DB *sql.DB
}

func (s SQLiteTokenStore) Load() (string, error) {
	return db.GetRefreshToken(s.DB)
}

func (s SQLiteTokenStore) Save(token string) error {
	return db.SaveRefreshToken(s.DB, token, time.Now())
}
