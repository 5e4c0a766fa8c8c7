package scheduler

import (
	"time"

	"github.com/thatsimonsguy/tado-setpoint-exporter/internal/model"
	"github.com/thatsimonsguy/tado-setpoint-exporter/internal/projector"
)

// Snapshot is a copy of the loop state taken at the end of a tick.
type Snapshot struct {
	At                  time.Time    `json:"at"`
	LastZonesRefresh    time.Time    `json:"last_zones_refresh"`
	LastScheduleRefresh time.Time    `json:"last_schedule_refresh"`
	Zones               []ZoneStatus `json:"zones"`
}

type ZoneStatus struct {
	ID         int                  `json:"id"`
	Name       string               `json:"name"`
	Normalized string               `json:"normalized_name"`
	HasData    bool                 `json:"has_data"`
	Projection projector.Projection `json:"projection"`
	Schedule   model.Schedule       `json:"schedule"`
}
