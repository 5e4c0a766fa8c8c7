// Package scheduler runs the refresh loop: zone list, per-zone schedules and setpoint
// publication, each on its own cadence inside one goroutine.
package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/tado-setpoint-exporter/db"
	"github.com/thatsimonsguy/tado-setpoint-exporter/internal/cache"
	"github.com/thatsimonsguy/tado-setpoint-exporter/internal/datadog"
	"github.com/thatsimonsguy/tado-setpoint-exporter/internal/model"
	"github.com/thatsimonsguy/tado-setpoint-exporter/internal/mqtt"
	"github.com/thatsimonsguy/tado-setpoint-exporter/internal/projector"
)

var recordSetpoints = db.RecordSetpoints
var pruneSetpoints = db.PruneSetpoints
var gauge = datadog.Gauge
var incr = datadog.Incr

var friendlyNames = map[string]string{
	model.SetpointNow: "Setpoint (now)",
	model.Setpoint30m: "Setpoint (+30m)",
	model.Setpoint60m: "Setpoint (+60m)",
}

// Backend fetches zones and schedules.
type Backend interface {
	GetZones(ctx context.Context) ([]model.Zone, error)
	GetTimetableID(ctx context.Context, zoneID int) (int, error)
	GetSchedule(ctx context.Context, zoneID, timetableID int) (model.Schedule, error)
}

// Publisher receives discovery metadata and setpoint states.
type Publisher interface {
	PublishDiscovery(zone, sensorKey, friendlyName, uniqueID string) error
	PublishState(zone, sensorKey, value string) error
}

// StatusSink receives a snapshot after every tick.
type StatusSink interface {
	Update(Snapshot)
}

type Options struct {
	UpdateInterval          time.Duration
	ScheduleRefreshInterval time.Duration
	ZonesRefreshInterval    time.Duration
	SendDiscovery           bool
	Projection              projector.Options

	// TolerateZoneErrors keeps the last known zone list when a zone refresh fails after the
	// first successful one. Otherwise the failure ends the loop.
	TolerateZoneErrors bool

	// Location is the timezone schedules are written in.
	Location *time.Location

	// HistoryRetention bounds the setpoint history; zero keeps everything.
	HistoryRetention time.Duration
}

type Scheduler struct {
	backend   Backend
	publisher Publisher
	opts      Options
	history   *sql.DB
	status    StatusSink
	now       func() time.Time

	zones               []model.Zone
	schedules           *cache.Cache
	lastZonesRefresh    time.Time
	lastScheduleRefresh time.Time
}

func New(backend Backend, publisher Publisher, opts Options) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Scheduler{
		backend:   backend,
		publisher: publisher,
		opts:      opts,
		now:       time.Now,
		schedules: cache.New(),
	}
}

// WithHistory records every published projection in dbConn.
func (s *Scheduler) WithHistory(dbConn *sql.DB) *Scheduler {
	s.history = dbConn
	return s
}

func (s *Scheduler) WithStatus(sink StatusSink) *Scheduler {
	s.status = sink
	return s
}

// Due reports whether a refresh last run at last is due at now.
func Due(last, now time.Time, interval time.Duration) bool {
	return last.IsZero() || now.Sub(last) > interval
}

// Run ticks until ctx is cancelled or a tick fails. Cancellation is only observed between
// ticks; a running refresh always completes.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Info().
		Dur("update_interval", s.opts.UpdateInterval).
		Dur("schedule_refresh_interval", s.opts.ScheduleRefreshInterval).
		Dur("zones_refresh_interval", s.opts.ZonesRefreshInterval).
		Msg("Starting refresh loop")

	tickCtx := context.WithoutCancel(ctx)
	for {
		if err := s.Tick(tickCtx, s.now()); err != nil {
			return err
		}

		timer := time.NewTimer(s.opts.UpdateInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info().Msg("Refresh loop stopped")
			return nil
		case <-timer.C:
		}
	}
}

// Tick runs the zones gate, the schedules gate and the publish action, in that order.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) error {
	now = now.In(s.opts.Location)

	if Due(s.lastZonesRefresh, now, s.opts.ZonesRefreshInterval) {
		if err := s.refreshZones(ctx, now); err != nil {
			if !s.opts.TolerateZoneErrors || s.lastZonesRefresh.IsZero() {
				return err
			}
			incr("refresh.zones.errors")
			log.Error().Err(err).Int("zones", len(s.zones)).Msg("Zone refresh failed, keeping last known zones")
		}
	}

	if Due(s.lastScheduleRefresh, now, s.opts.ScheduleRefreshInterval) {
		s.refreshSchedules(ctx, now)
	}

	s.publish(now)
	return nil
}

func (s *Scheduler) refreshZones(ctx context.Context, now time.Time) error {
	zones, err := s.backend.GetZones(ctx)
	if err != nil {
		return fmt.Errorf("refresh zones: %w", err)
	}
	s.zones = zones
	s.lastZonesRefresh = now

	log.Info().Int("zones", len(zones)).Msg("Zones refreshed")
	log.Debug().Interface("zones", zones).Msg("Raw zones info")
	incr("refresh.zones")

	if s.opts.SendDiscovery {
		s.publishDiscovery()
	}
	return nil
}

func (s *Scheduler) publishDiscovery() {
	for _, z := range s.zones {
		name := z.NormalizedName()
		for _, key := range model.SensorKeys {
			friendly := fmt.Sprintf("%s %s", z.Name, friendlyNames[key])
			uniqueID := fmt.Sprintf("tado_%s_%s", name, key)
			if err := s.publisher.PublishDiscovery(name, key, friendly, uniqueID); err != nil {
				log.Warn().Err(err).Str("zone", z.Name).Str("sensor", key).Msg("Failed to publish discovery")
			}
		}
	}
}

// refreshSchedules rebuilds the schedule cache from scratch. Zones whose fetch fails are left
// out until the next refresh.
func (s *Scheduler) refreshSchedules(ctx context.Context, now time.Time) {
	entries := make(map[string]model.Schedule, len(s.zones))
	for _, z := range s.zones {
		schedule, err := s.fetchSchedule(ctx, z)
		if err != nil {
			incr("refresh.schedule.errors", "zone:"+z.NormalizedName())
			log.Error().Err(err).Str("zone", z.Name).Msg("Failed to refresh schedule for zone")
			continue
		}
		entries[z.NormalizedName()] = schedule
		log.Info().Str("zone", z.Name).Int("blocks", len(schedule)).Msg("Schedule refreshed for zone")
		log.Debug().Str("zone", z.Name).Interface("schedule", schedule).Msg("Raw schedule info")
	}

	s.schedules.ReplaceAll(entries)
	s.lastScheduleRefresh = now
	log.Info().Int("cached", s.schedules.Len()).Int("zones", len(s.zones)).Msg("Schedules refreshed")

	if s.history != nil && s.opts.HistoryRetention > 0 {
		removed, err := pruneSetpoints(s.history, now.Add(-s.opts.HistoryRetention))
		if err != nil {
			log.Warn().Err(err).Msg("Failed to prune setpoint history")
		} else if removed > 0 {
			log.Debug().Int64("rows", removed).Msg("Pruned setpoint history")
		}
	}
}

func (s *Scheduler) fetchSchedule(ctx context.Context, z model.Zone) (model.Schedule, error) {
	timetable, err := s.backend.GetTimetableID(ctx, z.ID)
	if err != nil {
		return nil, err
	}
	return s.backend.GetSchedule(ctx, z.ID, timetable)
}

func (s *Scheduler) publish(now time.Time) {
	records := make([]db.SetpointRecord, 0, len(s.zones))
	statuses := make([]ZoneStatus, 0, len(s.zones))

	for _, z := range s.zones {
		name := z.NormalizedName()
		schedule := s.schedules.Get(name)
		p, ok := projector.Horizons(schedule, now, s.opts.Projection)

		values := []string{mqtt.NoData, mqtt.NoData, mqtt.NoData}
		if ok {
			for i, v := range p.Values() {
				values[i] = projector.Format(v)
				gauge("zone.setpoint", v, "zone:"+name, "horizon:"+model.SensorKeys[i])
			}
			log.Info().
				Str("zone", z.Name).
				Float64("now", p.Now).
				Float64("+30m", p.In30).
				Float64("+60m", p.In60).
				Msg("Publishing setpoints")
		} else {
			log.Warn().Str("zone", z.Name).Msg("No schedule for zone, publishing no data")
		}

		for i, key := range model.SensorKeys {
			if err := s.publisher.PublishState(name, key, values[i]); err != nil {
				log.Warn().Err(err).Str("zone", z.Name).Str("sensor", key).Msg("Failed to publish setpoint")
			}
		}

		records = append(records, db.SetpointRecord{
			Zone: name, RecordedAt: now, HasData: ok, Now: p.Now, In30: p.In30, In60: p.In60,
		})
		statuses = append(statuses, ZoneStatus{
			ID: z.ID, Name: z.Name, Normalized: name, HasData: ok, Projection: p, Schedule: schedule,
		})
	}

	if s.history != nil {
		if err := recordSetpoints(s.history, records); err != nil {
			log.Warn().Err(err).Msg("Failed to record setpoint history")
		}
	}

	if s.status != nil {
		s.status.Update(Snapshot{
			At:                  now,
			LastZonesRefresh:    s.lastZonesRefresh,
			LastScheduleRefresh: s.lastScheduleRefresh,
			Zones:               statuses,
		})
	}
}
