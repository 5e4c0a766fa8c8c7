// Package projector computes the setpoint a zone schedule asks for at a given time.
package projector

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/thatsimonsguy/tado-setpoint-exporter/internal/model"
)

var ErrEmptySchedule = errors.New("schedule has no blocks")

// Horizon offsets relative to now.
const (
	Horizon30 = 30 * time.Minute
	Horizon60 = 60 * time.Minute
)

// FallbackPolicy decides what a horizon projection of 0 publishes.
type FallbackPolicy string

const (
	// FallbackNow replaces a zero horizon projection with the current setpoint.
	FallbackNow FallbackPolicy = "now"
	// FallbackNone publishes horizon projections as computed.
	FallbackNone FallbackPolicy = "none"
)

func ParseFallbackPolicy(s string) (FallbackPolicy, error) {
	switch p := FallbackPolicy(strings.ToLower(s)); p {
	case "":
		return FallbackNow, nil
	case FallbackNow, FallbackNone:
		return p, nil
	default:
		return "", fmt.Errorf("unknown horizon fallback policy %q", s)
	}
}

// Project returns the setpoint of the first block containing at, or of the last block when
// none does.
func Project(schedule model.Schedule, at model.TimeOfDay) (float64, error) {
	if len(schedule) == 0 {
		return 0, ErrEmptySchedule
	}
	for _, b := range schedule {
		if b.Contains(at) {
			return b.Celsius(), nil
		}
	}
	return schedule[len(schedule)-1].Celsius(), nil
}

// Projection holds the setpoints for the three horizons.
type Projection struct {
	Now  float64 `json:"now"`
	In30 float64 `json:"in_30m"`
	In60 float64 `json:"in_60m"`
}

// Values returns the projection in model.SensorKeys order.
func (p Projection) Values() []float64 {
	return []float64{p.Now, p.In30, p.In60}
}

// Options tune how Horizons builds a projection.
type Options struct {
	Fallback FallbackPolicy
	// ByDayType narrows the schedule to the blocks covering each horizon's weekday.
	ByDayType bool
}

// Horizons projects schedule at now, now+30m and now+60m. ok is false when the schedule is
// empty and there is no setpoint to report.
func Horizons(schedule model.Schedule, now time.Time, opts Options) (p Projection, ok bool) {
	if len(schedule) == 0 {
		return Projection{}, false
	}

	at := func(t time.Time) float64 {
		blocks := schedule
		if opts.ByDayType {
			if forDay := schedule.ForDay(t.Weekday()); len(forDay) > 0 {
				blocks = forDay
			}
		}
		v, _ := Project(blocks, model.TimeOfDayOf(t))
		return v
	}

	p.Now = at(now)
	p.In30 = at(now.Add(Horizon30))
	p.In60 = at(now.Add(Horizon60))

	if opts.Fallback != FallbackNone {
		if p.In30 == 0 {
			p.In30 = p.Now
		}
		if p.In60 == 0 {
			p.In60 = p.Now
		}
	}
	return p, true
}

// Format renders a setpoint with one fractional digit.
func Format(v float64) string {
	return fmt.Sprintf("%.1f", v)
}
