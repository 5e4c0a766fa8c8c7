package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Sensor keys published for every zone.
const (
	SetpointNow = "setpoint_now"
	Setpoint30m = "setpoint_30m"
	Setpoint60m = "setpoint_60m"
)

// SensorKeys lists the per-zone sensor keys in publication order.
var SensorKeys = []string{SetpointNow, Setpoint30m, Setpoint60m}

// Tado day types a block can belong to.
const (
	DayMondayToSunday = "MONDAY_TO_SUNDAY"
	DayMondayToFriday = "MONDAY_TO_FRIDAY"
)

type Zone struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// NormalizedName is the zone name used in topics and metric tags.
func (z Zone) NormalizedName() string {
	return Normalize(z.Name)
}

func Normalize(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "_")
}

// TimeOfDay is an offset from midnight. 24:00 is a valid end-of-day value.
type TimeOfDay time.Duration

const EndOfDay = TimeOfDay(24 * time.Hour)

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("invalid hour in %q: %w", s, err)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("invalid minute in %q: %w", s, err)
	}
	if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("time of day %q out of range", s)
	}
	return TimeOfDay(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute), nil
}

// MustTimeOfDay is ParseTimeOfDay for literals.
func MustTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

// TimeOfDayOf drops the date part of t, keeping second precision.
func TimeOfDayOf(t time.Time) TimeOfDay {
	h, m, s := t.Clock()
	return TimeOfDay(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second)
}

func (t TimeOfDay) String() string {
	d := time.Duration(t)
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// SettingBlock is one schedule entry. A nil Setpoint means heating is off.
type SettingBlock struct {
	Start    TimeOfDay `json:"start"`
	End      TimeOfDay `json:"end"`
	Setpoint *float64  `json:"setpoint"`
	DayType  string    `json:"day_type,omitempty"`
}

// Contains reports whether at falls in [Start, End).
func (b SettingBlock) Contains(at TimeOfDay) bool {
	return b.Start <= at && at < b.End
}

// Celsius returns the block setpoint, 0 when heating is off.
func (b SettingBlock) Celsius() float64 {
	if b.Setpoint == nil {
		return 0
	}
	return *b.Setpoint
}

// Schedule is an ordered list of blocks. Order is significant and never changed.
type Schedule []SettingBlock

func (s Schedule) Validate() error {
	for i, b := range s {
		if b.Start < 0 || b.Start > EndOfDay {
			return fmt.Errorf("block %d: start %s out of range", i, b.Start)
		}
		if b.End < 0 || b.End > EndOfDay {
			return fmt.Errorf("block %d: end %s out of range", i, b.End)
		}
	}
	return nil
}

// ForDay returns the blocks whose day type covers the given weekday, in their original order.
// Blocks without a day type always apply.
func (s Schedule) ForDay(day time.Weekday) Schedule {
	out := make(Schedule, 0, len(s))
	for _, b := range s {
		if DayTypeCovers(b.DayType, day) {
			out = append(out, b)
		}
	}
	return out
}

func DayTypeCovers(dayType string, day time.Weekday) bool {
	switch dayType {
	case "", DayMondayToSunday:
		return true
	case DayMondayToFriday:
		return day >= time.Monday && day <= time.Friday
	default:
		return strings.EqualFold(dayType, day.String())
	}
}

// Celsius is a helper for building setpoints from literals.
func Celsius(v float64) *float64 {
	return &v
}
