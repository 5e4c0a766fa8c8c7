package config

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("tado: {}\n"))
	require.NoError(t, err)

	assert.Equal(t, 300*time.Second, cfg.UpdateInterval())
	assert.Equal(t, 8*time.Hour, cfg.ScheduleRefreshInterval())
	assert.Equal(t, 24*time.Hour, cfg.ZonesRefreshInterval())
	assert.Equal(t, "tado", cfg.MQTT.BaseTopic)
	assert.Equal(t, "tcp://localhost:1883", cfg.BrokerURL())
	assert.True(t, cfg.SendDiscovery())
	assert.Equal(t, "now", cfg.HorizonFallback)
	assert.Equal(t, zerolog.ErrorLevel, cfg.LogLevel)
	assert.Equal(t, "data/exporter.db", cfg.DBFile)
	assert.Equal(t, 7*24*time.Hour, cfg.HistoryRetention())
}

func TestHistoryRetention_NegativeKeepsEverything(t *testing.T) {
	cfg, err := Parse([]byte("history_retention_days: -1\n"))
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), cfg.HistoryRetention())
}

func TestParse_FullFile(t *testing.T) {
	raw := `
logging_level: debug
update_interval: 60
schedule_refresh_hours: 4
zones_refresh_hours: 12
timezone: Europe/Amsterdam
horizon_fallback: none
mqtt:
  host: broker.lan
  port: 1884
  username: user
  password: secret
  base_topic: My Tado
  send_discovery: false
tado:
  refresh_token: abc
datadog:
  enabled: true
  tags: ["env:home"]
api:
  enabled: true
  port: 9000
`
	cfg, err := Parse([]byte(raw))
	require.NoError(t, err)
	cfg.validate()

	assert.Equal(t, zerolog.DebugLevel, cfg.LogLevel)
	assert.Equal(t, time.Minute, cfg.UpdateInterval())
	assert.Equal(t, 4*time.Hour, cfg.ScheduleRefreshInterval())
	assert.Equal(t, 12*time.Hour, cfg.ZonesRefreshInterval())
	assert.Equal(t, "my_tado", cfg.MQTT.BaseTopic)
	assert.False(t, cfg.SendDiscovery())
	assert.Equal(t, "tcp://broker.lan:1884", cfg.BrokerURL())
	assert.Equal(t, "abc", cfg.Tado.RefreshToken)
	assert.Equal(t, []string{"env:home"}, cfg.Datadog.Tags)
	assert.Equal(t, 9000, cfg.API.Port)
	assert.Equal(t, "Europe/Amsterdam", cfg.Location().String())
}

func TestParse_FractionalIntervals(t *testing.T) {
	cfg, err := Parse([]byte("update_interval: 90.5\nschedule_refresh_hours: 0.5\nzones_refresh_hours: 1.25\n"))
	require.NoError(t, err)
	cfg.validate()

	assert.Equal(t, 90*time.Second+500*time.Millisecond, cfg.UpdateInterval())
	assert.Equal(t, 30*time.Minute, cfg.ScheduleRefreshInterval())
	assert.Equal(t, 75*time.Minute, cfg.ZonesRefreshInterval())
}

func TestParse_FallbackIsCaseInsensitive(t *testing.T) {
	cfg, err := Parse([]byte("horizon_fallback: NOW\n"))
	require.NoError(t, err)

	assert.NotPanics(t, func() { cfg.validate() })
	assert.Equal(t, "now", cfg.HorizonFallback)
}

func TestValidate_BadFallback(t *testing.T) {
	cfg, err := Parse([]byte("horizon_fallback: previous\n"))
	require.NoError(t, err)

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic due to unknown fallback policy, but got none")
		}
	}()

	cfg.validate()
}

func TestValidate_BadTimezone(t *testing.T) {
	cfg, err := Parse([]byte("timezone: Mars/Olympus_Mons\n"))
	require.NoError(t, err)

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic due to unknown timezone, but got none")
		}
	}()

	cfg.validate()
}

func TestValidate_NegativeInterval(t *testing.T) {
	for _, raw := range []string{"update_interval: -5\n", "schedule_refresh_hours: -0.5\n", "zones_refresh_hours: -1\n"} {
		cfg, err := Parse([]byte(raw))
		require.NoError(t, err)

		assert.Panics(t, func() { cfg.validate() }, raw)
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("mqtt: [unclosed"))
	assert.Error(t, err)
}
