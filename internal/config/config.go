package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type MQTT struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	BaseTopic     string `yaml:"base_topic"`
	SendDiscovery *bool  `yaml:"send_discovery"`
	ClientID      string `yaml:"client_id"`
}

type Tado struct {
	HomeID       int    `yaml:"home_id"`
	RefreshToken string `yaml:"refresh_token"`
	ClientID     string `yaml:"client_id"`
	TokenURL     string `yaml:"token_url"`
	APIURL       string `yaml:"api_url"`
	TimeoutSecs  int    `yaml:"timeout_seconds"`
}

type Datadog struct {
	Enabled   bool     `yaml:"enabled"`
	AgentAddr string   `yaml:"agent_addr"`
	Namespace string   `yaml:"namespace"`
	Tags      []string `yaml:"tags"`
}

type API struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type Config struct {
	ConfigFile string        `yaml:"-"`
	DBFile     string        `yaml:"db_file"`
	LogLevel   zerolog.Level `yaml:"-"`

	LoggingLevel         string  `yaml:"logging_level"`
	LogFile              string  `yaml:"log_file"`
	UpdateIntervalSecs   float64 `yaml:"update_interval"`
	ScheduleRefreshHours float64 `yaml:"schedule_refresh_hours"`
	ZonesRefreshHours    float64 `yaml:"zones_refresh_hours"`
	Timezone             string  `yaml:"timezone"`
	HorizonFallback      string  `yaml:"horizon_fallback"`
	FilterDayType        bool    `yaml:"filter_day_type"`
	TolerateZoneErrors   bool    `yaml:"tolerate_zone_errors"`
	HistoryRetentionDays int     `yaml:"history_retention_days"`
	NtfyTopic            string  `yaml:"ntfy_topic"`

	MQTT    MQTT    `yaml:"mqtt"`
	Tado    Tado    `yaml:"tado"`
	Datadog Datadog `yaml:"datadog"`
	API     API     `yaml:"api"`

	location *time.Location
}

func Load() Config {
	var configFile, dbFile, logLevel string

	flag.StringVar(&configFile, "config-file", "config.yml", "Path to exporter config file")
	flag.StringVar(&dbFile, "db-file", "", "Path to the SQLite database file (overrides db_file)")
	flag.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides logging_level")
	flag.Parse()

	raw, err := os.ReadFile(configFile)
	if err != nil {
		panic("Failed to load config file: " + err.Error())
	}

	cfg, err := Parse(raw)
	if err != nil {
		panic("Failed to parse config file: " + err.Error())
	}
	cfg.ConfigFile = configFile
	if dbFile != "" {
		cfg.DBFile = dbFile
	}
	if logLevel != "" {
		cfg.LoggingLevel = logLevel
		cfg.LogLevel = parseLogLevel(logLevel)
	}

	cfg.validate()
	return cfg
}

// Parse decodes a YAML config and applies defaults. It does not validate.
func Parse(raw []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.DBFile == "" {
		cfg.DBFile = "data/exporter.db"
	}
	if cfg.LoggingLevel == "" {
		cfg.LoggingLevel = "error"
	}
	cfg.LogLevel = parseLogLevel(cfg.LoggingLevel)

	if cfg.UpdateIntervalSecs == 0 {
		cfg.UpdateIntervalSecs = 300
	}
	if cfg.ScheduleRefreshHours == 0 {
		cfg.ScheduleRefreshHours = 8
	}
	if cfg.ZonesRefreshHours == 0 {
		cfg.ZonesRefreshHours = 24
	}
	if cfg.HistoryRetentionDays == 0 {
		cfg.HistoryRetentionDays = 7
	}
	cfg.HorizonFallback = strings.ToLower(strings.TrimSpace(cfg.HorizonFallback))
	if cfg.HorizonFallback == "" {
		cfg.HorizonFallback = "now"
	}

	if cfg.MQTT.Host == "" {
		cfg.MQTT.Host = "localhost"
	}
	if cfg.MQTT.Port == 0 {
		cfg.MQTT.Port = 1883
	}
	if cfg.MQTT.BaseTopic == "" {
		cfg.MQTT.BaseTopic = "tado"
	}
	cfg.MQTT.BaseTopic = strings.ReplaceAll(strings.ToLower(cfg.MQTT.BaseTopic), " ", "_")
	if cfg.MQTT.SendDiscovery == nil {
		enabled := true
		cfg.MQTT.SendDiscovery = &enabled
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "tado-setpoint-exporter"
	}

	if cfg.Tado.ClientID == "" {
		cfg.Tado.ClientID = "1bb50063-6b0c-4d11-bd99-387f4a91cc46"
	}
	if cfg.Tado.TokenURL == "" {
		cfg.Tado.TokenURL = "https://login.tado.com/oauth2/token"
	}
	if cfg.Tado.APIURL == "" {
		cfg.Tado.APIURL = "https://my.tado.com/api/v2"
	}
	if cfg.Tado.TimeoutSecs == 0 {
		cfg.Tado.TimeoutSecs = 30
	}

	if cfg.Datadog.AgentAddr == "" {
		cfg.Datadog.AgentAddr = "127.0.0.1:8125"
	}
	if cfg.Datadog.Namespace == "" {
		cfg.Datadog.Namespace = "tado_exporter."
	}
	if cfg.API.Port == 0 {
		cfg.API.Port = 8099
	}
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

func (cfg *Config) validate() {
	var problems []string

	if cfg.UpdateIntervalSecs <= 0 {
		problems = append(problems, fmt.Sprintf("update_interval must be positive, got %v", cfg.UpdateIntervalSecs))
	}
	if cfg.ScheduleRefreshHours <= 0 {
		problems = append(problems, fmt.Sprintf("schedule_refresh_hours must be positive, got %v", cfg.ScheduleRefreshHours))
	}
	if cfg.ZonesRefreshHours <= 0 {
		problems = append(problems, fmt.Sprintf("zones_refresh_hours must be positive, got %v", cfg.ZonesRefreshHours))
	}
	switch cfg.HorizonFallback {
	case "now", "none":
	default:
		problems = append(problems, fmt.Sprintf("horizon_fallback must be 'now' or 'none', got %q", cfg.HorizonFallback))
	}
	if cfg.MQTT.Port < 1 || cfg.MQTT.Port > 65535 {
		problems = append(problems, fmt.Sprintf("mqtt.port out of range: %d", cfg.MQTT.Port))
	}
	if cfg.API.Enabled && (cfg.API.Port < 1 || cfg.API.Port > 65535) {
		problems = append(problems, fmt.Sprintf("api.port out of range: %d", cfg.API.Port))
	}

	loc := time.Local
	if cfg.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(cfg.Timezone)
		if err != nil {
			problems = append(problems, fmt.Sprintf("unknown timezone %q", cfg.Timezone))
		}
	}
	cfg.location = loc

	if len(problems) > 0 {
		panic("Invalid config: " + strings.Join(problems, "; "))
	}
}

func (cfg Config) UpdateInterval() time.Duration {
	return time.Duration(cfg.UpdateIntervalSecs * float64(time.Second))
}

func (cfg Config) ScheduleRefreshInterval() time.Duration {
	return time.Duration(cfg.ScheduleRefreshHours * float64(time.Hour))
}

func (cfg Config) ZonesRefreshInterval() time.Duration {
	return time.Duration(cfg.ZonesRefreshHours * float64(time.Hour))
}

// HistoryRetention is zero when history_retention_days is negative, keeping all history.
func (cfg Config) HistoryRetention() time.Duration {
	if cfg.HistoryRetentionDays < 0 {
		return 0
	}
	return time.Duration(cfg.HistoryRetentionDays) * 24 * time.Hour
}

func (cfg Config) SendDiscovery() bool {
	return cfg.MQTT.SendDiscovery == nil || *cfg.MQTT.SendDiscovery
}

// Location is the timezone schedules are evaluated in.
func (cfg Config) Location() *time.Location {
	if cfg.location == nil {
		return time.Local
	}
	return cfg.location
}

func (cfg Config) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", cfg.MQTT.Host, cfg.MQTT.Port)
}
