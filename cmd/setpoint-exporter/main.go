package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/tado-setpoint-exporter/db"
	"github.com/thatsimonsguy/tado-setpoint-exporter/internal/api"
	"github.com/thatsimonsguy/tado-setpoint-exporter/internal/config"
	"github.com/thatsimonsguy/tado-setpoint-exporter/internal/datadog"
	"github.com/thatsimonsguy/tado-setpoint-exporter/internal/logging"
	"github.com/thatsimonsguy/tado-setpoint-exporter/internal/mqtt"
	"github.com/thatsimonsguy/tado-setpoint-exporter/internal/notifications"
	"github.com/thatsimonsguy/tado-setpoint-exporter/internal/projector"
	"github.com/thatsimonsguy/tado-setpoint-exporter/internal/scheduler"
	"github.com/thatsimonsguy/tado-setpoint-exporter/internal/tado"
	"github.com/thatsimonsguy/tado-setpoint-exporter/system/shutdown"
)

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.LogFile)
	notifications.Init(cfg.NtfyTopic)

	log.Info().
		Str("config_file", cfg.ConfigFile).
		Str("db_file", cfg.DBFile).
		Msg("Starting tado setpoint exporter")

	if err := run(cfg); err != nil {
		shutdown.ShutdownWithError(err, "Exporter stopped with an error")
	}
	log.Info().Msg("Exporter stopped")
}

func run(cfg config.Config) error {
	ctx, stop := shutdown.Context(context.Background())
	defer stop()

	datadog.InitMetrics(cfg.Datadog)
	defer datadog.Close()

	dbConn, err := db.Open(cfg.DBFile)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	client := tado.New(cfg.Tado, tado.SQLiteTokenStore{DB: dbConn})
	status, err := client.ActivationStatus(ctx)
	if err != nil {
		return fmt.Errorf("tado login: %w", err)
	}
	if status != tado.StatusCompleted {
		log.Error().Str("status", status).Msg("Tado device activation pending. Set tado.refresh_token in the config file")
		return fmt.Errorf("tado login failed, status is %s: %w", status, tado.ErrNotAuthenticated)
	}
	log.Info().Msg("TADO login successful")

	publisher, err := mqtt.NewRealPublisher(cfg.BrokerURL(), cfg.MQTT)
	if err != nil {
		return err
	}
	defer publisher.Close()

	fallback, err := projector.ParseFallbackPolicy(cfg.HorizonFallback)
	if err != nil {
		return err
	}

	statusStore := &api.Status{}
	sched := scheduler.New(client, publisher, scheduler.Options{
		UpdateInterval:          cfg.UpdateInterval(),
		ScheduleRefreshInterval: cfg.ScheduleRefreshInterval(),
		ZonesRefreshInterval:    cfg.ZonesRefreshInterval(),
		SendDiscovery:           cfg.SendDiscovery(),
		Projection: projector.Options{
			Fallback:  fallback,
			ByDayType: cfg.FilterDayType,
		},
		TolerateZoneErrors: cfg.TolerateZoneErrors,
		Location:           cfg.Location(),
		HistoryRetention:   cfg.HistoryRetention(),
	}).WithHistory(dbConn).WithStatus(statusStore)

	if cfg.API.Enabled {
		server := api.NewServer(dbConn, statusStore)
		go func() {
			if err := server.Start(cfg.API.Port); err != nil {
				log.Error().Err(err).Msg("REST API server stopped")
			}
		}()
	}

	return sched.Run(ctx)
}
