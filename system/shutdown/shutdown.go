package shutdown

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/tado-setpoint-exporter/internal/notifications"
)

var exit = os.Exit

// Context returns a context cancelled on SIGINT or SIGTERM.
func Context(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// ShutdownWithError logs err, sends a notification when configured and exits non-zero.
func ShutdownWithError(err error, msg string) {
	log.Error().Err(err).Msg(msg)
	notifications.SendBestEffort("Tado exporter stopped", msg+": "+err.Error())
	exit(1)
}
