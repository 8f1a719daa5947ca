package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/layerwave/layerwave/cmd/layerwave/commands"
	"github.com/layerwave/layerwave/pkg/telemetry"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	// Commands log through their own telemetry logger once settings are
	// loaded; this one only reports the final error.
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(telemetry.ParseLevel(os.Getenv("LAYERWAVE_LOG_LEVEL"))).
		With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := commands.Execute(ctx, Version, Commit, BuildDate)
	if err == nil {
		return
	}

	code := commands.ExitCode(err)
	log.Error().Err(err).Int("exit_code", code).Msg("Command failed")
	stop()
	os.Exit(code)
}
