package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/tablexport/internal/app"
	"github.com/hyperifyio/tablexport/internal/browser"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load .env if present; a missing file is not an error.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(run).ExecuteContext(ctx)
	stop()
	os.Exit(exitCode(err))
}

// exitCode maps run errors to the process exit status: 2 when there was
// nothing to export, 1 for every other failure.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, app.ErrNoData):
		log.Warn().Msg("no data found to export")
		return 2
	case errors.Is(err, browser.ErrNoPage):
		log.Error().Err(err).Msg("no matching tab; open the page in the attached browser first")
		return 1
	default:
		log.Error().Err(err).Msg("run failed")
		return 1
	}
}

func run(ctx context.Context, cfg app.Config) error {
	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer a.Close()
	return a.Run(ctx)
}
