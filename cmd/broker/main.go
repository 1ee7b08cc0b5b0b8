// Command broker runs the topic-based publish/subscribe message broker.
//
// Usage: broker <port>
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"

	"topicbroker/internal/app"
	"topicbroker/internal/config"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: broker <port>")
		os.Exit(1)
	}
	port, err := strconv.Atoi(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "broker: invalid port %q: %v\n", os.Args[1], err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "broker: %v\n", err)
		os.Exit(1)
	}
	cfg.Port = port

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "broker: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)

	application := app.New(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("broker terminated")
		os.Exit(1)
	}

	logger.Info().Msg("broker stopped cleanly")
}

func newLogger(level string) zerolog.Logger {
	zerolog.SetGlobalLevel(logLevel(level))
	return zerolog.New(os.Stdout).With().Timestamp().Str("service", "topicbroker").Logger()
}

func logLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
