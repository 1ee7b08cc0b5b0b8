// Package app wires the broker's dispatcher, audit store, metrics, and
// mDNS advertisement together and manages their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"topicbroker/internal/audit"
	"topicbroker/internal/config"
	"topicbroker/internal/discovery"
	"topicbroker/internal/dispatcher"
	"topicbroker/internal/metrics"
)

// App wires together the broker's services and manages their lifecycle.
type App struct {
	cfg    config.Config
	logger zerolog.Logger

	auditStore *audit.Store
	metrics    *metrics.Metrics
	mdns       *discovery.Advertisement
}

// New constructs a new application instance.
func New(cfg config.Config, logger zerolog.Logger) *App {
	return &App{cfg: cfg, logger: logger}
}

// Run starts the dispatcher, audit store, metrics server, and mDNS
// advertisement, and blocks until ctx is cancelled or a fatal startup error
// occurs. Only startup failures (bind/listen/socket option, database open)
// are surfaced as a returned error; all runtime errors are localized to the
// dispatcher per spec §7.
func (a *App) Run(ctx context.Context) error {
	store, err := audit.Open(a.cfg.DatabasePath)
	if err != nil {
		return err
	}
	a.auditStore = store
	defer func() {
		if cerr := a.auditStore.Close(); cerr != nil {
			a.logger.Error().Err(cerr).Msg("close audit store")
		}
	}()

	if err := a.auditStore.InitSchema(ctx); err != nil {
		return err
	}

	a.metrics = metrics.New()

	if a.cfg.MDNSEnabled {
		adv, err := discovery.Advertise(a.cfg.Port)
		if err != nil {
			a.logger.Warn().Err(err).Msg("mDNS advertisement failed")
		} else {
			a.mdns = adv
			defer a.mdns.Shutdown()
		}
	}

	metricsErrCh := make(chan error, 1)
	metricsServer := &http.Server{
		Addr:    a.cfg.MetricsAddr,
		Handler: a.metrics.Handler(),
	}
	go func() {
		a.logger.Info().Str("addr", metricsServer.Addr).Msg("metrics server started")
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			metricsErrCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	d := dispatcher.New(a.logger,
		dispatcher.WithAudit(a.auditStore),
		dispatcher.WithMetrics(a.metrics),
		dispatcher.WithUDPRateLimit(a.cfg.UDPRatePerSecond, a.cfg.UDPRateBurst),
	)

	dispatcherErrCh := make(chan error, 1)
	addr := fmt.Sprintf(":%d", a.cfg.Port)
	go func() {
		dispatcherErrCh <- d.Run(ctx, addr, addr)
	}()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn().Err(err).Msg("metrics server shutdown")
			}
			<-dispatcherErrCh
			return nil

		case err := <-metricsErrCh:
			return err

		case err := <-dispatcherErrCh:
			return err
		}
	}
}
