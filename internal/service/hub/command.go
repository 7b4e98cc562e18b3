package hub

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/oshokin/satellite-timers/internal/api/ws"
	"github.com/oshokin/satellite-timers/internal/config"
	"github.com/oshokin/satellite-timers/internal/countdown"
	"github.com/oshokin/satellite-timers/internal/event"
	"github.com/oshokin/satellite-timers/internal/lifecycle"
	"github.com/oshokin/satellite-timers/internal/logger"
	"github.com/oshokin/satellite-timers/internal/process"
	repository "github.com/oshokin/satellite-timers/internal/repository/timers"
	"github.com/oshokin/satellite-timers/internal/scheduler"
	"github.com/oshokin/satellite-timers/internal/store"
)

// Options controls the timer-hub process and configuration.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// ListenAddress provides an optional listen address override.
	ListenAddress string
	// DatabaseFile provides an optional database path override.
	DatabaseFile string
	// H24 renders clock times in 24-hour format.
	H24 bool
}

const (
	// defaultAlarmMedia is the media reference satellites play when an
	// alarm rings. Satellites map it to their local sound.
	defaultAlarmMedia = "builtin:alarm"

	// readHeaderTimeout bounds slow-header connections on the HTTP listener.
	readHeaderTimeout = 10 * time.Second

	// shutdownTimeout bounds the graceful HTTP shutdown.
	shutdownTimeout = 5 * time.Second
)

// satelliteOutputs adapts the websocket server to the lifecycle's audio and
// display contracts. The server field is assigned after the dispatch table
// is built, before any traffic flows.
type satelliteOutputs struct {
	server *ws.Server
}

func (o *satelliteOutputs) Play(ctx context.Context, deviceID, mediaRef string) error {
	return o.server.Play(ctx, deviceID, mediaRef)
}

func (o *satelliteOutputs) Stop(ctx context.Context, deviceID string) error {
	return o.server.Stop(ctx, deviceID)
}

func (o *satelliteOutputs) ShowAlarm(ctx context.Context, deviceID, timerID string) error {
	return o.server.ShowAlarm(ctx, deviceID, timerID)
}

func (o *satelliteOutputs) ClearAlarm(ctx context.Context, deviceID string) error {
	return o.server.ClearAlarm(ctx, deviceID)
}

// Run starts the timer hub and blocks until the context is canceled or the
// server stops. Persisted timers are reloaded and re-armed before the
// websocket endpoint accepts connections.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "timer-hub")

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	if opts.ListenAddress != "" {
		settings.ListenAddr = opts.ListenAddress
	}

	if opts.DatabaseFile != "" {
		settings.DatabaseFile = opts.DatabaseFile
	}

	if err = process.EnsureSingleInstance(ctx); err != nil {
		return err
	}

	// A database path is optional; without one the hub keeps timers only
	// in memory and loses them on restart.
	var repo repository.Repository = repository.Nop{}

	if settings.DatabaseFile != "" {
		sqliteRepo, openErr := repository.Open(settings.DatabaseFile)
		if openErr != nil {
			return fmt.Errorf("open database: %w", openErr)
		}

		defer func() {
			if closeErr := sqliteRepo.Close(); closeErr != nil {
				logger.Warnf(ctx, "Failed to close database: %v", closeErr)
			}
		}()

		repo = sqliteRepo
	}

	bus := event.NewBroadcaster()
	defer bus.Close()

	timers := store.New(repo)

	sched := scheduler.New(ctx, timers, bus)
	defer sched.Close()

	timers.SetHook(sched)

	// Reload persisted timers: scheduled ones re-arm through the hook,
	// overdue ones fire immediately.
	if err = timers.Load(ctx); err != nil {
		return fmt.Errorf("load timers: %w", err)
	}

	outputs := &satelliteOutputs{}
	alarms := lifecycle.NewManager(
		timers, bus, outputs, outputs, settings.SnoozeDuration, defaultAlarmMedia)

	svc := NewService(timers, alarms, bus,
		countdown.NewProjector(opts.H24), settings.PreExpireWarning)

	wsServer := ws.NewServer(svc.Handlers(), bus)
	outputs.server = wsServer

	go alarms.Run(ctx)
	go wsServer.Run(ctx)
	go runRetention(ctx, timers, settings)

	httpServer := &http.Server{
		Addr:              settings.ListenAddr,
		Handler:           wsServer.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	logger.InfoKV(ctx, "Timer hub listening",
		"listen_address", settings.ListenAddr, "database_file", settings.DatabaseFile)

	// Done channel is closed after shutdown finishes to ensure we block
	// until in-flight connections drain before returning.
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		logger.Info(ctx, "Shutting down websocket server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warnf(ctx, "HTTP shutdown: %v", shutdownErr)
		}

		wsServer.Close()
		close(done)
	}()

	if err = httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve websocket: %w", err)
	}

	<-done
	logger.Info(ctx, "Timer hub stopped")

	return nil
}

// runRetention purges finished timers on the configured interval.
func runRetention(ctx context.Context, timers *store.Store, settings *config.Config) {
	ctx = logger.WithName(ctx, "retention")

	ticker := time.NewTicker(settings.PurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			timers.PurgeTerminal(ctx, now.Add(-settings.Retention))
		}
	}
}
