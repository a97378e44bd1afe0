// cmd/renogybt/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/renogy-bt/internal/config"
	"github.com/tamzrod/renogy-bt/internal/device/renogy"
	"github.com/tamzrod/renogy-bt/internal/link/ble"
	"github.com/tamzrod/renogy-bt/internal/logging"
	"github.com/tamzrod/renogy-bt/internal/metrics"
	"github.com/tamzrod/renogy-bt/internal/poller"
	"github.com/tamzrod/renogy-bt/internal/session"
	"github.com/tamzrod/renogy-bt/internal/sink"
	"github.com/tamzrod/renogy-bt/internal/status"
)

// drainTimeout bounds how long pending sink deliveries may take at shutdown.
const drainTimeout = 30 * time.Second

func main() {
	cfgPath := flag.String("config", "", "config file (default: /data/options.json, then ./options.json)")
	envFile := flag.String("env", "", "dotenv file with secrets")
	once := flag.Bool("once", false, "poll every device once and exit")
	flag.Parse()

	if err := run(*cfgPath, *envFile, *once); err != nil {
		fmt.Fprintln(os.Stderr, "renogybt:", err)
		os.Exit(1)
	}
}

func run(cfgPath, envFile string, once bool) error {
	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(cfgPath, envFile)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	config.Normalize(cfg)
	if once {
		// a single cycle per device; never hold the connection open
		cfg.Data.EnablePolling = false
	}

	log, err := logging.New(cfg.Data.LogLevel, nil)
	if err != nil {
		return err
	}
	for _, w := range config.Warnings(cfg) {
		log.Warn().Msg(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	interval := time.Duration(cfg.Data.PollInterval) * time.Second

	// --------------------
	// Status + metrics
	// --------------------

	tracker := status.NewTracker(3 * interval)
	for _, d := range cfg.Devices {
		tracker.Register(d.Name(), d.Type)
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector()
		for _, d := range cfg.Devices {
			collector.Register(d.Name())
		}
	}

	// --------------------
	// Sinks
	// --------------------

	sinks, err := buildSinks(cfg, tracker, log)
	if err != nil {
		return err
	}
	if collector != nil {
		sinks.all = append(sinks.all, collector)
	}
	dispatcher := sink.NewDispatcher(sinks.all, cfg.Data.Fields, sink.DefaultTimeout, log)

	var srv *metrics.Server
	if collector != nil {
		srv = metrics.NewServer(cfg.Metrics.Listen, collector, tracker, log)
		if err := srv.Start(ctx); err != nil {
			return err
		}
	}

	statusDone := make(chan struct{})
	statusCtx, stopStatus := context.WithCancel(context.Background())
	go func() {
		defer close(statusDone)
		if sinks.status != nil {
			sinks.status.Run(statusCtx)
		}
	}()

	// --------------------
	// Radio + scheduler
	// --------------------

	radio, err := ble.New(log)
	if err != nil {
		stopStatus()
		<-statusDone
		_ = dispatcher.Close(context.Background())
		return err
	}

	observers := session.Observers{tracker}
	if collector != nil {
		observers = append(observers, collector)
	}

	sched, err := poller.Build(cfg, poller.Deps{
		Radio:    radio,
		Catalog:  renogy.Catalog{},
		Sink:     dispatcher,
		Observer: observers,
		Log:      log,
	})
	if err != nil {
		stopStatus()
		<-statusDone
		_ = dispatcher.Close(context.Background())
		return err
	}

	log.Info().
		Int("devices", len(cfg.Devices)).
		Dur("interval", interval).
		Bool("continuous", cfg.Data.EnablePolling).
		Bool("once", once).
		Msg("renogy-bt started")

	if once {
		sched.RunOnce(ctx)
	} else {
		sched.Run(ctx)
	}

	// --------------------
	// Shutdown
	// --------------------

	if ctx.Err() != nil {
		log.Info().Msg("shutdown requested, in-flight cycles finished")
	}

	shutdown(log, dispatcher, srv, stopStatus, statusDone)
	return nil
}

func shutdown(log zerolog.Logger, d *sink.Dispatcher, srv *metrics.Server, stopStatus context.CancelFunc, statusDone <-chan struct{}) {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	// the status loop shares the mirror client closed by the dispatcher
	stopStatus()
	<-statusDone

	if err := d.Close(ctx); err != nil {
		log.Warn().Err(err).Msg("sink close")
	}

	if srv != nil {
		if err := srv.Stop(ctx); err != nil {
			log.Warn().Err(err).Msg("http server stop")
		}
	}
	log.Info().Msg("renogy-bt stopped")
}
