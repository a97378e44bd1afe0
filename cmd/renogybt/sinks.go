// cmd/renogybt/sinks.go
package main

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/renogy-bt/internal/config"
	"github.com/tamzrod/renogy-bt/internal/sink"
	"github.com/tamzrod/renogy-bt/internal/sink/influx"
	mirror "github.com/tamzrod/renogy-bt/internal/sink/modbus"
	"github.com/tamzrod/renogy-bt/internal/sink/mqtt"
	"github.com/tamzrod/renogy-bt/internal/sink/pvoutput"
	"github.com/tamzrod/renogy-bt/internal/sink/remote"
	"github.com/tamzrod/renogy-bt/internal/status"
)

type builtSinks struct {
	all    []sink.Sink
	status *mirror.StatusLoop
}

// buildSinks creates every enabled sink. On error, sinks already built are closed.
func buildSinks(cfg *config.Config, tracker *status.Tracker, log zerolog.Logger) (builtSinks, error) {
	var out builtSinks

	fail := func(err error) (builtSinks, error) {
		for _, s := range out.all {
			_ = s.Close()
		}
		return builtSinks{}, err
	}

	if cfg.RemoteLogging.Enabled {
		s, err := remote.New(remote.Config{
			URL:   cfg.RemoteLogging.URL,
			Token: cfg.RemoteLogging.AuthHeader,
		}, nil, log)
		if err != nil {
			return fail(err)
		}
		out.all = append(out.all, s)
	}

	if cfg.MQTT.Enabled {
		s, err := mqtt.New(mqtt.Config{
			Server:          cfg.MQTT.Server,
			Port:            cfg.MQTT.Port,
			User:            cfg.MQTT.User,
			Password:        cfg.MQTT.Password,
			ClientID:        cfg.MQTT.ClientID,
			TopicPrefix:     cfg.MQTT.TopicPrefix,
			DiscoveryPrefix: cfg.MQTT.DiscoveryPrefix,
		}, log)
		if err != nil {
			return fail(err)
		}
		out.all = append(out.all, s)
	}

	if cfg.PVOutput.Enabled {
		s, err := pvoutput.New(pvoutput.Config{
			URL:      cfg.PVOutput.URL,
			APIKey:   cfg.PVOutput.APIKey,
			SystemID: cfg.PVOutput.SystemID,
		}, nil, log)
		if err != nil {
			return fail(err)
		}
		out.all = append(out.all, s)
	}

	if cfg.InfluxDB.Enabled {
		s, err := influx.New(influx.Config{
			URL:         cfg.InfluxDB.URL,
			Token:       cfg.InfluxDB.Token,
			Org:         cfg.InfluxDB.Org,
			Bucket:      cfg.InfluxDB.Bucket,
			Measurement: cfg.InfluxDB.Measurement,
		}, log)
		if err != nil {
			return fail(err)
		}
		out.all = append(out.all, s)
	}

	if cfg.ModbusMirror.Enabled {
		plan, err := mirror.BuildPlan(cfg.ModbusMirror)
		if err != nil {
			return fail(err)
		}
		cli, err := mirror.NewEndpointClient(mirror.ClientConfig{
			Endpoint: cfg.ModbusMirror.Endpoint,
			Timeout:  time.Duration(cfg.ModbusMirror.TimeoutMs) * time.Millisecond,
		})
		if err != nil {
			return fail(fmt.Errorf("mirror client: %w", err))
		}
		// the mirror sink owns the client and closes it
		out.all = append(out.all, mirror.New(plan, cli, log))
		out.status = mirror.NewStatusLoop(plan, cli, tracker, log)
	}

	return out, nil
}
