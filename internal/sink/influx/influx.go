// internal/sink/influx/influx.go
package influx

import (
	"context"
	"errors"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/rs/zerolog"

	"github.com/tamzrod/renogy-bt/internal/session"
	"github.com/tamzrod/renogy-bt/internal/sink"
)

const DefaultMeasurement = "renogy"

type Config struct {
	URL         string
	Token       string
	Org         string
	Bucket      string
	Measurement string
}

// Sink writes numeric fields as one point per record through the
// non-blocking write API. Write errors surface asynchronously and are logged.
type Sink struct {
	client      influxdb2.Client
	write       api.WriteAPI
	measurement string
	log         zerolog.Logger

	done    chan struct{}
	drained sync.WaitGroup
}

func New(cfg Config, log zerolog.Logger) (*Sink, error) {
	if cfg.URL == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, errors.New("influx: url, org and bucket required")
	}
	if cfg.Measurement == "" {
		cfg.Measurement = DefaultMeasurement
	}
	log = log.With().Str("sink", "influx").Logger()

	opts := influxdb2.DefaultOptions().
		SetBatchSize(50).
		SetFlushInterval(1000)
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	ok, err := client.Ping(ctx)
	cancel()
	if err != nil || !ok {
		// points are buffered and retried by the client
		log.Warn().Err(err).Str("url", cfg.URL).Msg("influxdb not reachable")
	}

	s := &Sink{
		client:      client,
		write:       client.WriteAPI(cfg.Org, cfg.Bucket),
		measurement: cfg.Measurement,
		log:         log,
		done:        make(chan struct{}),
	}

	errCh := s.write.Errors()
	s.drained.Add(1)
	go func() {
		defer s.drained.Done()
		for {
			select {
			case err, ok := <-errCh:
				if !ok {
					return
				}
				s.log.Error().Err(err).Msg("influxdb write failed")
			case <-s.done:
				return
			}
		}
	}()

	return s, nil
}

func (s *Sink) Name() string { return "influx" }

func (s *Sink) Deliver(ctx context.Context, rec session.Record) error {
	fields := make(map[string]interface{})
	for _, k := range sink.Keys(rec) {
		if v, ok := sink.Numeric(rec.Fields[k]); ok {
			fields[k] = v
		}
	}
	if len(fields) == 0 {
		return nil
	}

	at := rec.At
	if at.IsZero() {
		at = time.Now()
	}

	p := influxdb2.NewPoint(
		s.measurement,
		map[string]string{
			"device": rec.Alias,
			"family": string(rec.Family),
		},
		fields,
		at,
	)
	s.write.WritePoint(p)
	return nil
}

// Close flushes buffered points and releases the client.
func (s *Sink) Close() error {
	s.write.Flush()
	s.client.Close()
	close(s.done)
	s.drained.Wait()
	return nil
}
