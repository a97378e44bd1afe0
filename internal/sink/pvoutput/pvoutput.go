// internal/sink/pvoutput/pvoutput.go
package pvoutput

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/renogy-bt/internal/device"
	"github.com/tamzrod/renogy-bt/internal/session"
	"github.com/tamzrod/renogy-bt/internal/sink"
)

const DefaultURL = "http://pvoutput.org/service/r2/addstatus.jsp"

// statusFields maps addstatus parameters to controller fields.
var statusFields = []struct {
	param string
	field string
}{
	{"v1", "power_generation_today"},  // energy generation (Wh)
	{"v2", "pv_power"},                // power generation (W)
	{"v3", "power_consumption_today"}, // energy consumption (Wh)
	{"v4", "load_power"},              // power consumption (W)
	{"v5", "controller_temperature"},  // temperature (C)
	{"v6", "battery_voltage"},         // voltage (V)
}

var ErrNoValues = errors.New("pvoutput: record carries none of the status fields")

type Config struct {
	URL      string
	APIKey   string
	SystemID string
}

// Sink uploads charge controller status to PVOutput.
// Records of other families are ignored.
type Sink struct {
	cfg    Config
	client *http.Client
	log    zerolog.Logger
	now    func() time.Time
}

func New(cfg Config, client *http.Client, log zerolog.Logger) (*Sink, error) {
	if cfg.APIKey == "" || cfg.SystemID == "" {
		return nil, errors.New("pvoutput: api key and system id required")
	}
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Sink{
		cfg:    cfg,
		client: client,
		log:    log.With().Str("sink", "pvoutput").Logger(),
		now:    time.Now,
	}, nil
}

func (s *Sink) Name() string { return "pvoutput" }

func (s *Sink) Deliver(ctx context.Context, rec session.Record) error {
	if rec.Family != device.FamilyController {
		return nil
	}

	form, err := s.encode(rec)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("pvoutput: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Pvoutput-Apikey", s.cfg.APIKey)
	req.Header.Set("X-Pvoutput-SystemId", s.cfg.SystemID)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("pvoutput: post: %w", err)
	}
	defer resp.Body.Close()
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pvoutput: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	s.log.Info().Str("device", rec.Alias).Msg("pvoutput 200")
	return nil
}

func (s *Sink) encode(rec session.Record) (url.Values, error) {
	now := s.now()
	form := url.Values{}
	form.Set("d", now.Format("20060102"))
	form.Set("t", now.Format("15:04"))

	n := 0
	for _, sf := range statusFields {
		v, ok := sink.Numeric(rec.Fields[sf.field])
		if !ok {
			continue
		}
		form.Set(sf.param, strconv.FormatFloat(v, 'f', -1, 64))
		n++
	}
	if n == 0 {
		return nil, ErrNoValues
	}
	return form, nil
}

func (s *Sink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
