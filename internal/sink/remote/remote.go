// internal/sink/remote/remote.go
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/renogy-bt/internal/session"
)

// Timeout of one POST.
const Timeout = 15 * time.Second

// Config is the remote logging endpoint.
type Config struct {
	URL   string
	Token string
}

// Sink POSTs every record as a JSON object with bearer auth.
// Non-200 responses are reported, never retried.
type Sink struct {
	cfg    Config
	client *http.Client
	log    zerolog.Logger
}

// New creates the sink. A nil client uses one with Timeout.
func New(cfg Config, client *http.Client, log zerolog.Logger) (*Sink, error) {
	if cfg.URL == "" {
		return nil, errors.New("remote: url required")
	}
	if client == nil {
		client = &http.Client{Timeout: Timeout}
	}
	return &Sink{
		cfg:    cfg,
		client: client,
		log:    log.With().Str("sink", "remote").Logger(),
	}, nil
}

func (s *Sink) Name() string { return "remote" }

func (s *Sink) Deliver(ctx context.Context, rec session.Record) error {
	body, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("remote: encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("remote: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.Token)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("remote: post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("remote: status %d", resp.StatusCode)
	}
	s.log.Info().Str("device", rec.Alias).Msg("log remote 200")
	return nil
}

func (s *Sink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
