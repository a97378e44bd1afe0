// internal/sink/modbus/mirror.go
package modbus

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tamzrod/renogy-bt/internal/session"
	"github.com/tamzrod/renogy-bt/internal/sink"
)

// Mirror writes mapped record fields into holding registers.
type Mirror struct {
	plan Plan
	cli  endpointClient
	log  zerolog.Logger

	closeFn func() error
}

// New dials nothing; the endpoint client connects on first write.
func New(plan Plan, cli *EndpointClient, log zerolog.Logger) *Mirror {
	m := newMirror(plan, cli, log)
	m.closeFn = cli.Close
	return m
}

func newMirror(plan Plan, cli endpointClient, log zerolog.Logger) *Mirror {
	return &Mirror{
		plan: plan,
		cli:  cli,
		log:  log.With().Str("sink", "modbus").Logger(),
	}
}

func (m *Mirror) Name() string { return "modbus" }

func (m *Mirror) Deliver(ctx context.Context, rec session.Record) error {
	targets := m.plan.Targets[rec.Alias]
	if len(targets) == 0 {
		return nil
	}

	var errs []string

	for _, tgt := range targets {
		raw, present := rec.Fields[tgt.Field]
		if !present {
			// section skipped this cycle; leave the last value in place
			continue
		}
		v, ok := sink.Numeric(raw)
		if !ok {
			errs = append(errs, fmt.Sprintf("field %s is not numeric", tgt.Field))
			continue
		}

		regs, clamped, err := encodeValue(v, tgt)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		if clamped {
			m.log.Warn().
				Str("device", rec.Alias).
				Str("field", tgt.Field).
				Float64("value", v).
				Str("type", tgt.Type).
				Msg("value saturated")
		}

		if err := m.cli.WriteRegisters(m.plan.UnitID, tgt.Address, regs); err != nil {
			errs = append(errs, fmt.Sprintf(
				"unit=%d addr=%d field=%s err=%v",
				m.plan.UnitID, tgt.Address, tgt.Field, err,
			))
		}
	}

	if len(errs) > 0 {
		return errors.New("mirror: " + strings.Join(errs, " | "))
	}
	return nil
}

func (m *Mirror) Close() error {
	if m.closeFn == nil {
		return nil
	}
	return m.closeFn()
}
