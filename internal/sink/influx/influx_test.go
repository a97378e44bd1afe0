// internal/sink/influx/influx_test.go
package influx

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/renogy-bt/internal/device"
	"github.com/tamzrod/renogy-bt/internal/session"
)

type lineServer struct {
	mu    sync.Mutex
	lines []string
	auth  string
}

func (l *lineServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/ping":
		w.WriteHeader(http.StatusNoContent)
	case "/api/v2/write":
		body, _ := io.ReadAll(r.Body)
		l.mu.Lock()
		l.auth = r.Header.Get("Authorization")
		for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
			if line != "" {
				l.lines = append(l.lines, line)
			}
		}
		l.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestDeliver_WritesNumericFieldsOnClose(t *testing.T) {
	ls := &lineServer{}
	srv := httptest.NewServer(ls)
	defer srv.Close()

	s, err := New(Config{URL: srv.URL, Token: "tok", Org: "home", Bucket: "solar"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New err=%v", err)
	}

	rec := session.Record{
		Alias:  "BT-TH-1",
		Family: device.FamilyController,
		At:     time.Unix(1700000000, 0),
		Fields: device.Values{
			"battery_voltage": 12.8,
			"pv_power":        120,
			"charging_status": "mppt",
			session.KeyDevice: "BT-TH-1",
		},
	}
	if err := s.Deliver(context.Background(), rec); err != nil {
		t.Fatalf("Deliver err=%v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close err=%v", err)
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()

	if len(ls.lines) != 1 {
		t.Fatalf("lines=%v", ls.lines)
	}
	line := ls.lines[0]
	for _, want := range []string{"renogy,device=BT-TH-1,family=RNG_CTRL ", "battery_voltage=12.8", "pv_power=120", "1700000000000000000"} {
		if !strings.Contains(line, want) {
			t.Fatalf("line %q missing %q", line, want)
		}
	}
	if strings.Contains(line, "charging_status") || strings.Contains(line, "__device") {
		t.Fatalf("non numeric field written: %q", line)
	}
	if ls.auth != "Token tok" {
		t.Fatalf("auth=%q", ls.auth)
	}
}

func TestNew_RequiresTarget(t *testing.T) {
	if _, err := New(Config{URL: "http://localhost:8086"}, zerolog.Nop()); err == nil {
		t.Fatalf("expected error without org/bucket")
	}
}
