// internal/sink/remote/remote_test.go
package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tamzrod/renogy-bt/internal/device"
	"github.com/tamzrod/renogy-bt/internal/session"
)

func TestDeliver_PostsJSONWithBearer(t *testing.T) {
	var (
		gotAuth string
		gotBody map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method=%s", r.Method)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode: %v", err)
		}
	}))
	defer srv.Close()

	s, err := New(Config{URL: srv.URL, Token: "secret"}, srv.Client(), zerolog.Nop())
	if err != nil {
		t.Fatalf("New err=%v", err)
	}

	rec := session.Record{
		Alias:  "BT-TH-1",
		Family: device.FamilyController,
		Fields: device.Values{"battery_voltage": 25.6, session.KeyDevice: "BT-TH-1"},
	}
	if err := s.Deliver(context.Background(), rec); err != nil {
		t.Fatalf("Deliver err=%v", err)
	}

	if gotAuth != "Bearer secret" {
		t.Fatalf("auth=%q", gotAuth)
	}
	if gotBody["battery_voltage"] != 25.6 || gotBody[session.KeyDevice] != "BT-TH-1" {
		t.Fatalf("body=%v", gotBody)
	}
}

func TestDeliver_Non200IsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	s, _ := New(Config{URL: srv.URL}, srv.Client(), zerolog.Nop())
	if err := s.Deliver(context.Background(), session.Record{Fields: device.Values{}}); err == nil {
		t.Fatalf("expected error for 401")
	}
}

func TestNew_RequiresURL(t *testing.T) {
	if _, err := New(Config{}, nil, zerolog.Nop()); err == nil {
		t.Fatalf("expected error without url")
	}
}
