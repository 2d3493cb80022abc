package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func okProbe(context.Context) error { return nil }

func failProbe(context.Context) error { return errors.New("unreachable") }

func TestMonitor_Aggregation(t *testing.T) {
	tests := []struct {
		name   string
		checks []Check
		expect SystemStatus
	}{
		{"no checks", nil, StatusHealthy},
		{"all healthy", []Check{{Name: "rpc", Critical: true, Probe: okProbe}}, StatusHealthy},
		{"optional failing", []Check{
			{Name: "rpc", Critical: true, Probe: okProbe},
			{Name: "journal", Probe: failProbe},
		}, StatusDegraded},
		{"critical failing", []Check{
			{Name: "rpc", Critical: true, Probe: failProbe},
			{Name: "journal", Probe: failProbe},
		}, StatusCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor(time.Second)
			for _, c := range tt.checks {
				m.Register(c)
			}
			report := m.CheckHealth(context.Background())
			if report.SystemStatus != tt.expect {
				t.Errorf("expected %s, got %s", tt.expect, report.SystemStatus)
			}
			if len(report.Components) != len(tt.checks) {
				t.Errorf("expected %d components, got %d", len(tt.checks), len(report.Components))
			}
		})
	}
}

func TestMonitor_ProbeTimeout(t *testing.T) {
	m := NewMonitor(20 * time.Millisecond)
	m.Register(Check{Name: "slow", Critical: true, Probe: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	report := m.CheckHealth(context.Background())
	if report.Components["slow"].Status != StatusCritical {
		t.Errorf("expected timed out probe to be critical, got %+v", report.Components["slow"])
	}
}

func TestServer_Health(t *testing.T) {
	m := NewMonitor(time.Second)
	m.Register(Check{Name: "rpc", Critical: true, Probe: failProbe})
	srv := httptest.NewServer(NewServer(m, 0).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != string(StatusCritical) {
		t.Errorf("expected critical, got %s", body["status"])
	}
}

func TestServer_Metrics(t *testing.T) {
	srv := httptest.NewServer(NewServer(NewMonitor(time.Second), 0).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("unexpected content type %q", ct)
	}
}
