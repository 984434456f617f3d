package metrics

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestServerServesMetricsAndHealth(t *testing.T) {
	srv := NewServer("127.0.0.1:0", zerolog.Nop())
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() { _ = srv.Stop() }()

	GateDecisionsTotal.WithLabelValues("OPEN").Inc()

	resp, err := http.Get("http://" + srv.Addr() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "OK" {
		t.Errorf("GET /health = %d %q, want 200 OK", resp.StatusCode, body)
	}

	resp, err = http.Get("http://" + srv.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if !strings.Contains(string(body), "proctorgate_gate_decisions_total") {
		t.Error("expected /metrics to expose proctorgate_gate_decisions_total")
	}
}

func TestServerStartReportsBindError(t *testing.T) {
	first := NewServer("127.0.0.1:0", zerolog.Nop())
	if err := first.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() { _ = first.Stop() }()

	second := NewServer(first.Addr(), zerolog.Nop())
	if err := second.Start(); err == nil {
		_ = second.Stop()
		t.Fatal("expected bind error on an address already in use")
	}
}
