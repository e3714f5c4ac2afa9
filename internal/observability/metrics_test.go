package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danmuck/agentctl/internal/auth"
	"github.com/danmuck/agentctl/internal/testutil/testlog"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type staticSource struct{ v any }

func (s staticSource) StatusSnapshot() any { return s.v }

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	before := testutil.ToFloat64(startupSteps.WithLabelValues("apply_policies", "failed"))
	RecordStartupStep("apply_policies", "failed")
	if got := testutil.ToFloat64(startupSteps.WithLabelValues("apply_policies", "failed")); got != before+1 {
		t.Fatalf("expected step counter increment, got %v -> %v", before, got)
	}

	RecordBackgroundFault("hub", true)
	RecordHubConnectAttempt(false)
	RecordUpdateCheck("current")
	SetHubConnected(true)
	if testutil.ToFloat64(hubConnected) != 1 {
		t.Fatalf("expected hub gauge set")
	}
	SetHubConnected(false)
	SetCPUUtilization(0.25)
	if testutil.ToFloat64(cpuUtilization) != 0.25 {
		t.Fatalf("expected cpu gauge set")
	}
}

func TestStatusServerRoutes(t *testing.T) {
	testlog.Start(t)
	s := NewStatusServer("127.0.0.1:0", staticSource{v: map[string]string{"state": "running"}}, testlog.Logger(t))
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("get status failed: %v", err)
	}
	defer resp.Body.Close()
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body["state"] != "running" {
		t.Fatalf("unexpected status body: %+v", body)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected metrics status: %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz failed: %v", err)
	}
	defer resp.Body.Close()
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		t.Fatalf("unexpected content type: %q", resp.Header.Get("Content-Type"))
	}
}

func TestStatusServerWithoutSource(t *testing.T) {
	testlog.Start(t)
	s := NewStatusServer("", nil, testlog.Logger(t))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := s.Run(ctx); err != ErrListenAddrRequired {
		t.Fatalf("expected ErrListenAddrRequired, got %v", err)
	}
}

func TestStatusServerTokenGuard(t *testing.T) {
	testlog.Start(t)
	s := NewStatusServer("", staticSource{v: "ok"}, testlog.Logger(t), WithValidator(auth.StaticToken{Token: "t0k"}))

	for _, path := range []string{"/status", "/metrics"} {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Authorization", "Bearer t0k")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz should stay open, got %d", rec.Code)
	}
}
