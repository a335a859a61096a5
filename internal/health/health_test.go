package health

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestLiveHandler_Healthy(t *testing.T) {
	c := New()
	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	rec := httptest.NewRecorder()

	c.LiveHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != StatusUp {
		t.Fatalf("expected status up, got %s", resp.Status)
	}
}

func TestLiveHandler_ShuttingDown(t *testing.T) {
	c := New()
	c.SetShuttingDown()

	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	rec := httptest.NewRecorder()

	c.LiveHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}

	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != StatusDown {
		t.Fatalf("expected status down, got %s", resp.Status)
	}
}

func TestReadyHandler_AllHealthy(t *testing.T) {
	c := New()
	c.RegisterReadiness("receiver", func() error { return nil })
	c.RegisterReadiness("spool", func() error { return nil })

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()

	c.ReadyHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != StatusUp {
		t.Fatalf("expected status up, got %s", resp.Status)
	}
	if len(resp.Components) != 2 {
		t.Fatalf("expected 2 components, got %d", len(resp.Components))
	}
}

func TestReadyHandler_OneDown(t *testing.T) {
	c := New()
	c.RegisterReadiness("receiver", func() error { return nil })
	c.RegisterReadiness("shipper", func() error {
		return errors.New("3 consecutive delivery failures")
	})

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()

	c.ReadyHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}

	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != StatusDown {
		t.Fatalf("expected status down, got %s", resp.Status)
	}
	expComp := resp.Components["shipper"]
	if expComp.Status != StatusDown {
		t.Fatalf("expected shipper down, got %s", expComp.Status)
	}
	if expComp.Message != "3 consecutive delivery failures" {
		t.Fatalf("unexpected message: %s", expComp.Message)
	}
}

func TestReadyHandler_ShuttingDown(t *testing.T) {
	c := New()
	c.RegisterReadiness("receiver", func() error { return nil })
	c.SetShuttingDown()

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()

	c.ReadyHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestReadyHandler_NoChecks(t *testing.T) {
	c := New()

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()

	c.ReadyHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with no checks, got %d", rec.Code)
	}
}

func TestResponseContentType(t *testing.T) {
	c := New()
	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	rec := httptest.NewRecorder()

	c.LiveHandler().ServeHTTP(rec, req)

	ct := rec.Header().Get("Content-Type")
	if ct != "application/json" {
		t.Fatalf("expected application/json, got %s", ct)
	}
}

type fakeShipper struct{ failures int }

func (f *fakeShipper) Healthy(maxFailures int) error {
	if maxFailures > 0 && f.failures >= maxFailures {
		return fmt.Errorf("%d consecutive delivery failures", f.failures)
	}
	return nil
}

type fakeProber struct{ err error }

func (f fakeProber) Check() error { return f.err }

func TestShipperCheck(t *testing.T) {
	s := &fakeShipper{}
	c := New()
	c.RegisterReadiness("shipper", ShipperCheck(s, 3))
	c.RegisterReadiness("spool", ProbeCheck(fakeProber{}))

	if resp := c.Ready(); resp.Status != StatusUp {
		t.Fatalf("expected up, got %+v", resp)
	}
	if got := testutil.ToFloat64(componentUp.WithLabelValues("shipper")); got != 1 {
		t.Errorf("component_up{shipper} = %v", got)
	}

	s.failures = 3
	resp := c.Ready()
	if resp.Status != StatusDown || resp.Components["shipper"].Status != StatusDown {
		t.Fatalf("expected shipper down, got %+v", resp)
	}
	if resp.Components["spool"].Status != StatusUp {
		t.Errorf("spool should stay up, got %+v", resp.Components["spool"])
	}
	if got := testutil.ToFloat64(componentUp.WithLabelValues("shipper")); got != 0 {
		t.Errorf("component_up{shipper} = %v", got)
	}
}

func TestProbeCheckFailure(t *testing.T) {
	c := New()
	c.RegisterReadiness("spool", ProbeCheck(fakeProber{err: errors.New("buffer directory not writable")}))

	rec := httptest.NewRecorder()
	c.ReadyHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestRegister(t *testing.T) {
	c := New()
	mux := http.NewServeMux()
	c.Register(mux)

	for _, path := range []string{"/live", "/ready"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}
