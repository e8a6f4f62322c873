package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// resetHealth clears the process-global registry between tests.
func resetHealth() {
	reg.mu.Lock()
	reg.components = make(map[string]componentState)
	reg.version = ""
	reg.mu.Unlock()
}

// TestHealthReflectsComponents tests health aggregation over reports
func TestHealthReflectsComponents(t *testing.T) {
	resetHealth()

	RegisterComponent("storage", true, "")
	report := Health()
	if report.Status != "healthy" {
		t.Errorf("Health().Status = %q, want healthy", report.Status)
	}
	if report.Components["storage"] != "healthy" {
		t.Errorf("storage component = %q, want healthy", report.Components["storage"])
	}

	UpdateComponent("storage", false, "db closed")
	report = Health()
	if report.Status != "unhealthy" {
		t.Errorf("Health().Status = %q after failure, want unhealthy", report.Status)
	}
	if report.Components["storage"] != "unhealthy: db closed" {
		t.Errorf("storage component = %q, want failure message", report.Components["storage"])
	}
}

// TestReadinessGates tests that every gate must come up
func TestReadinessGates(t *testing.T) {
	resetHealth()

	report := Readiness()
	if report.Status != "not_ready" {
		t.Fatalf("Readiness().Status = %q with nothing registered, want not_ready", report.Status)
	}
	if !strings.Contains(report.Message, "initialization") {
		t.Errorf("Readiness().Message = %q, want unregistered-gate message", report.Message)
	}

	RegisterComponent("storage", true, "")
	RegisterComponent("containerd", true, "")
	RegisterComponent("api", false, "starting")

	report = Readiness()
	if report.Status != "not_ready" {
		t.Errorf("Readiness().Status = %q with api starting, want not_ready", report.Status)
	}
	if report.Components["api"] != "not ready: starting" {
		t.Errorf("api gate = %q, want starting message", report.Components["api"])
	}

	UpdateComponent("api", true, "")
	report = Readiness()
	if report.Status != "ready" {
		t.Errorf("Readiness().Status = %q with all gates up, want ready", report.Status)
	}
}

// TestReadinessIgnoresExtraComponents tests that non-gate components do not block readiness
func TestReadinessIgnoresExtraComponents(t *testing.T) {
	resetHealth()

	RegisterComponent("storage", true, "")
	RegisterComponent("containerd", true, "")
	RegisterComponent("api", true, "")
	RegisterComponent("sweeper", false, "broken")

	report := Readiness()
	if report.Status != "ready" {
		t.Errorf("Readiness().Status = %q, want ready despite non-gate failure", report.Status)
	}
	// The failure still shows on /health.
	if Health().Status != "unhealthy" {
		t.Error("Health().Status should report the non-gate failure")
	}
}

// TestHealthHandler tests status codes and body shape
func TestHealthHandler(t *testing.T) {
	resetHealth()
	RegisterComponent("storage", true, "")

	rec := httptest.NewRecorder()
	HealthHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("healthy /health = %d, want 200", rec.Code)
	}
	var report StatusReport
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("failed to decode /health body: %v", err)
	}
	if report.Status != "healthy" {
		t.Errorf("body status = %q, want healthy", report.Status)
	}
	if report.Uptime == "" {
		t.Error("body uptime is empty")
	}

	UpdateComponent("storage", false, "gone")
	rec = httptest.NewRecorder()
	HealthHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy /health = %d, want 503", rec.Code)
	}
}

// TestReadyHandler tests status codes across the startup sequence
func TestReadyHandler(t *testing.T) {
	resetHealth()

	rec := httptest.NewRecorder()
	ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("/ready before startup = %d, want 503", rec.Code)
	}

	RegisterComponent("storage", true, "")
	RegisterComponent("containerd", true, "")
	RegisterComponent("api", true, "")

	rec = httptest.NewRecorder()
	ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("/ready after startup = %d, want 200", rec.Code)
	}
}

// TestVersionInReports tests version propagation
func TestVersionInReports(t *testing.T) {
	resetHealth()
	SetVersion("1.2.3")

	if v := Health().Version; v != "1.2.3" {
		t.Errorf("Health().Version = %q, want 1.2.3", v)
	}
	if v := Readiness().Version; v != "1.2.3" {
		t.Errorf("Readiness().Version = %q, want 1.2.3", v)
	}
}
