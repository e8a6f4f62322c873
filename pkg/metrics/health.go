package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// readinessGates lists the components that must report healthy before
// the server advertises itself as ready to take submissions.
var readinessGates = []string{"storage", "containerd", "api"}

// componentState is the last reported condition of one component.
type componentState struct {
	healthy bool
	message string
	updated time.Time
}

// registry holds process-wide component conditions behind one lock.
// Components report in from wherever they are wired up; the handlers
// only ever read a snapshot.
type registry struct {
	mu         sync.RWMutex
	version    string
	started    time.Time
	components map[string]componentState
}

var reg = &registry{
	started:    time.Now(),
	components: make(map[string]componentState),
}

// SetVersion records the build version reported by /health and /ready
// and exported through the build-info gauge.
func SetVersion(version string) {
	reg.mu.Lock()
	reg.version = version
	reg.mu.Unlock()
	BuildInfo.WithLabelValues(version).Set(1)
}

// RegisterComponent reports the condition of a named component. A
// component is whatever was last reported, so registering again simply
// overwrites.
func RegisterComponent(name string, healthy bool, message string) {
	reg.mu.Lock()
	reg.components[name] = componentState{
		healthy: healthy,
		message: message,
		updated: time.Now(),
	}
	reg.mu.Unlock()
}

// UpdateComponent reports a condition change. It is RegisterComponent
// under a name that reads better at call sites that flip state.
func UpdateComponent(name string, healthy bool, message string) {
	RegisterComponent(name, healthy, message)
}

// StatusReport is the JSON body served by /health and /ready.
type StatusReport struct {
	Status     string            `json:"status"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
}

func (r *registry) snapshot() (map[string]componentState, string, time.Duration) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	components := make(map[string]componentState, len(r.components))
	for name, state := range r.components {
		components[name] = state
	}
	return components, r.version, time.Since(r.started)
}

// Health reports overall process health: healthy unless any registered
// component says otherwise.
func Health() StatusReport {
	components, version, uptime := reg.snapshot()

	report := StatusReport{
		Status:     "healthy",
		Version:    version,
		Uptime:     uptime.Round(time.Second).String(),
		Components: make(map[string]string, len(components)),
	}
	for name, state := range components {
		if state.healthy {
			report.Components[name] = "healthy"
			continue
		}
		report.Status = "unhealthy"
		report.Components[name] = "unhealthy: " + state.message
	}
	return report
}

// Readiness reports whether every readiness gate has come up. A gate
// that has not registered yet counts as not ready.
func Readiness() StatusReport {
	components, version, uptime := reg.snapshot()

	report := StatusReport{
		Status:     "ready",
		Version:    version,
		Uptime:     uptime.Round(time.Second).String(),
		Components: make(map[string]string, len(readinessGates)),
	}
	for _, name := range readinessGates {
		state, registered := components[name]
		switch {
		case !registered:
			report.Status = "not_ready"
			report.Message = "waiting for " + name + " initialization"
			report.Components[name] = "not registered"
		case !state.healthy:
			report.Status = "not_ready"
			report.Message = "waiting for " + name
			report.Components[name] = "not ready: " + state.message
		default:
			report.Components[name] = "ready"
		}
	}
	return report
}

// HealthHandler serves /health: 200 while every component is healthy,
// 503 otherwise.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeReport(w, Health(), "unhealthy")
	}
}

// ReadyHandler serves /ready: 200 once all readiness gates are up,
// 503 before that.
func ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeReport(w, Readiness(), "not_ready")
	}
}

func writeReport(w http.ResponseWriter, report StatusReport, failState string) {
	code := http.StatusOK
	if report.Status == failState {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(report)
}
