// Package health serves the /live and /ready probes.
package health

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Status represents the health status of a component.
type Status string

const (
	StatusUp   Status = "up"
	StatusDown Status = "down"
)

var componentUp = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Name: "logship_component_up",
	Help: "Result of the last readiness check per component (1 = up)",
}, []string{"component"})

func init() {
	prometheus.MustRegister(componentUp)
}

// ComponentCheck represents the health of a single component.
type ComponentCheck struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Response is the JSON body returned by health endpoints.
type Response struct {
	Status     Status                    `json:"status"`
	Components map[string]ComponentCheck `json:"components,omitempty"`
	Timestamp  string                    `json:"timestamp"`
}

// CheckFunc returns nil if the component is healthy, or an error describing the issue.
type CheckFunc func() error

// Checker provides liveness and readiness probes.
// Components register themselves and report their status.
type Checker struct {
	mu              sync.RWMutex
	readinessChecks map[string]CheckFunc
	shuttingDown    atomic.Bool
}

// New creates a new health Checker.
func New() *Checker {
	return &Checker{
		readinessChecks: make(map[string]CheckFunc),
	}
}

// ShipperHealth is implemented by shipper.Shipper.
type ShipperHealth interface {
	Healthy(maxFailures int) error
}

// ShipperCheck fails once the shipper has maxFailures consecutive delivery
// failures.
func ShipperCheck(s ShipperHealth, maxFailures int) CheckFunc {
	return func() error { return s.Healthy(maxFailures) }
}

// Prober is implemented by spool.Writer and receiver.HTTPReceiver.
type Prober interface {
	Check() error
}

// ProbeCheck adapts a Prober.
func ProbeCheck(p Prober) CheckFunc {
	return p.Check
}

// RegisterReadiness registers a named readiness check.
// The check is called on each /ready request.
func (c *Checker) RegisterReadiness(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readinessChecks[name] = check
	componentUp.WithLabelValues(name).Set(1)
}

// SetShuttingDown marks the instance as shutting down.
// After this, both /live and /ready return 503.
func (c *Checker) SetShuttingDown() {
	c.shuttingDown.Store(true)
}

// Register mounts /live and /ready on mux.
func (c *Checker) Register(mux *http.ServeMux) {
	mux.HandleFunc("/live", c.LiveHandler())
	mux.HandleFunc("/ready", c.ReadyHandler())
}

// LiveHandler returns an http.HandlerFunc for the /live endpoint.
// Liveness checks that the process is running and not in shutdown.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if c.shuttingDown.Load() {
			writeShuttingDown(w)
			return
		}
		writeJSON(w, http.StatusOK, Response{Status: StatusUp, Timestamp: now()})
	}
}

// ReadyHandler returns an http.HandlerFunc for the /ready endpoint.
// Readiness runs all registered checks; if any fail, the response is 503.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if c.shuttingDown.Load() {
			writeShuttingDown(w)
			return
		}

		resp := c.Ready()
		code := http.StatusOK
		if resp.Status == StatusDown {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	}
}

// Ready runs every readiness check in name order.
func (c *Checker) Ready() Response {
	c.mu.RLock()
	names := make([]string, 0, len(c.readinessChecks))
	checks := make(map[string]CheckFunc, len(c.readinessChecks))
	for k, v := range c.readinessChecks {
		names = append(names, k)
		checks[k] = v
	}
	c.mu.RUnlock()
	sort.Strings(names)

	resp := Response{Status: StatusUp, Timestamp: now()}
	if len(names) > 0 {
		resp.Components = make(map[string]ComponentCheck, len(names))
	}
	for _, name := range names {
		if err := checks[name](); err != nil {
			resp.Status = StatusDown
			resp.Components[name] = ComponentCheck{Status: StatusDown, Message: err.Error()}
			componentUp.WithLabelValues(name).Set(0)
			continue
		}
		resp.Components[name] = ComponentCheck{Status: StatusUp}
		componentUp.WithLabelValues(name).Set(1)
	}
	return resp
}

func writeShuttingDown(w http.ResponseWriter) {
	writeJSON(w, http.StatusServiceUnavailable, Response{
		Status:    StatusDown,
		Timestamp: now(),
		Components: map[string]ComponentCheck{
			"process": {Status: StatusDown, Message: "shutting down"},
		},
	})
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func writeJSON(w http.ResponseWriter, code int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
