package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/voltlog/voltlog/internal/input"
)

// Status represents the health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// ComponentHealth represents the health of a single component
type ComponentHealth struct {
	Status      Status                 `json:"status"`
	Message     string                 `json:"message,omitempty"`
	LastChecked time.Time              `json:"last_checked"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Check represents a health check function
type Check func(ctx context.Context) ComponentHealth

// Checker manages health checks for all components
type Checker struct {
	mu         sync.RWMutex
	components map[string]Check
	timeout    time.Duration
	gauge      *prometheus.GaugeVec
}

// SetStatusGauge attaches a gauge that CheckAll keeps in sync with the
// per-component results. Healthy components read 1, everything else 0.
func (c *Checker) SetStatusGauge(g *prometheus.GaugeVec) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gauge = g
}

// NewChecker creates a new health checker
func NewChecker(timeout time.Duration) *Checker {
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	return &Checker{
		components: make(map[string]Check),
		timeout:    timeout,
	}
}

// Register registers a health check for a component
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.components[name] = check
}

// RegisterInput registers a health check backed by an input's own report
func (c *Checker) RegisterInput(in input.Input) {
	c.Register(in.Name(), func(ctx context.Context) ComponentHealth {
		h := in.Health()
		return ComponentHealth{
			Status:   Status(h.Status),
			Message:  h.Message,
			Metadata: h.Details,
		}
	})
}

// CheckAll runs every registered check and returns the results by component
func (c *Checker) CheckAll(ctx context.Context) map[string]ComponentHealth {
	c.mu.RLock()
	components := make(map[string]Check, len(c.components))
	for k, v := range c.components {
		components[k] = v
	}
	gauge := c.gauge
	c.mu.RUnlock()

	var (
		wg      sync.WaitGroup
		resMu   sync.Mutex
		results = make(map[string]ComponentHealth, len(components))
	)

	for name, check := range components {
		wg.Add(1)
		go func(n string, chk Check) {
			defer wg.Done()

			checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			result := chk(checkCtx)
			result.LastChecked = time.Now()

			resMu.Lock()
			results[n] = result
			resMu.Unlock()
		}(name, check)
	}

	wg.Wait()

	if gauge != nil {
		for name, result := range results {
			value := 0.0
			if result.Status == StatusHealthy {
				value = 1.0
			}
			gauge.WithLabelValues(name).Set(value)
		}
	}

	return results
}

// OverallStatus reduces all component results to a single status
func (c *Checker) OverallStatus(ctx context.Context) Status {
	return overall(c.CheckAll(ctx))
}

func overall(results map[string]ComponentHealth) Status {
	status := StatusHealthy
	for _, result := range results {
		switch result.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}

// Response represents the HTTP response for health checks
type Response struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  time.Time                  `json:"timestamp"`
}

// HTTPHandler returns an HTTP handler reporting all components
func (c *Checker) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results := c.CheckAll(r.Context())
		status := overall(results)

		statusCode := http.StatusOK
		if status == StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		json.NewEncoder(w).Encode(Response{
			Status:     status,
			Components: results,
			Timestamp:  time.Now(),
		})
	}
}

// LivenessHandler returns a simple liveness probe handler
func (c *Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
	}
}

// ReadinessHandler returns a readiness probe handler
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := c.OverallStatus(r.Context())

		statusCode := http.StatusOK
		if status == StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    status,
			"timestamp": time.Now(),
		})
	}
}

// CheckFunc creates a health check from a simple boolean function
func CheckFunc(check func() (bool, string)) Check {
	return func(ctx context.Context) ComponentHealth {
		healthy, message := check()
		status := StatusHealthy
		if !healthy {
			status = StatusUnhealthy
		}
		return ComponentHealth{Status: status, Message: message}
	}
}
