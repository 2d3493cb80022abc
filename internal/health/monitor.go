package health

import (
	"context"
	"sync"
	"time"
)

// Check probes one component. Critical checks make the system critical when
// they fail, others only degrade it.
type Check struct {
	Name     string
	Critical bool
	Probe    func(ctx context.Context) error
}

// Monitor aggregates health status from registered checks.
type Monitor struct {
	timeout time.Duration

	mu     sync.RWMutex
	checks []Check
}

// NewMonitor creates a monitor with a per-check timeout.
func NewMonitor(timeout time.Duration) *Monitor {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Monitor{timeout: timeout}
}

// Register adds a check.
func (m *Monitor) Register(c Check) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks = append(m.checks, c)
}

// CheckHealth runs every check concurrently. The worst status wins.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.RLock()
	checks := append([]Check(nil), m.checks...)
	m.mu.RUnlock()

	results := make([]ComponentHealth, len(checks))
	var wg sync.WaitGroup
	for i, c := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, m.timeout)
			defer cancel()

			res := ComponentHealth{Name: c.Name, Status: StatusHealthy}
			if err := c.Probe(cctx); err != nil {
				res.Error = err.Error()
				res.Status = StatusDegraded
				if c.Critical {
					res.Status = StatusCritical
				}
			}
			results[i] = res
		}()
	}
	wg.Wait()

	report := HealthReport{
		SystemStatus: StatusHealthy,
		Components:   make(map[string]ComponentHealth, len(results)),
	}
	for _, r := range results {
		report.Components[r.Name] = r
		switch {
		case r.Status == StatusCritical:
			report.SystemStatus = StatusCritical
		case r.Status == StatusDegraded && report.SystemStatus == StatusHealthy:
			report.SystemStatus = StatusDegraded
		}
	}
	return report
}
