package health

import (
	"context"
	"sync"
	"time"
)

// Component states.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusDisabled = "disabled"
)

const defaultCheckTimeout = 2 * time.Second

// CheckFunc checks one adapter. A nil CheckFunc reports the component as disabled.
type CheckFunc func(ctx context.Context) error

// ComponentStatus is one adapter's health.
type ComponentStatus struct {
	Status    string  `json:"status"`
	Error     string  `json:"error,omitempty"`
	LatencyMs float64 `json:"latencyMs,omitempty"`
}

// Report is the health payload.
type Report struct {
	OK         bool                       `json:"ok"`
	Components map[string]ComponentStatus `json:"components"`
}

// Service encapsulates health-related checks.
type Service struct {
	checks  map[string]CheckFunc
	timeout time.Duration
}

// NewService constructs a new health service.
func NewService(checks map[string]CheckFunc) *Service {
	return &Service{checks: checks, timeout: defaultCheckTimeout}
}

// Status runs every check concurrently with a per-check timeout.
// OK is false when any enabled component fails.
func (s *Service) Status(ctx context.Context) Report {
	report := Report{OK: true, Components: make(map[string]ComponentStatus, len(s.checks))}
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, check := range s.checks {
		if check == nil {
			report.Components[name] = ComponentStatus{Status: StatusDisabled}
			continue
		}
		wg.Add(1)
		go func(name string, check CheckFunc) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			start := time.Now()
			err := check(cctx)
			st := ComponentStatus{Status: StatusOK, LatencyMs: float64(time.Since(start).Microseconds()) / 1000.0}
			if err != nil {
				st.Status = StatusDegraded
				st.Error = err.Error()
			}
			mu.Lock()
			report.Components[name] = st
			if err != nil {
				report.OK = false
			}
			mu.Unlock()
		}(name, check)
	}
	wg.Wait()
	return report
}
