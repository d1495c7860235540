package control

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/NekoSaan/h264Player/internal/logger"
)

// HealthStatus is the health of one component or of the whole process.
type HealthStatus string

const (
	StatusOK   HealthStatus = "ok"
	StatusDown HealthStatus = "down"
)

// Check is the result of one health check.
type Check struct {
	Name        string       `json:"name"`
	Status      HealthStatus `json:"status"`
	Message     string       `json:"message,omitempty"`
	LastChecked time.Time    `json:"last_checked"`
	DurationMS  float64      `json:"duration_ms"`
}

// Checker is a dependency that can be probed. The resume store is one.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckTimeout bounds a single check.
const CheckTimeout = 2 * time.Second

// HealthManager runs the registered checkers.
type HealthManager struct {
	mu       sync.RWMutex
	checkers []Checker
	logger   logger.Logger
}

func NewHealthManager(log logger.Logger) *HealthManager {
	return &HealthManager{logger: logger.OrNull(log)}
}

// Register adds a checker.
func (m *HealthManager) Register(c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, c)
	m.logger.WithField("checker", c.Name()).Debug("Registered health checker")
}

// RunChecks probes every checker concurrently.
func (m *HealthManager) RunChecks(ctx context.Context) map[string]*Check {
	m.mu.RLock()
	checkers := append([]Checker(nil), m.checkers...)
	m.mu.RUnlock()

	var wg sync.WaitGroup
	resultsCh := make(chan *Check, len(checkers))
	for _, c := range checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()

			checkCtx, cancel := context.WithTimeout(ctx, CheckTimeout)
			defer cancel()

			start := time.Now()
			err := c.Check(checkCtx)
			elapsed := time.Since(start)

			check := &Check{
				Name:        c.Name(),
				Status:      StatusOK,
				LastChecked: time.Now(),
				DurationMS:  float64(elapsed.Microseconds()) / 1000,
			}
			if err != nil {
				check.Status = StatusDown
				check.Message = err.Error()
				if errors.Is(err, context.DeadlineExceeded) {
					check.Message = "health check timed out"
				}
				m.logger.WithFields(logger.Fields{
					"checker":  c.Name(),
					"duration": elapsed,
				}).WithError(err).Warn("Health check failed")
			}
			resultsCh <- check
		}(c)
	}
	wg.Wait()
	close(resultsCh)

	results := make(map[string]*Check, len(checkers))
	for c := range resultsCh {
		results[c.Name] = c
	}
	return results
}

// Overall folds check results into one status. No checks is healthy.
func Overall(checks map[string]*Check) HealthStatus {
	for _, c := range checks {
		if c.Status == StatusDown {
			return StatusDown
		}
	}
	return StatusOK
}
