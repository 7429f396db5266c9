package health

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Status represents the health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check represents a health check result
type Check struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
}

// Datasource is the probe surface the backend clients expose.
type Datasource interface {
	Health(ctx context.Context) bool
}

// Checker probes the enabled datasources
type Checker struct {
	datasources map[string]Datasource
	logger      *zap.Logger
}

// New creates a new health checker
func New(logger *zap.Logger) *Checker {
	return &Checker{
		datasources: make(map[string]Datasource),
		logger:      logger,
	}
}

// Register adds a datasource probe under the given name.
func (c *Checker) Register(name string, ds Datasource) {
	c.datasources[name] = ds
}

// CheckAll probes every registered datasource. The server stays degraded
// rather than unhealthy as long as at least one datasource answers.
func (c *Checker) CheckAll(ctx context.Context) (Status, []Check) {
	names := make([]string, 0, len(c.datasources))
	for name := range c.datasources {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make([]Check, 0, len(names))
	healthy := 0
	for _, name := range names {
		check := c.checkDatasource(ctx, name, c.datasources[name])
		if check.Status == StatusHealthy {
			healthy++
		}
		checks = append(checks, check)
	}

	switch {
	case len(checks) == 0 || healthy == 0:
		return StatusUnhealthy, checks
	case healthy < len(checks):
		return StatusDegraded, checks
	default:
		return StatusHealthy, checks
	}
}

func (c *Checker) checkDatasource(ctx context.Context, name string, ds Datasource) Check {
	start := time.Now()
	check := Check{
		Name:      name,
		Timestamp: start,
	}

	// Health checks get a short timeout independent of the client's own.
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ok := ds.Health(checkCtx)
	check.Duration = time.Since(start)

	if !ok {
		check.Status = StatusUnhealthy
		check.Message = "Datasource unreachable"
		c.logger.Warn("Health check failed",
			zap.String("datasource", name),
			zap.Duration("duration", check.Duration),
		)
	} else {
		check.Status = StatusHealthy
		check.Message = "Datasource reachable"
		c.logger.Debug("Health check passed",
			zap.String("datasource", name),
			zap.Duration("duration", check.Duration),
		)
	}

	return check
}
