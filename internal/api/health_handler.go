package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/ignite/shipment-analytics/internal/pkg/httputil"
	"github.com/ignite/shipment-analytics/internal/worker"
	"github.com/redis/go-redis/v9"
)

// HealthStatus represents the overall health of the system.
type HealthStatus struct {
	Status  string                    `json:"status"` // "healthy", "degraded", "unhealthy"
	Version string                    `json:"version"`
	Uptime  string                    `json:"uptime"`
	Checks  map[string]ComponentCheck `json:"checks"`
}

// ComponentCheck represents the health of a single component.
type ComponentCheck struct {
	Status  string `json:"status"` // "up", "down", "degraded"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthChecker reports on Redis, the optional audit database and the
// analytics queue. Any dependency can be nil.
type HealthChecker struct {
	db          *sql.DB
	redisClient *redis.Client
	sched       *worker.Scheduler
	startTime   time.Time
}

// NewHealthChecker creates a new HealthChecker.
func NewHealthChecker(db *sql.DB, redisClient *redis.Client, sched *worker.Scheduler) *HealthChecker {
	return &HealthChecker{
		db:          db,
		redisClient: redisClient,
		sched:       sched,
		startTime:   time.Now(),
	}
}

const healthVersion = "1.0.0"

// queueDegradedDepth is the backlog above which the queue reports degraded.
const queueDegradedDepth = 100

// HandleHealth returns the status of all components. The HTTP status is
// always 200; the body carries the verdict.
//
//	GET /health
func (hc *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())

	httputil.OK(w, HealthStatus{
		Status:  determineOverallStatus(checks),
		Version: healthVersion,
		Uptime:  formatUptime(time.Since(hc.startTime)),
		Checks:  checks,
	})
}

// HandleLiveness always returns 200 while the process is running.
//
//	GET /health/live
func (hc *HealthChecker) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]interface{}{
		"status": "alive",
		"uptime": formatUptime(time.Since(hc.startTime)),
	})
}

// HandleReadiness returns 503 while Redis is unreachable.
//
//	GET /health/ready
func (hc *HealthChecker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())
	overall := determineOverallStatus(checks)

	ready := overall != "unhealthy"
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	httputil.JSON(w, status, map[string]interface{}{
		"ready":  ready,
		"status": overall,
		"checks": checks,
	})
}

func (hc *HealthChecker) runAllChecks(ctx context.Context) map[string]ComponentCheck {
	type result struct {
		name  string
		check ComponentCheck
	}
	ch := make(chan result, 3)

	go func() { ch <- result{"database", hc.checkDatabase(ctx)} }()
	go func() { ch <- result{"redis", hc.checkRedis(ctx)} }()
	go func() { ch <- result{"queue", hc.checkQueue(ctx)} }()

	checks := make(map[string]ComponentCheck, 3)
	for i := 0; i < 3; i++ {
		r := <-ch
		checks[r.name] = r.check
	}
	return checks
}

// checkDatabase pings the audit database with a 3-second timeout.
func (hc *HealthChecker) checkDatabase(ctx context.Context) ComponentCheck {
	if hc.db == nil {
		return ComponentCheck{Status: "down", Message: "not configured"}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	start := time.Now()
	err := hc.db.PingContext(pingCtx)
	latency := time.Since(start)
	if err != nil {
		return ComponentCheck{
			Status:  "down",
			Latency: latency.String(),
			Message: fmt.Sprintf("ping failed: %v", err),
		}
	}
	return latencyCheck(latency, time.Second)
}

func (hc *HealthChecker) checkRedis(ctx context.Context) ComponentCheck {
	if hc.redisClient == nil {
		return ComponentCheck{Status: "down", Message: "not configured"}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	start := time.Now()
	err := hc.redisClient.Ping(pingCtx).Err()
	latency := time.Since(start)
	if err != nil {
		return ComponentCheck{
			Status:  "down",
			Latency: latency.String(),
			Message: fmt.Sprintf("ping failed: %v", err),
		}
	}
	return latencyCheck(latency, 500*time.Millisecond)
}

// checkQueue uses the analytics backlog as a proxy for worker health.
func (hc *HealthChecker) checkQueue(ctx context.Context) ComponentCheck {
	if hc.sched == nil {
		return ComponentCheck{Status: "down", Message: "not configured"}
	}

	statsCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	start := time.Now()
	stats, err := hc.sched.Stats(statsCtx)
	latency := time.Since(start)
	if err != nil {
		return ComponentCheck{
			Status:  "degraded",
			Latency: latency.String(),
			Message: fmt.Sprintf("queue check failed: %v", err),
		}
	}

	backlog := stats.Queued + stats.Delayed
	check := ComponentCheck{
		Status:  "up",
		Latency: latency.String(),
		Message: fmt.Sprintf("%d queued, %d running, %d failed", backlog, stats.Started, stats.Failed),
	}
	if backlog > queueDegradedDepth {
		check.Status = "degraded"
		check.Message = fmt.Sprintf("high queue depth: %d jobs waiting", backlog)
	}
	return check
}

func latencyCheck(latency, slow time.Duration) ComponentCheck {
	if latency > slow {
		return ComponentCheck{
			Status:  "degraded",
			Latency: latency.String(),
			Message: fmt.Sprintf("slow response (%s)", latency),
		}
	}
	return ComponentCheck{Status: "up", Latency: latency.String(), Message: "connected"}
}

// determineOverallStatus derives the aggregate status from individual checks.
//
// Rules:
//   - "unhealthy" if Redis is down (sessions and jobs live there)
//   - "degraded"  if any check is degraded or a configured check is down
//   - "healthy"   otherwise
func determineOverallStatus(checks map[string]ComponentCheck) string {
	if rc, ok := checks["redis"]; ok && rc.Status == "down" {
		return "unhealthy"
	}

	for _, c := range checks {
		if c.Status == "degraded" {
			return "degraded"
		}
		if c.Status == "down" && c.Message != "not configured" {
			return "degraded"
		}
	}
	return "healthy"
}

// formatUptime produces a human-readable uptime string like "3d 4h 12m 5s".
func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
