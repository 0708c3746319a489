package worker

import "github.com/ignite/shipment-analytics/internal/config"

// SchedulerOptionsFrom maps the worker section of the config file.
func SchedulerOptionsFrom(c config.WorkerConfig) SchedulerOptions {
	return SchedulerOptions{
		MaxAttempts: c.MaxAttempts,
		Grace:       c.Grace(),
		ResultTTL:   c.ResultTTL(),
		FailureTTL:  c.FailureTTL(),
		BackoffBase: c.BackoffBase(),
		BackoffMax:  c.BackoffMax(),
		JobTimeout:  c.JobTimeout(),
	}
}

// PoolConfigFrom maps the worker section of the config file.
func PoolConfigFrom(c config.WorkerConfig) PoolConfig {
	return PoolConfig{
		Workers: c.Count,
		Rate:    c.RatePerSecond,
		Burst:   c.Burst,
	}
}
