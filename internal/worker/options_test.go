package worker

import (
	"testing"
	"time"

	"github.com/ignite/shipment-analytics/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsFromConfig(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	opts := SchedulerOptionsFrom(cfg.Worker)
	opts.applyDefaults()
	assert.Equal(t, 3, opts.MaxAttempts)
	assert.Equal(t, 30*time.Second, opts.Grace)
	assert.Equal(t, 10*time.Minute, opts.JobTimeout)
	assert.Equal(t, DefaultJobTTL, opts.JobTTL)

	pc := PoolConfigFrom(cfg.Worker)
	assert.Equal(t, 2, pc.Workers)
	assert.Equal(t, 5.0, pc.Rate)
	assert.Zero(t, pc.PollTimeout)
}
