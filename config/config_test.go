package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadLeaseCoversJobDeadline(t *testing.T) {
	t.Setenv("AUTOMATION_JOB_TIMEOUT", "5m")
	t.Setenv("QUEUE_LEASE_TIMEOUT", "3m")

	cfg := Load()

	// A lease shorter than the job deadline would get healthy runs reaped
	// mid-flight; Load raises it to the deadline plus headroom.
	assert.Equal(t, 6*time.Minute, cfg.Queue.LeaseTimeout)
}

func TestLoadKeepsGenerousLease(t *testing.T) {
	t.Setenv("AUTOMATION_JOB_TIMEOUT", "2m")
	t.Setenv("QUEUE_LEASE_TIMEOUT", "10m")

	cfg := Load()
	assert.Equal(t, 10*time.Minute, cfg.Queue.LeaseTimeout)
}

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 5, cfg.Queue.MaxAttempts)
	assert.GreaterOrEqual(t, cfg.Queue.LeaseTimeout, cfg.Automation.JobTimeout+time.Minute)
	assert.Equal(t, 3, cfg.Automation.MaxResumptions)
	assert.Equal(t, 10*time.Minute, cfg.Automation.CaptchaTTL)
}
