package service_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/marketing-dashboard/internal/service"
)

type countingStarter struct{ calls atomic.Int32 }

func (c *countingStarter) StartDueScheduled(context.Context) (int, error) {
	c.calls.Add(1)
	return 0, nil
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := service.NewScheduler(&countingStarter{}, "every now and then", nil)
	assert.Error(t, s.Start())
}

func TestSchedulerSweeps(t *testing.T) {
	starter := &countingStarter{}
	s := service.NewScheduler(starter, "@every 1s", nil)
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool { return starter.calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
}
