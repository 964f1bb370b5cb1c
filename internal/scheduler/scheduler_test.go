package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	s, err := New("UTC", time.Second, logger)
	require.NoError(t, err)
	return s
}

func TestNewRejectsUnknownTimezone(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	_, err := New("Mars/Olympus_Mons", time.Second, logger)
	assert.Error(t, err)
}

func TestAddJobRejectsBadSchedule(t *testing.T) {
	s := newTestScheduler(t)
	err := s.AddJob("probe", "every now and then", func(context.Context) error { return nil })
	assert.Error(t, err)
	assert.Empty(t, s.ListJobs())
}

func TestAddJobRunsOnSchedule(t *testing.T) {
	s := newTestScheduler(t)

	var runs atomic.Int32
	require.NoError(t, s.AddJob("probe", "@every 1s", func(ctx context.Context) error {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		runs.Add(1)
		return errors.New("checks failed")
	}))

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "probe", jobs[0].Name)

	s.Start()
	assert.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	<-s.Stop().Done()
}

func TestAddJobReplacesSameName(t *testing.T) {
	s := newTestScheduler(t)
	noop := func(context.Context) error { return nil }

	require.NoError(t, s.AddJob("probe", "@every 1m", noop))
	require.NoError(t, s.AddJob("probe", "@every 2m", noop))
	assert.Len(t, s.ListJobs(), 1)
	assert.Len(t, s.cron.Entries(), 1)

	s.RemoveJob("probe")
	assert.Empty(t, s.ListJobs())
}

func TestRunNowAppliesTimeout(t *testing.T) {
	s := newTestScheduler(t)
	s.jobTimeout = 10 * time.Millisecond

	err := s.RunNow(context.Background(), "probe", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunsNeverOverlap(t *testing.T) {
	s := newTestScheduler(t)
	s.jobTimeout = 5 * time.Second

	var active, maxActive, runs atomic.Int32
	job := func(context.Context) error {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		runs.Add(1)
		time.Sleep(2500 * time.Millisecond)
		return nil
	}

	require.NoError(t, s.AddJob("check", "@every 1s", job))
	s.Start()

	errc := make(chan error, 1)
	go func() { errc <- s.RunNow(context.Background(), "check", job) }()

	// ticks at 1s and 2s land while the first run is still sleeping
	time.Sleep(3 * time.Second)
	<-s.Stop().Done()

	select {
	case err := <-errc:
		if err != nil {
			assert.ErrorIs(t, err, ErrJobRunning)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("RunNow did not return")
	}
	assert.Equal(t, int32(1), maxActive.Load())
	assert.GreaterOrEqual(t, runs.Load(), int32(1))
}

func TestRunNowRejectsWhileRunning(t *testing.T) {
	s := newTestScheduler(t)

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = s.RunNow(context.Background(), "check", func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	called := false
	err := s.RunNow(context.Background(), "check", func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrJobRunning)
	assert.False(t, called)

	// other jobs are independent
	assert.NoError(t, s.RunNow(context.Background(), "other", func(context.Context) error { return nil }))

	close(release)
	assert.Eventually(t, func() bool {
		return s.RunNow(context.Background(), "check", func(context.Context) error { return nil }) == nil
	}, time.Second, 10*time.Millisecond)
}
