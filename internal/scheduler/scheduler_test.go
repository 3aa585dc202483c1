package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsBadTimezone(t *testing.T) {
	_, err := New("Mars/Olympus_Mons")
	require.Error(t, err)

	s, err := New("")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, s.timezone)
}

func TestAddJobAndList(t *testing.T) {
	s, err := New("Asia/Dhaka")
	require.NoError(t, err)

	noop := func(context.Context) error { return nil }
	require.NoError(t, s.AddJob("spotlight", "0 18 * * *", noop))
	require.NoError(t, s.AddJob("bing", "0 9 * * *", noop))
	assert.Error(t, s.AddJob("bing", "0 10 * * *", noop))
	assert.Error(t, s.AddJob("calendar", "not a cron spec", noop))

	s.Start(context.Background())
	defer s.Stop()

	jobs := s.ListJobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "bing", jobs[0].Name)
	assert.Equal(t, "spotlight", jobs[1].Name)
	assert.False(t, jobs[0].NextRun.IsZero())

	s.RemoveJob("bing")
	assert.Len(t, s.ListJobs(), 1)
}

func TestRunNow(t *testing.T) {
	s, err := New("UTC")
	require.NoError(t, err)
	s.timeout = time.Second

	var deadline bool
	require.NoError(t, s.RunNow("calendar", func(ctx context.Context) error {
		_, deadline = ctx.Deadline()
		return nil
	}))
	assert.True(t, deadline)

	boom := errors.New("boom")
	assert.ErrorIs(t, s.RunNow("bing", func(context.Context) error { return boom }), boom)
}

func TestScheduledJobRuns(t *testing.T) {
	s, err := New("UTC")
	require.NoError(t, err)

	ran := make(chan struct{}, 1)
	require.NoError(t, s.AddJob("tick", "@every 1s", func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}))
	s.Start(context.Background())
	defer s.Stop()

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduled job did not run")
	}
}
