package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubJob counts runs and fails on demand.
type stubJob struct {
	name string
	runs int
	err  error
}

func (j *stubJob) Name() string        { return j.name }
func (j *stubJob) Description() string { return "test job" }

func (j *stubJob) Run(_ context.Context) error {
	j.runs++
	return j.err
}

func TestScheduler_Register(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())

	job := &stubJob{name: "sweep"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Minute)))

	assert.ErrorIs(t, s.Register(job, NewIntervalSchedule(time.Minute)), ErrJobAlreadyExists)
	assert.ErrorIs(t, s.Register(nil, NewIntervalSchedule(time.Minute)), ErrNilJob)
	assert.ErrorIs(t, s.Register(&stubJob{name: "other"}, nil), ErrNilSchedule)
}

func TestScheduler_RunNow(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())

	job := &stubJob{name: "sweep"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	// Manual runs do not require a started scheduler.
	result, err := s.RunNow(context.Background(), "sweep")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.Success)
	assert.Equal(t, 1, job.runs)
	assert.Equal(t, true, result.Metadata["manual"])

	_, err = s.RunNow(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestScheduler_RunNowFailureRecorded(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())

	jobErr := errors.New("db unavailable")
	job := &stubJob{name: "sweep", err: jobErr}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	result, err := s.RunNow(context.Background(), "sweep")
	assert.ErrorIs(t, err, jobErr)
	require.NotNil(t, result)
	assert.False(t, result.Success)

	history := s.GetHistory(10)
	require.Len(t, history, 1)
	assert.False(t, history[0].Success)

	snapshot := s.GetMetrics().Snapshot()
	assert.Equal(t, int64(1), snapshot.TotalExecutions)
	assert.Equal(t, int64(1), snapshot.TotalFailures)
}

func TestScheduler_ListJobsAndToggle(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())

	require.NoError(t, s.Register(&stubJob{name: "sweep"}, NewIntervalSchedule(5*time.Minute)))
	require.NoError(t, s.Register(&stubJob{name: "link"}, NewIntervalSchedule(time.Minute)))

	jobs := s.ListJobs()
	require.Len(t, jobs, 2)

	info, err := s.GetJobInfo("sweep")
	require.NoError(t, err)
	assert.True(t, info.Enabled)
	assert.Equal(t, "@every 5m0s", info.Schedule)

	require.NoError(t, s.DisableJob("sweep"))
	info, err = s.GetJobInfo("sweep")
	require.NoError(t, err)
	assert.False(t, info.Enabled)

	require.NoError(t, s.EnableJob("sweep"))
	assert.ErrorIs(t, s.DisableJob("unknown"), ErrJobNotFound)

	require.NoError(t, s.Unregister("link"))
	assert.Len(t, s.ListJobs(), 1)
}

func TestScheduler_StartStop(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())
	require.NoError(t, s.Register(&stubJob{name: "sweep"}, NewIntervalSchedule(time.Hour)))

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
}
