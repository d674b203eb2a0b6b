package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobRunStatus(t *testing.T) {
	t.Run("valid statuses", func(t *testing.T) {
		for _, s := range []JobRunStatus{
			JobRunStatusPending, JobRunStatusRunning, JobRunStatusSucceeded, JobRunStatusFailed,
		} {
			assert.True(t, s.Valid(), string(s))
		}
		assert.False(t, JobRunStatus("queued").Valid())
	})

	t.Run("terminal states", func(t *testing.T) {
		assert.False(t, JobRunStatusPending.Terminal())
		assert.False(t, JobRunStatusRunning.Terminal())
		assert.True(t, JobRunStatusSucceeded.Terminal())
		assert.True(t, JobRunStatusFailed.Terminal())
	})

	t.Run("unmarshal normalizes case", func(t *testing.T) {
		var s JobRunStatus
		require.NoError(t, s.UnmarshalText([]byte(" Running ")))
		assert.Equal(t, JobRunStatusRunning, s)
		assert.Error(t, s.UnmarshalText([]byte("bogus")))
	})
}

func TestCreateJobRunRequestValidate(t *testing.T) {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 7, 0, 0, 0, 0, time.UTC)

	assert.NoError(t, (&CreateJobRunRequest{DealerID: "00123", StartDate: start, EndDate: end}).Validate())
	assert.Error(t, (&CreateJobRunRequest{StartDate: start, EndDate: end}).Validate())
	assert.Error(t, (&CreateJobRunRequest{DealerID: "  ", StartDate: start, EndDate: end}).Validate())
	assert.Error(t, (&CreateJobRunRequest{DealerID: "00123", StartDate: end, EndDate: start}).Validate())
	assert.Error(t, (&CreateJobRunRequest{DealerID: "00123"}).Validate())
}

func TestJobRunRange(t *testing.T) {
	run := &JobRun{
		StartDate: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 8, 7, 0, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, 7, run.Range().Days())
}
