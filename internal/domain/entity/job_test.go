package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobLifecycle(t *testing.T) {
	job := NewJob("u1", "u1/set/", 24, 2)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.True(t, job.CanRetry())

	job.MarkProcessing()
	assert.Equal(t, JobStatusProcessing, job.Status)
	assert.Equal(t, 1, job.Attempt)

	job.MarkFailed("boom")
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "boom", job.ErrorMessage)
	assert.True(t, job.CanRetry())

	job.MarkProcessing()
	assert.False(t, job.CanRetry())

	job.MarkCompleted("u1/frames.zip", 4, 46)
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.Empty(t, job.ErrorMessage)
	assert.Equal(t, 46, job.FrameCount)
	assert.InDelta(t, 46.0/24.0, job.AnimationSecs, 1e-9)
	require.NotNil(t, job.CompletedAt)
}

func TestMarkCompletedWithoutFPS(t *testing.T) {
	job := NewJob("u1", "p/", 0, 1)
	job.MarkCompleted("k", 1, 0)
	assert.Zero(t, job.AnimationSecs)
}
