package entity

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

type Job struct {
	ID            uuid.UUID
	UserID        string
	SourcePrefix  string
	ArchiveKey    string
	Status        JobStatus
	FPS           int
	SourceCount   int
	FrameCount    int
	AnimationSecs float64
	Attempt       int
	MaxAttempts   int
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}

func NewJob(userID, sourcePrefix string, fps int, maxAttempts int) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:           uuid.New(),
		UserID:       userID,
		SourcePrefix: sourcePrefix,
		FPS:          fps,
		Status:       JobStatusPending,
		Attempt:      0,
		MaxAttempts:  maxAttempts,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (j *Job) MarkProcessing() {
	j.Status = JobStatusProcessing
	j.Attempt++
	j.UpdatedAt = time.Now().UTC()
}

// MarkCompleted records the archive and frame totals. The animation length is
// derived from the frame count so it reflects truncation, not the raw durations.
func (j *Job) MarkCompleted(archiveKey string, sourceCount, frameCount int) {
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.ArchiveKey = archiveKey
	j.SourceCount = sourceCount
	j.FrameCount = frameCount
	if j.FPS > 0 {
		j.AnimationSecs = float64(frameCount) / float64(j.FPS)
	}
	j.ErrorMessage = ""
	j.UpdatedAt = now
	j.CompletedAt = &now
}

func (j *Job) MarkFailed(errMsg string) {
	j.Status = JobStatusFailed
	j.ErrorMessage = errMsg
	j.UpdatedAt = time.Now().UTC()
}

func (j *Job) CanRetry() bool {
	return j.Attempt < j.MaxAttempts
}
