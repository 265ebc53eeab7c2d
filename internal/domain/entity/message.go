package entity

import "github.com/google/uuid"

// ExpansionRequestMessage is the inbound message from the frames.expansion queue.
type ExpansionRequestMessage struct {
	JobID         uuid.UUID `json:"job_id"`
	UserID        string    `json:"user_id"`
	SourcePrefix  string    `json:"source_prefix"`
	Durations     []float64 `json:"durations"`
	FPS           int       `json:"fps"`
	StrictPairing bool      `json:"strict_pairing,omitempty"`
	UserEmail     string    `json:"user_email"`
}

// ExpansionStatusMessage is the outbound message published to the frames.status queue.
type ExpansionStatusMessage struct {
	JobID         uuid.UUID `json:"job_id"`
	UserID        string    `json:"user_id"`
	Status        JobStatus `json:"status"`
	SourcePrefix  string    `json:"source_prefix"`
	ArchiveKey    string    `json:"archive_key,omitempty"`
	SourceCount   int       `json:"source_count,omitempty"`
	FrameCount    int       `json:"frame_count,omitempty"`
	AnimationSecs float64   `json:"animation_seconds,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	Attempt       int       `json:"attempt"`
	MaxAttempts   int       `json:"max_attempts"`
}
