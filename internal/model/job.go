package model

import (
	"time"
)

type Job struct {
	ID            int64          `json:"jobId"`
	Type          JobType        `json:"type"`
	OwnerID       int64          `json:"ownerId"`
	Payload       map[string]any `json:"payload,omitempty"`
	Status        JobStatus      `json:"status"`
	FailureReason string         `json:"failureReason,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	StartedAt     *time.Time     `json:"startedAt,omitempty"`
	FinishedAt    *time.Time     `json:"finishedAt,omitempty"`
}

// JobEvent is published on every job status change.
type JobEvent struct {
	JobID   int64     `json:"jobId"`
	Type    JobType   `json:"type"`
	OwnerID int64     `json:"ownerId"`
	Status  JobStatus `json:"status"`
	Reason  string    `json:"reason,omitempty"`
	At      time.Time `json:"at"`
}
