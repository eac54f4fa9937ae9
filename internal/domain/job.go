package domain

import (
	"encoding/json"
	"time"
)

type JobKind string

const (
	JobKindModeration JobKind = "moderation"
	JobKindSummary    JobKind = "summary"
	JobKindQuiz       JobKind = "quiz_generation"
	JobKindTags       JobKind = "tag_suggestion"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Job is the in-process async unit tracked by the task queue. Jobs are not
// persisted; a process restart loses all job state.
type Job struct {
	ID           string
	Kind         JobKind
	Status       JobStatus
	Result       json.RawMessage
	ErrorMessage string
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

func (j *Job) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
