package domain

import "time"

// JobKind identifies the background work a job carries.
type JobKind string

const (
	JobKindVerificationEmail JobKind = "verification_email"
	JobKindWalletProvision   JobKind = "wallet_provision"
)

// JobStatus tracks a job through its lifecycle.
type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusFailed  JobStatus = "failed"
)

// Job is a persisted unit of background work tied to a user. Failed attempts
// are retried with backoff until MaxAttempts is reached.
type Job struct {
	ID        string
	Kind      JobKind
	UserID    string
	Status    JobStatus
	Attempts  int
	LastError string
	NextRunAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}
