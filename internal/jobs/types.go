package jobs

import (
	"context"
	"errors"
	"time"
)

// JobType identifies what a job does.
type JobType string

const (
	// JobTypePushTransaction pushes one unsynced local record to the remote store.
	JobTypePushTransaction JobType = "push_transaction"
)

// JobStatus is the lifecycle position of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusRetrying  JobStatus = "retrying"
)

var (
	// ErrJobNotFound is returned by a JobStore for unknown ids.
	ErrJobNotFound = errors.New("job not found")
	// ErrQueueClosed is returned when publishing to or starting a stopped queue.
	ErrQueueClosed = errors.New("queue is closed")
)

// PushTransactionJob asks a worker to write a locally cached record to the
// remote store and swap the cached copy for the remote one.
type PushTransactionJob struct {
	JobID string `json:"job_id"`

	// UserID owns the record; it is also the local storage key.
	UserID string `json:"user_id"`

	// TransactionID is the local id of the record to push.
	TransactionID string `json:"transaction_id"`

	// RemoteID is set once the push succeeded.
	RemoteID string `json:"remote_id,omitempty"`

	Status      JobStatus  `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	RetryCount  int        `json:"retry_count"`
	MaxRetries  int        `json:"max_retries"`
}

// Job is the common view of every job type.
type Job interface {
	GetID() string
	GetType() JobType
	GetStatus() JobStatus
}

func (j *PushTransactionJob) GetID() string        { return j.JobID }
func (j *PushTransactionJob) GetType() JobType     { return JobTypePushTransaction }
func (j *PushTransactionJob) GetStatus() JobStatus { return j.Status }

// Done reports whether the job reached a terminal status.
func (j *PushTransactionJob) Done() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// Publisher enqueues jobs.
type Publisher interface {
	PublishPushTransaction(ctx context.Context, job *PushTransactionJob) error
	Close() error
}

// Consumer runs a handler for every published job.
type Consumer interface {
	// Start launches the workers and returns immediately.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops the workers and waits for in-flight jobs.
	Stop(ctx context.Context) error
}

// JobHandler processes one job. A returned error makes the job eligible for retry.
type JobHandler func(ctx context.Context, job Job) error

// JobStore tracks job state.
type JobStore interface {
	SaveJob(ctx context.Context, job *PushTransactionJob) error
	GetJob(ctx context.Context, jobID string) (*PushTransactionJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*PushTransactionJob, error)
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter narrows ListJobs. Zero fields match everything.
type JobFilter struct {
	UserID        string
	TransactionID string
	Status        JobStatus
	Limit         int
	Offset        int
}

// Match reports whether job passes the filter's field criteria.
func (f JobFilter) Match(job *PushTransactionJob) bool {
	if f.UserID != "" && job.UserID != f.UserID {
		return false
	}
	if f.TransactionID != "" && job.TransactionID != f.TransactionID {
		return false
	}
	if f.Status != "" && job.Status != f.Status {
		return false
	}
	return true
}
