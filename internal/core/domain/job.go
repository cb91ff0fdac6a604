package domain

import (
	"sync"
	"time"
)

// Priority is a job's scheduling class. The worker drains HIGH before NORMAL
// before LOW; within a class, FIFO order is preserved.
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityNormal
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "HIGH"
	case PriorityLow:
		return "LOW"
	default:
		return "NORMAL"
	}
}

// JobState is a job's lifecycle state. Once terminal (Succeeded, Failed,
// Cancelled, Expired) a job never transitions again.
type JobState string

const (
	JobPending   JobState = "PENDING"
	JobRunning   JobState = "RUNNING"
	JobSucceeded JobState = "SUCCEEDED"
	JobFailed    JobState = "FAILED"
	JobCancelled JobState = "CANCELLED"
	JobExpired   JobState = "EXPIRED"
)

func (s JobState) IsTerminal() bool {
	switch s {
	case JobSucceeded, JobFailed, JobCancelled, JobExpired:
		return true
	default:
		return false
	}
}

// Job is mutated by two goroutines over its lifetime: the worker goroutine
// that dispatches it, and the sweeper that may force a stale RUNNING job to
// FAILED concurrently with that same dispatch returning. mu guards every
// field below so Snapshot and the Mark* transitions never race or observe a
// torn state.
type Job struct {
	mu sync.Mutex

	SubmittedAt time.Time
	StartedAt   *time.Time
	FinishedAt  *time.Time
	Result      *InferenceResponse
	Error       error
	Request     InferenceRequest
	JobID       string
	FailReason  string
	State       JobState
	Priority    Priority

	cancelCh   chan struct{}
	cancelOnce sync.Once
}

// NewJob constructs a job in the PENDING state.
func NewJob(jobID string, req InferenceRequest, priority Priority) *Job {
	return &Job{
		JobID:       jobID,
		Request:     req,
		Priority:    priority,
		State:       JobPending,
		SubmittedAt: time.Now(),
		cancelCh:    make(chan struct{}),
	}
}

// Cancel requests cancellation. It is safe to call from any goroutine and
// idempotent. Done reports the signal to whichever goroutine is currently
// dispatching the job, aborting its in-flight engine call.
func (j *Job) Cancel() {
	j.cancelOnce.Do(func() { close(j.cancelCh) })
}

// Done is closed the moment Cancel is first called.
func (j *Job) Done() <-chan struct{} { return j.cancelCh }

// CancelRequested reports whether Cancel has been called.
func (j *Job) CancelRequested() bool {
	select {
	case <-j.cancelCh:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the job has reached a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.State.IsTerminal()
}

// MarkRunning transitions PENDING to RUNNING and records the start time.
func (j *Job) MarkRunning() {
	j.mu.Lock()
	defer j.mu.Unlock()
	started := time.Now()
	j.StartedAt = &started
	j.State = JobRunning
}

// MarkSucceeded transitions to SUCCEEDED with the given result, unless the
// job already reached a terminal state (a losing race against a stale
// sweep).
func (j *Job) MarkSucceeded(resp *InferenceResponse) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.State.IsTerminal() {
		return false
	}
	finished := time.Now()
	j.FinishedAt = &finished
	j.Result = resp
	j.State = JobSucceeded
	return true
}

// MarkFailed transitions to FAILED with err as the reason, unless the job
// already reached a terminal state.
func (j *Job) MarkFailed(err error) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.State.IsTerminal() {
		return false
	}
	finished := time.Now()
	j.FinishedAt = &finished
	j.Error = err
	j.FailReason = err.Error()
	j.State = JobFailed
	return true
}

// MarkCancelled transitions to CANCELLED, unless the job already reached a
// terminal state.
func (j *Job) MarkCancelled() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.State.IsTerminal() {
		return false
	}
	finished := time.Now()
	j.FinishedAt = &finished
	j.State = JobCancelled
	return true
}

// MarkExpired transitions a job that aged out of its queue before dispatch
// to EXPIRED, unless it already reached a terminal state.
func (j *Job) MarkExpired(reason string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.State.IsTerminal() {
		return false
	}
	finished := time.Now()
	j.FinishedAt = &finished
	j.FailReason = reason
	j.State = JobExpired
	return true
}

// MarkStale forces a RUNNING job whose dispatch has exceeded the staleness
// threshold to FAILED. It reports false if the job has since reached a
// terminal state on its own, so the sweeper never overwrites a result that
// landed first.
func (j *Job) MarkStale(reason string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.State != JobRunning {
		return false
	}
	finished := time.Now()
	j.FinishedAt = &finished
	j.FailReason = reason
	j.State = JobFailed
	return true
}

// RunningSince returns the job's StartedAt if it is currently RUNNING.
func (j *Job) RunningSince() (time.Time, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.State != JobRunning || j.StartedAt == nil {
		return time.Time{}, false
	}
	return *j.StartedAt, true
}

// FinishedSince returns the job's FinishedAt if it has reached a terminal
// state.
func (j *Job) FinishedSince() (time.Time, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.State.IsTerminal() || j.FinishedAt == nil {
		return time.Time{}, false
	}
	return *j.FinishedAt, true
}

// Snapshot is the read-only view returned by status/list/cancel. It copies
// out of the live Job so callers never observe a torn read.
type Snapshot struct {
	SubmittedAt     time.Time          `json:"submitted_at"`
	StartedAt       *time.Time         `json:"started_at,omitempty"`
	FinishedAt      *time.Time         `json:"finished_at,omitempty"`
	Result          *InferenceResponse `json:"result,omitempty"`
	Error           string             `json:"error,omitempty"`
	JobID           string             `json:"job_id"`
	ModelID         string             `json:"model_id"`
	FailReason      string             `json:"fail_reason,omitempty"`
	State           JobState           `json:"state"`
	Priority        Priority           `json:"priority"`
	ProcessEpoch    string             `json:"process_epoch"`
	CancelRequested bool               `json:"cancel_requested"`
}

// Snapshot copies the job's current state out for a caller to observe.
func (j *Job) Snapshot(epoch string) Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Snapshot{
		JobID:           j.JobID,
		ModelID:         j.Request.ModelID,
		State:           j.State,
		Priority:        j.Priority,
		SubmittedAt:     j.SubmittedAt,
		StartedAt:       j.StartedAt,
		FinishedAt:      j.FinishedAt,
		Result:          j.Result,
		FailReason:      j.FailReason,
		CancelRequested: j.CancelRequested(),
		ProcessEpoch:    epoch,
		Error:           errString(j.Error),
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// JobFilter narrows a list_jobs call; zero-value fields are unfiltered.
type JobFilter struct {
	SubmittedAfter *time.Time
	State          *JobState
	Priority       *Priority
	Offset         int
	Limit          int
}
