package compute

import "time"

// Phase is the lifecycle state of the tracked compute job.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseRunning   Phase = "running"
	PhaseCompleted Phase = "completed"
	PhaseFailed    Phase = "failed"
)

// Result holds the outcome of a completed job.
//
// A populated FetchError with empty Content means the provider-side
// computation succeeded but the one-shot payload download did not.
// That is still a completed job, not a failed one.
type Result struct {
	ResultURL  string
	Content    string
	FetchError string
}

// Snapshot is a consistent point-in-time read of the job state.
// Result is set only when Phase is PhaseCompleted; Error only when
// Phase is PhaseFailed.
type Snapshot struct {
	Phase       Phase
	JobID       string
	AgreementID string
	StartedAt   time.Time
	CompletedAt time.Time
	Result      *Result
	Error       string
}

// StartResponse is returned when a job is accepted.
type StartResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"` // "running"
}

// ResultPayload is the wire shape of a job result.
type ResultPayload struct {
	ResultURL     string `json:"resultUrl"`
	ResultContent string `json:"resultContent,omitempty"`
	FetchError    string `json:"fetchError,omitempty"`
}

// StatusResponse is a snapshot of the current job state.
type StatusResponse struct {
	Status string         `json:"status"` // idle | running | completed | error
	JobID  string         `json:"jobId,omitempty"`
	Error  string         `json:"error,omitempty"`
	Result *ResultPayload `json:"result,omitempty"`
}

// ResultResponse carries a completed job's result.
type ResultResponse struct {
	JobID  string         `json:"jobId"`
	Result *ResultPayload `json:"result"`
}

// ResetResponse acknowledges a reset.
type ResetResponse struct {
	Message string `json:"message"` // "reset"
}
