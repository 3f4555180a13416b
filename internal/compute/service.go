package compute

import (
	"context"
	"log/slog"

	"c2d-service/internal/apperrors"
)

// Service is the boundary layer translating external start/status/result/
// reset requests into orchestrator calls. It holds no state of its own.
type Service struct {
	orchestrator *Orchestrator
}

// NewService creates a new compute service.
func NewService(orchestrator *Orchestrator) *Service {
	return &Service{orchestrator: orchestrator}
}

// Start submits a new compute job.
// Returns *AlreadyRunningError (conflict) when a job is already tracked.
func (s *Service) Start(ctx context.Context) (*StartResponse, error) {
	jobID, err := s.orchestrator.Start(ctx)
	if err != nil {
		return nil, err
	}

	slog.Info("Compute job accepted", "jobId", jobID)
	return &StartResponse{
		JobID:  jobID,
		Status: string(PhaseRunning),
	}, nil
}

// Status returns a snapshot of the current job state.
func (s *Service) Status(ctx context.Context) *StatusResponse {
	snap := s.orchestrator.Snapshot()

	resp := &StatusResponse{
		Status: phaseLabel(snap.Phase),
		JobID:  snap.JobID,
	}
	switch snap.Phase {
	case PhaseCompleted:
		resp.Result = resultPayload(snap.Result)
	case PhaseFailed:
		resp.Error = snap.Error
	}
	return resp
}

// Result returns the stored result of a completed job.
// Signals not-found while the job is in any other phase.
func (s *Service) Result(ctx context.Context) (*ResultResponse, error) {
	snap := s.orchestrator.Snapshot()

	if snap.Phase != PhaseCompleted {
		return nil, apperrors.NotFound("result", "no result available")
	}
	return &ResultResponse{
		JobID:  snap.JobID,
		Result: resultPayload(snap.Result),
	}, nil
}

// Reset discards the current job record, from any phase.
func (s *Service) Reset(ctx context.Context) *ResetResponse {
	s.orchestrator.Reset()
	return &ResetResponse{Message: "reset"}
}

// phaseLabel maps a phase to its externally reported status string.
// Failed is reported as "error" to match the consumer contract.
func phaseLabel(p Phase) string {
	if p == PhaseFailed {
		return "error"
	}
	return string(p)
}

func resultPayload(r *Result) *ResultPayload {
	if r == nil {
		return nil
	}
	return &ResultPayload{
		ResultURL:     r.ResultURL,
		ResultContent: r.Content,
		FetchError:    r.FetchError,
	}
}
