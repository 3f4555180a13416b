package compute

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"c2d-service/internal/apperrors"
	"c2d-service/internal/config"
	"c2d-service/internal/notifier"
	"c2d-service/internal/observability"
	"c2d-service/pkg/cloudevent"
)

// timeoutMessage is the failure reason when the poll budget is exhausted.
// Distinct from transport failures so callers can tell "provider never
// finished" apart from "provider errored".
const timeoutMessage = "timeout: job did not complete within observation window"

// eventSource identifies this service in lifecycle CloudEvents.
const eventSource = "c2d-service/compute"

// maxResultBytes caps the one-shot result download.
const maxResultBytes = 16 << 20 // 16 MB

// AlreadyRunningError is returned by Start when a job is already being
// tracked. It carries the identifier of the existing job.
type AlreadyRunningError struct {
	JobID string
}

func (e *AlreadyRunningError) Error() string {
	return "job already running"
}

// Unwrap maps the error to the conflict class for HTTP status resolution.
func (e *AlreadyRunningError) Unwrap() error {
	return apperrors.ErrConflict
}

// Config holds configuration for the orchestrator.
type Config struct {
	// MaxPollAttempts bounds the status poll loop (default: 30). The
	// provider has no push notification, so polling is the only liveness
	// signal; an unbounded loop would leak a goroutine if the provider
	// wedges.
	MaxPollAttempts int

	// PollInterval is the delay between status polls (default: 10s).
	PollInterval time.Duration

	// TerminalStatus is the provider status code at or above which the
	// computation is considered finished (default: 70).
	TerminalStatus int

	// FetchTimeout bounds the one-shot result download (default: 30s).
	FetchTimeout time.Duration

	// Notifier receives job lifecycle events. Optional.
	Notifier notifier.Notifier

	// Metrics records job metrics. Optional.
	Metrics *observability.Metrics
}

func (c Config) withDefaults() Config {
	if c.MaxPollAttempts <= 0 {
		c.MaxPollAttempts = 30
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Second
	}
	if c.TerminalStatus <= 0 {
		c.TerminalStatus = 70
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 30 * time.Second
	}
	return c
}

// LoadConfigFromEnv loads orchestrator configuration from environment variables.
func LoadConfigFromEnv() Config {
	return Config{
		MaxPollAttempts: config.GetIntEnv("MAX_POLL_ATTEMPTS", 30),
		PollInterval:    config.GetDurationEnv("POLL_INTERVAL", 10*time.Second),
		TerminalStatus:  config.GetIntEnv("TERMINAL_STATUS", 70),
		FetchTimeout:    config.GetDurationEnv("RESULT_FETCH_TIMEOUT", 30*time.Second),
	}.withDefaults()
}

// jobState is the authoritative record of the tracked job.
type jobState struct {
	phase       Phase
	jobID       string
	agreementID string
	startedAt   time.Time
	completedAt time.Time
	result      *Result
	err         string
}

// Orchestrator drives one compute job from submission to terminal
// outcome, exactly once per activation.
//
// It tracks a single job: a start request while a job is running is
// rejected, never queued. The state record is owned by this instance and
// protected by a mutex, so multiple orchestrators can coexist in tests.
type Orchestrator struct {
	provider Provider
	fetcher  *http.Client
	cfg      Config
	logger   *slog.Logger

	mu         sync.Mutex
	state      jobState
	submitting bool

	shutdown  chan struct{}
	closeOnce sync.Once
	watchWg   sync.WaitGroup
}

// NewOrchestrator creates an orchestrator in the Idle phase.
func NewOrchestrator(provider Provider, cfg Config) *Orchestrator {
	cfg = cfg.withDefaults()
	return &Orchestrator{
		provider: provider,
		fetcher:  &http.Client{Timeout: cfg.FetchTimeout},
		cfg:      cfg,
		logger:   slog.With("component", "orchestrator"),
		state:    jobState{phase: PhaseIdle},
		shutdown: make(chan struct{}),
	}
}

// Start submits a new compute job and launches the background poll loop.
// Returns the provider-assigned job ID. Fails with *AlreadyRunningError
// if a job is already tracked; on submission failure the state stays
// Idle so an immediate retry is possible.
func (o *Orchestrator) Start(ctx context.Context) (string, error) {
	o.mu.Lock()
	if o.state.phase != PhaseIdle || o.submitting {
		err := &AlreadyRunningError{JobID: o.state.jobID}
		o.mu.Unlock()
		return "", err
	}
	o.submitting = true
	o.mu.Unlock()

	jobID, agreementID, err := o.provider.Submit(ctx)

	o.mu.Lock()
	o.submitting = false
	if err != nil {
		o.mu.Unlock()
		return "", apperrors.Internal("provider.submit", err)
	}
	o.state = jobState{
		phase:       PhaseRunning,
		jobID:       jobID,
		agreementID: agreementID,
		startedAt:   time.Now(),
	}
	o.mu.Unlock()

	o.logger.Info("Compute job submitted", "jobId", jobID, "agreementId", agreementID)
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.RecordJobStarted(ctx)
	}
	o.publish(notifier.EventJobStarted, jobID, map[string]any{"jobId": jobID})

	o.watchWg.Add(1)
	go func() {
		defer o.watchWg.Done()
		o.watch(jobID, agreementID)
	}()

	return jobID, nil
}

// Snapshot returns a consistent copy of the current job state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := Snapshot{
		Phase:       o.state.phase,
		JobID:       o.state.jobID,
		AgreementID: o.state.agreementID,
		StartedAt:   o.state.startedAt,
		CompletedAt: o.state.completedAt,
		Error:       o.state.err,
	}
	if o.state.result != nil {
		r := *o.state.result
		s.Result = &r
	}
	return s
}

// Reset unconditionally discards the current job record and returns to
// Idle. An in-flight poll loop notices the identity change on its next
// wakeup and exits without touching the new record.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	prev := o.state
	o.state = jobState{phase: PhaseIdle}
	o.mu.Unlock()

	if prev.jobID != "" {
		o.logger.Info("Job state reset", "jobId", prev.jobID, "phase", string(prev.phase))
		if prev.phase == PhaseRunning && o.cfg.Metrics != nil {
			// The poll loop will exit silently, so settle the gauge here.
			o.cfg.Metrics.RecordJobFinished(context.Background(), false, time.Since(prev.startedAt).Seconds())
		}
	}
}

// Close stops background polling. The job record is left as-is.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		close(o.shutdown)
	})
	o.watchWg.Wait()
}

// watch polls the provider until the job finishes, the attempt budget is
// exhausted, or the job it was launched for is no longer the tracked one.
// Runs detached from the Start caller.
func (o *Orchestrator) watch(jobID, agreementID string) {
	logger := o.logger.With("jobId", jobID)
	ctx := context.Background()

	for attempt := 1; attempt <= o.cfg.MaxPollAttempts; attempt++ {
		select {
		case <-o.shutdown:
			return
		case <-time.After(o.cfg.PollInterval):
		}

		if !o.watching(jobID) {
			logger.Debug("Job no longer tracked, poll loop exiting")
			return
		}

		code, err := o.provider.Status(ctx, jobID, agreementID)
		if o.cfg.Metrics != nil {
			o.cfg.Metrics.RecordPollAttempt(ctx)
		}
		if err != nil {
			o.fail(jobID, fmt.Sprintf("provider status check failed: %v", err))
			return
		}
		logger.Debug("Polled job status", "attempt", attempt, "status", code)

		if code >= o.cfg.TerminalStatus {
			o.complete(ctx, jobID, logger)
			return
		}
	}

	o.fail(jobID, timeoutMessage)
}

// watching reports whether jobID is still the tracked running job.
func (o *Orchestrator) watching(jobID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.phase == PhaseRunning && o.state.jobID == jobID
}

// complete materializes the result and transitions to Completed. The
// result URL may carry a single-use token, so the payload is fetched
// exactly once, immediately, and never retried; a failed fetch is
// recorded on the result but does not fail the job.
func (o *Orchestrator) complete(ctx context.Context, jobID string, logger *slog.Logger) {
	res := &Result{}
	url, err := o.provider.ResultLocator(ctx, jobID)
	if err != nil {
		res.FetchError = fmt.Sprintf("result locator failed: %v", err)
	} else {
		res.ResultURL = url
		content, err := o.fetchOnce(ctx, url)
		if err != nil {
			res.FetchError = err.Error()
		} else {
			res.Content = content
		}
	}

	o.mu.Lock()
	if o.state.phase != PhaseRunning || o.state.jobID != jobID {
		// A reset (or a new job) won the race, discard.
		o.mu.Unlock()
		return
	}
	o.state.phase = PhaseCompleted
	o.state.result = res
	o.state.completedAt = time.Now()
	started := o.state.startedAt
	o.mu.Unlock()

	logger.Info("Compute job completed", "resultUrl", res.ResultURL, "fetchError", res.FetchError)
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.RecordJobFinished(ctx, true, time.Since(started).Seconds())
	}
	o.publish(notifier.EventJobCompleted, jobID, map[string]any{
		"jobId":     jobID,
		"resultUrl": res.ResultURL,
	})
}

// fail transitions to Failed with the given reason, unless jobID has
// already been reset or replaced.
func (o *Orchestrator) fail(jobID, reason string) {
	o.mu.Lock()
	if o.state.phase != PhaseRunning || o.state.jobID != jobID {
		o.mu.Unlock()
		return
	}
	o.state.phase = PhaseFailed
	o.state.err = reason
	o.state.completedAt = time.Now()
	started := o.state.startedAt
	o.mu.Unlock()

	o.logger.Warn("Compute job failed", "jobId", jobID, "reason", reason)
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.RecordJobFinished(context.Background(), false, time.Since(started).Seconds())
	}
	o.publish(notifier.EventJobFailed, jobID, map[string]any{
		"jobId": jobID,
		"error": reason,
	})
}

// fetchOnce downloads the result payload. Called at most once per job.
func (o *Orchestrator) fetchOnce(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("result fetch failed: %v", err)
	}

	resp, err := o.fetcher.Do(req)
	if err != nil {
		return "", fmt.Errorf("result fetch failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("result fetch failed: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResultBytes))
	if err != nil {
		return "", fmt.Errorf("result fetch failed: %v", err)
	}
	return string(body), nil
}

// publish sends a lifecycle event if a notifier is configured.
func (o *Orchestrator) publish(eventType, jobID string, data map[string]any) {
	if o.cfg.Notifier == nil {
		return
	}
	event := cloudevent.New(eventType, eventSource, jobID, uuid.NewString(), data)
	if err := o.cfg.Notifier.Publish(event); err != nil {
		o.logger.Warn("Failed to publish lifecycle event", "type", eventType, "error", err)
	}
}
