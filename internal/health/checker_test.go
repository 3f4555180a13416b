package health

import (
	"context"
	"errors"
	"testing"
)

// fakeReadiness scripts the Ready result and counts invocations.
type fakeReadiness struct {
	err   error
	calls int
}

func (f *fakeReadiness) Ready(ctx context.Context) error {
	f.calls++
	return f.err
}

func TestChecker_Liveness(t *testing.T) {
	t.Parallel()
	checker := NewChecker(nil)

	response := checker.Liveness(context.Background())

	if response.Status != StatusHealthy {
		t.Errorf("Expected healthy status, got %s", response.Status)
	}
}

func TestChecker_Readiness_NoProvider(t *testing.T) {
	t.Parallel()
	checker := NewChecker(nil)

	response := checker.Readiness(context.Background())

	if response.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy status, got %s", response.Status)
	}

	if response.Checks == nil {
		t.Fatal("Expected checks to be present")
	}

	providerCheck, ok := response.Checks["provider"]
	if !ok {
		t.Fatal("Expected provider check to be present")
	}

	if providerCheck.Status != StatusUnhealthy {
		t.Errorf("Expected provider check to be unhealthy, got %s", providerCheck.Status)
	}
}

func TestChecker_Readiness_ProviderHealthy(t *testing.T) {
	t.Parallel()
	checker := NewChecker(&fakeReadiness{})

	response := checker.Readiness(context.Background())

	if response.Status != StatusHealthy {
		t.Errorf("Expected healthy status, got %s", response.Status)
	}
}

func TestChecker_Readiness_ProviderUnreachable(t *testing.T) {
	t.Parallel()
	checker := NewChecker(&fakeReadiness{err: errors.New("connection refused")})

	response := checker.Readiness(context.Background())

	if response.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy status, got %s", response.Status)
	}
	if msg := response.Checks["provider"].Message; msg != "connection refused" {
		t.Errorf("Expected provider error message, got %q", msg)
	}
}

func TestChecker_Readiness_CachesResult(t *testing.T) {
	t.Parallel()
	provider := &fakeReadiness{}
	checker := NewChecker(provider)

	checker.Readiness(context.Background())
	checker.Readiness(context.Background())
	checker.Readiness(context.Background())

	if provider.calls != 1 {
		t.Errorf("Expected 1 provider check (cached afterwards), got %d", provider.calls)
	}
}

func TestChecker_Readiness_ShuttingDown(t *testing.T) {
	t.Parallel()
	checker := NewChecker(&fakeReadiness{})

	checker.SetShuttingDown()
	response := checker.Readiness(context.Background())

	if response.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy status while shutting down, got %s", response.Status)
	}
	if _, ok := response.Checks["shutdown"]; !ok {
		t.Error("Expected shutdown check to be present")
	}
}

func TestResponse_IsHealthy(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		status   Status
		expected bool
	}{
		{"healthy", StatusHealthy, true},
		{"unhealthy", StatusUnhealthy, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			response := &Response{Status: tt.status}
			if response.IsHealthy() != tt.expected {
				t.Errorf("IsHealthy() = %v, want %v", response.IsHealthy(), tt.expected)
			}
		})
	}
}
