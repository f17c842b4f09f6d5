package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates total failure.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	index  IndexPinger
	tokens TokenStorePinger
}

// New creates a Service. tokens can be nil when auth tokens are static.
func New(index IndexPinger, tokens TokenStorePinger) *Service {
	return &Service{index: index, tokens: tokens}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	if err := s.index.Ping(ctx); err != nil {
		checks["index"] = CheckError
	} else {
		checks["index"] = CheckOK
	}

	if s.tokens != nil {
		if err := s.tokens.Ping(ctx); err != nil {
			checks["tokens"] = CheckError
		} else {
			checks["tokens"] = CheckOK
		}
	}

	// Index failure is fatal; token store failure only degrades.
	status := Healthy
	switch {
	case checks["index"] == CheckError:
		status = Unhealthy
	case checks["tokens"] == CheckError:
		status = Degraded
	}

	return Report{Status: status, Checks: checks}
}
