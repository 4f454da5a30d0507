package observability

import (
	"context"
	"log/slog"
	"time"
)

// readinessTimeout bounds the whole readiness pass, not each check.
const readinessTimeout = 3 * time.Second

// CheckFunc verifies one dependency. A nil error means the dependency is
// usable right now.
type CheckFunc func(ctx context.Context) error

// HealthChecker aggregates named dependency checks for the readiness
// endpoint. Checks are registered during startup, before the server accepts
// traffic; registration is not synchronized.
type HealthChecker struct {
	names  []string
	checks map[string]CheckFunc
	logger *slog.Logger
}

// HealthStatus is the readiness endpoint's JSON body.
type HealthStatus struct {
	Status string                 `json:"status"` // "ok" or "degraded"
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult reports a single dependency check.
type CheckResult struct {
	Status  string `json:"status"`            // "ok" or "fail"
	Message string `json:"message,omitempty"` // Error message on failure.
}

// NewHealthChecker creates a HealthChecker with no checks registered.
func NewHealthChecker(logger *slog.Logger) *HealthChecker {
	return &HealthChecker{checks: make(map[string]CheckFunc), logger: logger}
}

// AddCheck registers a check under the given name. Re-registering a name
// replaces the earlier check.
func (h *HealthChecker) AddCheck(name string, check CheckFunc) {
	if _, exists := h.checks[name]; !exists {
		h.names = append(h.names, name)
	}
	h.checks[name] = check
}

// CheckReady runs every registered check in registration order and
// aggregates the result: "ok" only when all pass, "degraded" as soon as one
// fails. With no checks registered the process is trivially ready.
func (h *HealthChecker) CheckReady(ctx context.Context) HealthStatus {
	if len(h.checks) == 0 {
		return HealthStatus{Status: "ok"}
	}

	ctx, cancel := context.WithTimeout(ctx, readinessTimeout)
	defer cancel()

	status := HealthStatus{
		Status: "ok",
		Checks: make(map[string]CheckResult, len(h.checks)),
	}
	for _, name := range h.names {
		err := h.checks[name](ctx)
		if err == nil {
			status.Checks[name] = CheckResult{Status: "ok"}
			continue
		}
		status.Status = "degraded"
		status.Checks[name] = CheckResult{Status: "fail", Message: err.Error()}
		if h.logger != nil {
			h.logger.Warn("readiness check failed",
				slog.String("check", name),
				slog.String("error", err.Error()),
			)
		}
	}
	return status
}
