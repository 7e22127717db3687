// Package services runs external service plugins around the match pipeline:
// validation before matching, enrichment lookups, and custom hooks that can
// adjust scores or veto records. Every call is wrapped in the resilience
// stack and an optional result cache.
package services

import (
	"context"

	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
	"github.com/8arr3tt/have-we-met-sub007/pkg/resilience"
)

// Plugin is one external service. Execute receives the working record
// (projected to the configured fields) and per-call metadata, and reports
// its outcome as a ServiceResult; transport and infrastructure failures are
// returned as errors and classified by the executor.
type Plugin interface {
	Name() string
	Kind() models.ServiceKind
	Execute(ctx context.Context, input models.Record, svcCtx *models.ServiceContext) (*models.ServiceResult, error)
}

// HealthChecker is implemented by plugins that can probe their backend.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Disposer is implemented by plugins holding resources to release.
type Disposer interface {
	Dispose() error
}

// ServiceHealth is one service's health as seen by the executor.
type ServiceHealth struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	// Error is the healthcheck failure, if any.
	Error string `json:"error,omitempty"`
	// CircuitState is the service's breaker state. An open circuit makes
	// the service unhealthy regardless of its own healthcheck.
	CircuitState resilience.CircuitState `json:"circuit_state"`
}

// HealthStatus aggregates every registered service's health.
type HealthStatus struct {
	Healthy  bool                     `json:"healthy"`
	Services map[string]ServiceHealth `json:"services"`
}
