package schema

import (
	"context"

	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
	"github.com/8arr3tt/have-we-met-sub007/pkg/services"
)

// ValidationPlugin exposes a Validator as a validation service for the
// pipeline executor. Invalid payloads are reported through the result's
// Valid flag, so the per-service OnInvalid policy decides whether the
// record is rejected, flagged, or waved through.
type ValidationPlugin struct {
	name      string
	validator *Validator
}

var _ services.Plugin = (*ValidationPlugin)(nil)

// NewValidationPlugin wraps a validator as a named service plugin. An
// empty name defaults to "schema-validation".
func NewValidationPlugin(name string, validator *Validator) *ValidationPlugin {
	if name == "" {
		name = "schema-validation"
	}
	return &ValidationPlugin{name: name, validator: validator}
}

func (p *ValidationPlugin) Name() string { return p.name }

func (p *ValidationPlugin) Kind() models.ServiceKind { return models.ServiceKindValidation }

// Execute validates the working record. Violations travel in the result
// data under "violations"; the call itself never fails.
func (p *ValidationPlugin) Execute(_ context.Context, input models.Record, _ *models.ServiceContext) (*models.ServiceResult, error) {
	result := p.validator.Validate(input)

	out := &models.ServiceResult{
		ServiceName: p.name,
		Success:     true,
		Valid:       &result.Valid,
	}
	if len(result.Violations) > 0 {
		out.Data = map[string]any{"violations": result.Violations}
	}
	return out, nil
}
