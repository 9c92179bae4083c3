package validation

import (
	"context"

	"github.com/pkg/errors"

	"github.com/corewell/go-identity-server/users"
)

// CustomGrantResult is what a custom grant validator produces: either a
// subject (or none, for delegation-style grants that only need the client) or
// a protocol error code.
type CustomGrantResult struct {
	Subject *users.Subject
	Error   string
}

// IsError reports whether the custom grant failed.
func (r *CustomGrantResult) IsError() bool {
	return r.Error != ""
}

// CustomGrantValidator validates a single non-standard grant type. The
// returned Go error is reserved for infrastructure failures; grant rejections
// travel in the result.
type CustomGrantValidator interface {
	GrantType() string
	Validate(ctx context.Context, request *ValidatedTokenRequest) (*CustomGrantResult, error)
}

// CustomGrantRegistry holds the custom grant validators keyed by grant type.
// The set is fixed at construction.
type CustomGrantRegistry struct {
	validators map[string]CustomGrantValidator
}

// NewCustomGrantRegistry builds a registry from the given validators.
// Duplicate grant types are rejected.
func NewCustomGrantRegistry(validators ...CustomGrantValidator) (*CustomGrantRegistry, error) {
	byGrantType := make(map[string]CustomGrantValidator, len(validators))
	for _, validator := range validators {
		grantType := validator.GrantType()
		if grantType == "" {
			return nil, errors.New("[NewCustomGrantRegistry] validator has an empty grant type")
		}
		if _, exists := byGrantType[grantType]; exists {
			return nil, errors.Errorf("[NewCustomGrantRegistry] duplicate validator for grant type %q", grantType)
		}
		byGrantType[grantType] = validator
	}
	return &CustomGrantRegistry{validators: byGrantType}, nil
}

// Find returns the validator registered for grantType, or nil.
func (r *CustomGrantRegistry) Find(grantType string) CustomGrantValidator {
	return r.validators[grantType]
}
