package token

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Validation error strings. Expected failure modes are reported as data on
// the result, never as Go errors.
const (
	ValidationErrorInvalidToken      = "invalid_token"
	ValidationErrorExpiredToken      = "expired_token"
	ValidationErrorInsufficientScope = "insufficient_scope"
)

// ValidationResult is the outcome of validating a presented token. A zero
// Error means success and Claims holds the verified claims.
type ValidationResult struct {
	Error  string
	Claims jwt.MapClaims

	// ReferenceToken is set when the input was a reference token handle.
	ReferenceToken *Token
}

// IsError reports whether validation failed.
func (r *ValidationResult) IsError() bool { return r.Error != "" }

// Validator validates presented access and identity tokens for the
// introspection, userinfo and access-token-validation endpoints.
type Validator struct {
	signer      Signer
	handleStore TokenHandleStore
	issuer      string
	nowFunc     func() time.Time
}

// ValidatorOption modifies a Validator.
type ValidatorOption func(*Validator)

// WithValidatorNowFunc sets the clock (for testing).
func WithValidatorNowFunc(now func() time.Time) ValidatorOption {
	return func(v *Validator) {
		v.nowFunc = now
	}
}

// NewValidator builds a token Validator. handleStore may be nil when no
// client uses reference tokens.
func NewValidator(signer Signer, handleStore TokenHandleStore, issuer string, options ...ValidatorOption) (*Validator, error) {
	if signer == nil {
		return nil, errors.New("[NewValidator] signer is required")
	}
	v := &Validator{
		signer:      signer,
		handleStore: handleStore,
		issuer:      issuer,
		nowFunc:     time.Now,
	}
	for _, opt := range options {
		opt(v)
	}
	return v, nil
}

// ValidateAccessToken verifies a presented access token: signature and expiry
// for JWTs, store lookup and expiry for reference handles. When expectedScope
// is non-empty the token must carry it.
func (v *Validator) ValidateAccessToken(ctx context.Context, rawToken, expectedScope string) *ValidationResult {
	var result *ValidationResult
	if strings.Contains(rawToken, ".") {
		result = v.validateJWT(rawToken, v.issuer+"/resources", true)
	} else {
		result = v.validateReferenceToken(ctx, rawToken)
	}
	if result.IsError() {
		return result
	}

	if expectedScope != "" && !claimContains(result.Claims, "scope", expectedScope) {
		log.Debug().Str("expected_scope", expectedScope).Msg("access token missing expected scope")
		return &ValidationResult{Error: ValidationErrorInsufficientScope}
	}
	return result
}

// ValidateIdentityToken verifies a presented identity token against the
// expected client audience. An empty clientID skips the audience check, which
// lets an id_token_hint be validated before its client is known. Lifetime
// checking is optional so that expired id_tokens can still be accepted as
// hints at end-session time.
func (v *Validator) ValidateIdentityToken(_ context.Context, rawToken, clientID string, validateLifetime bool) *ValidationResult {
	return v.validateJWT(rawToken, clientID, validateLifetime)
}

func (v *Validator) validateJWT(rawToken, audience string, validateLifetime bool) *ValidationResult {
	options := []jwt.ParserOption{
		jwt.WithTimeFunc(v.nowFunc),
		jwt.WithIssuer(v.issuer),
	}
	if audience != "" {
		options = append(options, jwt.WithAudience(audience))
	}
	if !validateLifetime {
		options = append(options, jwt.WithoutClaimsValidation())
	}
	parser := jwt.NewParser(options...)

	parsed, err := parser.Parse(rawToken, v.signer.GetVerificationKey)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return &ValidationResult{Error: ValidationErrorExpiredToken}
		}
		return &ValidationResult{Error: ValidationErrorInvalidToken}
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return &ValidationResult{Error: ValidationErrorInvalidToken}
	}
	return &ValidationResult{Claims: claims}
}

func (v *Validator) validateReferenceToken(ctx context.Context, handle string) *ValidationResult {
	if v.handleStore == nil {
		return &ValidationResult{Error: ValidationErrorInvalidToken}
	}
	t, err := v.handleStore.Get(ctx, handle)
	if err != nil || t == nil {
		return &ValidationResult{Error: ValidationErrorInvalidToken}
	}
	if t.Expired(v.nowFunc()) {
		return &ValidationResult{Error: ValidationErrorExpiredToken}
	}

	claims := jwt.MapClaims{
		"iss": t.Issuer,
		"aud": t.Audience,
		"iat": t.CreationTime.Unix(),
		"exp": t.CreationTime.Add(time.Duration(t.Lifetime) * time.Second).Unix(),
	}
	for _, c := range t.Claims {
		switch existing := claims[c.Type].(type) {
		case nil:
			claims[c.Type] = c.Value
		case string:
			claims[c.Type] = []string{existing, c.Value}
		case []string:
			claims[c.Type] = append(existing, c.Value)
		}
	}
	return &ValidationResult{Claims: claims, ReferenceToken: t}
}

func claimContains(claims jwt.MapClaims, claimType, value string) bool {
	switch v := claims[claimType].(type) {
	case string:
		return v == value
	case []string:
		for _, s := range v {
			if s == value {
				return true
			}
		}
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s == value {
				return true
			}
		}
	}
	return false
}
