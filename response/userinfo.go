package response

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/corewell/go-identity-server/scopes"
	"github.com/corewell/go-identity-server/users"
)

// UserInfoResponseGenerator builds the userinfo response: the claims the
// access token's identity scopes release for its subject.
type UserInfoResponseGenerator struct {
	userService users.Service
	scopeStore  scopes.Store
}

// NewUserInfoResponseGenerator builds a UserInfoResponseGenerator.
func NewUserInfoResponseGenerator(userService users.Service, scopeStore scopes.Store) (*UserInfoResponseGenerator, error) {
	if userService == nil {
		return nil, errors.New("[NewUserInfoResponseGenerator] user service is required")
	}
	if scopeStore == nil {
		return nil, errors.New("[NewUserInfoResponseGenerator] scope store is required")
	}
	return &UserInfoResponseGenerator{
		userService: userService,
		scopeStore:  scopeStore,
	}, nil
}

// Process resolves the claims grantedScopes release for subjectID. Claim
// types appearing more than once collapse into a string slice.
func (g *UserInfoResponseGenerator) Process(ctx context.Context, subjectID string, grantedScopes []string) (map[string]any, error) {
	if subjectID == "" {
		return nil, errors.New("[UserInfoResponseGenerator.Process] subjectID is empty")
	}

	resolved, err := g.scopeStore.FindScopes(ctx, grantedScopes)
	if err != nil {
		return nil, errors.Wrap(err, "[UserInfoResponseGenerator.Process] resolving scopes")
	}

	var claimTypes []string
	for _, s := range resolved {
		if !s.IsIdentity() {
			continue
		}
		for _, name := range s.ClaimNames {
			if !contains(claimTypes, name) {
				claimTypes = append(claimTypes, name)
			}
		}
	}

	profile := map[string]any{"sub": subjectID}
	if len(claimTypes) == 0 {
		return profile, nil
	}

	claims, err := g.userService.GetProfileData(ctx, &users.Subject{SubjectID: subjectID}, claimTypes)
	if err != nil {
		return nil, errors.Wrap(err, "[UserInfoResponseGenerator.Process] profile data")
	}
	for _, c := range claims {
		switch existing := profile[c.Type].(type) {
		case nil:
			profile[c.Type] = c.Value
		case string:
			if c.Type == "sub" {
				continue
			}
			profile[c.Type] = []string{existing, c.Value}
		case []string:
			profile[c.Type] = append(existing, c.Value)
		}
	}

	log.Debug().Str("sub", subjectID).Int("claims", len(profile)).Msg("userinfo response created")
	return profile, nil
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
