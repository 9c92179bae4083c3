package config

import "time"

type SecurityConfig interface {
	GetRequirePKCE() bool
	GetMaxLoginSessionAge() time.Duration
}

type Security struct{}

var _ SecurityConfig = Security{}

func (Security) GetRequirePKCE() bool {
	return GetEnv("REQUIRE_PKCE", "") == "true"
}

func (Security) GetMaxLoginSessionAge() time.Duration {
	return 30 * time.Minute
}
