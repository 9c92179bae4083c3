package config

import (
	"fmt"
	"os"
	"strings"
)

const (
	portEnvVar    = "PORT"
	appNameVar    = "APP_NAME"
	issuerVar     = "ISSUER"
	dataFolderVar = "FOLDER"
)

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetIssuer() string
	GetDataFolder() string
	GetLoginURL() string
	GetConsentURL() string
	GetEnv() string
}

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "8080")
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Go Identity Server")
}

// GetIssuer returns the issuer identifier stamped into every token.
func (EnvVars) GetIssuer() string {
	return GetEnv(issuerVar, "http://localhost:8080")
}

func (EnvVars) GetDataFolder() string {
	return GetEnv(dataFolderVar, "./data")
}

// GetLoginURL is where the authorize endpoint sends users who must sign in.
func (EnvVars) GetLoginURL() string {
	return GetEnv("LOGIN_URL", "/login")
}

// GetConsentURL is where the authorize endpoint sends users for consent.
func (EnvVars) GetConsentURL() string {
	return GetEnv("CONSENT_URL", "/consent")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
