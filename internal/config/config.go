package config

// Config aggregates the configuration surfaces the server needs.
type Config interface {
	EnvConfig
	SigningConfig
	SecurityConfig
}

type mainConfig struct {
	EnvVars
	Signing
	Security
}

func New() Config {
	return mainConfig{}
}
