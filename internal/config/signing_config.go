package config

type SigningConfig interface {
	GetSigningKeyID() string
	GetSigningKeyFile() string
	GetSigningKeyBits() int
}

type Signing struct{}

var _ SigningConfig = Signing{}

func (Signing) GetSigningKeyID() string {
	return GetEnv("SIGNING_KEY_ID", "default")
}

// GetSigningKeyFile points at a PEM encoded RSA private key. When empty, a
// throwaway key pair is generated at startup.
func (Signing) GetSigningKeyFile() string {
	return GetEnv("SIGNING_KEY_FILE", "")
}

func (Signing) GetSigningKeyBits() int {
	return 2048
}
