package ports

import (
	"context"
)

// Secret represents a retrieved secret with metadata
type Secret struct {
	Value     string
	Version   string
	Metadata  map[string]string
	CreatedAt string
}

// SecretStore reads secrets from a backend (AWS Secrets Manager, Vault, or
// local files). Implementations cache values with a TTL.
type SecretStore interface {
	// GetSecret retrieves a secret by its path/name
	GetSecret(ctx context.Context, path string) (*Secret, error)
}

// SecretResolver turns stored credential values into usable ones. Values of
// the form secret://<path>#<field> are looked up in a SecretStore; anything
// else is returned unchanged.
type SecretResolver interface {
	Resolve(ctx context.Context, value string) (string, error)
}
