package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kevin07696/gateway-sync/internal/domain/ports"
	"go.uber.org/zap"
)

// localSecretStore reads secrets from files under a base directory.
// WARNING: This is for development only. Use AWS Secrets Manager or Vault in production.
type localSecretStore struct {
	basePath string
	logger   *zap.Logger
}

// NewLocalSecretStore creates a filesystem-backed SecretStore
func NewLocalSecretStore(basePath string, logger *zap.Logger) ports.SecretStore {
	return &localSecretStore{
		basePath: basePath,
		logger:   logger,
	}
}

// GetSecret reads <basePath>/<path>. A JSON object file exposes its string
// fields as metadata and its "value" field as the value; any other content is
// returned verbatim with surrounding whitespace trimmed.
func (s *localSecretStore) GetSecret(ctx context.Context, path string) (*ports.Secret, error) {
	clean := filepath.Clean("/" + path)
	data, err := os.ReadFile(filepath.Join(s.basePath, clean))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("secret not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read secret: %w", err)
	}

	s.logger.Debug("Secret read from filesystem", zap.String("path", path))

	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err == nil {
		secret := &ports.Secret{
			Value:    string(data),
			Version:  "v1",
			Metadata: make(map[string]string, len(fields)),
		}
		for k, v := range fields {
			if str, ok := v.(string); ok {
				secret.Metadata[k] = str
			}
		}
		if v, ok := secret.Metadata["value"]; ok {
			secret.Value = v
		}
		if v, ok := secret.Metadata["created_at"]; ok {
			secret.CreatedAt = v
		}
		return secret, nil
	}

	return &ports.Secret{
		Value:   strings.TrimSpace(string(data)),
		Version: "v1",
	}, nil
}
