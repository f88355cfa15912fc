package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	vault "github.com/hashicorp/vault/api"
	"github.com/kevin07696/gateway-sync/internal/domain/ports"
	"go.uber.org/zap"
)

// VaultConfig contains configuration for the HashiCorp Vault store
type VaultConfig struct {
	// Vault server address (e.g., "https://vault.example.com:8200")
	Address string

	// Authentication method: "token" or "approle"
	AuthMethod string
	Token      string
	RoleID     string
	SecretID   string

	// Vault namespace (Vault Enterprise)
	Namespace string

	// KV secrets engine mount path (default: "secret")
	MountPath string

	// KV version: "v1" or "v2" (default: "v2")
	KVVersion string

	CacheTTL      time.Duration
	EnableCache   bool
	TLSSkipVerify bool
}

// DefaultVaultConfig returns default configuration for the Vault store
func DefaultVaultConfig(address string) *VaultConfig {
	return &VaultConfig{
		Address:     address,
		AuthMethod:  "token",
		MountPath:   "secret",
		KVVersion:   "v2",
		CacheTTL:    5 * time.Minute,
		EnableCache: true,
	}
}

type vaultStore struct {
	client *vault.Client
	config *VaultConfig
	logger *zap.Logger
	cache  *secretCache
}

// NewVaultStore creates a SecretStore backed by a Vault KV engine
func NewVaultStore(ctx context.Context, cfg *VaultConfig, logger *zap.Logger) (ports.SecretStore, error) {
	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSSkipVerify {
		if err := vaultConfig.ConfigureTLS(&vault.TLSConfig{Insecure: true}); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	if err := authenticateVault(ctx, client, cfg); err != nil {
		return nil, fmt.Errorf("failed to authenticate with Vault: %w", err)
	}

	logger.Info("Vault store initialized",
		zap.String("address", cfg.Address),
		zap.String("auth_method", cfg.AuthMethod),
		zap.String("mount_path", cfg.MountPath),
		zap.String("kv_version", cfg.KVVersion),
	)

	return &vaultStore{
		client: client,
		config: cfg,
		logger: logger,
		cache:  newSecretCache(cfg.EnableCache, cfg.CacheTTL),
	}, nil
}

func authenticateVault(ctx context.Context, client *vault.Client, cfg *VaultConfig) error {
	switch cfg.AuthMethod {
	case "", "token":
		if cfg.Token == "" {
			return fmt.Errorf("token is required for token auth")
		}
		client.SetToken(cfg.Token)
		return nil

	case "approle":
		if cfg.RoleID == "" || cfg.SecretID == "" {
			return fmt.Errorf("role_id and secret_id are required for AppRole auth")
		}
		resp, err := client.Logical().WriteWithContext(ctx, "auth/approle/login", map[string]interface{}{
			"role_id":   cfg.RoleID,
			"secret_id": cfg.SecretID,
		})
		if err != nil {
			return fmt.Errorf("AppRole login failed: %w", err)
		}
		if resp == nil || resp.Auth == nil {
			return fmt.Errorf("AppRole login returned no auth info")
		}
		client.SetToken(resp.Auth.ClientToken)
		return nil

	default:
		return fmt.Errorf("unsupported auth method: %s", cfg.AuthMethod)
	}
}

func (s *vaultStore) fullPath(path string) string {
	path = strings.TrimPrefix(path, "/")
	if s.config.KVVersion == "v1" {
		return fmt.Sprintf("%s/%s", s.config.MountPath, path)
	}
	return fmt.Sprintf("%s/data/%s", s.config.MountPath, path)
}

// GetSecret reads a KV entry. Every string field lands in Metadata so a
// reference can pick one with #<field>; Value holds the "value" field when
// present.
func (s *vaultStore) GetSecret(ctx context.Context, path string) (*ports.Secret, error) {
	if cached := s.cache.get(path); cached != nil {
		return cached, nil
	}

	start := time.Now()
	raw, err := s.client.Logical().ReadWithContext(ctx, s.fullPath(path))
	if err != nil {
		s.logger.Error("Failed to retrieve secret from Vault",
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to read secret from Vault: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("secret not found: %s", path)
	}

	s.logger.Debug("Secret retrieved",
		zap.String("path", path),
		zap.Duration("elapsed", time.Since(start)),
	)

	data := raw.Data
	secret := &ports.Secret{Version: "1", Metadata: make(map[string]string)}
	if s.config.KVVersion != "v1" {
		inner, ok := raw.Data["data"].(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("invalid secret format from Vault")
		}
		data = inner

		if md, ok := raw.Data["metadata"].(map[string]interface{}); ok {
			if v, ok := md["version"].(json.Number); ok {
				secret.Version = v.String()
			}
			if ct, ok := md["created_time"].(string); ok {
				secret.CreatedAt = ct
			}
		}
	}

	for k, v := range data {
		if str, ok := v.(string); ok {
			secret.Metadata[k] = str
		}
	}
	secret.Value = secret.Metadata["value"]

	if len(secret.Metadata) == 0 {
		return nil, fmt.Errorf("secret %s has no string fields", path)
	}

	s.cache.set(path, secret)
	return secret, nil
}
