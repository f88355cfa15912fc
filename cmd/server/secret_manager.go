package main

import (
	"context"
	"fmt"

	"github.com/kevin07696/gateway-sync/internal/adapters/secrets"
	"github.com/kevin07696/gateway-sync/internal/config"
	"github.com/kevin07696/gateway-sync/internal/domain/ports"
	"go.uber.org/zap"
)

// initSecretStore picks the backend that resolves secret:// references in
// gateway and client webhook configuration.
//
// Environment Variables:
//   - SECRET_MANAGER: "local", "aws" or "vault" (default: local)
//   - LOCAL_SECRETS_PATH: base directory for the local backend
//   - AWS_REGION: region for AWS Secrets Manager
//   - VAULT_ADDR, VAULT_TOKEN, VAULT_MOUNT_PATH, VAULT_NAMESPACE: Vault KV v2 access
func initSecretStore(ctx context.Context, cfg config.SecretsConfig, logger *zap.Logger) (ports.SecretStore, error) {
	switch cfg.Backend {
	case "aws":
		return secrets.NewAWSSecretsManagerStore(ctx, secrets.DefaultAWSSecretsManagerConfig(cfg.AWSRegion), logger)

	case "vault":
		vaultCfg := secrets.DefaultVaultConfig(cfg.VaultAddress)
		vaultCfg.Token = cfg.VaultToken
		vaultCfg.Namespace = cfg.VaultNamespace
		if cfg.VaultMountPath != "" {
			vaultCfg.MountPath = cfg.VaultMountPath
		}
		return secrets.NewVaultStore(ctx, vaultCfg, logger)

	case "", "local":
		logger.Warn("Using local filesystem secret store - NOT for production use!",
			zap.String("base_path", cfg.LocalBasePath),
		)
		return secrets.NewLocalSecretStore(cfg.LocalBasePath, logger), nil

	default:
		return nil, fmt.Errorf("unknown SECRET_MANAGER backend %q", cfg.Backend)
	}
}
