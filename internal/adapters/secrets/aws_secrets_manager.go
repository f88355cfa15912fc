package secrets

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/kevin07696/gateway-sync/internal/domain/ports"
	"go.uber.org/zap"
)

// AWSSecretsManagerConfig contains configuration for the AWS Secrets Manager store
type AWSSecretsManagerConfig struct {
	// AWS Region (e.g., "us-east-1")
	Region string

	// Optional: AWS profile name (for local development)
	Profile string

	// Optional: Custom endpoint (for LocalStack testing)
	Endpoint string

	CacheTTL    time.Duration
	EnableCache bool
}

// DefaultAWSSecretsManagerConfig returns default configuration
func DefaultAWSSecretsManagerConfig(region string) *AWSSecretsManagerConfig {
	return &AWSSecretsManagerConfig{
		Region:      region,
		CacheTTL:    5 * time.Minute,
		EnableCache: true,
	}
}

type awsSecretsManagerStore struct {
	client *secretsmanager.Client
	logger *zap.Logger
	cache  *secretCache
}

// NewAWSSecretsManagerStore creates a SecretStore backed by AWS Secrets Manager.
// Gateway credentials are usually stored as a JSON object per gateway, so
// references select a field with secret://<name>#<field>.
func NewAWSSecretsManagerStore(ctx context.Context, cfg *AWSSecretsManagerConfig, logger *zap.Logger) (ports.SecretStore, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var clientOptions []func(*secretsmanager.Options)
	if cfg.Endpoint != "" {
		clientOptions = append(clientOptions, func(o *secretsmanager.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	logger.Info("AWS Secrets Manager store initialized",
		zap.String("region", cfg.Region),
		zap.Bool("cache_enabled", cfg.EnableCache),
		zap.Duration("cache_ttl", cfg.CacheTTL),
	)

	return &awsSecretsManagerStore{
		client: secretsmanager.NewFromConfig(awsConfig, clientOptions...),
		logger: logger,
		cache:  newSecretCache(cfg.EnableCache, cfg.CacheTTL),
	}, nil
}

// GetSecret retrieves a secret by name or ARN
func (s *awsSecretsManagerStore) GetSecret(ctx context.Context, path string) (*ports.Secret, error) {
	if cached := s.cache.get(path); cached != nil {
		return cached, nil
	}

	start := time.Now()
	result, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(path),
	})
	if err != nil {
		s.logger.Error("Failed to retrieve secret",
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to get secret %s: %w", path, err)
	}

	s.logger.Debug("Secret retrieved",
		zap.String("path", path),
		zap.Duration("elapsed", time.Since(start)),
	)

	secret := &ports.Secret{
		Value:    aws.ToString(result.SecretString),
		Version:  aws.ToString(result.VersionId),
		Metadata: make(map[string]string),
	}
	if result.CreatedDate != nil {
		secret.CreatedAt = result.CreatedDate.Format(time.RFC3339)
	}
	if result.ARN != nil {
		secret.Metadata["arn"] = *result.ARN
	}
	if result.Name != nil {
		secret.Metadata["name"] = *result.Name
	}

	s.cache.set(path, secret)
	return secret, nil
}
