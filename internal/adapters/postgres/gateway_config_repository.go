package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kevin07696/gateway-sync/internal/converters"
	"github.com/kevin07696/gateway-sync/internal/domain"
	"github.com/kevin07696/gateway-sync/internal/domain/ports"
)

const gatewayColumns = `gateway_id, gateway_code, gateway_name, api_endpoint, status_check_endpoint,
	refund_endpoint, api_key, api_secret, webhook_secret, timeout_seconds, max_retry_attempts,
	retry_delay_seconds, is_active, supports_webhook, webhook_url, created_at, updated_at`

// GatewayConfigRepository implements ports.GatewayRegistry. Credentials
// stored as secret:// references are resolved on every load.
type GatewayConfigRepository struct {
	db      ports.DBPort
	secrets ports.SecretResolver
}

// NewGatewayConfigRepository creates a registry. secrets may be nil when all
// credentials are stored inline.
func NewGatewayConfigRepository(db ports.DBPort, secrets ports.SecretResolver) *GatewayConfigRepository {
	return &GatewayConfigRepository{db: db, secrets: secrets}
}

func scanGatewayConfig(row pgx.Row) (*domain.GatewayConfig, error) {
	var (
		g              domain.GatewayConfig
		refundEndpoint pgtype.Text
		webhookSecret  pgtype.Text
		webhookURL     pgtype.Text
	)

	err := row.Scan(
		&g.GatewayID, &g.GatewayCode, &g.GatewayName, &g.APIEndpoint, &g.StatusCheckEndpoint,
		&refundEndpoint, &g.APIKey, &g.APISecret, &webhookSecret, &g.TimeoutSeconds, &g.MaxRetryAttempts,
		&g.RetryDelaySeconds, &g.IsActive, &g.SupportsWebhook, &webhookURL, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	g.RefundEndpoint = converters.TextPtr(refundEndpoint)
	g.WebhookSecret = converters.TextPtr(webhookSecret)
	g.WebhookURL = converters.TextPtr(webhookURL)

	return &g, nil
}

// GetActive returns the active configuration for a gateway code.
func (r *GatewayConfigRepository) GetActive(ctx context.Context, gatewayCode string) (*domain.GatewayConfig, error) {
	cfg, err := r.load(ctx, `SELECT `+gatewayColumns+` FROM gateway_configurations WHERE gateway_code = $1`, gatewayCode)
	if err != nil {
		return nil, err
	}
	if !cfg.IsActive {
		return nil, domain.ErrGatewayInactive.WithDetail("gateway_code", gatewayCode)
	}
	return cfg, nil
}

// GetByID returns a configuration regardless of its active flag.
func (r *GatewayConfigRepository) GetByID(ctx context.Context, gatewayID int64) (*domain.GatewayConfig, error) {
	return r.load(ctx, `SELECT `+gatewayColumns+` FROM gateway_configurations WHERE gateway_id = $1`, gatewayID)
}

// MaxTimeout is used to size the stuck-task cutoff.
func (r *GatewayConfigRepository) MaxTimeout(ctx context.Context) (time.Duration, error) {
	var secs int
	err := r.db.GetDB().QueryRow(ctx, `
		SELECT COALESCE(MAX(timeout_seconds), $1)
		FROM gateway_configurations
		WHERE is_active`, domain.DefaultGatewayTimeoutSeconds).Scan(&secs)
	if err != nil {
		return 0, fmt.Errorf("max gateway timeout: %w", err)
	}
	return time.Duration(secs) * time.Second, nil
}

func (r *GatewayConfigRepository) load(ctx context.Context, query string, arg interface{}) (*domain.GatewayConfig, error) {
	cfg, err := scanGatewayConfig(r.db.GetDB().QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrGatewayNotFound.WithDetail("gateway", arg)
	}
	if err != nil {
		return nil, fmt.Errorf("load gateway configuration: %w", err)
	}
	if err := r.resolveSecrets(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (r *GatewayConfigRepository) resolveSecrets(ctx context.Context, cfg *domain.GatewayConfig) error {
	if r.secrets == nil {
		return nil
	}

	var err error
	if cfg.APIKey, err = r.secrets.Resolve(ctx, cfg.APIKey); err != nil {
		return fmt.Errorf("resolve api_key for %s: %w", cfg.GatewayCode, err)
	}
	if cfg.APISecret, err = r.secrets.Resolve(ctx, cfg.APISecret); err != nil {
		return fmt.Errorf("resolve api_secret for %s: %w", cfg.GatewayCode, err)
	}
	if cfg.WebhookSecret != nil {
		secret, err := r.secrets.Resolve(ctx, *cfg.WebhookSecret)
		if err != nil {
			return fmt.Errorf("resolve webhook_secret for %s: %w", cfg.GatewayCode, err)
		}
		cfg.WebhookSecret = &secret
	}
	return nil
}

// Upsert inserts or replaces a configuration keyed by gateway_code and
// returns its id. Credential fields are stored as given, so secret://
// references stay references.
func (r *GatewayConfigRepository) Upsert(ctx context.Context, cfg *domain.GatewayConfig) (int64, error) {
	if err := cfg.Validate(); err != nil {
		return 0, err
	}

	var id int64
	err := r.db.GetDB().QueryRow(ctx, `
		INSERT INTO gateway_configurations (
			gateway_code, gateway_name, api_endpoint, status_check_endpoint, refund_endpoint,
			api_key, api_secret, webhook_secret, timeout_seconds, max_retry_attempts,
			retry_delay_seconds, is_active, supports_webhook, webhook_url
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (gateway_code) DO UPDATE SET
			gateway_name = EXCLUDED.gateway_name,
			api_endpoint = EXCLUDED.api_endpoint,
			status_check_endpoint = EXCLUDED.status_check_endpoint,
			refund_endpoint = EXCLUDED.refund_endpoint,
			api_key = EXCLUDED.api_key,
			api_secret = EXCLUDED.api_secret,
			webhook_secret = EXCLUDED.webhook_secret,
			timeout_seconds = EXCLUDED.timeout_seconds,
			max_retry_attempts = EXCLUDED.max_retry_attempts,
			retry_delay_seconds = EXCLUDED.retry_delay_seconds,
			is_active = EXCLUDED.is_active,
			supports_webhook = EXCLUDED.supports_webhook,
			webhook_url = EXCLUDED.webhook_url,
			updated_at = NOW()
		RETURNING gateway_id`,
		cfg.GatewayCode, cfg.GatewayName, cfg.APIEndpoint, cfg.StatusCheckEndpoint, converters.Text(converters.StringOrEmpty(cfg.RefundEndpoint)),
		cfg.APIKey, cfg.APISecret, converters.Text(converters.StringOrEmpty(cfg.WebhookSecret)), cfg.TimeoutSeconds, cfg.MaxRetryAttempts,
		cfg.RetryDelaySeconds, cfg.IsActive, cfg.SupportsWebhook, converters.Text(converters.StringOrEmpty(cfg.WebhookURL)),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert gateway %s: %w", cfg.GatewayCode, err)
	}
	return id, nil
}

// List returns every configuration ordered by gateway_code without
// resolving credentials.
func (r *GatewayConfigRepository) List(ctx context.Context) ([]*domain.GatewayConfig, error) {
	rows, err := r.db.GetDB().Query(ctx, `SELECT `+gatewayColumns+` FROM gateway_configurations ORDER BY gateway_code`)
	if err != nil {
		return nil, fmt.Errorf("list gateway configurations: %w", err)
	}
	defer rows.Close()

	var out []*domain.GatewayConfig
	for rows.Next() {
		cfg, err := scanGatewayConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scan gateway configuration: %w", err)
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}
