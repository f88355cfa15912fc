package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kevin07696/gateway-sync/internal/converters"
	"github.com/kevin07696/gateway-sync/internal/domain"
	"github.com/kevin07696/gateway-sync/internal/domain/ports"
)

const webhookConfigColumns = `config_id, client_id, endpoint_url, secret_key, events_subscribed,
	is_active, max_retry_attempts, timeout_seconds, created_by, created_at, updated_at`

const deliveryColumns = `webhook_id, client_id, config_id, event_type, payload, endpoint_url,
	delivery_status, http_status_code, response_body, error_message, attempts, max_attempts,
	next_retry_at, signature_sent, idempotency_key, delivered_at, created_at`

// ClientWebhookRepository implements ports.ClientWebhookStore on
// webhook_config and webhook_logs.
type ClientWebhookRepository struct {
	db      ports.DBPort
	secrets ports.SecretResolver
}

// NewClientWebhookRepository creates a repository. secrets may be nil.
func NewClientWebhookRepository(db ports.DBPort, secrets ports.SecretResolver) *ClientWebhookRepository {
	return &ClientWebhookRepository{db: db, secrets: secrets}
}

func (r *ClientWebhookRepository) scanConfig(ctx context.Context, row pgx.Row) (*domain.ClientWebhookConfig, error) {
	var (
		c      domain.ClientWebhookConfig
		events []string
	)
	err := row.Scan(
		&c.ConfigID, &c.ClientID, &c.EndpointURL, &c.SecretKey, &events,
		&c.IsActive, &c.MaxRetryAttempts, &c.TimeoutSeconds, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.EventsSubscribed = make([]domain.EventType, len(events))
	for i, e := range events {
		c.EventsSubscribed[i] = domain.EventType(e)
	}

	if r.secrets != nil {
		if c.SecretKey, err = r.secrets.Resolve(ctx, c.SecretKey); err != nil {
			return nil, fmt.Errorf("resolve secret_key for config %d: %w", c.ConfigID, err)
		}
	}
	return &c, nil
}

// ListSubscribedConfigs returns the client's active configs wanting event.
func (r *ClientWebhookRepository) ListSubscribedConfigs(ctx context.Context, clientID string, event domain.EventType) ([]*domain.ClientWebhookConfig, error) {
	rows, err := r.db.GetDB().Query(ctx, `
		SELECT `+webhookConfigColumns+`
		FROM webhook_config
		WHERE client_id = $1 AND is_active AND $2 = ANY(events_subscribed)
		ORDER BY config_id`, clientID, string(event))
	if err != nil {
		return nil, fmt.Errorf("list webhook configs: %w", err)
	}
	defer rows.Close()

	var configs []*domain.ClientWebhookConfig
	for rows.Next() {
		c, err := r.scanConfig(ctx, rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook config: %w", err)
		}
		configs = append(configs, c)
	}
	return configs, rows.Err()
}

// GetConfig loads one subscription.
func (r *ClientWebhookRepository) GetConfig(ctx context.Context, configID int64) (*domain.ClientWebhookConfig, error) {
	c, err := r.scanConfig(ctx, r.db.GetDB().QueryRow(ctx,
		`SELECT `+webhookConfigColumns+` FROM webhook_config WHERE config_id = $1`, configID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrWebhookConfigMissing.WithDetail("config_id", configID)
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook config %d: %w", configID, err)
	}
	return c, nil
}

// SetConfigActive toggles a subscription.
func (r *ClientWebhookRepository) SetConfigActive(ctx context.Context, configID int64, active bool) error {
	tag, err := r.db.GetDB().Exec(ctx, `
		UPDATE webhook_config SET is_active = $2, updated_at = NOW()
		WHERE config_id = $1`, configID, active)
	if err != nil {
		return fmt.Errorf("update webhook config %d: %w", configID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrWebhookConfigMissing.WithDetail("config_id", configID)
	}
	return nil
}

// CreateConfig registers a merchant endpoint and fills ConfigID. SecretKey
// may be a secret:// reference.
func (r *ClientWebhookRepository) CreateConfig(ctx context.Context, c *domain.ClientWebhookConfig) error {
	if err := c.Validate(); err != nil {
		return err
	}

	events := make([]string, len(c.EventsSubscribed))
	for i, e := range c.EventsSubscribed {
		if !domain.IsKnownEvent(e) {
			return domain.ErrValidationFailed.WithDetail("event", string(e))
		}
		events[i] = string(e)
	}

	err := r.db.GetDB().QueryRow(ctx, `
		INSERT INTO webhook_config (
			client_id, endpoint_url, secret_key, events_subscribed, is_active,
			max_retry_attempts, timeout_seconds, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING config_id, created_at, updated_at`,
		c.ClientID, c.EndpointURL, c.SecretKey, events, c.IsActive,
		c.MaxRetryAttempts, c.TimeoutSeconds, c.CreatedBy,
	).Scan(&c.ConfigID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create webhook config for %s: %w", c.ClientID, err)
	}
	return nil
}

func scanDelivery(row pgx.Row) (*domain.ClientWebhookDelivery, error) {
	var (
		d              domain.ClientWebhookDelivery
		eventType      string
		status         string
		payload        []byte
		httpStatus     pgtype.Int4
		responseBody   pgtype.Text
		errorMessage   pgtype.Text
		nextRetryAt    pgtype.Timestamptz
		signatureSent  pgtype.Text
		idempotencyKey uuid.NullUUID
		deliveredAt    pgtype.Timestamptz
	)
	err := row.Scan(
		&d.WebhookID, &d.ClientID, &d.ConfigID, &eventType, &payload, &d.EndpointURL,
		&status, &httpStatus, &responseBody, &errorMessage, &d.Attempts, &d.MaxAttempts,
		&nextRetryAt, &signatureSent, &idempotencyKey, &deliveredAt, &d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.EventType = domain.EventType(eventType)
	d.DeliveryStatus = domain.DeliveryStatus(status)
	d.Payload = rawOrNil(payload)
	d.HTTPStatusCode = converters.Int4Ptr(httpStatus)
	d.ResponseBody = converters.TextPtr(responseBody)
	d.ErrorMessage = converters.TextPtr(errorMessage)
	d.NextRetryAt = converters.TimePtr(nextRetryAt)
	d.SignatureSent = converters.TextPtr(signatureSent)
	d.DeliveredAt = converters.TimePtr(deliveredAt)
	if idempotencyKey.Valid {
		d.IdempotencyKey = idempotencyKey.UUID.String()
	}
	return &d, nil
}

// CreateDelivery inserts a new delivery row and fills WebhookID.
func (r *ClientWebhookRepository) CreateDelivery(ctx context.Context, d *domain.ClientWebhookDelivery) error {
	key, err := uuid.Parse(d.IdempotencyKey)
	if err != nil {
		return fmt.Errorf("idempotency key: %w", err)
	}

	err = r.db.GetDB().QueryRow(ctx, `
		INSERT INTO webhook_logs
			(client_id, config_id, event_type, payload, endpoint_url, delivery_status,
			 attempts, max_attempts, signature_sent, idempotency_key, next_retry_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING webhook_id, created_at`,
		d.ClientID, d.ConfigID, string(d.EventType), jsonbOrNull(d.Payload), d.EndpointURL,
		string(d.DeliveryStatus), d.Attempts, d.MaxAttempts, d.SignatureSent, key,
		converters.ToNullableTimestamptz(d.NextRetryAt),
	).Scan(&d.WebhookID, &d.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert webhook delivery: %w", err)
	}
	return nil
}

// GetDelivery loads one delivery row.
func (r *ClientWebhookRepository) GetDelivery(ctx context.Context, webhookID int64) (*domain.ClientWebhookDelivery, error) {
	d, err := scanDelivery(r.db.GetDB().QueryRow(ctx,
		`SELECT `+deliveryColumns+` FROM webhook_logs WHERE webhook_id = $1`, webhookID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrDeliveryNotFound.WithDetail("webhook_id", webhookID)
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook delivery %d: %w", webhookID, err)
	}
	return d, nil
}

// UpdateDelivery persists the outcome of an attempt.
func (r *ClientWebhookRepository) UpdateDelivery(ctx context.Context, d *domain.ClientWebhookDelivery) error {
	tag, err := r.db.GetDB().Exec(ctx, `
		UPDATE webhook_logs
		SET delivery_status = $2, http_status_code = $3, response_body = $4, error_message = $5,
		    attempts = $6, next_retry_at = $7, signature_sent = $8, delivered_at = $9
		WHERE webhook_id = $1`,
		d.WebhookID, string(d.DeliveryStatus), d.HTTPStatusCode, d.ResponseBody, d.ErrorMessage,
		d.Attempts, d.NextRetryAt, d.SignatureSent, d.DeliveredAt)
	if err != nil {
		return fmt.Errorf("update webhook delivery %d: %w", d.WebhookID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDeliveryNotFound.WithDetail("webhook_id", d.WebhookID)
	}
	return nil
}

// ClaimDueRetries moves due RETRY rows to PENDING so one sender owns each.
// A PENDING row's next_retry_at is its sender's lease; once it passes, the
// sender is presumed dead and the row is claimable again.
func (r *ClientWebhookRepository) ClaimDueRetries(ctx context.Context, now, leaseUntil time.Time, limit int) ([]*domain.ClientWebhookDelivery, error) {
	rows, err := r.db.GetDB().Query(ctx, `
		WITH due AS (
			SELECT webhook_id FROM webhook_logs
			WHERE delivery_status IN ('RETRY', 'PENDING')
			  AND next_retry_at <= $1
			  AND attempts < max_attempts
			ORDER BY next_retry_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		UPDATE webhook_logs w
		SET delivery_status = 'PENDING', next_retry_at = $2
		FROM due
		WHERE w.webhook_id = due.webhook_id
		RETURNING `+prefixed("w", deliveryColumns), now, leaseUntil, limit)
	if err != nil {
		return nil, fmt.Errorf("claim webhook retries: %w", err)
	}
	defer rows.Close()

	var deliveries []*domain.ClientWebhookDelivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook delivery: %w", err)
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

// DeliveryStats summarizes deliveries created since the given time.
func (r *ClientWebhookRepository) DeliveryStats(ctx context.Context, since time.Time) (*domain.DeliveryStats, error) {
	var s domain.DeliveryStats
	err := r.db.GetDB().QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE delivery_status = 'SUCCESS'),
		       COUNT(*) FILTER (WHERE delivery_status = 'FAILED'),
		       COUNT(*) FILTER (WHERE delivery_status = 'RETRY')
		FROM webhook_logs
		WHERE created_at >= $1`, since,
	).Scan(&s.Total, &s.Successful, &s.Failed, &s.PendingRetry)
	if err != nil {
		return nil, fmt.Errorf("webhook delivery stats: %w", err)
	}
	s.Finalize()
	return &s, nil
}
