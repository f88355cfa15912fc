package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kevin07696/gateway-sync/internal/domain"
	"github.com/kevin07696/gateway-sync/internal/domain/ports"
	"github.com/kevin07696/gateway-sync/pkg/observability"
	"github.com/kevin07696/gateway-sync/pkg/resilience"
	"github.com/kevin07696/gateway-sync/pkg/shutdown"
	"github.com/kevin07696/gateway-sync/pkg/signing"
	"github.com/kevin07696/gateway-sync/pkg/timeutil"
)

const (
	userAgent = "SabPaisa-Webhooks/1.0"

	// Column widths of webhook_logs.response_body and error_message, in
	// characters.
	maxResponseBody = 1000
	maxErrorMessage = 500

	// deliveryLease is how long a PENDING row belongs to its sender. It covers
	// the longest allowed POST (120s) twice.
	deliveryLease = 4 * time.Minute

	statsWindow = 24 * time.Hour
)

// WebhookDeliveryService handles webhook delivery to merchant endpoints
type WebhookDeliveryService struct {
	store      ports.ClientWebhookStore
	httpClient ports.HTTPClient
	timeouts   *resilience.TimeoutConfig
	backoff    *resilience.ScheduleBackoff
	inflight   *shutdown.InFlightTracker
	clock      timeutil.Clock
	logger     *zap.Logger
}

// NewWebhookDeliveryService creates a new webhook delivery service
func NewWebhookDeliveryService(
	store ports.ClientWebhookStore,
	httpClient ports.HTTPClient,
	timeouts *resilience.TimeoutConfig,
	clock timeutil.Clock,
	logger *zap.Logger,
) *WebhookDeliveryService {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 30 * time.Second,
		}
	}
	if timeouts == nil {
		timeouts = resilience.DefaultTimeoutConfig()
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	return &WebhookDeliveryService{
		store:      store,
		httpClient: httpClient,
		timeouts:   timeouts,
		backoff:    resilience.WebhookBackoff(),
		inflight:   shutdown.NewInFlightTracker("webhook-delivery", logger),
		clock:      clock,
		logger:     logger,
	}
}

// Trigger delivers event to every active config of clientID subscribed to it
// and returns how many deliveries were attempted.
func (s *WebhookDeliveryService) Trigger(ctx context.Context, clientID string, event domain.EventType, data map[string]interface{}) (int, error) {
	configs, err := s.store.ListSubscribedConfigs(ctx, clientID, event)
	if err != nil {
		s.logger.Error("Failed to fetch webhook subscriptions",
			zap.Error(err),
			zap.String("client_id", clientID),
			zap.String("event_type", string(event)),
		)
		return 0, fmt.Errorf("fetch webhook subscriptions: %w", err)
	}

	if len(configs) == 0 {
		s.logger.Debug("No active webhook subscriptions found",
			zap.String("client_id", clientID),
			zap.String("event_type", string(event)),
		)
		return 0, nil
	}

	sent := 0
	for _, cfg := range configs {
		if _, err := s.deliver(ctx, cfg, event, data); err != nil {
			// Continue to next subscription even if one fails
			s.logger.Error("Failed to deliver webhook",
				zap.Error(err),
				zap.Int64("config_id", cfg.ConfigID),
				zap.String("endpoint_url", cfg.EndpointURL),
			)
			continue
		}
		sent++
	}
	return sent, nil
}

// Publish runs Trigger in the background. Deliveries started before Shutdown
// are allowed to finish; later ones are dropped with a warning.
func (s *WebhookDeliveryService) Publish(clientID string, event domain.EventType, data map[string]interface{}) {
	accepted := s.inflight.Go(func() {
		if _, err := s.Trigger(context.Background(), clientID, event, data); err != nil {
			s.logger.Error("Background webhook trigger failed",
				zap.String("client_id", clientID),
				zap.String("event_type", string(event)),
				zap.Error(err),
			)
		}
	})
	if !accepted {
		s.logger.Warn("Webhook dropped during shutdown",
			zap.String("client_id", clientID),
			zap.String("event_type", string(event)),
		)
	}
}

// SendTest sends a webhook.test event to one config regardless of its
// subscriptions.
func (s *WebhookDeliveryService) SendTest(ctx context.Context, configID int64) (*domain.ClientWebhookDelivery, error) {
	cfg, err := s.store.GetConfig(ctx, configID)
	if err != nil {
		return nil, err
	}
	return s.deliver(ctx, cfg, domain.EventWebhookTest, map[string]interface{}{
		"test_mode": true,
		"message":   "This is a test webhook",
		"config_id": cfg.ConfigID,
		"client_id": cfg.ClientID,
	})
}

// Toggle flips the active flag of a config and returns the updated config.
func (s *WebhookDeliveryService) Toggle(ctx context.Context, configID int64) (*domain.ClientWebhookConfig, error) {
	cfg, err := s.store.GetConfig(ctx, configID)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetConfigActive(ctx, configID, !cfg.IsActive); err != nil {
		return nil, fmt.Errorf("toggle webhook config: %w", err)
	}
	cfg.IsActive = !cfg.IsActive

	s.logger.Info("Webhook configuration toggled",
		zap.Int64("config_id", configID),
		zap.Bool("is_active", cfg.IsActive),
	)
	return cfg, nil
}

// Stats summarizes deliveries created in the last 24 hours.
func (s *WebhookDeliveryService) Stats(ctx context.Context) (*domain.DeliveryStats, error) {
	return s.store.DeliveryStats(ctx, s.clock.Now().Add(-statsWindow))
}

// RetryDue re-sends up to limit deliveries whose retry time has come.
func (s *WebhookDeliveryService) RetryDue(ctx context.Context, limit int) (int, error) {
	now := s.clock.Now()
	deliveries, err := s.store.ClaimDueRetries(ctx, now, now.Add(deliveryLease), limit)
	if err != nil {
		return 0, fmt.Errorf("claim due webhook retries: %w", err)
	}

	retried := 0
	for _, d := range deliveries {
		cfg, err := s.store.GetConfig(ctx, d.ConfigID)
		if err != nil {
			s.logger.Error("Failed to get webhook config for retry",
				zap.Error(err),
				zap.Int64("webhook_id", d.WebhookID),
				zap.Int64("config_id", d.ConfigID),
			)
			if domain.IsDomainError(err, domain.ErrorCodeWebhookConfigMissing) {
				s.giveUp(ctx, d, "Webhook configuration not found")
			}
			continue
		}
		if err := s.send(ctx, cfg, d); err != nil {
			s.logger.Error("Failed to record webhook retry", zap.Int64("webhook_id", d.WebhookID), zap.Error(err))
			continue
		}
		retried++
	}

	if len(deliveries) > 0 {
		s.logger.Info("Webhook retry process completed",
			zap.Int("due", len(deliveries)),
			zap.Int("retried", retried),
		)
	}
	return retried, nil
}

// Shutdown waits for background deliveries started by Publish.
func (s *WebhookDeliveryService) Shutdown(ctx context.Context) error {
	return s.inflight.Shutdown(ctx)
}

// deliver creates the delivery row for one config and makes the first attempt.
func (s *WebhookDeliveryService) deliver(ctx context.Context, cfg *domain.ClientWebhookConfig, event domain.EventType, data map[string]interface{}) (*domain.ClientWebhookDelivery, error) {
	envelope := domain.WebhookEnvelope{
		EventType: event,
		Timestamp: timeutil.FormatISO(s.clock.Now()),
		Data:      data,
	}
	payload, err := signing.CanonicalJSON(envelope)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}

	maxAttempts := cfg.MaxRetryAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	lease := s.clock.Now().Add(deliveryLease)
	d := &domain.ClientWebhookDelivery{
		ConfigID:       cfg.ConfigID,
		ClientID:       cfg.ClientID,
		EventType:      event,
		EndpointURL:    cfg.EndpointURL,
		Payload:        payload,
		IdempotencyKey: uuid.NewString(),
		DeliveryStatus: domain.DeliveryStatusPending,
		MaxAttempts:    maxAttempts,
		NextRetryAt:    &lease,
	}
	if err := s.store.CreateDelivery(ctx, d); err != nil {
		return nil, fmt.Errorf("create webhook delivery: %w", err)
	}

	if err := s.send(ctx, cfg, d); err != nil {
		return nil, err
	}
	return d, nil
}

// send makes one attempt for d and persists the outcome. The returned error
// only reports persistence failures; delivery failures live on the row.
func (s *WebhookDeliveryService) send(ctx context.Context, cfg *domain.ClientWebhookConfig, d *domain.ClientWebhookDelivery) error {
	if !cfg.IsActive {
		return s.giveUp(ctx, d, "Webhook configuration is inactive")
	}

	// The same canonical bytes are signed and sent on every attempt.
	signature := signing.SignWithPrefix(cfg.SecretKey, d.Payload)
	d.SignatureSent = &signature
	d.Attempts++

	start := time.Now()
	status, body, sendErr := s.post(ctx, cfg, d, signature)
	elapsed := time.Since(start)

	now := s.clock.Now()
	d.HTTPStatusCode = nil
	if status > 0 {
		d.HTTPStatusCode = &status
	}
	d.ResponseBody = body

	if sendErr == nil && isDelivered(status) {
		d.DeliveryStatus = domain.DeliveryStatusSuccess
		d.DeliveredAt = &now
		d.NextRetryAt = nil
		d.ErrorMessage = nil

		s.logger.Info("Webhook delivered successfully",
			zap.Int64("webhook_id", d.WebhookID),
			zap.String("event_type", string(d.EventType)),
			zap.Int("http_status", status),
		)
	} else {
		msg := fmt.Sprintf("HTTP %d", status)
		if sendErr != nil {
			msg = truncate(sendErr.Error(), maxErrorMessage)
		}
		d.ErrorMessage = &msg
		d.DeliveryStatus = domain.DeliveryStatusFailed
		d.NextRetryAt = nil

		if d.Attempts < d.MaxAttempts {
			next := now.Add(s.backoff.NextDelay(d.Attempts))
			d.DeliveryStatus = domain.DeliveryStatusRetry
			d.NextRetryAt = &next
		}

		s.logger.Warn("Webhook delivery failed",
			zap.Int64("webhook_id", d.WebhookID),
			zap.String("event_type", string(d.EventType)),
			zap.Int("attempt", d.Attempts),
			zap.String("status", string(d.DeliveryStatus)),
			zap.String("error", msg),
		)
	}

	observability.RecordWebhookDelivery(string(d.EventType), string(d.DeliveryStatus), elapsed.Seconds())
	if err := s.store.UpdateDelivery(context.WithoutCancel(ctx), d); err != nil {
		return fmt.Errorf("update webhook delivery: %w", err)
	}
	return nil
}

func (s *WebhookDeliveryService) post(ctx context.Context, cfg *domain.ClientWebhookConfig, d *domain.ClientWebhookDelivery, signature string) (int, *string, error) {
	ctx, cancel := s.timeouts.WebhookContext(ctx, cfg.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.EndpointURL, bytes.NewReader(d.Payload))
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", signature)
	req.Header.Set("X-Webhook-Event", string(d.EventType))
	req.Header.Set("X-Webhook-Id", d.IdempotencyKey)
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	// Four bytes per character covers any UTF-8 reply cut to the column width.
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4*maxResponseBody))
	body := truncate(string(raw), maxResponseBody)
	return resp.StatusCode, &body, nil
}

func (s *WebhookDeliveryService) giveUp(ctx context.Context, d *domain.ClientWebhookDelivery, msg string) error {
	d.DeliveryStatus = domain.DeliveryStatusFailed
	msg = truncate(msg, maxErrorMessage)
	d.ErrorMessage = &msg
	d.NextRetryAt = nil
	observability.RecordWebhookDelivery(string(d.EventType), string(d.DeliveryStatus), 0)
	if err := s.store.UpdateDelivery(context.WithoutCancel(ctx), d); err != nil {
		return fmt.Errorf("update webhook delivery: %w", err)
	}
	return nil
}

func isDelivered(status int) bool {
	switch status {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
		return true
	}
	return false
}

// truncate cuts s to at most n characters without splitting a rune.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
