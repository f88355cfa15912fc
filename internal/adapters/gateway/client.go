package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kevin07696/gateway-sync/internal/domain"
	"github.com/kevin07696/gateway-sync/internal/domain/ports"
	pkgerrors "github.com/kevin07696/gateway-sync/pkg/errors"
	"github.com/kevin07696/gateway-sync/pkg/jsonfield"
	"github.com/kevin07696/gateway-sync/pkg/observability"
	"github.com/kevin07696/gateway-sync/pkg/timeutil"
	"go.uber.org/zap"
)

// maxResponseBytes bounds how much of a gateway answer is read and logged.
const maxResponseBytes = 1 << 20

// Client performs authenticated JSON calls against payment gateways. Every
// attempt made through Call produces exactly one sync log row.
type Client struct {
	http     ports.HTTPClient
	logs     ports.SyncLogStore
	breakers *breakerSet
	logger   *zap.Logger
}

// NewClient creates a gateway client. logs may be nil for callers that do not
// audit (connection tests).
func NewClient(httpClient ports.HTTPClient, logs ports.SyncLogStore, breaker CircuitBreakerConfig, clock timeutil.Clock, logger *zap.Logger) *Client {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Client{
		http:     httpClient,
		logs:     logs,
		breakers: newBreakerSet(breaker, clock),
		logger:   logger,
	}
}

var _ ports.GatewayCaller = (*Client)(nil)

// Breaker exposes the breaker for a gateway code.
func (c *Client) Breaker(gatewayCode string) *CircuitBreaker {
	return c.breakers.get(gatewayCode)
}

// Call sends req to the gateway described by cfg. The returned error is a
// *pkgerrors.GatewayError for transport and protocol failures.
func (c *Client) Call(ctx context.Context, cfg *domain.GatewayConfig, req ports.GatewayRequest) (*ports.GatewayResponse, error) {
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	var body []byte
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("marshal gateway request: %w", err)
		}
		body = b
	}

	entry := &domain.SyncLog{
		SyncID:        req.SyncID,
		Operation:     req.Operation,
		RequestURL:    req.Endpoint,
		RequestMethod: method,
		RequestHeaders: map[string]string{
			"Authorization": "Bearer ***",
			"Content-Type":  "application/json",
		},
		RequestBody: body,
	}

	resp, callErr := c.do(ctx, cfg, method, req.Endpoint, body)
	if resp != nil {
		elapsed := resp.ElapsedMS
		entry.ResponseTimeMS = &elapsed
		if resp.Status > 0 {
			status := resp.Status
			entry.ResponseStatus = &status
			entry.ResponseHeaders = resp.Headers
			entry.ResponseBody = jsonfield.RawBody(resp.Body)
		}
	}
	if callErr != nil {
		msg := callErr.Error()
		entry.ErrorMessage = &msg
	} else {
		entry.Success = true
	}

	c.recordAttempt(ctx, cfg, entry, callErr)
	return resp, callErr
}

// TestConnection issues an authenticated GET against api_endpoint. It does not
// touch the breaker or the sync log.
func (c *Client) TestConnection(ctx context.Context, cfg *domain.GatewayConfig) *ports.ConnectionResult {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout())
	defer cancel()

	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.APIEndpoint, nil)
	if err != nil {
		return &ports.ConnectionResult{Error: err.Error()}
	}
	httpReq.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	httpResp, err := c.http.Do(httpReq)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return &ports.ConnectionResult{Error: classifyTransport(ctx, err).Error(), ElapsedMS: elapsed}
	}
	defer httpResp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(httpResp.Body, maxResponseBytes))

	result := &ports.ConnectionResult{
		Status:    httpResp.StatusCode,
		ElapsedMS: elapsed,
		Success:   httpResp.StatusCode >= 200 && httpResp.StatusCode < 300,
	}
	if !result.Success {
		result.Error = fmt.Sprintf("HTTP %d", httpResp.StatusCode)
	}
	return result
}

func (c *Client) do(ctx context.Context, cfg *domain.GatewayConfig, method, endpoint string, body []byte) (*ports.GatewayResponse, error) {
	cb := c.breakers.get(cfg.GatewayCode)
	if err := cb.Allow(); err != nil {
		return nil, pkgerrors.NewTransientError(pkgerrors.CategoryCircuitOpen,
			fmt.Sprintf("gateway %s: %v", cfg.GatewayCode, err))
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout())
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		cb.Record(true)
		return nil, pkgerrors.NewTransientError(pkgerrors.CategorySystemError, err.Error())
	}
	httpReq.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		cb.Record(false)
		return &ports.GatewayResponse{ElapsedMS: time.Since(start).Milliseconds()}, classifyTransport(ctx, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	elapsed := time.Since(start).Milliseconds()
	resp := &ports.GatewayResponse{
		Status:    httpResp.StatusCode,
		Headers:   flattenHeaders(httpResp.Header),
		Body:      raw,
		ElapsedMS: elapsed,
	}
	if err != nil {
		cb.Record(false)
		return resp, classifyTransport(ctx, err)
	}

	cb.Record(httpResp.StatusCode < 500)

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return resp, pkgerrors.NewProtocolError(httpResp.StatusCode, string(raw))
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return resp, nil
	}
	var parsed map[string]interface{}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&parsed); err != nil {
		if isJSONContentType(httpResp.Header.Get("Content-Type")) {
			return resp, pkgerrors.NewTransientError(pkgerrors.CategoryInvalidResponse,
				fmt.Sprintf("invalid JSON from gateway: %v", err))
		}
		return resp, nil
	}
	resp.JSON = parsed
	return resp, nil
}

func (c *Client) recordAttempt(ctx context.Context, cfg *domain.GatewayConfig, entry *domain.SyncLog, callErr error) {
	result := "success"
	var gwErr *pkgerrors.GatewayError
	if errors.As(callErr, &gwErr) {
		result = string(gwErr.Category)
	} else if callErr != nil {
		result = "error"
	}

	var seconds float64
	if entry.ResponseTimeMS != nil {
		seconds = float64(*entry.ResponseTimeMS) / 1000
	}
	observability.RecordGatewayCall(cfg.GatewayCode, entry.Operation, result, seconds)

	if c.logs == nil || entry.SyncID == 0 {
		return
	}
	// The attempt is recorded even when the task context is already done.
	if err := c.logs.CreateSyncLog(context.WithoutCancel(ctx), entry); err != nil {
		c.logger.Error("Failed to write sync log",
			zap.Int64("sync_id", entry.SyncID),
			zap.String("operation", entry.Operation),
			zap.Error(err),
		)
	}
}

func classifyTransport(ctx context.Context, err error) *pkgerrors.GatewayError {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return pkgerrors.NewTransientError(pkgerrors.CategoryTimeout, "gateway request timed out")
	case errors.As(err, &netErr) && netErr.Timeout():
		return pkgerrors.NewTransientError(pkgerrors.CategoryTimeout, netErr.Error())
	default:
		return pkgerrors.NewTransientError(pkgerrors.CategoryNetworkError, err.Error())
	}
}

func isJSONContentType(ct string) bool {
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.Contains(strings.ToLower(ct), "json")
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = strings.Join(v, ", ")
	}
	return out
}
