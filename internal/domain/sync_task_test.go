package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSyncKind(t *testing.T) {
	tests := []struct {
		in      string
		want    SyncKind
		wantErr bool
	}{
		{in: "STATUS", want: SyncKindStatus},
		{in: "status_check", want: SyncKindStatus},
		{in: "REFUND_STATUS", want: SyncKindRefund},
		{in: " settlement ", want: SyncKindSettlement},
		{in: "CHARGEBACK", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSyncKind(tt.in)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidKind))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSyncKind_Operation(t *testing.T) {
	assert.Equal(t, "STATUS_CHECK", SyncKindStatus.Operation())
	assert.Equal(t, "REFUND_STATUS", SyncKindRefund.Operation())
	assert.Equal(t, "SETTLEMENT_STATUS", SyncKindSettlement.Operation())
}

func TestPriority_Validate(t *testing.T) {
	for _, p := range []Priority{PriorityHigh, PriorityMedium, PriorityLow} {
		assert.NoError(t, p.Validate())
	}
	for _, p := range []Priority{0, 4, -1, 10} {
		err := p.Validate()
		assert.True(t, errors.Is(err, ErrInvalidPriority), "priority %d", p)
	}
}

func TestSyncTask_States(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)
	future := now.Add(time.Minute)

	tests := []struct {
		name      string
		task      SyncTask
		active    bool
		terminal  bool
		resetable bool
		due       bool
	}{
		{
			name:   "pending",
			task:   SyncTask{State: SyncStatePending, MaxAttempts: 3},
			active: true,
		},
		{
			name:   "processing",
			task:   SyncTask{State: SyncStateProcessing, Attempts: 1, MaxAttempts: 3},
			active: true,
		},
		{
			name:      "completed",
			task:      SyncTask{State: SyncStateCompleted, Attempts: 1, MaxAttempts: 3},
			terminal:  true,
			resetable: true,
		},
		{
			name:      "failed_due",
			task:      SyncTask{State: SyncStateFailed, Attempts: 1, MaxAttempts: 3, NextRetryAt: &past},
			resetable: true,
			due:       true,
		},
		{
			name:      "failed_not_yet_due",
			task:      SyncTask{State: SyncStateFailed, Attempts: 1, MaxAttempts: 3, NextRetryAt: &future},
			resetable: true,
		},
		{
			name:      "failed_exhausted",
			task:      SyncTask{State: SyncStateFailed, Attempts: 3, MaxAttempts: 3, NextRetryAt: &past},
			terminal:  true,
			resetable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.active, tt.task.IsActive())
			assert.Equal(t, tt.terminal, tt.task.IsTerminal())
			assert.Equal(t, tt.resetable, tt.task.CanBeReset())
			assert.Equal(t, tt.due, tt.task.IsDueForRetry(now))
		})
	}
}

func TestEnqueueParams_Validate(t *testing.T) {
	valid := EnqueueParams{TxnID: "T1", Kind: SyncKindStatus, Priority: PriorityHigh}
	assert.NoError(t, valid.Validate())

	missing := valid
	missing.TxnID = "  "
	assert.True(t, errors.Is(missing.Validate(), ErrValidationMissingField))

	badPriority := valid
	badPriority.Priority = 7
	assert.True(t, errors.Is(badPriority.Validate(), ErrInvalidPriority))

	badKind := valid
	badKind.Kind = "DISPUTE"
	assert.True(t, errors.Is(badKind.Validate(), ErrInvalidKind))
}

func TestGatewayConfig_EndpointFor(t *testing.T) {
	refund := "https://acme.test/refund"
	cfg := &GatewayConfig{
		APIEndpoint:         "https://acme.test/api",
		StatusCheckEndpoint: "https://acme.test/status",
	}

	got, err := cfg.EndpointFor(SyncKindStatus)
	require.NoError(t, err)
	assert.Equal(t, "https://acme.test/status", got)

	got, err = cfg.EndpointFor(SyncKindSettlement)
	require.NoError(t, err)
	assert.Equal(t, "https://acme.test/api", got)

	_, err = cfg.EndpointFor(SyncKindRefund)
	assert.True(t, errors.Is(err, ErrGatewayMissingEndpoint))
	assert.True(t, IsConfigurationError(err))

	cfg.RefundEndpoint = &refund
	got, err = cfg.EndpointFor(SyncKindRefund)
	require.NoError(t, err)
	assert.Equal(t, refund, got)
}

func TestGatewayConfig_Timeout(t *testing.T) {
	assert.Equal(t, 30*time.Second, (&GatewayConfig{}).Timeout())
	assert.Equal(t, 10*time.Second, (&GatewayConfig{TimeoutSeconds: 10}).Timeout())
	assert.Equal(t, 30*time.Second, (&GatewayConfig{TimeoutSeconds: 500}).Timeout())
}

func TestSyncPerformance_Finalize(t *testing.T) {
	p := SyncPerformance{TotalOperations: 3, SuccessfulOperations: 2, UnderSLA: 3}
	p.Finalize()
	assert.Equal(t, 66.67, p.SuccessRatePercent)
	assert.Equal(t, 100.0, p.SLACompliancePercent)

	empty := SyncPerformance{}
	empty.Finalize()
	assert.Zero(t, empty.SuccessRatePercent)

	assert.Equal(t, "healthy", HealthFor(99))
	assert.Equal(t, "degraded", HealthFor(100))
}
