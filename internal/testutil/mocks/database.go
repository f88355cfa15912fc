// Package mocks provides testify mocks for ports that tests want to script
// call by call rather than back with an in-memory store.
package mocks

import (
	"context"
	"net/http"
	"time"

	"github.com/kevin07696/gateway-sync/internal/domain"
	"github.com/kevin07696/gateway-sync/internal/domain/ports"
	"github.com/stretchr/testify/mock"
)

// MockStatsReader mocks ports.StatsReader.
type MockStatsReader struct {
	mock.Mock
}

var _ ports.StatsReader = (*MockStatsReader)(nil)

func (m *MockStatsReader) QueueStats(ctx context.Context, now time.Time) (*domain.QueueStats, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.QueueStats), args.Error(1)
}

func (m *MockStatsReader) Dashboard(ctx context.Context, now time.Time) (*domain.Dashboard, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Dashboard), args.Error(1)
}

// MockSecretStore mocks ports.SecretStore.
type MockSecretStore struct {
	mock.Mock
}

var _ ports.SecretStore = (*MockSecretStore)(nil)

func (m *MockSecretStore) GetSecret(ctx context.Context, path string) (*ports.Secret, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.Secret), args.Error(1)
}

// MockHTTPClient mocks ports.HTTPClient.
type MockHTTPClient struct {
	mock.Mock
}

var _ ports.HTTPClient = (*MockHTTPClient)(nil)

func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*http.Response), args.Error(1)
}
