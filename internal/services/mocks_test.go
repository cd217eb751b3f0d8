package services

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockPaymentProvider struct {
	mock.Mock
}

func (m *MockPaymentProvider) CreatePayment(ctx context.Context, amount int64, memo string, metadata map[string]string) (*ProviderPayment, error) {
	args := m.Called(ctx, amount, memo, metadata)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ProviderPayment), args.Error(1)
}

func (m *MockPaymentProvider) GetPaymentStatus(ctx context.Context, ref string) (*ProviderPayment, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ProviderPayment), args.Error(1)
}

type MockKeyProvider struct {
	mock.Mock
}

func (m *MockKeyProvider) CreateKey(ctx context.Context, name string, limitBytes int64) (*RemoteKey, error) {
	args := m.Called(ctx, name, limitBytes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*RemoteKey), args.Error(1)
}

func (m *MockKeyProvider) DeleteKey(ctx context.Context, keyRef string) error {
	args := m.Called(ctx, keyRef)
	return args.Error(0)
}

func (m *MockKeyProvider) ListKeys(ctx context.Context) ([]RemoteKey, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]RemoteKey), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Send(ctx context.Context, accountExternalRef, text string) error {
	args := m.Called(ctx, accountExternalRef, text)
	return args.Error(0)
}
