package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockUserDirectory is a mock implementation of services.UserDirectory.
type MockUserDirectory struct {
	mock.Mock
}

func (m *MockUserDirectory) ResolveUserName(ctx context.Context, userID string) (string, error) {
	args := m.Called(ctx, userID)

	return args.String(0), args.Error(1)
}

// MockBusinessHandler is a mock implementation of services.BusinessHandler.
type MockBusinessHandler struct {
	mock.Mock
}

func (m *MockBusinessHandler) OnApproved(ctx context.Context, businessID string) error {
	args := m.Called(ctx, businessID)

	return args.Error(0)
}

func (m *MockBusinessHandler) OnRejected(ctx context.Context, businessID, reason string) error {
	args := m.Called(ctx, businessID, reason)

	return args.Error(0)
}
