package mocks

import (
	"context"

	"github.com/racemap/mylaps-forwarder/internal/models"
	"github.com/stretchr/testify/mock"
)

// MockReadSink is a mock implementation of the ReadSink interface
type MockReadSink struct {
	mock.Mock
}

func (m *MockReadSink) Publish(ctx context.Context, reads []models.TimingRead) error {
	args := m.Called(ctx, reads)
	return args.Error(0)
}

// MockAvailabilityChecker is a mock implementation of the AvailabilityChecker interface
type MockAvailabilityChecker struct {
	mock.Mock
}

func (m *MockAvailabilityChecker) CheckAvailability(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockReadDispatcher is a mock implementation of the ReadDispatcher interface
type MockReadDispatcher struct {
	mock.Mock
}

func (m *MockReadDispatcher) Dispatch(source string, reads []models.TimingRead) {
	m.Called(source, reads)
}
