package services

import (
	"errors"
	"testing"
	"time"

	"github.com/racemap/mylaps-forwarder/internal/mocks"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// TestUpstreamHealthService_Available tests that a successful check marks the upstream available.
func TestUpstreamHealthService_Available(t *testing.T) {
	checker := new(mocks.MockAvailabilityChecker)
	checker.On("CheckAvailability", mock.Anything).Return(nil)

	u := NewUpstreamHealthService(checker, 0, time.Second, zerolog.Nop())
	assert.False(t, u.Available())

	assert.NoError(t, u.Start())
	assert.Eventually(t, u.Available, time.Second, 5*time.Millisecond)

	err := u.Start()
	assert.EqualError(t, err, "upstream health service is already running")

	assert.NoError(t, u.Stop())
	assert.EqualError(t, u.Stop(), "upstream health service is not running")
	assert.Equal(t, int64(1), u.Checks())
}

// TestUpstreamHealthService_Unavailable tests that failures are recorded and not fatal.
func TestUpstreamHealthService_Unavailable(t *testing.T) {
	checker := new(mocks.MockAvailabilityChecker)
	checker.On("CheckAvailability", mock.Anything).Return(errors.New("401 invalid token"))

	u := NewUpstreamHealthService(checker, 5*time.Millisecond, time.Second, zerolog.Nop())

	assert.NoError(t, u.Start())
	assert.Eventually(t, func() bool { return u.Checks() >= 3 }, time.Second, 5*time.Millisecond)
	assert.False(t, u.Available())
	assert.NoError(t, u.Stop())
}

// TestUpstreamHealthService_Recovers tests the transition from unavailable to available.
func TestUpstreamHealthService_Recovers(t *testing.T) {
	checker := new(mocks.MockAvailabilityChecker)
	checker.On("CheckAvailability", mock.Anything).Return(errors.New("connection refused")).Once()
	checker.On("CheckAvailability", mock.Anything).Return(nil)

	u := NewUpstreamHealthService(checker, 5*time.Millisecond, time.Second, zerolog.Nop())

	assert.NoError(t, u.Start())
	assert.Eventually(t, u.Available, time.Second, 5*time.Millisecond)
	assert.NoError(t, u.Stop())
}
