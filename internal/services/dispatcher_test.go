package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/racemap/mylaps-forwarder/internal/mocks"
	"github.com/racemap/mylaps-forwarder/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
)

var testReads = []models.TimingRead{
	{Timestamp: "2012-06-06T13:11:30.904Z", ChipID: "MyLaps_0000041", TimingID: "Start", TimingName: "Start"},
}

// TestDispatcher_Delivers tests that a batch reaches the primary and the mirror sink.
func TestDispatcher_Delivers(t *testing.T) {
	primary := new(mocks.MockReadSink)
	mirror := new(mocks.MockReadSink)
	primary.On("Publish", mock.Anything, testReads).Return(nil).Once()
	mirror.On("Publish", mock.Anything, testReads).Return(nil).Once()

	d := NewDispatcher(primary, mirror, 2, 4, time.Second, zerolog.Nop())
	d.Dispatch("conn-1", testReads)
	d.Stop()

	primary.AssertExpectations(t)
	mirror.AssertExpectations(t)
}

// TestDispatcher_NoRetry tests that a failed batch is attempted exactly once and
// does not keep the mirror from receiving it.
func TestDispatcher_NoRetry(t *testing.T) {
	primary := new(mocks.MockReadSink)
	mirror := new(mocks.MockReadSink)
	primary.On("Publish", mock.Anything, testReads).Return(errors.New("status 500")).Once()
	mirror.On("Publish", mock.Anything, testReads).Return(nil).Once()

	d := NewDispatcher(primary, mirror, 1, 1, time.Second, zerolog.Nop())
	d.Dispatch("conn-1", testReads)
	d.Stop()

	primary.AssertNumberOfCalls(t, "Publish", 1)
	mirror.AssertNumberOfCalls(t, "Publish", 1)
}

// TestDispatcher_PassesDeadline tests that every attempt runs with a timeout.
func TestDispatcher_PassesDeadline(t *testing.T) {
	primary := new(mocks.MockReadSink)
	primary.On("Publish", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	}), testReads).Return(nil).Once()

	d := NewDispatcher(primary, nil, 1, 1, time.Second, zerolog.Nop())
	d.Dispatch("conn-1", testReads)
	d.Stop()

	primary.AssertExpectations(t)
}

// TestDispatcher_Ignored tests empty batches and batches after Stop.
func TestDispatcher_Ignored(t *testing.T) {
	primary := new(mocks.MockReadSink)

	d := NewDispatcher(primary, nil, 1, 1, time.Second, zerolog.Nop())
	d.Dispatch("conn-1", nil)
	d.Stop()
	d.Dispatch("conn-1", testReads)

	primary.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}
