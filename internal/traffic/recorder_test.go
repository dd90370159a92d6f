package traffic

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/racemap/mylaps-forwarder/internal/mocks"
	"github.com/racemap/mylaps-forwarder/pkg/file"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRecorder_Record tests the line format for both directions.
func TestRecorder_Record(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "traffic.log")
	r := NewRecorder(path, file.NewFileService(), zerolog.Nop())
	r.now = func() time.Time { return time.Date(2025, 3, 8, 10, 0, 0, 0, time.UTC) }

	r.Record(FromClient, "Start@Pong@")
	r.Record(ToClient, "RacemapMyLapsServer_v1.0.0@AckPong@@Version2.1@")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "2025-03-08T10:00:00Z » from client: Start@Pong@", lines[0])
	assert.Equal(t, "2025-03-08T10:00:00Z « to   client: RacemapMyLapsServer_v1.0.0@AckPong@@Version2.1@", lines[1])
}

// TestRecorder_Disabled tests that an empty path disables recording.
func TestRecorder_Disabled(t *testing.T) {
	r := NewRecorder("", file.NewFileService(), zerolog.Nop())

	assert.Nil(t, r)
	assert.NotPanics(t, func() { r.Record(FromClient, "x") })
}

// TestRecorder_WriteFailure tests that a write error is swallowed.
func TestRecorder_WriteFailure(t *testing.T) {
	mockFiles := new(mocks.MockFileOperations)
	mockFiles.On("AppendFile", "/traffic.log", "2025-03-08T10:00:00Z » from client: x\n").Return(errors.New("disk full"))
	r := NewRecorder("/traffic.log", mockFiles, zerolog.Nop())
	r.now = func() time.Time { return time.Date(2025, 3, 8, 10, 0, 0, 0, time.UTC) }

	assert.NotPanics(t, func() { r.Record(FromClient, "x") })
	mockFiles.AssertExpectations(t)
}
