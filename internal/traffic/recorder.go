package traffic

import (
	"fmt"
	"sync"
	"time"

	"github.com/racemap/mylaps-forwarder/pkg/file"
	"github.com/rs/zerolog"
)

// Direction of a recorded frame, as seen from the forwarder.
type Direction int

const (
	FromClient Direction = iota
	ToClient
)

func (d Direction) prefix() string {
	if d == ToClient {
		return "« to   client: "
	}
	return "» from client: "
}

// Recorder appends every raw frame to a log file. A nil Recorder records nothing.
type Recorder struct {
	filePath   string
	fileClient file.FileOperations
	logger     zerolog.Logger
	now        func() time.Time
	mu         sync.Mutex
}

// NewRecorder creates a Recorder writing to filePath. It returns nil when filePath is empty.
func NewRecorder(filePath string, fileClient file.FileOperations, logger zerolog.Logger) *Recorder {
	if filePath == "" {
		return nil
	}
	return &Recorder{
		filePath:   filePath,
		fileClient: fileClient,
		logger:     logger,
		now:        time.Now,
	}
}

// Record writes one line for frame. Failures are logged and do not interrupt the caller.
func (r *Recorder) Record(direction Direction, frame string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	line := fmt.Sprintf("%s %s%s\n", r.now().UTC().Format(time.RFC3339Nano), direction.prefix(), frame)
	if err := r.fileClient.AppendFile(r.filePath, []byte(line)); err != nil {
		r.logger.Error().Err(err).Str("file", r.filePath).Msg("Failed to record traffic")
	}
}
