package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/racemap/mylaps-forwarder/internal/models"
	"github.com/racemap/mylaps-forwarder/internal/utils"
	"github.com/rs/zerolog"
)

// ReadSink receives batches of timing reads.
type ReadSink interface {
	Publish(ctx context.Context, reads []models.TimingRead) error
}

// Dispatcher delivers timing read batches in the background. Each batch gets
// exactly one attempt per sink; failures are logged with the rejected payload.
type Dispatcher struct {
	primary ReadSink
	mirror  ReadSink
	timeout time.Duration
	pool    *utils.WorkerPool
	logger  zerolog.Logger
}

// NewDispatcher creates a Dispatcher delivering to primary and, when mirror is
// not nil, to mirror as well.
func NewDispatcher(primary ReadSink, mirror ReadSink, workers, queueSize int, timeout time.Duration, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		primary: primary,
		mirror:  mirror,
		timeout: timeout,
		pool:    utils.NewWorkerPool(workers, queueSize),
		logger:  logger,
	}
}

// Dispatch queues reads for delivery. It only blocks while the queue is full.
func (d *Dispatcher) Dispatch(source string, reads []models.TimingRead) {
	if len(reads) == 0 {
		return
	}
	batch := make([]models.TimingRead, len(reads))
	copy(batch, reads)

	if !d.pool.Submit(func() { d.deliver(source, batch) }) {
		d.logger.Warn().Str("source", source).Int("count", len(batch)).Msg("Dispatcher stopped, dropping timing reads")
	}
}

func (d *Dispatcher) deliver(source string, reads []models.TimingRead) {
	d.publish("upstream", d.primary, source, reads)
	if d.mirror != nil {
		d.publish("mirror", d.mirror, source, reads)
	}
}

func (d *Dispatcher) publish(sinkName string, sink ReadSink, source string, reads []models.TimingRead) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := sink.Publish(ctx, reads); err != nil {
		payload, _ := json.Marshal(reads)
		d.logger.Error().
			Err(err).
			Str("sink", sinkName).
			Str("source", source).
			Int("count", len(reads)).
			RawJSON("reads", payload).
			Msg("Failed to deliver timing reads")
		return
	}
	d.logger.Info().Str("sink", sinkName).Str("source", source).Int("count", len(reads)).Msg("Timing reads delivered")
}

// Stop waits for every queued batch to be delivered.
func (d *Dispatcher) Stop() {
	d.pool.Shutdown()
}
