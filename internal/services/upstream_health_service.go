package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// AvailabilityChecker probes whether the upstream accepts our submissions.
type AvailabilityChecker interface {
	CheckAvailability(ctx context.Context) error
}

// UpstreamHealthService periodically checks that the upstream API is reachable
// and accepts the configured token.
type UpstreamHealthService struct {
	Checker  AvailabilityChecker
	Interval time.Duration
	Timeout  time.Duration
	Logger   zerolog.Logger

	available atomic.Bool
	checks    atomic.Int64
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewUpstreamHealthService initializes a new UpstreamHealthService. An
// interval of 0 checks once at startup.
func NewUpstreamHealthService(checker AvailabilityChecker, interval, timeout time.Duration, logger zerolog.Logger) *UpstreamHealthService {
	return &UpstreamHealthService{
		Checker:  checker,
		Interval: interval,
		Timeout:  timeout,
		Logger:   logger,
	}
}

// Start runs a first check and then the check loop in a separate goroutine.
func (u *UpstreamHealthService) Start() error {
	if u.ctx != nil {
		u.Logger.Warn().Msg("UpstreamHealthService is already running")
		return errors.New("upstream health service is already running")
	}

	u.ctx, u.cancel = context.WithCancel(context.Background())

	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		u.runCheckLoop()
	}()

	u.Logger.Info().Dur("interval", u.Interval).Msg("UpstreamHealthService started successfully")
	return nil
}

// Stop gracefully stops the health check loop.
func (u *UpstreamHealthService) Stop() error {
	if u.ctx == nil {
		u.Logger.Warn().Msg("UpstreamHealthService is not running")
		return errors.New("upstream health service is not running")
	}

	u.cancel()
	u.wg.Wait()

	u.ctx = nil
	u.cancel = nil

	u.Logger.Info().Msg("UpstreamHealthService stopped successfully")
	return nil
}

// Available reports the outcome of the latest check.
func (u *UpstreamHealthService) Available() bool {
	return u.available.Load()
}

// Checks returns the number of completed checks.
func (u *UpstreamHealthService) Checks() int64 {
	return u.checks.Load()
}

func (u *UpstreamHealthService) runCheckLoop() {
	u.check()
	if u.Interval <= 0 {
		return
	}

	ticker := time.NewTicker(u.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			u.check()
		case <-u.ctx.Done():
			u.Logger.Info().Msg("UpstreamHealthService stopping gracefully")
			return
		}
	}
}

func (u *UpstreamHealthService) check() {
	ctx, cancel := context.WithTimeout(u.ctx, u.Timeout)
	defer cancel()

	err := u.Checker.CheckAvailability(ctx)
	u.checks.Add(1)
	if err != nil {
		u.available.Store(false)
		u.Logger.Error().Err(err).Msg("Upstream API is not available")
		return
	}
	if !u.available.Swap(true) {
		u.Logger.Info().Msg("Upstream API is available")
	}
}
