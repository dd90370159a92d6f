package utils

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestWorkerPool_RunsAllJobs tests that Shutdown waits for every queued job.
func TestWorkerPool_RunsAllJobs(t *testing.T) {
	pool := NewWorkerPool(3, 10)
	var count atomic.Int32

	for i := 0; i < 50; i++ {
		assert.True(t, pool.Submit(func() { count.Add(1) }))
	}
	pool.Shutdown()

	assert.Equal(t, int32(50), count.Load())
}

// TestWorkerPool_SubmitAfterShutdown tests that a closed pool rejects jobs instead of panicking.
func TestWorkerPool_SubmitAfterShutdown(t *testing.T) {
	pool := NewWorkerPool(1, 1)
	pool.Shutdown()
	pool.Shutdown()

	assert.False(t, pool.Submit(func() {}))
}
