package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmtuentertainment/apmatch/pkg/redis"
)

// TestShutdownDrainsProducersBeforeClosingJobs floods jobsCh from goroutines
// shaped like the consume and claim loops while the processor shuts down.
// The jobs channel must only close after every producer has exited, so a
// producer mid-send can never hit a closed channel.
func TestShutdownDrainsProducersBeforeClosingJobs(t *testing.T) {
	p := NewProcessor(nil, nil, nil, nil, ProcessorConfig{BatchSize: 2, WorkerCount: 2}, testLogger())
	p.running = true

	ctx := context.Background()

	for i := 0; i < p.config.WorkerCount; i++ {
		p.workerWg.Add(1)
		go p.worker(ctx, i)
	}

	// Producers keep the small channel buffer saturated so some of them are
	// blocked inside a send when stop fires.
	const producers = 4
	for i := 0; i < producers; i++ {
		p.producerWg.Add(1)
		go func() {
			defer p.producerWg.Done()
			item := jobItem{job: &redis.JobMessage{ID: "job-1", TenantID: "tenant-1", Type: "drain-test"}}
			for {
				select {
				case p.jobsCh <- item:
				case <-p.stopCh:
					return
				}
			}
		}()
	}

	go p.awaitShutdown()

	// Let the producers pile up against the buffer before stopping.
	time.Sleep(20 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, p.Stop(stopCtx))

	select {
	case _, open := <-p.stoppedC:
		assert.False(t, open)
	default:
		t.Fatal("stopped channel should be closed after Stop returns")
	}
}

// TestShutdownReleasesBlockedProducer pins a single producer inside a send
// on a full channel with no worker draining it; stop must still unblock it.
func TestShutdownReleasesBlockedProducer(t *testing.T) {
	p := NewProcessor(nil, nil, nil, nil, ProcessorConfig{BatchSize: 1, WorkerCount: 1}, testLogger())
	p.running = true

	item := jobItem{job: &redis.JobMessage{ID: "job-2", TenantID: "tenant-1", Type: "drain-test"}}

	// Fill the buffer so the next send blocks.
	for {
		select {
		case p.jobsCh <- item:
			continue
		default:
		}
		break
	}

	p.producerWg.Add(1)
	go func() {
		defer p.producerWg.Done()
		select {
		case p.jobsCh <- item:
		case <-p.stopCh:
		}
	}()

	p.workerWg.Add(1)
	go p.worker(context.Background(), 0)

	go p.awaitShutdown()

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Stop(stopCtx))
	assert.False(t, p.IsRunning())
}
