package floorplan

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// BatchUpdater renders one batch. *Engine implements it.
type BatchUpdater interface {
	Update(batch *ObservationBatch) (*UpdateReport, error)
}

type job struct {
	id    string
	batch *ObservationBatch
}

// Dispatcher runs batches on a fixed set of workers fed by a bounded queue.
// Submit never blocks the caller.
type Dispatcher struct {
	updater BatchUpdater
	queue   chan job
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts workers goroutines draining a queue of queueSize batches
func NewDispatcher(updater BatchUpdater, workers, queueSize int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	d := &Dispatcher{
		updater: updater,
		queue:   make(chan job, queueSize),
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	return d
}

// Submit enqueues a batch and returns its job id
func (d *Dispatcher) Submit(batch *ObservationBatch) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return "", ErrDispatcherClosed
	}

	j := job{id: uuid.NewString(), batch: batch}
	select {
	case d.queue <- j:
		DispatchQueueDepth.Set(float64(len(d.queue)))
		BatchesTotal.WithLabelValues("accepted").Inc()
		return j.id, nil
	default:
		return "", ErrQueueFull
	}
}

// Close stops accepting batches, lets queued batches finish and waits for the workers
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) worker(n int) {
	defer d.wg.Done()
	for j := range d.queue {
		DispatchQueueDepth.Set(float64(len(d.queue)))
		logger := log.With().Str("job", j.id).Int("worker", n).Logger()
		if j.batch == nil {
			logger.Warn().Msg("Dropping empty job")
			continue
		}

		report, err := d.updater.Update(j.batch)
		if err != nil {
			logger.Error().Err(err).Str("network", j.batch.NetworkID).Msg("Batch finished with errors")
		}
		if report != nil {
			logger.Debug().Str("network", report.NetworkID).Int("floors", len(report.Floors)).Msg("Batch rendered")
		}
	}
}
