package jobs

import (
	"context"
	"log"
	"time"
)

// Sweeper is a periodic maintenance job run by a Worker.
type Sweeper interface {
	Sweep(ctx context.Context) error
}

// Worker runs a Sweeper on a fixed interval until stopped.
type Worker struct {
	sweeper  Sweeper
	interval time.Duration
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewWorker creates a worker that is not yet running.
func NewWorker(sweeper Sweeper, interval time.Duration) *Worker {
	return &Worker{
		sweeper:  sweeper,
		interval: interval,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins the polling loop. It blocks until the context is cancelled
// or Stop is called, so callers normally run it in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	defer close(w.doneChan)

	log.Printf("maintenance worker started, interval %v", w.interval)

	for {
		select {
		case <-ctx.Done():
			log.Println("maintenance worker stopped: context cancelled")
			return
		case <-w.stopChan:
			log.Println("maintenance worker stopped")
			return
		case <-ticker.C:
			if err := w.sweeper.Sweep(ctx); err != nil {
				log.Printf("maintenance sweep failed: %v", err)
			}
		}
	}
}

// Stop signals the worker and waits for the loop to exit.
func (w *Worker) Stop() {
	close(w.stopChan)
	<-w.doneChan
}
