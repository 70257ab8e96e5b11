package jobs

import (
	"context"
	"log"
	"time"
)

// ResultsJanitor purges finished task results older than MaxAge. It is run
// periodically by a Worker so completed results do not accumulate forever.
type ResultsJanitor struct {
	queue  *Queue
	maxAge time.Duration
}

// NewResultsJanitor creates a janitor for the given queue.
func NewResultsJanitor(queue *Queue, maxAge time.Duration) *ResultsJanitor {
	return &ResultsJanitor{queue: queue, maxAge: maxAge}
}

// Sweep removes expired results. It never returns an error; a sweep that
// finds nothing to purge is the normal case.
func (j *ResultsJanitor) Sweep(_ context.Context) error {
	if purged := j.queue.Cleanup(j.maxAge); purged > 0 {
		log.Printf("purged %d expired task results", purged)
	}
	return nil
}
