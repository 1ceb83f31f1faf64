package worker

import (
	"errors"
	"fmt"
	"sync"

	"github.com/prochepro/edgeworker/internal/logger"
)

// Lifetime extends an event's life until every task registered on it has
// settled, so the worker is never torn down with work in flight. Tasks run
// concurrently; panics are contained and reported as errors.
type Lifetime struct {
	wg   sync.WaitGroup
	mu   sync.Mutex
	errs []error
	log  logger.Logger
}

// NewLifetime creates a Lifetime.
func NewLifetime(log logger.Logger) *Lifetime {
	return &Lifetime{log: log}
}

// Go registers and starts one task. The name identifies the task in logs.
func (l *Lifetime) Go(name string, fn func() error) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				l.record(fmt.Errorf("task %s panicked: %v", name, r))
			}
		}()
		if err := fn(); err != nil {
			l.log.Warn("event task failed",
				logger.String("task", name),
				logger.Error(err))
			l.record(fmt.Errorf("task %s: %w", name, err))
		}
	}()
}

// Wait blocks until every registered task has settled and returns their
// joined errors, if any.
func (l *Lifetime) Wait() error {
	l.wg.Wait()
	l.mu.Lock()
	defer l.mu.Unlock()
	return errors.Join(l.errs...)
}

func (l *Lifetime) record(err error) {
	l.mu.Lock()
	l.errs = append(l.errs, err)
	l.mu.Unlock()
}
