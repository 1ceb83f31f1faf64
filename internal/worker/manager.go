package worker

import (
	"fmt"
	"sync"
)

var (
	instance *Worker
	once     sync.Once
	mu       sync.RWMutex
)

// Initialize sets up the global worker instance.
func Initialize(w *Worker) {
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		instance = w
	})
}

// GetWorker returns the global worker instance, or nil before Initialize.
func GetWorker() *Worker {
	mu.RLock()
	defer mu.RUnlock()
	return instance
}

// SetWorkerForTesting allows setting a custom worker instance for tests.
// It returns an error if the worker is already initialized in production.
func SetWorkerForTesting(w *Worker) error {
	mu.Lock()
	defer mu.Unlock()

	if instance != nil {
		return fmt.Errorf("worker already initialized")
	}
	instance = w
	return nil
}

// MustGetWorker returns the worker instance or panics if not initialized.
func MustGetWorker() *Worker {
	w := GetWorker()
	if w == nil {
		panic("worker not initialized")
	}
	return w
}

// IsInitialized checks if the worker has been initialized.
func IsInitialized() bool {
	mu.RLock()
	defer mu.RUnlock()
	return instance != nil
}
