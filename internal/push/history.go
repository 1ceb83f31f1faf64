package push

import (
	"context"
	"sync"
	"time"

	"github.com/prochepro/edgeworker/internal/datastore/entities"
	"github.com/prochepro/edgeworker/internal/datastore/repository"
	"github.com/prochepro/edgeworker/internal/logger"
)

const (
	// saveDeliveryTimeout is the context deadline for persisting one record.
	saveDeliveryTimeout = 3 * time.Second
	// cleanupTimeout is the context deadline for the periodic deletion.
	cleanupTimeout = 5 * time.Second
	// cleanupInterval is how often the retention cleanup goroutine runs.
	cleanupInterval = 1 * time.Hour
)

// HistoryService records push delivery outcomes and prunes old records.
// Everything it does is best-effort: a storage failure is logged and never
// surfaces to the push handler.
type HistoryService struct {
	repo repository.PushDeliveryRepository
	log  logger.Logger

	mu          sync.Mutex
	cleanupStop chan struct{}
}

// NewHistoryService creates a HistoryService.
func NewHistoryService(repo repository.PushDeliveryRepository, log logger.Logger) *HistoryService {
	return &HistoryService{repo: repo, log: log}
}

// RecordDelivery persists one delivery outcome. Implements HistoryRecorder.
func (s *HistoryService) RecordDelivery(ctx context.Context, d *Descriptor, outcome string, windowCount int) {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveDeliveryTimeout)
	defer cancel()

	record := &entities.PushDelivery{
		Tag:         d.Tag,
		Title:       d.Title,
		TargetURL:   d.TargetURL,
		Outcome:     outcome,
		WindowCount: windowCount,
		DeliveredAt: time.Now(),
	}
	if err := s.repo.SaveDelivery(saveCtx, record); err != nil {
		s.log.Error("failed to save push delivery history",
			logger.String("tag", d.Tag),
			logger.Error(err))
	}
}

// StartRetentionCleanup starts a background goroutine that periodically
// deletes delivery records older than retentionDays. A value of 0 disables
// cleanup.
func (s *HistoryService) StartRetentionCleanup(retentionDays int) {
	if retentionDays <= 0 {
		return
	}
	// Stop any existing cleanup goroutine before starting a new one.
	s.stopCleanup()
	s.mu.Lock()
	s.cleanupStop = make(chan struct{})
	stopCh := s.cleanupStop
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				cutoff := time.Now().AddDate(0, 0, -retentionDays)
				cleanupCtx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
				deleted, err := s.repo.DeleteDeliveriesBefore(cleanupCtx, cutoff)
				cancel()
				if err != nil {
					s.log.Error("push history cleanup failed", logger.Error(err))
				} else if deleted > 0 {
					s.log.Info("push history cleanup completed",
						logger.Int64("deleted", deleted),
						logger.Int("retention_days", retentionDays))
				}
			case <-stopCh:
				return
			}
		}
	}()
}

// stopCleanup signals the cleanup goroutine to exit. The mutex makes the
// nil-check-then-close atomic so Stop and StartRetentionCleanup cannot
// race into a double close.
func (s *HistoryService) stopCleanup() {
	s.mu.Lock()
	ch := s.cleanupStop
	s.cleanupStop = nil
	s.mu.Unlock()
	if ch != nil {
		close(ch)
	}
}

// Stop shuts down the cleanup goroutine.
func (s *HistoryService) Stop() {
	s.stopCleanup()
}
