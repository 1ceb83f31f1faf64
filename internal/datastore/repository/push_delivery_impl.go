package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/prochepro/edgeworker/internal/datastore/entities"
)

// pushDeliveryRepository implements PushDeliveryRepository.
type pushDeliveryRepository struct {
	db *gorm.DB
}

// NewPushDeliveryRepository creates a new PushDeliveryRepository.
func NewPushDeliveryRepository(db *gorm.DB) PushDeliveryRepository {
	return &pushDeliveryRepository{db: db}
}

// SaveDelivery persists one delivery record.
func (r *pushDeliveryRepository) SaveDelivery(ctx context.Context, delivery *entities.PushDelivery) error {
	if err := r.db.WithContext(ctx).Create(delivery).Error; err != nil {
		return fmt.Errorf("failed to save push delivery: %w", err)
	}
	return nil
}

// GetDelivery returns a single delivery record by ID.
// Returns ErrDeliveryNotFound if the record does not exist.
func (r *pushDeliveryRepository) GetDelivery(ctx context.Context, id uint) (*entities.PushDelivery, error) {
	var delivery entities.PushDelivery
	if err := r.db.WithContext(ctx).First(&delivery, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("failed to get push delivery %d: %w", id, err)
	}
	return &delivery, nil
}

// ListDeliveries returns delivery records matching the filter, newest
// first, with the total count before pagination.
func (r *pushDeliveryRepository) ListDeliveries(ctx context.Context, filter PushDeliveryFilter) ([]entities.PushDelivery, int64, error) {
	query := r.db.WithContext(ctx).Model(&entities.PushDelivery{})
	if filter.Tag != "" {
		query = query.Where("tag = ?", filter.Tag)
	}
	if filter.Outcome != "" {
		query = query.Where("outcome = ?", filter.Outcome)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count push deliveries: %w", err)
	}

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var deliveries []entities.PushDelivery
	if err := query.Order("delivered_at DESC, id DESC").Find(&deliveries).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list push deliveries: %w", err)
	}
	return deliveries, total, nil
}

// CountByOutcome returns the number of deliveries with the given outcome.
func (r *pushDeliveryRepository) CountByOutcome(ctx context.Context, outcome string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entities.PushDelivery{}).
		Where("outcome = ?", outcome).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count deliveries by outcome: %w", err)
	}
	return count, nil
}

// DeleteDeliveriesBefore removes records delivered before the cutoff and
// returns how many were deleted.
func (r *pushDeliveryRepository) DeleteDeliveriesBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("delivered_at < ?", before).
		Delete(&entities.PushDelivery{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete old push deliveries: %w", result.Error)
	}
	return result.RowsAffected, nil
}
