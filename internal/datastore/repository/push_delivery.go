// Package repository provides persistence for push delivery history.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/prochepro/edgeworker/internal/datastore/entities"
)

// ErrDeliveryNotFound is returned when a delivery record does not exist.
var ErrDeliveryNotFound = errors.New("push delivery not found")

// PushDeliveryRepository handles push delivery history operations.
type PushDeliveryRepository interface {
	SaveDelivery(ctx context.Context, delivery *entities.PushDelivery) error
	GetDelivery(ctx context.Context, id uint) (*entities.PushDelivery, error)
	ListDeliveries(ctx context.Context, filter PushDeliveryFilter) ([]entities.PushDelivery, int64, error)
	CountByOutcome(ctx context.Context, outcome string) (int64, error)
	DeleteDeliveriesBefore(ctx context.Context, before time.Time) (int64, error)
}

// PushDeliveryFilter controls history listing queries.
type PushDeliveryFilter struct {
	Tag     string
	Outcome string
	Limit   int
	Offset  int
}
