package entities

import "time"

// PushDelivery records the outcome of one handled push event.
type PushDelivery struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Tag         string    `gorm:"size:255;not null;index" json:"tag"`
	Title       string    `gorm:"size:500;default:''" json:"title"`
	TargetURL   string    `gorm:"size:1000;default:''" json:"target_url"`
	Outcome     string    `gorm:"size:50;not null;index" json:"outcome"`
	WindowCount int       `gorm:"not null;default:0" json:"window_count"`
	DeliveredAt time.Time `gorm:"not null;index" json:"delivered_at"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for GORM.
func (PushDelivery) TableName() string {
	return "push_deliveries"
}
