package repository

import (
	"github.com/steeplelabs/steeple/app/models"
	"gorm.io/gorm"
)

// paymentEventRepository implements the PaymentEventRepository interface
type paymentEventRepository struct {
	db *gorm.DB
}

// NewPaymentEventRepository creates a new payment event repository instance
func NewPaymentEventRepository(db *gorm.DB) PaymentEventRepository {
	return &paymentEventRepository{db: db}
}

// List retrieves a paginated list of payment events, newest first
func (r *paymentEventRepository) List(offset, limit int) ([]models.PaymentEvent, error) {
	var events []models.PaymentEvent
	err := r.db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&events).Error
	return events, err
}

// Count returns the total number of payment events
func (r *paymentEventRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.PaymentEvent{}).Count(&count).Error
	return count, err
}

// ListUnprocessed returns events without a processed_at timestamp, oldest
// first, so the admin panel can surface stuck callbacks
func (r *paymentEventRepository) ListUnprocessed(limit int) ([]models.PaymentEvent, error) {
	var events []models.PaymentEvent
	err := r.db.Where("processed_at IS NULL").Order("created_at ASC").Limit(limit).Find(&events).Error
	return events, err
}
