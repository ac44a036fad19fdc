package repository

import (
	"github.com/steeplelabs/steeple/app/models"
	"gorm.io/gorm"
)

// trialRepository implements the TrialRepository interface
type trialRepository struct {
	db *gorm.DB
}

// NewTrialRepository creates a new trial repository instance
func NewTrialRepository(db *gorm.DB) TrialRepository {
	return &trialRepository{db: db}
}

// GetByID retrieves a trial by its ID
func (r *trialRepository) GetByID(id uint) (*models.Trial, error) {
	var trial models.Trial
	err := r.db.First(&trial, id).Error
	if err != nil {
		return nil, err
	}
	return &trial, nil
}

// GetByEmailAndSite retrieves the trial for an (email, site name) pair
func (r *trialRepository) GetByEmailAndSite(email, siteName string) (*models.Trial, error) {
	var trial models.Trial
	err := r.db.Where("email = ? AND site_name = ?", models.NormalizeEmail(email), siteName).
		First(&trial).Error
	if err != nil {
		return nil, err
	}
	return &trial, nil
}

// GetByEmail retrieves all trials for an email address, newest first
func (r *trialRepository) GetByEmail(email string) ([]models.Trial, error) {
	var trials []models.Trial
	err := r.db.Where("email = ?", models.NormalizeEmail(email)).
		Order("created_at DESC").Find(&trials).Error
	return trials, err
}

// List retrieves a paginated list of trials, newest first
func (r *trialRepository) List(offset, limit int) ([]models.Trial, error) {
	var trials []models.Trial
	err := r.db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&trials).Error
	return trials, err
}

// Count returns the total number of trials
func (r *trialRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Trial{}).Count(&count).Error
	return count, err
}
