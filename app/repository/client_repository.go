package repository

import (
	"strings"

	"github.com/steeplelabs/steeple/app/models"
	"gorm.io/gorm"
)

// clientRepository implements the ClientRepository interface
type clientRepository struct {
	db *gorm.DB
}

// NewClientRepository creates a new client repository instance
func NewClientRepository(db *gorm.DB) ClientRepository {
	return &clientRepository{db: db}
}

// GetByID retrieves a client by their ID
func (r *clientRepository) GetByID(id uint) (*models.Client, error) {
	var client models.Client
	err := r.db.First(&client, id).Error
	if err != nil {
		return nil, err
	}
	return &client, nil
}

// GetByEmail retrieves a client by their email address
func (r *clientRepository) GetByEmail(email string) (*models.Client, error) {
	var client models.Client
	err := r.db.Where("email = ?", models.NormalizeEmail(email)).First(&client).Error
	if err != nil {
		return nil, err
	}
	return &client, nil
}

// List retrieves a paginated list of clients, newest first
func (r *clientRepository) List(offset, limit int) ([]models.Client, error) {
	var clients []models.Client
	err := r.db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&clients).Error
	return clients, err
}

// Count returns the total number of clients
func (r *clientRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Client{}).Count(&count).Error
	return count, err
}

// Search searches for clients by email or church name
func (r *clientRepository) Search(query string) ([]models.Client, error) {
	var clients []models.Client
	searchPattern := "%" + strings.TrimSpace(query) + "%"
	err := r.db.Where("email LIKE ? OR church_name LIKE ?", searchPattern, searchPattern).
		Order("created_at DESC").Find(&clients).Error
	return clients, err
}
