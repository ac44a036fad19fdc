package repository

import (
	"github.com/steeplelabs/steeple/app/models"
	"gorm.io/gorm"
)

// siteRepository implements the SiteRepository interface
type siteRepository struct {
	db *gorm.DB
}

// NewSiteRepository creates a new site repository instance
func NewSiteRepository(db *gorm.DB) SiteRepository {
	return &siteRepository{db: db}
}

// GetByID retrieves a site by its ID
func (r *siteRepository) GetByID(id uint) (*models.Site, error) {
	var site models.Site
	err := r.db.First(&site, id).Error
	if err != nil {
		return nil, err
	}
	return &site, nil
}

// GetByName retrieves a site by its unique site name
func (r *siteRepository) GetByName(siteName string) (*models.Site, error) {
	var site models.Site
	err := r.db.Where("site_name = ?", siteName).First(&site).Error
	if err != nil {
		return nil, err
	}
	return &site, nil
}

// GetByClientID retrieves all sites belonging to a client
func (r *siteRepository) GetByClientID(clientID uint) ([]models.Site, error) {
	var sites []models.Site
	err := r.db.Where("client_id = ?", clientID).Order("created_at DESC").Find(&sites).Error
	return sites, err
}

// GetByClientEmail retrieves all sites belonging to the client with the
// given email address
func (r *siteRepository) GetByClientEmail(email string) ([]models.Site, error) {
	var client models.Client
	if err := r.db.Where("email = ?", models.NormalizeEmail(email)).First(&client).Error; err != nil {
		return nil, err
	}
	return r.GetByClientID(client.ID)
}

// List retrieves a paginated list of sites, newest first
func (r *siteRepository) List(offset, limit int) ([]models.Site, error) {
	var sites []models.Site
	err := r.db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&sites).Error
	return sites, err
}

// Count returns the total number of sites
func (r *siteRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Site{}).Count(&count).Error
	return count, err
}

// CountPublished returns the number of published sites
func (r *siteRepository) CountPublished() (int64, error) {
	var count int64
	err := r.db.Model(&models.Site{}).Where("published = ?", true).Count(&count).Error
	return count, err
}
