package repository

import (
	"github.com/steeplelabs/steeple/app/models"
	"gorm.io/gorm"
)

// ClientRepository defines the interface for client-related database operations
type ClientRepository interface {
	GetByID(id uint) (*models.Client, error)
	GetByEmail(email string) (*models.Client, error)
	List(offset, limit int) ([]models.Client, error)
	Count() (int64, error)
	Search(query string) ([]models.Client, error)
}

// SiteRepository defines the interface for site-related database operations
type SiteRepository interface {
	GetByID(id uint) (*models.Site, error)
	GetByName(siteName string) (*models.Site, error)
	GetByClientID(clientID uint) ([]models.Site, error)
	GetByClientEmail(email string) ([]models.Site, error)
	List(offset, limit int) ([]models.Site, error)
	Count() (int64, error)
	CountPublished() (int64, error)
}

// TrialRepository defines the interface for trial-related database operations
type TrialRepository interface {
	GetByID(id uint) (*models.Trial, error)
	GetByEmailAndSite(email, siteName string) (*models.Trial, error)
	GetByEmail(email string) ([]models.Trial, error)
	List(offset, limit int) ([]models.Trial, error)
	Count() (int64, error)
}

// PaymentEventRepository defines the interface for payment event listings
type PaymentEventRepository interface {
	List(offset, limit int) ([]models.PaymentEvent, error)
	Count() (int64, error)
	ListUnprocessed(limit int) ([]models.PaymentEvent, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	Client       ClientRepository
	Site         SiteRepository
	Trial        TrialRepository
	PaymentEvent PaymentEventRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Client:       NewClientRepository(db),
		Site:         NewSiteRepository(db),
		Trial:        NewTrialRepository(db),
		PaymentEvent: NewPaymentEventRepository(db),
	}
}
