package funnel

import (
	"time"

	"github.com/steeplelabs/steeple/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the funnel service. All email
// parameters are normalized to lowercase inside the implementation so the
// case-insensitivity invariant cannot depend on callers remembering to do it.
type Repository interface {
	GetOrCreateClient(client *models.Client) (*models.Client, error)
	GetClientByEmail(email string) (*models.Client, error)
	UpdateClientFields(email string, fields map[string]any) (*models.Client, error)

	GetOrCreateSite(site *models.Site) (*models.Site, error)
	GetSiteByName(siteName string) (*models.Site, error)
	UpdateSiteFields(siteName string, fields map[string]any) (*models.Site, error)

	GetOrCreateTrial(trial *models.Trial) (*models.Trial, error)
	GetTrial(email, siteName string) (*models.Trial, error)
	GetTrialByInvoiceID(invoiceID string) (*models.Trial, error)
	ListTrialsByEmail(email string) ([]models.Trial, error)
	UpdateTrialFields(email, siteName string, fields map[string]any) (*models.Trial, error)
	GrantPublishAccess(email, siteName string) (*models.Trial, error)

	CreatePaymentEventIfNotExists(event *models.PaymentEvent) (bool, *models.PaymentEvent, error)
	MarkPaymentEventProcessed(id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a funnel repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// GetOrCreateClient inserts the client keyed by its lowercase email, or
// returns the existing row untouched. A concurrent insert losing the race
// hits the unique index, which the ON CONFLICT DO NOTHING clause absorbs;
// the re-read below then returns whichever row won.
func (r *gormRepository) GetOrCreateClient(client *models.Client) (*models.Client, error) {
	client.Email = models.NormalizeEmail(client.Email)
	if err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoNothing: true,
	}).Create(client).Error; err != nil {
		return nil, err
	}

	var stored models.Client
	if err := r.db.Where("email = ?", client.Email).First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

func (r *gormRepository) GetClientByEmail(email string) (*models.Client, error) {
	var client models.Client
	err := r.db.Where("email = ?", models.NormalizeEmail(email)).First(&client).Error
	if err != nil {
		return nil, err
	}
	return &client, nil
}

// UpdateClientFields applies a sparse update: only the given fields are
// written, and the fully updated row is read back so callers see
// server-computed values like updated_at.
func (r *gormRepository) UpdateClientFields(email string, fields map[string]any) (*models.Client, error) {
	normalized := models.NormalizeEmail(email)
	tx := r.db.Model(&models.Client{}).Where("email = ?", normalized).Updates(fields)
	if tx.Error != nil {
		return nil, tx.Error
	}
	if tx.RowsAffected == 0 {
		// Distinguish "no such client" from "nothing changed".
		var count int64
		if err := r.db.Model(&models.Client{}).Where("email = ?", normalized).Count(&count).Error; err != nil {
			return nil, err
		}
		if count == 0 {
			return nil, gorm.ErrRecordNotFound
		}
	}
	return r.GetClientByEmail(normalized)
}

func (r *gormRepository) GetOrCreateSite(site *models.Site) (*models.Site, error) {
	if err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "site_name"}},
		DoNothing: true,
	}).Create(site).Error; err != nil {
		return nil, err
	}

	var stored models.Site
	if err := r.db.Where("site_name = ?", site.SiteName).First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

func (r *gormRepository) GetSiteByName(siteName string) (*models.Site, error) {
	var site models.Site
	err := r.db.Where("site_name = ?", siteName).First(&site).Error
	if err != nil {
		return nil, err
	}
	return &site, nil
}

func (r *gormRepository) UpdateSiteFields(siteName string, fields map[string]any) (*models.Site, error) {
	tx := r.db.Model(&models.Site{}).Where("site_name = ?", siteName).Updates(fields)
	if tx.Error != nil {
		return nil, tx.Error
	}
	if tx.RowsAffected == 0 {
		var count int64
		if err := r.db.Model(&models.Site{}).Where("site_name = ?", siteName).Count(&count).Error; err != nil {
			return nil, err
		}
		if count == 0 {
			return nil, gorm.ErrRecordNotFound
		}
	}
	return r.GetSiteByName(siteName)
}

// GetOrCreateTrial upserts by the (email, site_name) pair. An existing trial
// is returned unmodified; repeat funnel visits must not reset the clock.
func (r *gormRepository) GetOrCreateTrial(trial *models.Trial) (*models.Trial, error) {
	trial.Email = models.NormalizeEmail(trial.Email)
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "email"},
			{Name: "site_name"},
		},
		DoNothing: true,
	}).Create(trial).Error; err != nil {
		return nil, err
	}

	return r.GetTrial(trial.Email, trial.SiteName)
}

func (r *gormRepository) GetTrial(email, siteName string) (*models.Trial, error) {
	var trial models.Trial
	err := r.db.Where("email = ? AND site_name = ?", models.NormalizeEmail(email), siteName).First(&trial).Error
	if err != nil {
		return nil, err
	}
	return &trial, nil
}

func (r *gormRepository) GetTrialByInvoiceID(invoiceID string) (*models.Trial, error) {
	var trial models.Trial
	err := r.db.Where("invoice_id = ? AND invoice_id <> ''", invoiceID).First(&trial).Error
	if err != nil {
		return nil, err
	}
	return &trial, nil
}

func (r *gormRepository) ListTrialsByEmail(email string) ([]models.Trial, error) {
	var trials []models.Trial
	err := r.db.Where("email = ?", models.NormalizeEmail(email)).
		Order("created_at DESC").Find(&trials).Error
	return trials, err
}

func (r *gormRepository) UpdateTrialFields(email, siteName string, fields map[string]any) (*models.Trial, error) {
	normalized := models.NormalizeEmail(email)
	tx := r.db.Model(&models.Trial{}).
		Where("email = ? AND site_name = ?", normalized, siteName).
		Updates(fields)
	if tx.Error != nil {
		return nil, tx.Error
	}
	if tx.RowsAffected == 0 {
		var count int64
		if err := r.db.Model(&models.Trial{}).
			Where("email = ? AND site_name = ?", normalized, siteName).
			Count(&count).Error; err != nil {
			return nil, err
		}
		if count == 0 {
			return nil, gorm.ErrRecordNotFound
		}
	}
	return r.GetTrial(normalized, siteName)
}

// GrantPublishAccess flips has_publish_access in a single conditional UPDATE
// that re-checks has_paid at write time, so an interleaved writer can never
// produce a published-but-unpaid trial.
func (r *gormRepository) GrantPublishAccess(email, siteName string) (*models.Trial, error) {
	normalized := models.NormalizeEmail(email)
	tx := r.db.Model(&models.Trial{}).
		Where("email = ? AND site_name = ? AND has_paid = ?", normalized, siteName, true).
		Update("has_publish_access", true)
	if tx.Error != nil {
		return nil, tx.Error
	}
	if tx.RowsAffected == 0 {
		// No such trial, an unpaid one, or a repeat grant that changed nothing.
		trial, err := r.GetTrial(normalized, siteName)
		if err != nil {
			return nil, err
		}
		if trial.HasPaid && trial.HasPublishAccess {
			return trial, nil
		}
		return nil, ErrNotPaid
	}
	return r.GetTrial(normalized, siteName)
}

func (r *gormRepository) CreatePaymentEventIfNotExists(event *models.PaymentEvent) (bool, *models.PaymentEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.PaymentEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkPaymentEventProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.PaymentEvent{}).Where("id = ?", id).Updates(updates).Error
}
