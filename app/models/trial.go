package models

import "time"

// Trial is the entitlement window for one (email, site name) pair. At most
// one trial exists per church per site; repeat funnel visits hit the same
// row and never reset the clock. HasPublishAccess may only become true after
// HasPaid is true; the application enforces this at write time and the
// migration adds a CHECK constraint as a second line of defense.
type Trial struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	ClientID         *uint      `gorm:"default:null;index" json:"client_id,omitempty"`
	SiteID           *uint      `gorm:"default:null;index" json:"site_id,omitempty"`
	Email            string     `gorm:"type:varchar(200);not null;index:ux_trials_email_site,unique,priority:1" json:"email"`
	SiteName         string     `gorm:"type:varchar(100);not null;index:ux_trials_email_site,unique,priority:2" json:"site_name"`
	ChurchName       string     `gorm:"type:varchar(200);default:''" json:"church_name"`
	InvoiceID        string     `gorm:"type:varchar(64);default:'';index" json:"invoice_id"`
	TrialStart       time.Time  `gorm:"type:timestamp;not null" json:"trial_start"`
	TrialExpiry      time.Time  `gorm:"type:timestamp;not null" json:"trial_expiry"`
	HasPaid          bool       `gorm:"default:false" json:"has_paid"`
	HasPublishAccess bool       `gorm:"default:false" json:"has_publish_access"`
	UpgradedAt       *time.Time `gorm:"type:timestamp;default:null" json:"upgraded_at,omitempty"`
	CreatedAt        time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
