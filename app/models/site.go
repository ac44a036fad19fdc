package models

import "time"

// Site is a provisioned website instance on the external site builder.
// SiteName is globally unique and immutable once the preview has been
// created; the builder uses it as the site identifier on its side too.
type Site struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	SiteName    string     `gorm:"uniqueIndex;type:varchar(100);not null" json:"site_name"`
	ClientID    uint       `gorm:"not null;index" json:"client_id"`
	TemplateID  string     `gorm:"type:varchar(64);default:''" json:"template_id"`
	PreviewURL  string     `gorm:"type:varchar(255);default:''" json:"preview_url"`
	LiveURL     string     `gorm:"type:varchar(255);default:''" json:"live_url"`
	Published   bool       `gorm:"default:false;index" json:"published"`
	PublishedAt *time.Time `gorm:"type:timestamp;default:null" json:"published_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
