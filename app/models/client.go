package models

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Client is a church contact that entered the funnel. Email is the natural
// key; it is stored lowercase so lookups are case-insensitive regardless of
// how the visitor typed it.
type Client struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Email           string    `gorm:"uniqueIndex;type:varchar(200);not null" json:"email" validate:"required,email,min=5,max=200"`
	FirstName       string    `gorm:"type:varchar(100);default:''" json:"first_name" validate:"max=100"`
	LastName        string    `gorm:"type:varchar(100);default:''" json:"last_name" validate:"max=100"`
	ChurchName      string    `gorm:"type:varchar(200);default:''" json:"church_name" validate:"max=200"`
	BillingClientID string    `gorm:"type:varchar(64);default:'';index" json:"billing_client_id"`
	AccountCreated  bool      `gorm:"default:false" json:"account_created"`
	IsLegacy        bool      `gorm:"default:false" json:"is_legacy"`
	CreatedAt       time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c *Client) Validate() error {
	v := validator.New()

	return v.Struct(c)
}

// NormalizeEmail lowercases and trims an email address. Every read and write
// that touches the clients or trials tables must go through this so two rows
// can never exist for differently-cased spellings of the same address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
