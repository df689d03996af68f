package model

import (
	"time"

	"gorm.io/gorm"
)

type AuthToken struct {
	ID         string    `gorm:"primarykey;size:36"`
	Token      string    `gorm:"uniqueIndex;size:64;not null"`
	Hash       string    `gorm:"size:64;not null"` // password hash of the user at issuance
	Secret     string    `gorm:"size:64;not null"` // bound through the secret cookie, optional
	IPAddress  string    `gorm:"size:45;not null"`
	UserID     uint      `gorm:"index;not null"`
	PortalID   string    `gorm:"size:36;index;not null"`
	IsActive   bool      `gorm:"index;not null"`
	LastAccess time.Time `gorm:"not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (t *AuthToken) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = GenerateUUID()
	}
	return nil
}

type AuthLogRecord struct {
	ID                   string    `gorm:"primarykey;size:36"`
	Username             string    `gorm:"size:100;not null"`      // as supplied by the caller
	PortalID             string    `gorm:"size:36;not null"`       // empty when not scoped to a portal
	UserID               uint      `gorm:"index;not null"`         // zero when credentials did not match
	AuthTokenID          string    `gorm:"size:36;index;not null"` // token issued by this attempt
	IPAddress            string    `gorm:"size:45;index:idx_auth_log_ip;not null"`
	RequestTime          time.Time `gorm:"index:idx_auth_log_ip;not null"`
	RequestMethod        string    `gorm:"size:16;not null"`
	RequestURL           string    `gorm:"size:512;not null"`
	AuthenticationMethod string    `gorm:"size:64;not null"`
	IsDenied             bool      `gorm:"not null"`
	DenialReason         string    `gorm:"size:64;not null"`
	CreatedAt            time.Time
}

func (r *AuthLogRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = GenerateUUID()
	}
	return nil
}
