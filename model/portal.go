package model

import (
	"time"

	"gorm.io/gorm"
)

// Portal is a tenant: users authenticating through it must be its members.
type Portal struct {
	ID        string `gorm:"primarykey;size:36"`
	Name      string `gorm:"size:128;not null"`
	Users     []User `gorm:"many2many:portal_users"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (p *Portal) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = GenerateUUID()
	}
	return nil
}
