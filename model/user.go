package model

import (
	"time"

	"gorm.io/gorm"
)

// User stores user information
type User struct {
	ID           uint         `gorm:"primarykey"`
	Username     string       `gorm:"uniqueIndex;size:64;not null"`
	FullName     string       `gorm:"size:64;not null"`
	Email        string       `gorm:"size:256;not null"`
	Password     string       `gorm:"size:64;not null"`
	IsActive     bool         `gorm:"not null"`
	IsAdmin      bool         `gorm:"not null"`
	IsPortalUser bool         `gorm:"not null"`
	Teams        []Team       `gorm:"many2many:user_teams"`
	AuthFactors  []UserFactor `gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    gorm.DeletedAt `gorm:"index"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == 0 {
		u.ID = GenerateID()
	}
	return nil
}

type Team struct {
	ID        uint   `gorm:"primarykey,autoIncrement"`
	Name      string `gorm:"size:128;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserData holds per user preferences, two-factor settings among them.
type UserData struct {
	UserID           uint   `gorm:"primarykey;autoIncrement:false"`
	TwoFactorEnabled bool   `gorm:"not null"`
	TwoFactorMethod  string `gorm:"size:32;not null"`
	UpdatedAt        time.Time
}

type UserFactor struct {
	ID        uint   `gorm:"primarykey,autoIncrement"`
	UserID    uint   `gorm:"not null;index:idx_user_factor,unique"`
	Type      string `gorm:"size:32;not null;index:idx_user_factor,unique"`
	Secret    string `gorm:"size:128;not null"`
	Enabled   bool   `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
