package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleDonor     Role = "donor"
	RoleRecipient Role = "recipient"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleDonor, RoleRecipient, RoleAdmin:
		return true
	}
	return false
}

// SelfAssignable roles can be picked at signup or toggled from the profile page.
func (r Role) SelfAssignable() bool {
	return r == RoleUser || r == RoleDonor || r == RoleRecipient
}

type User struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	FirstName    string         `gorm:"type:varchar(100);not null" json:"firstName"`
	LastName     string         `gorm:"type:varchar(100);not null" json:"lastName"`
	Username     string         `gorm:"type:varchar(50);uniqueIndex;not null" json:"username"`
	Email        string         `gorm:"type:varchar(100);uniqueIndex;not null" json:"email"`
	PasswordHash string         `gorm:"type:varchar(255);not null" json:"-"` // Never expose password hash in JSON
	DOB          *time.Time     `json:"dob,omitempty"`
	Gender       string         `gorm:"type:varchar(20)" json:"gender,omitempty"`
	Phone        string         `gorm:"type:varchar(30)" json:"phone,omitempty"`
	Address      string         `gorm:"type:text" json:"address,omitempty"`
	Role         Role           `gorm:"type:varchar(20);not null;default:'user';index" json:"role"`
	LastLogin    *time.Time     `json:"lastLogin,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// UserSummary is the public projection attached to donations, requests and messages.
type UserSummary struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName,omitempty"`
}

// UserContact is only revealed to the counterparty once a request is approved.
type UserContact struct {
	UserSummary
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Username: u.Username, FirstName: u.FirstName, LastName: u.LastName}
}

func (u *User) Contact(reveal bool) UserContact {
	c := UserContact{UserSummary: u.Summary()}
	if reveal {
		c.Email = u.Email
		c.Phone = u.Phone
		c.Address = u.Address
	}
	return c
}
