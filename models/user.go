package models

import (
	"time"

	"gorm.io/gorm"
)

// Roles a user account can hold. Each role sees its own slice of the
// order and inventory surface.
const (
	RoleCustomer   = "customer"
	RoleRetailer   = "retailer"
	RoleWholesaler = "wholesaler"
	RoleDelivery   = "delivery"
)

// ValidRole reports whether role is one of the known account roles.
func ValidRole(role string) bool {
	switch role {
	case RoleCustomer, RoleRetailer, RoleWholesaler, RoleDelivery:
		return true
	}
	return false
}

// User represents an account in the system. UID is the external
// identity key (Auth0 'sub' or a locally generated id); PasswordHash
// is nil for external-identity users.
type User struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	UID           string         `gorm:"uniqueIndex;not null" json:"uid"`
	Username      string         `gorm:"not null" json:"username"`
	Phone         string         `json:"phone"`
	Email         string         `gorm:"uniqueIndex;not null" json:"email"`
	Role          string         `gorm:"not null;default:'customer'" json:"role"`
	PasswordHash  *string        `json:"-"`
	EmailVerified bool           `gorm:"not null;default:false" json:"email_verified"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the User model
func (User) TableName() string {
	return "users"
}
