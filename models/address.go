package models

import (
	"time"

	"gorm.io/gorm"
)

// Address is the one-to-one shipping address for a user. Delivery
// drivers do not carry one.
type Address struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	UserUID   string         `gorm:"uniqueIndex;not null" json:"user_uid"`
	Line1     string         `gorm:"not null" json:"line1"`
	Line2     string         `json:"line2"`
	City      string         `gorm:"not null" json:"city"`
	Pincode   string         `gorm:"not null" json:"pincode"`
	State     string         `gorm:"not null" json:"state"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Address model
func (Address) TableName() string {
	return "addresses"
}
