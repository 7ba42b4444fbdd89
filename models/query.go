package models

import (
	"time"

	"gorm.io/gorm"
)

// Query is a buyer/seller question tied to a delivered order. It is
// mutated only to flip Resolved.
type Query struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	OrderID    uint           `gorm:"not null;index" json:"order_id"`
	OrderType  string         `gorm:"not null" json:"order_type"`
	Message    string         `gorm:"type:text;not null" json:"message"`
	SenderRole string         `gorm:"not null" json:"sender_role"` // customer or retailer
	Resolved   bool           `gorm:"not null;default:false" json:"resolved"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Query model
func (Query) TableName() string {
	return "queries"
}
