package models

import "time"

// Echelon names one tier of the supply chain. Inventories and orders
// are duplicated per echelon with identical shape.
const (
	EchelonRetailer   = "retailer"
	EchelonWholesaler = "wholesaler"
)

// Inventory table names, one per echelon.
const (
	RetailerInventoryTable   = "retailer_inventories"
	WholesalerInventoryTable = "wholesaler_inventories"
)

// InventoryItem is the shared row shape of both inventory tables.
// Rows are addressed with db.Table(InventoryTable(echelon)).
type InventoryItem struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	OwnerUID  string    `gorm:"not null;index:,unique,composite:owner_product" json:"owner_uid"`
	ProductID string    `gorm:"not null;index:,unique,composite:owner_product" json:"product_id"`
	Name      string    `gorm:"not null" json:"name"`
	Price     float64   `gorm:"not null;check:price >= 0" json:"price"`
	Stock     int       `gorm:"not null;check:stock >= 0" json:"stock"`
	Category  string    `gorm:"index" json:"category"`
	Image     string    `json:"image"`
	ImageURL  string    `gorm:"-" json:"image_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InventoryTable maps an echelon to its inventory table. Returns ""
// for an unknown echelon.
func InventoryTable(echelon string) string {
	switch echelon {
	case EchelonRetailer:
		return RetailerInventoryTable
	case EchelonWholesaler:
		return WholesalerInventoryTable
	}
	return ""
}
