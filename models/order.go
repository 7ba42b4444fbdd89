package models

import "time"

// Order types select which order table an operation works on.
// Customer orders are placed by customers against retailers; retailer
// orders are placed by retailers against wholesalers.
const (
	OrderTypeCustomer = "customer"
	OrderTypeRetailer = "retailer"
)

// Order table names, one per echelon.
const (
	CustomerOrderTable = "customer_orders"
	RetailerOrderTable = "retailer_orders"
)

// Order is the shared row shape of both order tables. Orders are
// created once at placement and mutated in place through status and
// rating fields; they are never deleted.
type Order struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	BuyerUID          string     `gorm:"not null;index" json:"buyer_uid"`
	SellerUID         string     `gorm:"not null;index" json:"seller_uid"`
	ProductID         string     `gorm:"not null" json:"product_id"`
	ProductName       string     `gorm:"not null" json:"product_name"`
	Quantity          int        `gorm:"not null;check:quantity >= 1" json:"quantity"`
	UnitPrice         float64    `gorm:"not null" json:"unit_price"`
	Total             float64    `gorm:"not null" json:"total"`
	Status            string     `gorm:"not null;default:'Placed'" json:"status"`
	Rating            *int       `json:"rating,omitempty"`
	Feedback          *string    `json:"feedback,omitempty"`
	DeliveryDriverUID *string    `gorm:"index" json:"delivery_driver_uid,omitempty"`
	OrderDate         time.Time  `gorm:"not null" json:"order_date"`
	DeliveredDate     *time.Time `json:"delivered_date,omitempty"`
	DeliveryConfirmed bool       `gorm:"not null;default:false" json:"delivery_confirmed"`
	CheckoutSessionID *string    `json:"checkout_session_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// ValidOrderType reports whether orderType names a known order table.
func ValidOrderType(orderType string) bool {
	return orderType == OrderTypeCustomer || orderType == OrderTypeRetailer
}

// OrderTable maps an order type to its table. Returns "" for an
// unknown type.
func OrderTable(orderType string) string {
	switch orderType {
	case OrderTypeCustomer:
		return CustomerOrderTable
	case OrderTypeRetailer:
		return RetailerOrderTable
	}
	return ""
}

// SellerRole returns the role that acts as the counterparty-seller
// for the given order type.
func SellerRole(orderType string) string {
	if orderType == OrderTypeCustomer {
		return RoleRetailer
	}
	return RoleWholesaler
}

// BuyerRole returns the role that places orders of the given type.
func BuyerRole(orderType string) string {
	if orderType == OrderTypeCustomer {
		return RoleCustomer
	}
	return RoleRetailer
}
