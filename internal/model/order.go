package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Order statuses.  Cancelled is terminal.
const (
	OrderPending   = "pending"
	OrderShipped   = "shipped"
	OrderDelivered = "delivered"
	OrderCancelled = "cancelled"
)

// OrderStatuses lists every valid status in lifecycle order.
var OrderStatuses = []string{OrderPending, OrderShipped, OrderDelivered, OrderCancelled}

// ValidOrderStatus reports whether s is one of OrderStatuses.
func ValidOrderStatus(s string) bool {
	for _, st := range OrderStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// AllowedStatuses renders OrderStatuses for error messages.
func AllowedStatuses() string { return strings.Join(OrderStatuses, ", ") }

// Order is a row of the `orders` table: one product line of a checkout.
// Rows created by the same checkout share CheckoutRef.  UnitPrice is the
// product price captured when the order was placed.
type Order struct {
	ID          uint64          `json:"id"`
	UserID      uint64          `json:"user_id"`
	ProductID   uint64          `json:"product_id"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Status      string          `json:"status"`
	CheckoutRef string          `json:"checkout_ref"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// OrderDetail is an Order joined with its product and customer.
type OrderDetail struct {
	Order
	ProductName     string `json:"product_name"`
	ProductCategory string `json:"product_category"`
	UserName        string `json:"user_name"`
	UserEmail       string `json:"user_email"`
}

// OrderStat aggregates orders per status.
type OrderStat struct {
	Status        string `json:"status"`
	Count         int    `json:"count"`
	TotalQuantity int    `json:"total_quantity"`
}
