package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog entry from the `products` table.  Price is stored as
// DECIMAL(10,2) and must be positive; Stock never drops below zero.
type Product struct {
	ID          uint64          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Subcategory string          `json:"subcategory"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Image       string          `json:"image"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// InStock reports whether at least qty units are available.
func (p *Product) InStock(qty int) bool { return qty > 0 && p.Stock >= qty }
