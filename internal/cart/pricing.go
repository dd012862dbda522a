// Package cart computes checkout totals for a list of cart lines.  Prices are
// handled with shopspring/decimal so that tax and discount math never drifts
// through float rounding.
package cart

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidCoupon is returned when a non-empty coupon code is not known.
	ErrInvalidCoupon = errors.New("invalid coupon")
	// ErrInvalidQuantity is returned for lines with a quantity below one.
	ErrInvalidQuantity = errors.New("invalid quantity")
)

var hundred = decimal.NewFromInt(100)

// Line is a product in the cart with the unit price taken from the catalog.
type Line struct {
	ProductID uint64
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
}

// QuotedLine is a Line with its computed total.
type QuotedLine struct {
	ProductID uint64          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// Quote is the priced cart.  All amounts are rounded to two decimals.
type Quote struct {
	Items        []QuotedLine    `json:"items"`
	ItemCount    int             `json:"item_count"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	Discount     decimal.Decimal `json:"discount"`
	Tax          decimal.Decimal `json:"tax"`
	Shipping     decimal.Decimal `json:"shipping"`
	FreeShipping bool            `json:"free_shipping"`
	Total        decimal.Decimal `json:"total"`
	Coupon       string          `json:"coupon,omitempty"`
}

// Pricing holds the rules applied to every quote.  Coupons maps an
// upper-case code to a percentage discount on the subtotal.
type Pricing struct {
	TaxRate          decimal.Decimal
	ShippingFee      decimal.Decimal
	FreeShippingOver decimal.Decimal
	Coupons          map[string]decimal.Decimal
}

// DefaultPricing returns the store defaults: 16% tax, a flat 50 shipping fee
// waived for subtotals above 500, and the DESCUENTO10 coupon (10% off).
func DefaultPricing() Pricing {
	return Pricing{
		TaxRate:          decimal.RequireFromString("0.16"),
		ShippingFee:      decimal.NewFromInt(50),
		FreeShippingOver: decimal.NewFromInt(500),
		Coupons:          map[string]decimal.Decimal{"DESCUENTO10": decimal.NewFromInt(10)},
	}
}

// NormalizeCoupon trims and upper-cases a coupon code for lookup.
func NormalizeCoupon(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Quote prices lines and applies coupon.  An empty coupon means no discount.
//
// The discount is taken off the subtotal before tax.  Free shipping is decided
// on the undiscounted subtotal and an empty cart is never charged shipping.
func (p Pricing) Quote(lines []Line, coupon string) (Quote, error) {
	q := Quote{Items: make([]QuotedLine, 0, len(lines))}

	pct := decimal.Zero
	if code := NormalizeCoupon(coupon); code != "" {
		v, ok := p.Coupons[code]
		if !ok {
			return Quote{}, ErrInvalidCoupon
		}
		pct = v
		q.Coupon = code
	}

	subtotal := decimal.Zero
	for _, l := range lines {
		if l.Quantity < 1 {
			return Quote{}, fmt.Errorf("%w: product %d", ErrInvalidQuantity, l.ProductID)
		}
		lineTotal := l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))).Round(2)
		subtotal = subtotal.Add(lineTotal)
		q.ItemCount += l.Quantity
		q.Items = append(q.Items, QuotedLine{
			ProductID: l.ProductID,
			Name:      l.Name,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
			LineTotal: lineTotal,
		})
	}

	q.Subtotal = subtotal.Round(2)
	q.Discount = q.Subtotal.Mul(pct).Div(hundred).Round(2)
	taxable := q.Subtotal.Sub(q.Discount)
	q.Tax = taxable.Mul(p.TaxRate).Round(2)

	switch {
	case len(lines) == 0:
		q.Shipping = decimal.Zero
	case q.Subtotal.GreaterThan(p.FreeShippingOver):
		q.Shipping = decimal.Zero
		q.FreeShipping = true
	default:
		q.Shipping = p.ShippingFee.Round(2)
	}

	q.Total = taxable.Add(q.Tax).Add(q.Shipping).Round(2)
	return q, nil
}

// ParseCoupons parses "CODE:PERCENT,CODE:PERCENT".  Percentages must be in
// (0, 100].
func ParseCoupons(raw string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		code, pctRaw, ok := strings.Cut(part, ":")
		code = NormalizeCoupon(code)
		if !ok || code == "" {
			return nil, fmt.Errorf("coupon %q: expected CODE:PERCENT", part)
		}
		pct, err := decimal.NewFromString(strings.TrimSpace(pctRaw))
		if err != nil {
			return nil, fmt.Errorf("coupon %q: %w", part, err)
		}
		if !pct.IsPositive() || pct.GreaterThan(hundred) {
			return nil, fmt.Errorf("coupon %q: percent out of range", part)
		}
		out[code] = pct
	}
	return out, nil
}
