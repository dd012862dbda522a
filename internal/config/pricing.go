package config

import (
	"log"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/storefront-api/internal/cart"
)

// LoadPricingConfig builds the cart pricing rules from the environment.
//
//	TAX_RATE:           fraction applied to the discounted subtotal (default 0.16)
//	SHIPPING_FEE:       flat shipping charge (default 50)
//	FREE_SHIPPING_OVER: subtotal above which shipping is waived (default 500)
//	COUPONS:            CODE:PERCENT pairs separated by commas (default DESCUENTO10:10)
//
// Malformed values fall back to the defaults and are logged.
func LoadPricingConfig() cart.Pricing {
	p := cart.DefaultPricing()
	p.TaxRate = envDecimal("TAX_RATE", p.TaxRate)
	p.ShippingFee = envDecimal("SHIPPING_FEE", p.ShippingFee)
	p.FreeShippingOver = envDecimal("FREE_SHIPPING_OVER", p.FreeShippingOver)
	if raw := envStr("COUPONS", ""); raw != "" {
		coupons, err := cart.ParseCoupons(raw)
		if err != nil {
			log.Printf("config: ignoring COUPONS: %v", err)
		} else {
			p.Coupons = coupons
		}
	}
	return p
}

func envDecimal(k string, d decimal.Decimal) decimal.Decimal {
	v := envStr(k, "")
	if v == "" {
		return d
	}
	n, err := decimal.NewFromString(v)
	if err != nil || n.IsNegative() {
		log.Printf("config: invalid decimal for %s: %q", k, v)
		return d
	}
	return n
}
