package cart

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Equal(t, want, got.StringFixed(2))
}

func TestQuoteTotals(t *testing.T) {
	q, err := DefaultPricing().Quote([]Line{
		{ProductID: 1, Name: "Keyboard", UnitPrice: dec("100"), Quantity: 2},
		{ProductID: 2, Name: "Mouse", UnitPrice: dec("50"), Quantity: 1},
	}, "")
	require.NoError(t, err)

	assertAmount(t, "250.00", q.Subtotal)
	assertAmount(t, "0.00", q.Discount)
	assertAmount(t, "40.00", q.Tax)
	assertAmount(t, "50.00", q.Shipping)
	assertAmount(t, "340.00", q.Total)
	assert.False(t, q.FreeShipping)
	assert.Equal(t, 3, q.ItemCount)
	require.Len(t, q.Items, 2)
	assertAmount(t, "200.00", q.Items[0].LineTotal)
}

func TestQuoteFreeShippingAboveThreshold(t *testing.T) {
	p := DefaultPricing()

	q, err := p.Quote([]Line{{ProductID: 1, UnitPrice: dec("600"), Quantity: 1}}, "")
	require.NoError(t, err)
	assert.True(t, q.FreeShipping)
	assertAmount(t, "0.00", q.Shipping)
	assertAmount(t, "696.00", q.Total)

	// the threshold itself still pays shipping
	q, err = p.Quote([]Line{{ProductID: 1, UnitPrice: dec("250"), Quantity: 2}}, "")
	require.NoError(t, err)
	assert.False(t, q.FreeShipping)
	assertAmount(t, "50.00", q.Shipping)
}

func TestQuoteCoupon(t *testing.T) {
	q, err := DefaultPricing().Quote([]Line{{ProductID: 1, UnitPrice: dec("100"), Quantity: 1}}, "  descuento10 ")
	require.NoError(t, err)

	assert.Equal(t, "DESCUENTO10", q.Coupon)
	assertAmount(t, "10.00", q.Discount)
	assertAmount(t, "14.40", q.Tax)
	assertAmount(t, "154.40", q.Total)
}

func TestQuoteRejectsUnknownCoupon(t *testing.T) {
	_, err := DefaultPricing().Quote([]Line{{ProductID: 1, UnitPrice: dec("10"), Quantity: 1}}, "INVALID")
	assert.ErrorIs(t, err, ErrInvalidCoupon)
}

func TestQuoteRejectsBadQuantity(t *testing.T) {
	_, err := DefaultPricing().Quote([]Line{{ProductID: 7, UnitPrice: dec("10"), Quantity: 0}}, "")
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestQuoteEmptyCart(t *testing.T) {
	q, err := DefaultPricing().Quote(nil, "")
	require.NoError(t, err)
	assertAmount(t, "0.00", q.Total)
	assertAmount(t, "0.00", q.Shipping)
	assert.NotNil(t, q.Items)
}

func TestQuoteRoundsFractionalPrices(t *testing.T) {
	q, err := DefaultPricing().Quote([]Line{{ProductID: 1, UnitPrice: dec("100.50"), Quantity: 3}}, "")
	require.NoError(t, err)
	assertAmount(t, "301.50", q.Subtotal)
	assertAmount(t, "48.24", q.Tax)
	assertAmount(t, "399.74", q.Total)
}

func TestParseCoupons(t *testing.T) {
	got, err := ParseCoupons("welcome:15, VIP:20 ,")
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.True(t, got["WELCOME"].Equal(decimal.NewFromInt(15)))

	for _, bad := range []string{"NOPCT", "X:abc", "X:0", "X:150", ":10"} {
		_, err := ParseCoupons(bad)
		assert.Error(t, err, bad)
	}
}
