package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront-api/internal/cart"
	"github.com/iliyamo/storefront-api/internal/model"
	"github.com/iliyamo/storefront-api/internal/repository"
)

// CartHandler prices carts without placing orders.
type CartHandler struct {
	Products ProductStore
	Pricing  cart.Pricing
}

func NewCartHandler(products ProductStore, pricing cart.Pricing) *CartHandler {
	return &CartHandler{Products: products, Pricing: pricing}
}

type cartItemReq struct {
	ProductID uint64 `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type cartReq struct {
	Products []cartItemReq `json:"products"`
	Items    []cartItemReq `json:"items"`
	Coupon   string        `json:"coupon"`
}

// lines returns the cart lines; "items" is accepted as an alias of
// "products".
func (r cartReq) lines() []cartItemReq {
	if len(r.Products) > 0 {
		return r.Products
	}
	return r.Items
}

const emptyCartMsg = "products are required and must be a non-empty array"

// toOrderLines checks every line.  A non-empty message is a 400 response.
func toOrderLines(items []cartItemReq) ([]repository.OrderLine, string) {
	out := make([]repository.OrderLine, 0, len(items))
	for _, it := range items {
		if it.ProductID == 0 || it.Quantity == 0 {
			return nil, "product id and quantity are required"
		}
		if it.Quantity < 0 {
			return nil, "quantity must be greater than 0"
		}
		out = append(out, repository.OrderLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out, ""
}

func productIDs(lines []repository.OrderLine) []uint64 {
	seen := make(map[uint64]bool, len(lines))
	ids := make([]uint64, 0, len(lines))
	for _, l := range lines {
		if !seen[l.ProductID] {
			seen[l.ProductID] = true
			ids = append(ids, l.ProductID)
		}
	}
	return ids
}

// priceLines resolves lines against the catalog, checking existence and
// cumulative stock the same way checkout does.
func priceLines(products map[uint64]model.Product, lines []repository.OrderLine) ([]cart.Line, error) {
	remaining := make(map[uint64]int, len(products))
	for id, p := range products {
		remaining[id] = p.Stock
	}
	out := make([]cart.Line, 0, len(lines))
	for _, l := range lines {
		p, found := products[l.ProductID]
		if !found {
			return nil, &repository.ProductMissingError{ID: l.ProductID}
		}
		if remaining[l.ProductID] < l.Quantity {
			return nil, &repository.InsufficientStockError{
				ProductID: l.ProductID, Name: p.Name, Available: remaining[l.ProductID], Requested: l.Quantity,
			}
		}
		remaining[l.ProductID] -= l.Quantity
		out = append(out, cart.Line{ProductID: p.ID, Name: p.Name, UnitPrice: p.Price, Quantity: l.Quantity})
	}
	return out, nil
}

// checkoutFailure writes the response for stock and catalog errors.  It
// returns handled=false for errors the central handler must render.
func checkoutFailure(c echo.Context, err error) (bool, error) {
	var missing *repository.ProductMissingError
	var short *repository.InsufficientStockError
	switch {
	case errors.As(err, &missing):
		return true, fail(c, http.StatusNotFound, fmt.Sprintf("product with id %d not found", missing.ID))
	case errors.As(err, &short):
		return true, fail(c, http.StatusBadRequest, short.Error())
	case errors.Is(err, cart.ErrInvalidCoupon):
		return true, fail(c, http.StatusBadRequest, "coupon code is not valid")
	}
	return false, err
}

// Quote prices a cart with current catalog prices.
func (h *CartHandler) Quote(c echo.Context) error {
	var req cartReq
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}
	items := req.lines()
	if len(items) == 0 {
		return fail(c, http.StatusBadRequest, emptyCartMsg)
	}
	lines, msg := toOrderLines(items)
	if msg != "" {
		return fail(c, http.StatusBadRequest, msg)
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	products, err := h.Products.GetByIDs(ctx, productIDs(lines))
	if err != nil {
		return err
	}
	priced, err := priceLines(products, lines)
	if err == nil {
		var q cart.Quote
		if q, err = h.Pricing.Quote(priced, req.Coupon); err == nil {
			return ok(c, http.StatusOK, echo.Map{"summary": q})
		}
	}
	if handled, herr := checkoutFailure(c, err); handled {
		return herr
	}
	return err
}
