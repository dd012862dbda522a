package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/storefront-api/internal/apperr"
	"github.com/iliyamo/storefront-api/internal/model"
	"github.com/iliyamo/storefront-api/internal/repository"
)

// ProductHandler serves the catalog.  Reads are public; writes are admin
// only and purge the catalog cache.
type ProductHandler struct {
	Products ProductStore
	Cache    CachePurger
}

func NewProductHandler(products ProductStore, cache CachePurger) *ProductHandler {
	return &ProductHandler{Products: products, Cache: cache}
}

type productReq struct {
	Name        string           `json:"name" validate:"required,max=150"`
	Description string           `json:"description"`
	Category    string           `json:"category" validate:"max=100"`
	Subcategory string           `json:"subcategory" validate:"max=100"`
	Price       *decimal.Decimal `json:"price" validate:"-"`
	Stock       *int             `json:"stock" validate:"omitempty,min=0"`
	Image       string           `json:"image" validate:"max=255"`
}

type productUpdateReq struct {
	Name        *string          `json:"name" validate:"omitempty,max=150"`
	Description *string          `json:"description"`
	Category    *string          `json:"category" validate:"omitempty,max=100"`
	Subcategory *string          `json:"subcategory" validate:"omitempty,max=100"`
	Price       *decimal.Decimal `json:"price" validate:"-"`
	Stock       *int             `json:"stock"`
	Image       *string          `json:"image" validate:"omitempty,max=255"`
}

// sortAliases accepts snake, kebab and camel case spellings.
var sortAliases = map[string]string{
	"price_asc": repository.SortPriceAsc, "price-asc": repository.SortPriceAsc, "priceasc": repository.SortPriceAsc,
	"price_desc": repository.SortPriceDesc, "price-desc": repository.SortPriceDesc, "pricedesc": repository.SortPriceDesc,
	"name_asc": repository.SortNameAsc, "name-asc": repository.SortNameAsc, "nameasc": repository.SortNameAsc,
	"name_desc": repository.SortNameDesc, "name-desc": repository.SortNameDesc, "namedesc": repository.SortNameDesc,
}

func (h *ProductHandler) purge(c echo.Context) { purgeCatalog(c, h.Cache) }

// parseProductQuery reads the catalog filters from the query string.
func parseProductQuery(c echo.Context) (repository.ProductQuery, error) {
	q := repository.ProductQuery{
		Search:   c.QueryParam("q"),
		Category: c.QueryParam("category"),
		Sort:     sortAliases[strings.ToLower(strings.TrimSpace(c.QueryParam("sort")))],
	}
	if q.Search == "" {
		q.Search = c.QueryParam("search")
	}
	fields := map[string]string{}
	for name, dst := range map[string]**decimal.Decimal{"min_price": &q.MinPrice, "max_price": &q.MaxPrice} {
		raw := strings.TrimSpace(c.QueryParam(name))
		if raw == "" {
			continue
		}
		d, err := decimal.NewFromString(raw)
		if err != nil || d.IsNegative() {
			fields[name] = "decimal"
			continue
		}
		*dst = &d
	}
	if len(fields) > 0 {
		return q, &apperr.ValidationError{Message: "invalid price filter", Fields: fields}
	}
	return q, nil
}

// List returns the catalog filtered by q, category, min_price, max_price
// and sorted by sort.
func (h *ProductHandler) List(c echo.Context) error {
	q, err := parseProductQuery(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	products, err := h.Products.List(ctx, q)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, echo.Map{"products": products, "count": len(products)})
}

// Categories lists the distinct categories.
func (h *ProductHandler) Categories(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()

	cats, err := h.Products.Categories(ctx)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, echo.Map{"categories": cats})
}

// ByCategory lists the products of one category.
func (h *ProductHandler) ByCategory(c echo.Context) error {
	category := strings.TrimSpace(c.Param("category"))
	ctx, cancel := requestCtx(c)
	defer cancel()

	products, err := h.Products.List(ctx, repository.ProductQuery{Category: category})
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, echo.Map{"category": category, "products": products})
}

// Get returns one product.
func (h *ProductHandler) Get(c echo.Context) error {
	id, valid := parseID(c, "id")
	if !valid {
		return fail(c, http.StatusBadRequest, "invalid product id")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	p, err := h.Products.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return fail(c, http.StatusNotFound, "product not found")
		}
		return err
	}
	return ok(c, http.StatusOK, echo.Map{"product": p})
}

// Create adds a product (admin).
func (h *ProductHandler) Create(c echo.Context) error {
	var req productReq
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)

	if req.Name == "" || req.Price == nil {
		return fail(c, http.StatusBadRequest, "name and price are required")
	}
	if !req.Price.IsPositive() || (req.Stock != nil && *req.Stock < 0) {
		return fail(c, http.StatusBadRequest, "price and stock must be positive values")
	}
	if err := c.Validate(&req); err != nil {
		return validationError(err)
	}

	p := model.Product{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Subcategory: req.Subcategory,
		Price:       req.Price.Round(2),
		Image:       req.Image,
	}
	if req.Stock != nil {
		p.Stock = *req.Stock
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	id, err := h.Products.Create(ctx, p)
	if err != nil {
		return err
	}
	created, err := h.Products.GetByID(ctx, id)
	if err != nil {
		return err
	}
	h.purge(c)
	return ok(c, http.StatusCreated, echo.Map{"message": "product created successfully", "product": created})
}

// Update edits a product (admin).
func (h *ProductHandler) Update(c echo.Context) error {
	id, valid := parseID(c, "id")
	if !valid {
		return fail(c, http.StatusBadRequest, "invalid product id")
	}
	var req productUpdateReq
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}
	if req.Price != nil && !req.Price.IsPositive() {
		return fail(c, http.StatusBadRequest, "price must be a positive value")
	}
	if req.Stock != nil && *req.Stock < 0 {
		return fail(c, http.StatusBadRequest, "stock must be a positive value")
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return fail(c, http.StatusBadRequest, "name cannot be empty")
	}
	if err := c.Validate(&req); err != nil {
		return validationError(err)
	}
	if req.Price != nil {
		rounded := req.Price.Round(2)
		req.Price = &rounded
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	p, err := h.Products.Update(ctx, id, repository.ProductUpdate{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Subcategory: req.Subcategory,
		Price:       req.Price,
		Stock:       req.Stock,
		Image:       req.Image,
	})
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return fail(c, http.StatusNotFound, "product not found")
		}
		return err
	}
	h.purge(c)
	return ok(c, http.StatusOK, echo.Map{"message": "product updated successfully", "product": p})
}

// Delete removes a product (admin).  Products with orders are kept.
func (h *ProductHandler) Delete(c echo.Context) error {
	id, valid := parseID(c, "id")
	if !valid {
		return fail(c, http.StatusBadRequest, "invalid product id")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	switch err := h.Products.Delete(ctx, id); {
	case errors.Is(err, repository.ErrProductNotFound):
		return fail(c, http.StatusNotFound, "product not found")
	case errors.Is(err, repository.ErrConflict):
		return fail(c, http.StatusConflict, "product has orders and cannot be deleted")
	case err != nil:
		return err
	}
	h.purge(c)
	return ok(c, http.StatusOK, echo.Map{"message": "product deleted successfully"})
}
