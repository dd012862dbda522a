package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/storefront-api/internal/cart"
	"github.com/iliyamo/storefront-api/internal/config"
	"github.com/iliyamo/storefront-api/internal/handler"
)

func TestRoutesRegistered(t *testing.T) {
	e := echo.New()
	RegisterRoutes(e, nil)
	api := API(e)
	RegisterUsers(api, handler.NewAuthHandler(config.Config{JWTSecret: "s"}, nil, nil), handler.NewUserHandler(nil, 4), "s")
	RegisterProducts(api, handler.NewProductHandler(nil, nil), "s", nil)
	RegisterOrders(api, handler.NewOrderHandler(nil, nil, cart.DefaultPricing(), nil, nil), "s")
	RegisterCart(api, handler.NewCartHandler(nil, cart.DefaultPricing()))

	got := map[string]bool{}
	for _, r := range e.Routes() {
		got[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"GET /healthz",
		"POST /api/users/register",
		"POST /api/users/login",
		"POST /api/users/refresh",
		"POST /api/users/logout",
		"GET /api/users/profile",
		"PUT /api/users/profile",
		"GET /api/users",
		"GET /api/users/:id",
		"PUT /api/users/:id",
		"DELETE /api/users/:id",
		"GET /api/products",
		"GET /api/products/categories",
		"GET /api/products/category/:category",
		"GET /api/products/:id",
		"POST /api/products",
		"PUT /api/products/:id",
		"DELETE /api/products/:id",
		"POST /api/orders",
		"POST /api/orders/cart",
		"GET /api/orders",
		"GET /api/orders/stats",
		"GET /api/orders/mine",
		"GET /api/orders/user/:user_id",
		"GET /api/orders/:id",
		"PUT /api/orders/:id/status",
		"PUT /api/orders/:id/cancel",
		"DELETE /api/orders/:id",
		"POST /api/cart/quote",
	} {
		assert.True(t, got[want], "missing route %s", want)
	}
}

func TestOrdersRequireToken(t *testing.T) {
	e := echo.New()
	RegisterOrders(API(e), handler.NewOrderHandler(nil, nil, cart.DefaultPricing(), nil, nil), "s")

	req := httptest.NewRequest(http.MethodGet, "/api/orders/mine", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
