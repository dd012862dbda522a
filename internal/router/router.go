// Package router defines how HTTP routes are registered for the API.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront-api/internal/handler"
	"github.com/iliyamo/storefront-api/internal/middleware"
	"github.com/iliyamo/storefront-api/internal/model"
)

// RegisterRoutes registers routes that live outside /api.  Currently it
// exposes only the health check used by load balancers.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
}

// API returns the /api group.  Every route below it passes through m, which
// is where the rate limiter goes.
func API(e *echo.Echo, m ...echo.MiddlewareFunc) *echo.Group {
	return e.Group("/api", m...)
}

// RegisterUsers registers account and user administration routes.
// Registration, login, refresh and logout do not require a session; logout
// reads the bearer token itself when present.
func RegisterUsers(g *echo.Group, a *handler.AuthHandler, u *handler.UserHandler, jwtSecret string) {
	auth := middleware.JWTAuth(jwtSecret)
	admin := middleware.RequireRole(model.RoleAdmin)

	users := g.Group("/users")
	users.POST("/register", a.Register)
	users.POST("", a.Register)
	users.POST("/login", a.Login)
	users.POST("/refresh", a.Refresh)
	users.POST("/logout", a.Logout)

	users.GET("/profile", u.Profile, auth)
	users.PUT("/profile", u.UpdateProfile, auth)

	users.GET("", u.List, auth, admin)
	users.GET("/:id", u.Get, auth, admin)
	users.PUT("/:id", u.Update, auth)
	users.DELETE("/:id", u.Delete, auth, admin)
}

// RegisterProducts registers the catalog.  Public reads sit behind cache;
// writes require an admin token.
func RegisterProducts(g *echo.Group, p *handler.ProductHandler, jwtSecret string, cache echo.MiddlewareFunc) {
	auth := middleware.JWTAuth(jwtSecret)
	admin := middleware.RequireRole(model.RoleAdmin)

	if cache == nil {
		cache = func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	products := g.Group("/products")
	products.GET("", p.List, cache)
	products.GET("/categories", p.Categories, cache)
	products.GET("/category/:category", p.ByCategory, cache)
	products.GET("/:id", p.Get, cache)

	products.POST("", p.Create, auth, admin)
	products.PUT("/:id", p.Update, auth, admin)
	products.DELETE("/:id", p.Delete, auth, admin)
}

// RegisterOrders registers order routes.  All of them require a token;
// listing everything, stats, status changes and deletion are admin only.
func RegisterOrders(g *echo.Group, o *handler.OrderHandler, jwtSecret string) {
	admin := middleware.RequireRole(model.RoleAdmin)

	orders := g.Group("/orders", middleware.JWTAuth(jwtSecret))
	orders.POST("", o.Create)
	orders.POST("/cart", o.Checkout)

	orders.GET("", o.List, admin)
	orders.GET("/stats", o.Stats, admin)
	orders.GET("/mine", o.Mine)
	orders.GET("/user/:user_id", o.ByUser)
	orders.GET("/:id", o.Get)

	orders.PUT("/:id/status", o.UpdateStatus, admin)
	orders.PUT("/:id/cancel", o.Cancel)
	orders.DELETE("/:id", o.Delete, admin)
}

// RegisterCart registers the public cart quote.
func RegisterCart(g *echo.Group, c *handler.CartHandler) {
	g.POST("/cart/quote", c.Quote)
}
