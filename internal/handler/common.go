package handler // handler defines http handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront-api/internal/apperr"
	"github.com/iliyamo/storefront-api/internal/middleware"
	"github.com/iliyamo/storefront-api/internal/model"
	"github.com/iliyamo/storefront-api/internal/queue"
	"github.com/iliyamo/storefront-api/internal/repository"
	"github.com/iliyamo/storefront-api/internal/utils"
)

// dbTimeout bounds every per-request database call.
const dbTimeout = 5 * time.Second

// UserStore is implemented by repository.UserRepo.
type UserStore interface {
	Create(ctx context.Context, u model.User, password string, cost int) (uint64, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	List(ctx context.Context) ([]model.User, error)
	Update(ctx context.Context, id uint64, in repository.UserUpdate, cost int) (model.User, error)
	Delete(ctx context.Context, id uint64) error
}

// TokenStore is implemented by repository.TokenRepo.
type TokenStore interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

// ProductStore is implemented by repository.ProductRepo.
type ProductStore interface {
	Create(ctx context.Context, p model.Product) (uint64, error)
	GetByID(ctx context.Context, id uint64) (model.Product, error)
	GetByIDs(ctx context.Context, ids []uint64) (map[uint64]model.Product, error)
	List(ctx context.Context, q repository.ProductQuery) ([]model.Product, error)
	Categories(ctx context.Context) ([]string, error)
	Update(ctx context.Context, id uint64, in repository.ProductUpdate) (model.Product, error)
	Delete(ctx context.Context, id uint64) error
}

// OrderStore is implemented by repository.OrderRepo.
type OrderStore interface {
	Place(ctx context.Context, userID uint64, lines []repository.OrderLine) ([]model.Order, error)
	List(ctx context.Context) ([]model.OrderDetail, error)
	ListByUser(ctx context.Context, userID uint64) ([]model.OrderDetail, error)
	GetByID(ctx context.Context, id uint64) (model.OrderDetail, error)
	UpdateStatus(ctx context.Context, id uint64, status string) (repository.StatusChange, error)
	CancelForUser(ctx context.Context, id, userID uint64) (repository.StatusChange, error)
	Delete(ctx context.Context, id uint64) error
	Stats(ctx context.Context) ([]model.OrderStat, error)
}

// EventPublisher is implemented by service.Publisher.
type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, event queue.OrderPlacedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event queue.OrderStatusChangedEvent) error
}

// CachePurger is implemented by middleware.RedisCachePurger.
type CachePurger interface {
	Purge(ctx context.Context) error
}

// getUserID extracts the authenticated user's ID from echo.Context.
func getUserID(c echo.Context) (uint64, error) {
	if id, ok := middleware.UserID(c); ok {
		return id, nil
	}
	return 0, errors.New("invalid user_id in context")
}

func isAdmin(c echo.Context) bool { return middleware.Role(c) == model.RoleAdmin }

// parseID reads a positive integer path parameter.
func parseID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

func requestCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), dbTimeout)
}

// fail writes {success:false, message}.
func fail(c echo.Context, status int, msg string) error {
	return c.JSON(status, echo.Map{"success": false, "message": msg})
}

// ok writes {success:true} merged with fields.
func ok(c echo.Context, status int, fields echo.Map) error {
	body := echo.Map{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	return c.JSON(status, body)
}

// purgeCatalog drops cached catalog responses after price or stock changed.
// Failures are logged; the write already happened.
func purgeCatalog(c echo.Context, cache CachePurger) {
	if cache == nil {
		return
	}
	if err := cache.Purge(context.WithoutCancel(c.Request().Context())); err != nil {
		c.Logger().Warnf("catalog cache purge failed: %v", err)
	}
}

func unauthenticated(c echo.Context) error {
	return fail(c, http.StatusUnauthorized, "user not authenticated")
}

func invalidBody(c echo.Context) error {
	return fail(c, http.StatusBadRequest, "invalid request body")
}

// validationError wraps a validator failure for the central error handler.
func validationError(err error) error {
	fields := utils.FieldErrors(err)
	if fields == nil {
		return err
	}
	return &apperr.ValidationError{Fields: fields}
}
