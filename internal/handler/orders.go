package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront-api/internal/cart"
	"github.com/iliyamo/storefront-api/internal/model"
	"github.com/iliyamo/storefront-api/internal/queue"
	"github.com/iliyamo/storefront-api/internal/repository"
)

// OrderHandler serves order placement, lookup and the status lifecycle.
type OrderHandler struct {
	Orders   OrderStore
	Products ProductStore
	Pricing  cart.Pricing
	Events   EventPublisher
	Cache    CachePurger
}

func NewOrderHandler(orders OrderStore, products ProductStore, pricing cart.Pricing, events EventPublisher, cache CachePurger) *OrderHandler {
	return &OrderHandler{Orders: orders, Products: products, Pricing: pricing, Events: events, Cache: cache}
}

type createOrderReq struct {
	ProductID uint64 `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UserID    uint64 `json:"user_id"`
}

type statusReq struct {
	Status string `json:"status"`
}

// emit publishes in the background; the publisher logs its own failures.
func (h *OrderHandler) emit(fn func(ctx context.Context, p EventPublisher) error) {
	if h.Events == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = fn(ctx, h.Events)
	}()
}

func (h *OrderHandler) emitPlaced(userID uint64, orders []model.Order, q cart.Quote) {
	if len(orders) == 0 {
		return
	}
	ev := queue.OrderPlacedEvent{
		CheckoutRef: orders[0].CheckoutRef,
		UserID:      userID,
		Subtotal:    q.Subtotal.StringFixed(2),
		Total:       q.Total.StringFixed(2),
		Coupon:      q.Coupon,
		PlacedAt:    time.Now().UTC().Format(time.RFC3339),
	}
	for _, o := range orders {
		ev.Items = append(ev.Items, queue.OrderPlacedItem{
			OrderID: o.ID, ProductID: o.ProductID, Quantity: o.Quantity, UnitPrice: o.UnitPrice.StringFixed(2),
		})
	}
	h.emit(func(ctx context.Context, p EventPublisher) error { return p.PublishOrderPlaced(ctx, ev) })
}

func (h *OrderHandler) emitStatus(change repository.StatusChange, by uint64) {
	if change.From == change.To {
		return
	}
	ev := queue.OrderStatusChangedEvent{
		OrderID:   change.OrderID,
		UserID:    change.UserID,
		From:      change.From,
		To:        change.To,
		ChangedBy: by,
		ChangedAt: time.Now().UTC().Format(time.RFC3339),
	}
	h.emit(func(ctx context.Context, p EventPublisher) error { return p.PublishOrderStatusChanged(ctx, ev) })
}

// summarize prices placed orders at their captured unit prices.
func (h *OrderHandler) summarize(orders []model.Order, products map[uint64]model.Product, coupon string) (cart.Quote, error) {
	lines := make([]cart.Line, 0, len(orders))
	for _, o := range orders {
		lines = append(lines, cart.Line{
			ProductID: o.ProductID, Name: products[o.ProductID].Name, UnitPrice: o.UnitPrice, Quantity: o.Quantity,
		})
	}
	return h.Pricing.Quote(lines, coupon)
}

// Create places a single order.  Admins may order on behalf of user_id.
func (h *OrderHandler) Create(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthenticated(c)
	}
	var req createOrderReq
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}
	if req.ProductID == 0 || req.Quantity == 0 {
		return fail(c, http.StatusBadRequest, "product id and quantity are required")
	}
	if req.Quantity < 0 {
		return fail(c, http.StatusBadRequest, "quantity must be greater than 0")
	}
	target := uid
	if req.UserID != 0 && isAdmin(c) {
		target = req.UserID
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	orders, err := h.Orders.Place(ctx, target, []repository.OrderLine{{ProductID: req.ProductID, Quantity: req.Quantity}})
	var short *repository.InsufficientStockError
	switch {
	case errors.Is(err, repository.ErrProductNotFound):
		return fail(c, http.StatusNotFound, "product not found")
	case errors.As(err, &short):
		return fail(c, http.StatusBadRequest, fmt.Sprintf("insufficient stock. available: %d", short.Available))
	case errors.Is(err, repository.ErrUserNotFound):
		return fail(c, http.StatusNotFound, "user not found")
	case err != nil:
		return err
	}

	purgeCatalog(c, h.Cache)
	if q, err := h.summarize(orders, nil, ""); err == nil {
		h.emitPlaced(target, orders, q)
	}
	return ok(c, http.StatusCreated, echo.Map{"message": "order created successfully", "order": orders[0]})
}

// Checkout places one order per cart line in a single transaction and
// returns the priced summary.
func (h *OrderHandler) Checkout(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthenticated(c)
	}
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
	if code := cart.NormalizeCoupon(req.Coupon); code != "" {
		if _, known := h.Pricing.Coupons[code]; !known {
			return fail(c, http.StatusBadRequest, "coupon code is not valid")
		}
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	// Pre-check against a plain read so hopeless carts never open a
	// transaction; Place re-checks under row locks.
	products, err := h.Products.GetByIDs(ctx, productIDs(lines))
	if err != nil {
		return err
	}
	if _, err := priceLines(products, lines); err != nil {
		_, herr := checkoutFailure(c, err)
		return herr
	}

	orders, err := h.Orders.Place(ctx, uid, lines)
	if err != nil {
		if handled, herr := checkoutFailure(c, err); handled {
			return herr
		}
		return err
	}
	purgeCatalog(c, h.Cache)

	summary, err := h.summarize(orders, products, req.Coupon)
	if err != nil {
		return err
	}
	h.emitPlaced(uid, orders, summary)
	return ok(c, http.StatusCreated, echo.Map{
		"message":      fmt.Sprintf("%d orders created successfully", len(orders)),
		"orders":       orders,
		"total_orders": len(orders),
		"summary":      summary,
	})
}

// List returns every order (admin).
func (h *OrderHandler) List(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()

	orders, err := h.Orders.List(ctx)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, echo.Map{"orders": orders, "count": len(orders)})
}

// Mine returns the caller's orders.
func (h *OrderHandler) Mine(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthenticated(c)
	}
	return h.listFor(c, uid)
}

// ByUser returns the orders of user_id.  Users may only list their own.
func (h *OrderHandler) ByUser(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthenticated(c)
	}
	target, valid := parseID(c, "user_id")
	if !valid {
		return fail(c, http.StatusBadRequest, "invalid user id")
	}
	if target != uid && !isAdmin(c) {
		return fail(c, http.StatusForbidden, "you can only view your own orders")
	}
	return h.listFor(c, target)
}

func (h *OrderHandler) listFor(c echo.Context, userID uint64) error {
	ctx, cancel := requestCtx(c)
	defer cancel()

	orders, err := h.Orders.ListByUser(ctx, userID)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, echo.Map{"orders": orders, "count": len(orders)})
}

// Get returns one order.  Orders of other users look missing to
// non-admins.
func (h *OrderHandler) Get(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthenticated(c)
	}
	id, valid := parseID(c, "id")
	if !valid {
		return fail(c, http.StatusBadRequest, "invalid order id")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	o, err := h.Orders.GetByID(ctx, id)
	if errors.Is(err, repository.ErrOrderNotFound) || (err == nil && o.UserID != uid && !isAdmin(c)) {
		return fail(c, http.StatusNotFound, "order not found")
	}
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, echo.Map{"order": o})
}

// UpdateStatus sets an order's status (admin).
func (h *OrderHandler) UpdateStatus(c echo.Context) error {
	id, valid := parseID(c, "id")
	if !valid {
		return fail(c, http.StatusBadRequest, "invalid order id")
	}
	var req statusReq
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}
	status := strings.ToLower(strings.TrimSpace(req.Status))
	if status == "" {
		return fail(c, http.StatusBadRequest, "status is required")
	}
	if !model.ValidOrderStatus(status) {
		return fail(c, http.StatusBadRequest, "invalid status. allowed: "+model.AllowedStatuses())
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	change, err := h.Orders.UpdateStatus(ctx, id, status)
	switch {
	case errors.Is(err, repository.ErrOrderNotFound):
		return fail(c, http.StatusNotFound, "order not found")
	case errors.Is(err, repository.ErrConflict):
		return fail(c, http.StatusConflict, "cancelled orders cannot change status")
	case err != nil:
		return err
	}
	if change.To == model.OrderCancelled && change.From != model.OrderCancelled {
		purgeCatalog(c, h.Cache) // stock was restored
	}
	o, err := h.Orders.GetByID(ctx, id)
	if err != nil {
		return err
	}
	by, _ := getUserID(c)
	h.emitStatus(change, by)
	return ok(c, http.StatusOK, echo.Map{"message": "order status updated successfully", "order": o})
}

// Cancel lets the owner cancel a pending order.  A body status other than
// cancelled is refused.
func (h *OrderHandler) Cancel(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthenticated(c)
	}
	id, valid := parseID(c, "id")
	if !valid {
		return fail(c, http.StatusBadRequest, "invalid order id")
	}
	var req statusReq
	_ = c.Bind(&req) // the body is optional
	if s := strings.ToLower(strings.TrimSpace(req.Status)); s != "" && s != model.OrderCancelled {
		return fail(c, http.StatusForbidden, "you can only cancel your orders")
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	change, err := h.Orders.CancelForUser(ctx, id, uid)
	switch {
	case errors.Is(err, repository.ErrOrderNotFound):
		return fail(c, http.StatusNotFound, "order not found")
	case errors.Is(err, repository.ErrForbidden):
		return fail(c, http.StatusForbidden, "you do not have permission to cancel this order")
	case errors.Is(err, repository.ErrNotPending):
		return fail(c, http.StatusBadRequest, "only pending orders can be cancelled")
	case err != nil:
		return err
	}
	purgeCatalog(c, h.Cache)
	o, err := h.Orders.GetByID(ctx, id)
	if err != nil {
		return err
	}
	h.emitStatus(change, uid)
	return ok(c, http.StatusOK, echo.Map{"message": "order cancelled successfully", "order": o})
}

// Delete removes an order (admin).
func (h *OrderHandler) Delete(c echo.Context) error {
	id, valid := parseID(c, "id")
	if !valid {
		return fail(c, http.StatusBadRequest, "invalid order id")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	if err := h.Orders.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return fail(c, http.StatusNotFound, "order not found")
		}
		return err
	}
	// Pending orders give their stock back on delete.
	purgeCatalog(c, h.Cache)
	return ok(c, http.StatusOK, echo.Map{"message": "order deleted successfully"})
}

// Stats aggregates orders per status (admin).
func (h *OrderHandler) Stats(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()

	stats, err := h.Orders.Stats(ctx)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, echo.Map{"statistics": stats})
}
