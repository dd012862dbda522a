// Package queue defines message payloads exchanged over the message broker
// and the background consumer that records them.
package queue

// Queue names.  Both queues are durable and fed through the default
// exchange.
const (
	OrderPlacedQueue        = "order.placed"
	OrderStatusChangedQueue = "order.status_changed"
)

// OrderPlacedEvent is published after a checkout commits.  It carries
// enough information for downstream consumers to log, notify, or trigger
// analytics without querying the primary database.  Amounts are decimal
// strings with two places.
type OrderPlacedEvent struct {
	CheckoutRef string            `json:"checkout_ref"`
	UserID      uint64            `json:"user_id"`
	Items       []OrderPlacedItem `json:"items"`
	Subtotal    string            `json:"subtotal"`
	Total       string            `json:"total"`
	Coupon      string            `json:"coupon,omitempty"`
	PlacedAt    string            `json:"placed_at"`
}

// OrderPlacedItem is one order row of a checkout.
type OrderPlacedItem struct {
	OrderID   uint64 `json:"order_id"`
	ProductID uint64 `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

// OrderStatusChangedEvent is published when an admin changes an order's
// status or a customer cancels it.
type OrderStatusChangedEvent struct {
	OrderID   uint64 `json:"order_id"`
	UserID    uint64 `json:"user_id"`
	From      string `json:"from"`
	To        string `json:"to"`
	ChangedBy uint64 `json:"changed_by"`
	ChangedAt string `json:"changed_at"`
}
