package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// LogFileName is the audit file written under the consumer's directory.
const LogFileName = "orders.log"

// StartOrderConsumer connects to RabbitMQ, declares the order queues
// (durable), and consumes both.  Each message is appended to
// <dir>/orders.log as a single human-friendly line.  The function runs a
// reconnect loop with exponential backoff and only returns when ctx is
// cancelled.  Messages that cannot be processed are logged and rejected
// without requeue so the loop keeps running.
func StartOrderConsumer(ctx context.Context, url, dir string) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Printf("order-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = consumeLoop(ctx, conn, dir)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("order-consumer: consume loop ended: %v; reconnecting", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, dir string) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Printf("order-consumer: set QoS failed: %v", err)
	}

	deliveries := make(map[string]<-chan amqp.Delivery, 2)
	for _, name := range []string{OrderPlacedQueue, OrderStatusChangedQueue} {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", name, err)
		}
		msgs, err := ch.Consume(name, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("queue consume %s: %w", name, err)
		}
		deliveries[name] = msgs
	}

	placed, changed := deliveries[OrderPlacedQueue], deliveries[OrderStatusChangedQueue]
	for {
		var (
			d  amqp.Delivery
			ok bool
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok = <-placed:
		case d, ok = <-changed:
		}
		if !ok {
			return errors.New("deliveries channel closed")
		}
		if err := handleMessage(dir, d.RoutingKey, d.Body); err != nil {
			log.Printf("order-consumer: handle message failed: %v", err)
			_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
			continue
		}
		_ = d.Ack(false)
	}
}

// FormatEvent renders a message body from queue as one log line without the
// trailing newline.
func FormatEvent(queue string, body []byte) (string, error) {
	switch queue {
	case OrderPlacedQueue:
		var ev OrderPlacedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return "", fmt.Errorf("unmarshal: %w", err)
		}
		items := make([]string, 0, len(ev.Items))
		for _, it := range ev.Items {
			items = append(items, fmt.Sprintf("%d:%dx%s", it.ProductID, it.Quantity, it.UnitPrice))
		}
		line := fmt.Sprintf("[%s] Order placed | checkout=%s | user_id=%d | items=[%s] | subtotal=%s | total=%s",
			ev.PlacedAt, ev.CheckoutRef, ev.UserID, strings.Join(items, ","), ev.Subtotal, ev.Total)
		if ev.Coupon != "" {
			line += " | coupon=" + ev.Coupon
		}
		return line, nil
	case OrderStatusChangedQueue:
		var ev OrderStatusChangedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return "", fmt.Errorf("unmarshal: %w", err)
		}
		return fmt.Sprintf("[%s] Order status changed | order_id=%d | user_id=%d | %s -> %s | by=%d",
			ev.ChangedAt, ev.OrderID, ev.UserID, ev.From, ev.To, ev.ChangedBy), nil
	}
	return "", fmt.Errorf("unknown queue %q", queue)
}

func handleMessage(dir, queue string, body []byte) error {
	line, err := FormatEvent(queue, body)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	f, err := os.OpenFile(filepath.Join(dir, LogFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}
