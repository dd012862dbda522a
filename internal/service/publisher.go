// Package service provides functions to publish domain events to RabbitMQ.
// Errors are logged and returned to allow callers to ignore failures without
// interrupting the main request flow.
package service

import (
	"context"
	"encoding/json"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	q "github.com/iliyamo/storefront-api/internal/queue"
)

// Publisher sends order events to RabbitMQ.  A nil *Publisher discards
// every event, which is how the server runs with QUEUE_ENABLED unset.
type Publisher struct {
	url         string
	dialTimeout time.Duration
}

// NewPublisher returns a publisher for the broker at url.
func NewPublisher(url string) *Publisher {
	return &Publisher{url: url, dialTimeout: 2 * time.Second}
}

// PublishOrderPlaced publishes to the "order.placed" queue.
func (p *Publisher) PublishOrderPlaced(ctx context.Context, event q.OrderPlacedEvent) error {
	return p.publish(ctx, q.OrderPlacedQueue, event)
}

// PublishOrderStatusChanged publishes to the "order.status_changed" queue.
func (p *Publisher) PublishOrderStatusChanged(ctx context.Context, event q.OrderStatusChangedEvent) error {
	return p.publish(ctx, q.OrderStatusChangedQueue, event)
}

// publish opens a short-lived connection, declares the queue and sends one
// persistent JSON message.  It never panics; any error is logged and
// returned so the caller can choose to ignore it.
func (p *Publisher) publish(ctx context.Context, queue string, event any) error {
	if p == nil {
		return nil
	}
	body, err := json.Marshal(event)
	if err != nil {
		log.Printf("rabbitmq: marshal event failed: %v", err)
		return err
	}

	conn, err := amqp.DialConfig(p.url, amqp.Config{Dial: amqp.DefaultDial(p.dialTimeout)})
	if err != nil {
		log.Printf("rabbitmq: dial failed: %v", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Printf("rabbitmq: channel open failed: %v", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	); err != nil {
		log.Printf("rabbitmq: queue declare failed: %v", err)
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx,
		"",    // default exchange
		queue, // routing key = queue name
		false, // mandatory
		false, // immediate
		pub,
	); err != nil {
		log.Printf("rabbitmq: publish to %s failed: %v", queue, err)
		return err
	}
	return nil
}
