// Package amqp carries transaction sync events between the API process and
// the ledger worker over RabbitMQ.
package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

const (
	publishTimeout = 5 * time.Second

	// Circuit breaker: after maxFailures consecutive publish failures the
	// circuit opens and publishes fail fast until openTimeout has passed.
	maxFailures = 5
	openTimeout = 30 * time.Second
)

const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

type Client struct {
	url          string
	exchangeName string
	queueName    string

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	failureCount int64
	state        int32
	lastFailure  time.Time
}

func NewClient(url, exchangeName, queueName string) (*Client, error) {
	client := &Client{
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
	}

	if err := client.connect(); err != nil {
		return nil, err
	}

	return client, nil
}

// connect dials the broker and declares the exchange, queue and binding.
// Callers hold no lock; connect takes it.
func (c *Client) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked()
}

func (c *Client) connectLocked() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := declareTopology(channel, c.exchangeName, c.queueName); err != nil {
		channel.Close()
		conn.Close()
		return err
	}

	c.closeLocked()
	c.conn = conn
	c.channel = channel
	return nil
}

func declareTopology(channel *amqp091.Channel, exchangeName, queueName string) error {
	err := channel.ExchangeDeclare(
		exchangeName,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = channel.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	// Routing key equals the queue name on a direct exchange.
	if err := channel.QueueBind(queueName, queueName, exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	return nil
}

// exponentialBackoff returns the wait before reconnect attempt n, doubling
// from one second and capped at 30 seconds.
func exponentialBackoff(attempt int) time.Duration {
	backoff := time.Second << uint(attempt)
	if backoff > 30*time.Second || backoff <= 0 {
		return 30 * time.Second
	}
	return backoff
}

// isConnectionError reports whether err looks like a broken broker
// connection rather than a protocol or application error.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range []string{
		"connection refused",
		"connection closed",
		"unexpected EOF",
		"broken pipe",
		"use of closed network connection",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	c.mu.Lock()
	last := c.lastFailure
	c.mu.Unlock()
	if time.Since(last) > openTimeout {
		atomic.StoreInt32(&c.state, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	failures := atomic.AddInt64(&c.failureCount, 1)
	if failures >= maxFailures {
		atomic.StoreInt32(&c.state, StateOpen)
		c.mu.Lock()
		c.lastFailure = time.Now()
		c.mu.Unlock()
	}
}

// PublishTransactionSync publishes a persistent sync message for one
// transaction. Fails fast while the circuit is open; a connection-level
// failure drops the channel so the next publish redials.
func (c *Client) PublishTransactionSync(ctx context.Context, id string, version int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isCircuitOpen() {
		return fmt.Errorf("circuit breaker is open, not publishing transaction %s", id)
	}

	msg := NewTransactionSyncMessage(id, version)
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	c.mu.Lock()
	if c.channel == nil || c.conn == nil || c.conn.IsClosed() {
		if err := c.connectLocked(); err != nil {
			c.mu.Unlock()
			c.recordFailure()
			return err
		}
	}
	channel := c.channel
	c.mu.Unlock()

	err = channel.PublishWithContext(
		ctx,
		c.exchangeName,
		c.queueName, // routing key
		false,       // mandatory
		false,       // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		c.recordFailure()
		if isConnectionError(err) {
			c.mu.Lock()
			c.closeLocked()
			c.mu.Unlock()
		}
		return fmt.Errorf("publish message: %w", err)
	}

	c.recordSuccess()
	slog.InfoContext(ctx, "Published transaction sync message",
		"transaction_id", id,
		"version", version,
		"exchange", c.exchangeName,
		"queue", c.queueName)

	return nil
}

// ConsumeTransactionSync delivers sync messages to handler with manual
// acks. Handler failures requeue the delivery; undecodable payloads are
// dropped. A lost connection is redialed with exponential backoff until ctx
// is cancelled.
func (c *Client) ConsumeTransactionSync(ctx context.Context, handler func(*TransactionSyncMessage) error) error {
	for attempt := 0; ; attempt++ {
		err := c.consumeOnce(ctx, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !isConnectionError(err) && err != nil && !strings.Contains(err.Error(), "message channel closed") {
			return err
		}

		wait := exponentialBackoff(attempt)
		slog.WarnContext(ctx, "AMQP connection lost, reconnecting",
			"error", err,
			"backoff", wait.String())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		if err := c.connect(); err != nil {
			continue
		}
		attempt = -1 // reset backoff after a successful redial
	}
}

func (c *Client) consumeOnce(ctx context.Context, handler func(*TransactionSyncMessage) error) error {
	c.mu.Lock()
	channel := c.channel
	c.mu.Unlock()
	if channel == nil {
		return fmt.Errorf("connection closed")
	}

	msgs, err := channel.Consume(
		c.queueName,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming transaction sync messages", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}

			msg, err := TransactionSyncMessageFromJSON(delivery.Body)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to unmarshal message", "error", err)
				delivery.Nack(false, false)
				continue
			}

			if err := handler(msg); err != nil {
				slog.ErrorContext(ctx, "Failed to handle message",
					"error", err,
					"transaction_id", msg.ID,
					"version", msg.Version)
				delivery.Nack(false, true)
				continue
			}

			delivery.Ack(false)
			slog.DebugContext(ctx, "Processed transaction sync message",
				"transaction_id", msg.ID,
				"version", msg.Version)
		}
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}
