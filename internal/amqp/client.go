package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"ricorrenti/internal/log"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	baseBackoff    = time.Second
	maxBackoff     = 30 * time.Second
	publishTimeout = 5 * time.Second
	publishRetries = 3
	dialAttempts   = 5
	requeueDelay   = 5 * time.Second
)

var (
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrPermanent marks a handler failure that redelivery cannot fix.
	ErrPermanent = errors.New("permanent failure")
)

// Permanent wraps err so the consumer drops the message instead of
// requeueing it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// Client publishes to and consumes from a direct exchange with two durable
// queues: analysis requests and recurring reports. Routing keys equal queue
// names. The connection is re-established lazily after failures.
type Client struct {
	url          string
	exchangeName string
	queueName    string
	reportQueue  string
	logger       *slog.Logger

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	failureCount int64
	state        int32
	breakerMu    sync.Mutex
	lastFailure  time.Time

	// Overridable waits for the consumer; zero values use the defaults.
	backoff      func(attempt int) time.Duration
	requeueDelay time.Duration
}

// NewClient dials url and declares the exchange and queues.
func NewClient(ctx context.Context, url, exchangeName, queueName, reportQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
		reportQueue:  reportQueue,
		logger:       logger.With(log.FieldComponent, log.ComponentAMQP),
		backoff:      exponentialBackoff,
		requeueDelay: requeueDelay,
	}
	if _, err := c.ensureChannel(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) log() *slog.Logger {
	if c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

// exponentialBackoff returns the wait before reconnect attempt n (0-based):
// 1s doubling, capped at 30s.
func exponentialBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 5 {
		return maxBackoff
	}
	d := baseBackoff << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// isConnectionError reports whether err means the broker link is gone and a
// reconnect may help.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"connection refused",
		"connection closed",
		"connection reset",
		"eof",
		"broken pipe",
		"use of closed network connection",
		"channel/connection is not open",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	c.breakerMu.Lock()
	last := c.lastFailure
	c.breakerMu.Unlock()

	if time.Since(last) > openTimeout {
		if atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen) {
			c.log().Info("AMQP circuit breaker half-open, allowing a trial request")
		}
		return false
	}
	return true
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	if prev := atomic.SwapInt32(&c.state, StateClosed); prev != StateClosed {
		c.log().Info("AMQP circuit breaker closed")
	}
}

func (c *Client) recordFailure() {
	n := atomic.AddInt64(&c.failureCount, 1)
	c.breakerMu.Lock()
	c.lastFailure = time.Now()
	c.breakerMu.Unlock()

	if n >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		if prev := atomic.SwapInt32(&c.state, StateOpen); prev != StateOpen {
			c.log().Warn("AMQP circuit breaker opened", "failures", n)
		}
	}
}

// ensureChannel returns an open channel, dialling with exponential backoff
// when there is none.
func (c *Client) ensureChannel(ctx context.Context) (*amqp091.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil && !c.channel.IsClosed() {
		return c.channel, nil
	}
	c.closeLocked()

	var lastErr error
	for attempt := 0; attempt < dialAttempts; attempt++ {
		if attempt > 0 {
			wait := exponentialBackoff(attempt - 1)
			c.log().Warn("Reconnecting to AMQP", "attempt", attempt, "backoff", wait, log.FieldError, lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
		if err := c.connectLocked(); err != nil {
			lastErr = err
			continue
		}
		return c.channel, nil
	}
	return nil, fmt.Errorf("connect to AMQP after %d attempts: %w", dialAttempts, lastErr)
}

func (c *Client) connectLocked() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	c.conn, c.channel = conn, ch
	if err := c.setup(ch); err != nil {
		c.closeLocked()
		return fmt.Errorf("setup exchange and queues: %w", err)
	}
	c.log().Info("Connected to AMQP",
		"exchange", c.exchangeName,
		"request_queue", c.queueName,
		"report_queue", c.reportQueue)
	return nil
}

func (c *Client) setup(ch *amqp091.Channel) error {
	err := ch.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	for _, q := range []string{c.queueName, c.reportQueue} {
		if _, err := ch.QueueDeclare(
			q,     // name
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,   // arguments
		); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
		if err := ch.QueueBind(q, q, c.exchangeName, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", q, err)
		}
	}
	return nil
}

func (c *Client) dropConnection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// publish sends a persistent JSON message, retrying connection failures with
// backoff. It fails fast while the circuit breaker is open.
func (c *Client) publish(ctx context.Context, routingKey string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isCircuitOpen() {
		return fmt.Errorf("publish to %s: %w", routingKey, ErrCircuitOpen)
	}

	var lastErr error
	for attempt := 0; attempt < publishRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(exponentialBackoff(attempt - 1)):
			}
		}

		ch, err := c.ensureChannel(ctx)
		if err != nil {
			c.recordFailure()
			return err
		}

		pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		err = ch.PublishWithContext(
			pubCtx,
			c.exchangeName, // exchange
			routingKey,     // routing key
			false,          // mandatory
			false,          // immediate
			amqp091.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp091.Persistent,
				Timestamp:    time.Now(),
				Body:         body,
			},
		)
		cancel()
		if err == nil {
			c.recordSuccess()
			return nil
		}

		lastErr = err
		c.recordFailure()
		if !isConnectionError(err) {
			break
		}
		c.dropConnection()
		if c.isCircuitOpen() {
			break
		}
	}
	return fmt.Errorf("publish to %s: %w", routingKey, lastErr)
}

// PublishAnalysisRequest asks consumers of the request queue to run an analysis.
func (c *Client) PublishAnalysisRequest(ctx context.Context, reason string) error {
	body, err := NewAnalysisRequestMessage(reason).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, c.queueName, body); err != nil {
		return err
	}
	c.log().InfoContext(ctx, "Published analysis request", log.FieldOperation, log.OpPublish, "reason", reason, "queue", c.queueName)
	return nil
}

func (c *Client) PublishReport(ctx context.Context, msg *RecurringReportMessage) error {
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, c.reportQueue, body); err != nil {
		return err
	}
	c.log().InfoContext(ctx, "Published recurring report", log.FieldOperation, log.OpPublish,
		log.FieldRunID, msg.RunID,
		log.FieldGroups, len(msg.Groups),
		"queue", c.reportQueue)
	return nil
}

// ConsumeAnalysisRequests delivers requests to handler until ctx is done.
// Messages are acked on success, dropped when malformed or when the handler
// fails with ErrPermanent, and requeued after a short delay on any other
// handler error. A lost connection is re-established with backoff that
// restarts once a session has begun consuming.
func (c *Client) ConsumeAnalysisRequests(ctx context.Context, handler func(context.Context, *AnalysisRequestMessage) error) error {
	return c.consumeWithRetry(ctx, func(ctx context.Context) (bool, error) {
		return c.consumeOnce(ctx, handler)
	})
}

func (c *Client) consumeWithRetry(ctx context.Context, consume func(context.Context) (bool, error)) error {
	attempt := 0
	for {
		started, err := consume(ctx)
		if ctx.Err() != nil {
			c.log().InfoContext(ctx, "Stopping message consumption", log.FieldOperation, log.OpConsume, "reason", ctx.Err())
			return ctx.Err()
		}
		if started {
			attempt = 0
		}

		wait := c.backoffFor(attempt)
		c.log().WarnContext(ctx, "Analysis request consumer interrupted", log.FieldError, err, "backoff", wait)
		c.dropConnection()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		attempt++
	}
}

func (c *Client) backoffFor(attempt int) time.Duration {
	if c.backoff == nil {
		return exponentialBackoff(attempt)
	}
	return c.backoff(attempt)
}

// consumeOnce runs one consume session. started reports whether the broker
// accepted the consumer before the session ended.
func (c *Client) consumeOnce(ctx context.Context, handler func(context.Context, *AnalysisRequestMessage) error) (started bool, err error) {
	ch, err := c.ensureChannel(ctx)
	if err != nil {
		return false, err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return false, fmt.Errorf("set qos: %w", err)
	}
	msgs, err := ch.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return false, fmt.Errorf("start consuming: %w", err)
	}

	c.log().InfoContext(ctx, "Started consuming analysis requests", log.FieldOperation, log.OpConsume, "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return true, errors.New("message channel closed")
			}
			c.handleDelivery(ctx, delivery, handler)
		}
	}
}

func (c *Client) handleDelivery(ctx context.Context, d amqp091.Delivery, handler func(context.Context, *AnalysisRequestMessage) error) {
	msg, err := AnalysisRequestMessageFromJSON(d.Body)
	if err != nil {
		c.log().ErrorContext(ctx, "Dropping malformed analysis request", log.FieldError, err)
		d.Nack(false, false)
		return
	}

	err = handler(ctx, msg)
	switch {
	case err == nil:
		d.Ack(false)
	case errors.Is(err, ErrPermanent):
		c.log().ErrorContext(ctx, "Dropping analysis request after permanent failure", log.FieldError, err, "reason", msg.Reason)
		d.Nack(false, false)
	default:
		c.log().ErrorContext(ctx, "Failed to handle analysis request, requeueing", log.FieldError, err, "reason", msg.Reason, "delay", c.requeueDelay)
		if c.requeueDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(c.requeueDelay):
			}
		}
		d.Nack(false, true)
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	if c.channel != nil {
		err = c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err = errors.Join(err, c.conn.Close())
		c.conn = nil
	}
	return err
}
