package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"support-console/internal/observability"
	"support-console/internal/telemetry"
)

// Publisher publishes audit events.
type Publisher = telemetry.Publisher

var errNotConfirmed = errors.New("broker did not confirm audit event")

// NewPublisher builds a confirming RabbitMQ publisher for the audit exchange,
// or a noop publisher when AMQP is disabled or unreachable at startup.
func NewPublisher(amqpURL, exchange string) Publisher {
	if amqpURL == "" {
		log.Printf("rabbitmq disabled, using noop: empty amqp url")
		return noopPublisher{reason: "empty amqp url"}
	}

	p := &amqpPublisher{url: amqpURL, exchange: exchange}
	if err := p.connect(); err != nil {
		log.Printf("rabbitmq disabled, using noop: %v", err)
		return noopPublisher{reason: err.Error()}
	}
	log.Printf("rabbitmq connected exchange=%s confirms=on", exchange)
	return p
}

// amqpPublisher owns one channel in confirm mode. A channel is not safe for
// concurrent publishers, so every publish holds mu until its confirm arrives.
type amqpPublisher struct {
	url      string
	exchange string

	mu     sync.Mutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed chan *amqp.Error
}

func (p *amqpPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("confirm mode: %w", err)
	}
	p.conn = conn
	p.ch = ch
	p.closed = ch.NotifyClose(make(chan *amqp.Error, 1))
	return nil
}

// ensureChannel redials once when the broker closed the channel since the last publish.
func (p *amqpPublisher) ensureChannel() error {
	if p.ch != nil {
		select {
		case err := <-p.closed:
			log.Printf("rabbitmq channel closed, redialing: %v", err)
			p.drop()
		default:
			return nil
		}
	}
	return p.connect()
}

func (p *amqpPublisher) drop() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.ch, p.conn, p.closed = nil, nil, nil
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if envelope, ok := asEnvelope(event); ok {
		msg.Type = envelope.EventType
		msg.MessageId = envelope.RequestID
		msg.AppId = envelope.Service
		msg.Headers = amqp.Table{"action": envelope.Payload.Action, "target_type": envelope.Payload.TargetType}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ensureChannel(); err != nil {
		return p.fail(fmt.Errorf("rabbitmq reconnect: %w", err))
	}

	confirm, err := p.ch.PublishWithDeferredConfirmWithContext(ctx, p.exchange, routingKey, false, false, msg)
	if err != nil {
		p.drop()
		return p.fail(err)
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return p.fail(err)
	}
	if !acked {
		return p.fail(errNotConfirmed)
	}
	return nil
}

func (p *amqpPublisher) fail(err error) error {
	observability.IncAMQPPublishError()
	log.Printf("rabbitmq publish failed: %v", err)
	return err
}

func (p *amqpPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	var err error
	if p.conn != nil {
		err = p.conn.Close()
	}
	p.ch, p.conn, p.closed = nil, nil, nil
	return err
}

func asEnvelope(event any) (telemetry.AuditEnvelope, bool) {
	switch e := event.(type) {
	case telemetry.AuditEnvelope:
		return e, true
	case *telemetry.AuditEnvelope:
		if e != nil {
			return *e, true
		}
	}
	return telemetry.AuditEnvelope{}, false
}

type noopPublisher struct {
	reason string
}

func (noopPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	if envelope, ok := asEnvelope(event); ok {
		log.Printf("rabbitmq noop publish routing_key=%s action=%s target=%s/%s request_id=%s", routingKey, envelope.Payload.Action, envelope.Payload.TargetType, envelope.Payload.TargetID, envelope.RequestID)
		return nil
	}
	log.Printf("rabbitmq noop publish routing_key=%s", routingKey)
	return nil
}

func (noopPublisher) Close() error {
	return nil
}

// PublisherMode reports "amqp" or "noop" for startup logging.
func PublisherMode(p Publisher) string {
	switch p.(type) {
	case *amqpPublisher:
		return "amqp"
	case noopPublisher:
		return "noop"
	default:
		return "unknown"
	}
}

func PublisherNoopReason(p Publisher) string {
	if publisher, ok := p.(noopPublisher); ok {
		return publisher.reason
	}
	return ""
}
