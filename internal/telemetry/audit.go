package telemetry

import (
	"context"
	"log"
	"time"

	"support-console/internal/models"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// AuditEmitter publishes admin decisions to the audit exchange.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	now         func() time.Time
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	AdminID       string       `json:"admin_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Action     string `json:"action"`
	TargetType string `json:"target_type"`
	TargetID   string `json:"target_id"`
	Detail     string `json:"detail,omitempty"`
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		now:         time.Now,
	}
}

// Emit publishes one admin action. Publish failures are logged, never returned.
func (e *AuditEmitter) Emit(ctx context.Context, action models.AdminAction, requestID string) {
	if e == nil || e.publisher == nil {
		return
	}

	log.Printf("audit emit: action=%s target=%s/%s request_id=%s admin_id=%s", action.Action, action.TargetType, action.TargetID, requestID, action.AdminID)
	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "admin_action",
		OccurredAt:    e.now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     requestID,
		AdminID:       action.AdminID,
		Payload: AuditPayload{
			Action:     action.Action,
			TargetType: action.TargetType,
			TargetID:   action.TargetID,
			Detail:     action.Detail,
		},
	}

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		log.Printf("audit publish failed: %v", err)
	}
}
