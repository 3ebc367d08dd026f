package telemetry

import (
	"context"
	"log"

	"support-console/internal/models"
)

// Action names written to the journal.
const (
	ActionConversationClosed = "conversation_closed"
	ActionPayoutProcessed    = "payout_processed"
	ActionPayoutTransferFail = "payout_transfer_failed"
	ActionPayoutRejected     = "payout_rejected"
	ActionPayoutCompleted    = "payout_completed"
)

// Target types.
const (
	TargetConversation = "conversation"
	TargetPayout       = "payout"
)

// ActionStore persists journal entries.
type ActionStore interface {
	Record(ctx context.Context, action models.AdminAction) (models.AdminAction, error)
}

type requestIDKey struct{}

// WithRequestID attaches the UI request id so audit events can be correlated.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestID returns the request id stored by WithRequestID.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Journal writes admin decisions to the action store and the audit exchange.
// A decision already taken on the platform is never undone because the journal
// failed, so errors are only logged.
type Journal struct {
	store   ActionStore
	audit   *AuditEmitter
	adminID string
}

func NewJournal(store ActionStore, audit *AuditEmitter, adminID string) *Journal {
	return &Journal{store: store, audit: audit, adminID: adminID}
}

func (j *Journal) Record(ctx context.Context, action, targetType, targetID, detail string) {
	if j == nil {
		return
	}
	entry := models.AdminAction{
		AdminID:    j.adminID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Detail:     detail,
	}
	if j.store != nil {
		saved, err := j.store.Record(ctx, entry)
		if err != nil {
			log.Printf("journal record failed: action=%s target=%s err=%v", action, targetID, err)
		} else {
			entry = saved
		}
	}
	j.audit.Emit(ctx, entry, RequestID(ctx))
}
