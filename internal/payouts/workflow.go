package payouts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"support-console/internal/api"
	"support-console/internal/models"
	"support-console/internal/telemetry"
)

// MinRejectReason is the minimum reason length, counted in characters after trimming.
const MinRejectReason = 10

var (
	ErrReasonTooShort    = fmt.Errorf("reject reason must be at least %d characters", MinRejectReason)
	ErrReferenceRequired = errors.New("transfer reference is required")
	ErrInvalidTransition = errors.New("payout cannot be completed manually in its current state")
)

// AdminAPI is the slice of the REST client the workflow needs.
type AdminAPI interface {
	ListPayouts(ctx context.Context, status models.PayoutStatus) ([]models.Payout, error)
	GetPayout(ctx context.Context, payoutID string) (models.Payout, error)
	ProcessPayout(ctx context.Context, payoutID string) (models.Payout, error)
	RejectPayout(ctx context.Context, payoutID, reason string) (models.Payout, error)
	CompletePayoutManually(ctx context.Context, payoutID, reference string) (models.Payout, error)
}

type Recorder interface {
	Record(ctx context.Context, action, targetType, targetID, detail string)
}

// Workflow drives payouts through process, reject and manual completion.
type Workflow struct {
	api     AdminAPI
	journal Recorder

	mu             sync.Mutex
	transferFailed map[string]models.Payout
}

func NewWorkflow(adminAPI AdminAPI, journal Recorder) *Workflow {
	return &Workflow{api: adminAPI, journal: journal, transferFailed: make(map[string]models.Payout)}
}

// List returns payouts, with locally known transfer failures applied.
func (w *Workflow) List(ctx context.Context, status models.PayoutStatus) ([]models.Payout, error) {
	list, err := w.api.ListPayouts(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("list payouts: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range list {
		if _, failed := w.transferFailed[list[i].ID]; failed && isOpen(list[i].Status) {
			list[i].Status = models.PayoutTransferFailed
		}
	}
	return list, nil
}

// Process starts the bank transfer. A provider failure is not an error: the
// payout moves to transfer_failed and waits for manual completion.
func (w *Workflow) Process(ctx context.Context, payoutID string) (models.PayoutResult, error) {
	payout, err := w.api.ProcessPayout(ctx, payoutID)
	if err == nil {
		w.clearFailure(payoutID)
		w.journal.Record(ctx, telemetry.ActionPayoutProcessed, telemetry.TargetPayout, payoutID, string(payout.Status))
		return models.PayoutResult{Payout: payout}, nil
	}

	apiErr, ok := api.AsAPIError(err)
	if !ok || !apiErr.IsTransferFailure() {
		return models.PayoutResult{}, fmt.Errorf("process payout %s: %w", payoutID, err)
	}

	if payout.ID == "" {
		payout.ID = payoutID
	}
	payout.Status = models.PayoutTransferFailed
	w.mu.Lock()
	w.transferFailed[payoutID] = payout
	w.mu.Unlock()

	detail := apiErr.Message
	if apiErr.SudoError != "" {
		detail += ": " + apiErr.SudoError
	}
	w.journal.Record(ctx, telemetry.ActionPayoutTransferFail, telemetry.TargetPayout, payoutID, detail)

	msg := "transfer failed, complete the payout manually once the funds are sent"
	if apiErr.Hint != "" {
		msg = apiErr.Hint
	}
	return models.PayoutResult{Payout: payout, TransferFailed: true, Message: msg}, nil
}

// Reject rejects a payout. The reason is validated before any call.
func (w *Workflow) Reject(ctx context.Context, payoutID, reason string) (models.Payout, error) {
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) < MinRejectReason {
		return models.Payout{}, ErrReasonTooShort
	}
	payout, err := w.api.RejectPayout(ctx, payoutID, reason)
	if err != nil {
		return models.Payout{}, fmt.Errorf("reject payout %s: %w", payoutID, err)
	}
	w.clearFailure(payoutID)
	w.journal.Record(ctx, telemetry.ActionPayoutRejected, telemetry.TargetPayout, payoutID, reason)
	return payout, nil
}

// ManualComplete records a transfer made outside the provider. Only payouts in
// transfer_failed or processing qualify.
func (w *Workflow) ManualComplete(ctx context.Context, payoutID, reference string) (models.Payout, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return models.Payout{}, ErrReferenceRequired
	}

	w.mu.Lock()
	_, failed := w.transferFailed[payoutID]
	w.mu.Unlock()
	if !failed {
		current, err := w.api.GetPayout(ctx, payoutID)
		if err != nil {
			return models.Payout{}, fmt.Errorf("get payout %s: %w", payoutID, err)
		}
		if current.Status != models.PayoutProcessing && current.Status != models.PayoutTransferFailed {
			return models.Payout{}, ErrInvalidTransition
		}
	}

	payout, err := w.api.CompletePayoutManually(ctx, payoutID, reference)
	if err != nil {
		return models.Payout{}, fmt.Errorf("complete payout %s: %w", payoutID, err)
	}
	w.clearFailure(payoutID)
	w.journal.Record(ctx, telemetry.ActionPayoutCompleted, telemetry.TargetPayout, payoutID, reference)
	return payout, nil
}

func (w *Workflow) clearFailure(payoutID string) {
	w.mu.Lock()
	delete(w.transferFailed, payoutID)
	w.mu.Unlock()
}

func isOpen(status models.PayoutStatus) bool {
	return status == models.PayoutPending || status == models.PayoutProcessing || status == models.PayoutFailed
}
