package models

import (
	"encoding/json"
	"time"
)

// PayoutStatus tracks a payout through processing.
type PayoutStatus string

const (
	PayoutPending        PayoutStatus = "pending"
	PayoutProcessing     PayoutStatus = "processing"
	PayoutCompleted      PayoutStatus = "completed"
	PayoutRejected       PayoutStatus = "rejected"
	PayoutFailed         PayoutStatus = "failed"
	PayoutTransferFailed PayoutStatus = "transfer_failed"
)

// Payout is a withdrawal request awaiting admin processing.
type Payout struct {
	ID            string       `json:"id"`
	UserID        string       `json:"userId"`
	Amount        float64      `json:"amount"`
	Currency      string       `json:"currency"`
	Status        PayoutStatus `json:"status"`
	BankName      string       `json:"bankName,omitempty"`
	AccountNumber string       `json:"accountNumber,omitempty"`
	Reference     string       `json:"reference,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
	ProcessedAt   *time.Time   `json:"processedAt,omitempty"`
}

// UnmarshalJSON decodes a payout, accepting the same timestamp forms as messages.
func (p *Payout) UnmarshalJSON(data []byte) error {
	type alias Payout
	aux := struct {
		*alias
		CreatedAt   json.RawMessage `json:"createdAt"`
		ProcessedAt json.RawMessage `json:"processedAt"`
	}{alias: (*alias)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	created, err := decodeTimestamp(aux.CreatedAt)
	if err != nil {
		return err
	}
	p.CreatedAt = created
	processed, err := decodeTimestamp(aux.ProcessedAt)
	if err != nil {
		return err
	}
	p.ProcessedAt = nil
	if !processed.IsZero() {
		p.ProcessedAt = &processed
	}
	return nil
}

// AdminAction is a journal entry for an admin decision.
type AdminAction struct {
	ID         int       `db:"id" json:"id"`
	AdminID    string    `db:"admin_id" json:"admin_id"`
	Action     string    `db:"action" json:"action"`
	TargetType string    `db:"target_type" json:"target_type"`
	TargetID   string    `db:"target_id" json:"target_id"`
	Detail     string    `db:"detail" json:"detail"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// PayoutResult is the outcome of processing a payout. When the provider failed
// the payout is in transfer_failed and Message explains what to do next.
type PayoutResult struct {
	Payout         Payout `json:"payout"`
	TransferFailed bool   `json:"transferFailed"`
	Message        string `json:"message,omitempty"`
}
