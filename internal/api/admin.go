package api

import (
	"context"
	"net/http"
	"net/url"

	"support-console/internal/models"
)

// ListPayouts returns payouts, optionally filtered by status.
func (c *Client) ListPayouts(ctx context.Context, status models.PayoutStatus) ([]models.Payout, error) {
	query := url.Values{}
	if status != "" {
		query.Set("status", string(status))
	}
	var data struct {
		Payouts []models.Payout `json:"payouts"`
	}
	if err := c.do(ctx, http.MethodGet, "/admin/payouts", query, nil, &data); err != nil {
		return nil, err
	}
	return data.Payouts, nil
}

// GetPayout fetches a single payout.
func (c *Client) GetPayout(ctx context.Context, payoutID string) (models.Payout, error) {
	var payout models.Payout
	err := c.do(ctx, http.MethodGet, "/admin/payouts/"+url.PathEscape(payoutID), nil, nil, &payout)
	return payout, err
}

// ProcessPayout starts the bank transfer for a payout.
func (c *Client) ProcessPayout(ctx context.Context, payoutID string) (models.Payout, error) {
	var payout models.Payout
	err := c.do(ctx, http.MethodPost, "/admin/payouts/"+url.PathEscape(payoutID)+"/process", nil, struct{}{}, &payout)
	return payout, err
}

// RejectPayout rejects a payout with a justification.
func (c *Client) RejectPayout(ctx context.Context, payoutID, reason string) (models.Payout, error) {
	body := map[string]string{"reason": reason}
	var payout models.Payout
	err := c.do(ctx, http.MethodPost, "/admin/payouts/"+url.PathEscape(payoutID)+"/reject", nil, body, &payout)
	return payout, err
}

// CompletePayoutManually records a transfer made outside the provider.
func (c *Client) CompletePayoutManually(ctx context.Context, payoutID, reference string) (models.Payout, error) {
	body := map[string]string{"reference": reference}
	var payout models.Payout
	err := c.do(ctx, http.MethodPost, "/admin/payouts/"+url.PathEscape(payoutID)+"/manual-complete", nil, body, &payout)
	return payout, err
}
