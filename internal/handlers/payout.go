package handlers

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"support-console/internal/export"
	"support-console/internal/models"
)

// PayoutService is the payout workflow.
type PayoutService interface {
	List(ctx context.Context, status models.PayoutStatus) ([]models.Payout, error)
	Process(ctx context.Context, payoutID string) (models.PayoutResult, error)
	Reject(ctx context.Context, payoutID, reason string) (models.Payout, error)
	ManualComplete(ctx context.Context, payoutID, reference string) (models.Payout, error)
}

// PayoutHandler serves payout decisions and exports.
type PayoutHandler struct {
	payouts PayoutService
	now     func() time.Time
}

// NewPayoutHandler builds a PayoutHandler.
func NewPayoutHandler(payouts PayoutService) *PayoutHandler {
	return &PayoutHandler{payouts: payouts, now: time.Now}
}

func (h *PayoutHandler) ListPayouts(c *gin.Context) {
	list, err := h.payouts.List(c.Request.Context(), models.PayoutStatus(c.Query("status")))
	if err != nil {
		respondError(c, err)
		return
	}
	if list == nil {
		list = []models.Payout{}
	}
	c.JSON(http.StatusOK, gin.H{"payouts": list})
}

// ProcessPayout starts the transfer. A provider failure answers 200 with
// transferFailed set so the UI can offer manual completion.
func (h *PayoutHandler) ProcessPayout(c *gin.Context) {
	res, err := h.payouts.Process(requestContext(c), c.Param("payout_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *PayoutHandler) RejectPayout(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	payout, err := h.payouts.Reject(requestContext(c), c.Param("payout_id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, payout)
}

func (h *PayoutHandler) CompletePayout(c *gin.Context) {
	var req struct {
		Reference string `json:"reference"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	payout, err := h.payouts.ManualComplete(requestContext(c), c.Param("payout_id"), req.Reference)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, payout)
}

// ExportPayouts downloads payouts as CSV (default) or XLSX via ?format=.
func (h *PayoutHandler) ExportPayouts(c *gin.Context) {
	format := c.DefaultQuery("format", export.FormatCSV)
	if format != export.FormatCSV && format != export.FormatXLSX {
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be csv or xlsx"})
		return
	}

	list, err := h.payouts.List(c.Request.Context(), models.PayoutStatus(c.Query("status")))
	if err != nil {
		respondError(c, err)
		return
	}

	table := export.PayoutTable(list)
	var (
		buf         bytes.Buffer
		contentType string
	)
	if format == export.FormatXLSX {
		err = export.WriteXLSX(&buf, table)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	} else {
		err = export.WriteCSV(&buf, table)
		contentType = "text/csv; charset=utf-8"
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build export"})
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+export.Filename("payouts", format, h.now())+`"`)
	c.Data(http.StatusOK, contentType, buf.Bytes())
}
