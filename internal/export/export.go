package export

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"support-console/internal/models"
)

// SheetName is the worksheet every XLSX export writes to.
const SheetName = "Export"

const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// Table is a fixed-column export.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Filename returns <prefix>_<YYYY-MM-DD>.<ext> using the UTC date.
func Filename(prefix, ext string, now time.Time) string {
	return fmt.Sprintf("%s_%s.%s", prefix, now.UTC().Format("2006-01-02"), ext)
}

// WriteCSV writes every field double-quoted, embedded quotes doubled, one row per line.
func WriteCSV(w io.Writer, t Table) error {
	bw := bufio.NewWriter(w)
	if err := writeCSVRow(bw, t.Headers); err != nil {
		return err
	}
	for _, row := range t.Rows {
		if err := writeCSVRow(bw, row); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func writeCSVRow(w *bufio.Writer, fields []string) error {
	for i, field := range fields {
		if i > 0 {
			if err := w.WriteByte(','); err != nil {
				return err
			}
		}
		if _, err := w.WriteString(`"` + strings.ReplaceAll(field, `"`, `""`) + `"`); err != nil {
			return err
		}
	}
	return w.WriteByte('\n')
}

// WriteXLSX writes the table with a header row to the Export sheet.
func WriteXLSX(w io.Writer, t Table) error {
	f := excelize.NewFile()
	defer f.Close()

	if _, err := f.NewSheet(SheetName); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("delete default sheet: %w", err)
	}
	index, err := f.GetSheetIndex(SheetName)
	if err != nil {
		return fmt.Errorf("find sheet: %w", err)
	}
	f.SetActiveSheet(index)

	if err := writeXLSXRow(f, 1, t.Headers); err != nil {
		return err
	}
	for i, row := range t.Rows {
		if err := writeXLSXRow(f, i+2, row); err != nil {
			return err
		}
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func writeXLSXRow(f *excelize.File, rowIndex int, fields []string) error {
	for col, field := range fields {
		cell, err := excelize.CoordinatesToCellName(col+1, rowIndex)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(SheetName, cell, field); err != nil {
			return fmt.Errorf("set %s: %w", cell, err)
		}
	}
	return nil
}

// PayoutTable lays out payouts in the fixed export column order.
func PayoutTable(payouts []models.Payout) Table {
	t := Table{Headers: []string{"ID", "User ID", "Amount", "Currency", "Status", "Bank", "Account Number", "Reference", "Created At", "Processed At"}}
	for _, p := range payouts {
		processed := ""
		if p.ProcessedAt != nil {
			processed = formatTime(*p.ProcessedAt)
		}
		t.Rows = append(t.Rows, []string{
			p.ID,
			p.UserID,
			strconv.FormatFloat(p.Amount, 'f', 2, 64),
			p.Currency,
			string(p.Status),
			p.BankName,
			p.AccountNumber,
			p.Reference,
			formatTime(p.CreatedAt),
			processed,
		})
	}
	return t
}

// MessageTable lays out a conversation transcript. Pending messages are skipped.
func MessageTable(messages []models.Message) Table {
	t := Table{Headers: []string{"ID", "Conversation ID", "Sender", "Type", "Message", "File URL", "Read", "Created At"}}
	for _, m := range messages {
		if m.Pending {
			continue
		}
		t.Rows = append(t.Rows, []string{
			m.ID,
			m.ConversationID,
			string(m.SenderType),
			string(m.MessageType),
			m.Message,
			m.FileURL,
			strconv.FormatBool(m.IsRead),
			formatTime(m.CreatedAt),
		})
	}
	return t
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
