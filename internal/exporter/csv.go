package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"poscore/pkg/contracts/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Columns are the headers shared by the CSV and XLSX exports.
var Columns = []string{
	"ID", "Entity Type", "Entity ID", "Operation", "Status", "Retry Count",
	"Error", "Business ID", "Branch ID", "Payload Hash", "Created At", "Synced At", "Payload",
}

// row flattens a record into export columns.
func row(rec domain.SyncRecord) []string {
	return []string{
		rec.ID.String(),
		rec.EntityType,
		rec.EntityID,
		string(rec.Operation),
		string(rec.Status),
		strconv.Itoa(rec.RetryCount),
		formatString(rec.ErrorMessage),
		formatUUID(rec.BusinessID),
		formatUUID(rec.BranchID),
		rec.PayloadHash,
		formatTime(rec.CreatedAt),
		formatOptionalTime(rec.SyncedAt),
		string(rec.Payload),
	}
}

// WriteCSV writes records as CSV with a header line. The output starts with
// a UTF-8 BOM for Excel compatibility.
func WriteCSV(w io.Writer, recs []domain.SyncRecord) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return fmt.Errorf("failed to write BOM: %w", err)
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(Columns); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	for i, rec := range recs {
		if err := writer.Write(row(rec)); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}
