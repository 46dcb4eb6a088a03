package exporter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"poscore/pkg/contracts/domain"
)

const (
	recordsSheet = "DeadLetters"
	summarySheet = "Summary"
)

// Format selects the export encoding.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// FormatFromPath picks the format from the file extension, defaulting to XLSX.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return FormatCSV
	}
	return FormatXLSX
}

// ContentType is the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Write encodes recs in the given format.
func Write(w io.Writer, format Format, recs []domain.SyncRecord, generatedAt time.Time) error {
	if format == FormatCSV {
		return WriteCSV(w, recs)
	}
	return WriteXLSX(w, recs, generatedAt)
}

// WriteXLSX writes a workbook with one row per record and a summary sheet.
func WriteXLSX(w io.Writer, recs []domain.SyncRecord, generatedAt time.Time) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", recordsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#1F2937"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	if err := writeRow(f, recordsSheet, 1, Columns); err != nil {
		return err
	}
	for i, rec := range recs {
		if err := writeRow(f, recordsSheet, i+2, row(rec)); err != nil {
			return err
		}
	}
	last, _ := excelize.ColumnNumberToName(len(Columns))
	_ = f.SetCellStyle(recordsSheet, "A1", last+"1", header)
	_ = f.SetColWidth(recordsSheet, "A", "A", 38)
	_ = f.SetColWidth(recordsSheet, "B", "F", 14)
	_ = f.SetColWidth(recordsSheet, "G", "G", 40)
	_ = f.SetColWidth(recordsSheet, "H", "I", 38)
	_ = f.SetColWidth(recordsSheet, "J", "L", 24)
	_ = f.SetColWidth(recordsSheet, last, last, 60)
	_ = f.SetPanes(recordsSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}
	if err := writeSummary(f, recs, generatedAt); err != nil {
		return err
	}
	_ = f.SetCellStyle(summarySheet, "A3", "B3", header)
	_ = f.SetColWidth(summarySheet, "A", "B", 24)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// WriteFile writes recs to path, choosing the format by extension.
func WriteFile(path string, recs []domain.SyncRecord, generatedAt time.Time) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := Write(file, FormatFromPath(path), recs, generatedAt); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func writeSummary(f *excelize.File, recs []domain.SyncRecord, generatedAt time.Time) error {
	counts := make(map[string]int)
	for _, rec := range recs {
		counts[rec.EntityType]++
	}
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Strings(types)

	rows := [][]any{
		{"Generated At", formatTime(generatedAt)},
		{"Records", len(recs)},
		{"Entity Type", "Count"},
	}
	for _, t := range types {
		rows = append(rows, []any{t, counts[t]})
	}
	for i, values := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheet, cell, &values); err != nil {
			return fmt.Errorf("write summary row %d: %w", i+1, err)
		}
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, n int, values []string) error {
	for c, v := range values {
		cell, _ := excelize.CoordinatesToCellName(c+1, n)
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, n, err)
		}
	}
	return nil
}
