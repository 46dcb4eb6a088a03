// Package exporter writes outbox dead letters to files an operator can open
// in a spreadsheet.
//
// Two formats are supported:
//
// XLSX: a workbook with a "DeadLetters" sheet holding one row per record and
// a "Summary" sheet with counts per entity type.
//
// CSV: the same columns as the XLSX sheet, prefixed with a UTF-8 BOM so Excel
// recognizes the encoding.
//
// Example usage:
//
//	recs, _ := box.DeadLetters(ctx, 500, 0)
//	err := exporter.WriteFile("dead-letters.xlsx", recs, time.Now())
package exporter
