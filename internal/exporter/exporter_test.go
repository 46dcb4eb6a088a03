package exporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"poscore/pkg/contracts/domain"
)

var generatedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func deadLetters() []domain.SyncRecord {
	business := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	branch := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	msg := "remote rejected record: 422"
	return []domain.SyncRecord{
		{
			ID:           uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000001"),
			EntityType:   domain.EntityProduct,
			EntityID:     "p-1",
			Operation:    domain.OperationCreate,
			Payload:      json.RawMessage(`{"name":"Tea"}`),
			PayloadHash:  "abc",
			BusinessID:   &business,
			BranchID:     &branch,
			Status:       domain.SyncFailed,
			RetryCount:   5,
			ErrorMessage: &msg,
			CreatedAt:    time.Date(2026, 2, 28, 8, 30, 0, 0, time.UTC),
		},
		{
			ID:          uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000002"),
			EntityType:  domain.EntityTransaction,
			EntityID:    "t-1",
			Operation:   domain.OperationDelete,
			PayloadHash: "def",
			Status:      domain.SyncFailed,
			RetryCount:  7,
			CreatedAt:   time.Date(2026, 2, 28, 9, 0, 0, 0, time.UTC),
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, deadLetters()))

	data := buf.Bytes()
	require.True(t, bytes.HasPrefix(data, utf8BOM))

	rows, err := csv.NewReader(bytes.NewReader(data[len(utf8BOM):])).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Columns, rows[0])

	first := rows[1]
	assert.Equal(t, "Product", first[1])
	assert.Equal(t, "5", first[5])
	assert.Equal(t, "remote rejected record: 422", first[6])
	assert.Equal(t, "2026-02-28T08:30:00Z", first[10])
	assert.Equal(t, `{"name":"Tea"}`, first[12])

	second := rows[2]
	assert.Empty(t, second[7], "unset business id")
	assert.Empty(t, second[11], "never synced")
	assert.Empty(t, second[12], "delete has no payload")
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, deadLetters(), generatedAt))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{recordsSheet, summarySheet}, f.GetSheetList())

	rows, err := f.GetRows(recordsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Columns, rows[0])
	assert.Equal(t, "p-1", rows[1][2])
	assert.Equal(t, "Delete", rows[2][3])

	summary, err := f.GetRows(summarySheet)
	require.NoError(t, err)
	assert.Equal(t, []string{"Generated At", "2026-03-01T12:00:00Z"}, summary[0])
	assert.Equal(t, []string{"Records", "2"}, summary[1])
	assert.Equal(t, []string{"Product", "1"}, summary[3])
	assert.Equal(t, []string{"Transaction", "1"}, summary[4])
}

func TestWriteXLSXEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, nil, generatedAt))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(recordsSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestWriteFile(t *testing.T) {
	tests := []struct {
		name   string
		file   string
		format Format
	}{
		{name: "xlsx by extension", file: "out/dead.xlsx", format: FormatXLSX},
		{name: "csv by extension", file: "out/dead.CSV", format: FormatCSV},
		{name: "unknown defaults to xlsx", file: "dead.bin", format: FormatXLSX},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.format, FormatFromPath(tt.file))

			path := filepath.Join(t.TempDir(), tt.file)
			require.NoError(t, WriteFile(path, deadLetters(), generatedAt))

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			if tt.format == FormatCSV {
				assert.True(t, bytes.HasPrefix(data, utf8BOM))
			} else {
				assert.True(t, bytes.HasPrefix(data, []byte("PK")), "xlsx is a zip archive")
			}
		})
	}
}
