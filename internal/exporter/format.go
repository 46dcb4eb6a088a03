package exporter

import (
	"time"

	"github.com/google/uuid"
)

const timeLayout = time.RFC3339

// formatTime formats a timestamp in UTC for export
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

// formatOptionalTime formats a nullable timestamp, empty when unset
func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

// formatUUID formats a nullable tenant identifier, empty when unset
func formatUUID(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func formatString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
