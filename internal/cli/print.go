package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"poscore/pkg/contracts/domain"
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	errColor  = color.New(color.FgRed)
	dimColor  = color.New(color.Faint)
)

func statusColor(s domain.LicenseStatus) *color.Color {
	switch s {
	case domain.LicenseValid, domain.LicenseDeveloper:
		return okColor
	case domain.LicenseTrial:
		return warnColor
	default:
		return errColor
	}
}

func printField(w io.Writer, label string, value any) {
	fmt.Fprintf(w, "  %-16s %v\n", label+":", value)
}

func printLicense(w io.Writer, info domain.LicenseInfo, now time.Time) {
	fmt.Fprintf(w, "License: %s\n", statusColor(info.Status).Sprint(info.Status))
	printField(w, "Machine ID", info.MachineID)
	if info.KeyHint != "" {
		printField(w, "Key", info.KeyHint)
	}
	if info.PlanName != "" {
		printField(w, "Plan", info.PlanName)
	}
	if info.BusinessID != nil {
		printField(w, "Business", info.BusinessID.String())
	}
	if info.ExpiresAt != nil {
		printField(w, "Expires", fmt.Sprintf("%s (%d days)", info.ExpiresAt.UTC().Format(time.DateOnly), info.DaysRemaining(now)))
	} else if info.Status.Usable() {
		printField(w, "Expires", "never")
	}
	if info.Status.Usable() {
		printField(w, "Cloud sync", info.CloudSyncEnabled)
	}
	if info.Message != "" {
		printField(w, "Message", warnColor.Sprint(info.Message))
	}
}

func orDash(s string) string {
	if s == "" {
		return dimColor.Sprint("-")
	}
	return s
}
