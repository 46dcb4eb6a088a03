package middleware

import (
	"log/slog"
	"net/http"

	apperrors "poscore/internal/errors"
	"poscore/pkg/contracts/domain"
)

// LicenseStatusSource reports the current license status.
type LicenseStatusSource interface {
	Status() domain.LicenseStatus
}

// RequireLicense rejects requests while the license is not usable. It guards
// the domain write routes; license, status and health routes stay open so an
// unlicensed terminal can still be activated and inspected.
func RequireLicense(source LicenseStatusSource, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			status := source.Status()
			if status.Usable() {
				next.ServeHTTP(w, r)
				return
			}

			logger.WarnContext(r.Context(), "request blocked by license",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("license_status", string(status)))

			pd := apperrors.NewProblem(http.StatusPaymentRequired, apperrors.TypeLicense,
				"license "+string(status)+": activate or renew the license to continue")
			writeProblem(w, r, pd)
		})
	}
}
