package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	apperrors "poscore/internal/errors"
	"poscore/pkg/contracts/domain"
)

type activateRequest struct {
	LicenseKey string `json:"license_key"`
	MachineID  string `json:"machine_id"`
}

type validateRequest struct {
	MachineID string `json:"machine_id"`
}

// LicenseClient talks to the licensing service.
type LicenseClient struct {
	baseClient
}

// NewLicenseClient creates a licensing client for baseURL.
func NewLicenseClient(baseURL string, timeout time.Duration, tokens *TokenSource, logger *slog.Logger) *LicenseClient {
	return &LicenseClient{baseClient: newBaseClient(baseURL, timeout, tokens, logger, "license_client")}
}

// Activate redeems key for machineID.
func (c *LicenseClient) Activate(ctx context.Context, key, machineID string) (domain.ActivationResult, error) {
	var result domain.ActivationResult
	err := c.do(ctx, http.MethodPost, "/api/v1/licenses/activate", nil, activateRequest{LicenseKey: key, MachineID: machineID}, &result)
	if err != nil {
		return domain.ActivationResult{}, classifyLicenseError(err)
	}
	return result, nil
}

// Validate returns the server's view of the license bound to machineID.
func (c *LicenseClient) Validate(ctx context.Context, machineID string) (domain.LicenseInfo, error) {
	var info domain.LicenseInfo
	err := c.do(ctx, http.MethodPost, "/api/v1/licenses/validate", nil, validateRequest{MachineID: machineID}, &info)
	if err != nil {
		return domain.LicenseInfo{}, classifyLicenseError(err)
	}
	return info, nil
}

func classifyLicenseError(err error) error {
	var status *StatusError
	if !errors.As(err, &status) {
		return err
	}
	switch status.Code {
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", apperrors.ErrDuplicateMachine, status.Body)
	case http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusGone, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", apperrors.ErrInvalidLicenseKey, status.Body)
	}
	return err
}
