package license

import (
	"context"
	"encoding/json"
	"fmt"

	apperrors "poscore/internal/errors"
	"poscore/pkg/contracts/domain"
)

const cacheVersion = 1

type cachedLicense struct {
	Version int                `json:"version"`
	Info    domain.LicenseInfo `json:"info"`
}

// saveCache seals info with the machine id as associated data.
func (m *Manager) saveCache(ctx context.Context, info domain.LicenseInfo) error {
	data, err := json.Marshal(cachedLicense{Version: cacheVersion, Info: info})
	if err != nil {
		return fmt.Errorf("encode license cache: %w", err)
	}
	sealed, err := m.sealer.Seal(data, []byte(m.identity.GetMachineID()))
	if err != nil {
		return fmt.Errorf("seal license cache: %w", err)
	}
	if err := m.store.SaveLicense(ctx, sealed); err != nil {
		return fmt.Errorf("persist license cache: %w", err)
	}
	return nil
}

// loadCache returns nil when no license was ever persisted.
func (m *Manager) loadCache(ctx context.Context) (*domain.LicenseInfo, error) {
	sealed, err := m.store.LoadLicense(ctx)
	if err != nil {
		return nil, fmt.Errorf("read license cache: %w", err)
	}
	if len(sealed) == 0 {
		return nil, nil
	}

	machineID := m.identity.GetMachineID()
	data, err := m.sealer.Open(sealed, []byte(machineID))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrLicenseCorrupted, err)
	}

	var cached cachedLicense
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrLicenseCorrupted, err)
	}
	if cached.Version != cacheVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", apperrors.ErrLicenseCorrupted, cached.Version)
	}
	if cached.Info.MachineID != machineID {
		return nil, fmt.Errorf("%w: issued to another machine", apperrors.ErrLicenseCorrupted)
	}
	return &cached.Info, nil
}
