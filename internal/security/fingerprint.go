package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Hardware factors combined into the machine fingerprint.
const (
	FactorCPU   = "cpu"
	FactorBoard = "board"
	FactorMAC   = "mac"
)

// Prober reads one hardware fact.
type Prober func() (string, error)

// Probes are the hardware probes a Provider combines.
type Probes struct {
	CPU   Prober
	Board Prober
	MAC   Prober
}

// Fingerprint represents device identification information
type Fingerprint struct {
	MachineID   string    `json:"machine_id"`
	CPUID       string    `json:"cpu_id"`
	BoardSerial string    `json:"board_serial"`
	MACAddress  string    `json:"mac_address"`
	OS          string    `json:"os"`
	Degraded    []string  `json:"degraded,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Provider derives a stable machine identifier from local hardware facts.
// A failed probe degrades the fingerprint instead of failing it.
type Provider struct {
	probes Probes
	logger *slog.Logger

	mu    sync.Mutex
	cache *Fingerprint
}

// NewProvider creates a provider using the platform probes.
func NewProvider(logger *slog.Logger) *Provider {
	return NewProviderWithProbes(PlatformProbes(), logger)
}

// NewProviderWithProbes creates a provider with explicit probes.
func NewProviderWithProbes(probes Probes, logger *slog.Logger) *Provider {
	return &Provider{
		probes: probes,
		logger: logger.With(slog.String("component", "hardware_identity")),
	}
}

// GetMachineID returns the hex SHA-256 fingerprint of this machine.
func (p *Provider) GetMachineID() string {
	return p.Probe().MachineID
}

// Probe returns the full fingerprint with its raw factors. A
// fingerprint with every factor present is cached; a degraded one is
// recomputed on the next call so a recovered probe is picked up.
func (p *Provider) Probe() Fingerprint {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cache != nil {
		return *p.cache
	}

	fp := Fingerprint{OS: runtime.GOOS, GeneratedAt: time.Now()}
	fp.CPUID = p.read(FactorCPU, p.probes.CPU, &fp.Degraded)
	fp.BoardSerial = p.read(FactorBoard, p.probes.Board, &fp.Degraded)
	fp.MACAddress = p.read(FactorMAC, p.probes.MAC, &fp.Degraded)

	combined := strings.Join([]string{fp.CPUID, fp.BoardSerial, fp.MACAddress}, "|")
	hash := sha256.Sum256([]byte(combined))
	fp.MachineID = hex.EncodeToString(hash[:])

	level := slog.LevelInfo
	if len(fp.Degraded) > 0 {
		level = slog.LevelWarn
	}
	p.logger.Log(context.Background(), level, "device fingerprint generated",
		slog.String("action", "fingerprint"),
		slog.String("machine_id", fp.MachineID),
		slog.Any("degraded", fp.Degraded))

	if len(fp.Degraded) == 0 {
		cached := fp
		p.cache = &cached
	}
	return fp
}

func (p *Provider) read(factor string, probe Prober, degraded *[]string) string {
	if probe == nil {
		*degraded = append(*degraded, factor)
		return "unknown-" + factor
	}

	value, err := probe()
	value = strings.TrimSpace(value)
	if err != nil || value == "" {
		attrs := []any{slog.String("factor", factor)}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		p.logger.Warn("hardware probe failed, using placeholder", attrs...)
		*degraded = append(*degraded, factor)
		return "unknown-" + factor
	}
	return value
}
