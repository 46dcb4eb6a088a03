package security

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poscore/internal/shared/testutil"
)

func fixed(v string) Prober { return func() (string, error) { return v, nil } }

func failing(msg string) Prober { return func() (string, error) { return "", errors.New(msg) } }

func expectedID(parts ...string) string {
	joined := parts[0]
	for _, p := range parts[1:] {
		joined += "|" + p
	}
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])
}

func TestProviderGetMachineID(t *testing.T) {
	tests := []struct {
		name         string
		probes       Probes
		wantID       string
		wantDegraded []string
	}{
		{
			name:   "all factors present",
			probes: Probes{CPU: fixed("GenuineIntel/i5"), Board: fixed("BSN-123"), MAC: fixed("00:1a:2b:3c:4d:5e")},
			wantID: expectedID("GenuineIntel/i5", "BSN-123", "00:1a:2b:3c:4d:5e"),
		},
		{
			name:         "board probe fails",
			probes:       Probes{CPU: fixed("GenuineIntel/i5"), Board: failing("permission denied"), MAC: fixed("00:1a:2b:3c:4d:5e")},
			wantID:       expectedID("GenuineIntel/i5", "unknown-board", "00:1a:2b:3c:4d:5e"),
			wantDegraded: []string{FactorBoard},
		},
		{
			name:         "blank value counts as failure",
			probes:       Probes{CPU: fixed("  "), Board: fixed("BSN-123"), MAC: fixed("00:1a:2b:3c:4d:5e")},
			wantID:       expectedID("unknown-cpu", "BSN-123", "00:1a:2b:3c:4d:5e"),
			wantDegraded: []string{FactorCPU},
		},
		{
			name:         "no probes at all",
			probes:       Probes{},
			wantID:       expectedID("unknown-cpu", "unknown-board", "unknown-mac"),
			wantDegraded: []string{FactorCPU, FactorBoard, FactorMAC},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, handler := testutil.NewTestLogger(t)
			p := NewProviderWithProbes(tt.probes, logger)

			fp := p.Probe()
			assert.Equal(t, tt.wantID, fp.MachineID)
			assert.Equal(t, tt.wantID, p.GetMachineID())
			assert.Len(t, fp.MachineID, 64)
			assert.Equal(t, tt.wantDegraded, fp.Degraded)

			if len(tt.wantDegraded) > 0 {
				assert.NotEmpty(t, handler.GetRecordsByLevel(slog.LevelWarn))
			} else {
				assert.Empty(t, handler.GetRecordsByLevel(slog.LevelWarn))
			}
		})
	}
}

func TestProviderCachesCompleteFingerprint(t *testing.T) {
	calls := 0
	probes := Probes{
		CPU:   func() (string, error) { calls++; return "cpu", nil },
		Board: fixed("board"),
		MAC:   fixed("mac"),
	}
	p := NewProviderWithProbes(probes, slog.Default())

	first := p.GetMachineID()
	second := p.GetMachineID()
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
}

func TestProviderRetriesDegradedFingerprint(t *testing.T) {
	healthy := false
	probes := Probes{
		CPU: fixed("cpu"),
		Board: func() (string, error) {
			if !healthy {
				return "", errors.New("not ready")
			}
			return "board", nil
		},
		MAC: fixed("mac"),
	}
	logger, _ := testutil.NewTestLogger(t)
	p := NewProviderWithProbes(probes, logger)

	degraded := p.GetMachineID()
	healthy = true
	recovered := p.GetMachineID()

	assert.NotEqual(t, degraded, recovered)
	assert.Equal(t, expectedID("cpu", "board", "mac"), recovered)
}

func TestParseCPUInfo(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "x86 identity fields",
			input: "processor\t: 0\nvendor_id\t: GenuineIntel\ncpu family\t: 6\nmodel\t\t: 142\nmodel name\t: Intel(R) Core(TM) i5\nstepping\t: 10\n\nprocessor\t: 1\nvendor_id\t: Other\n",
			want:  "GenuineIntel/Intel(R) Core(TM) i5/6/142/10",
		},
		{
			name:  "arm serial wins",
			input: "processor\t: 0\nmodel name\t: ARMv7\nSerial\t\t: 00000000a1b2c3d4\n",
			want:  "00000000a1b2c3d4",
		},
		{
			name:    "empty",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCPUInfo([]byte(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsVirtualAdapter(t *testing.T) {
	tests := map[string]bool{
		"eth0":       false,
		"enp3s0":     false,
		"wlan0":      false,
		"docker0":    true,
		"veth12ab":   true,
		"br-1f2e":    true,
		"virbr0":     true,
		"VMnet8":     true,
		"lo":         true,
		"utun3":      true,
		"Ethernet 2": false,
	}
	for name, want := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, want, isVirtualAdapter(name))
		})
	}
}

func TestSerialOrError(t *testing.T) {
	_, err := serialOrError("To Be Filled By O.E.M.", nil)
	assert.Error(t, err)

	_, err = serialOrError("", nil)
	assert.Error(t, err)

	serial, err := serialOrError("  PF1ABC23 \n", nil)
	require.NoError(t, err)
	assert.Equal(t, "PF1ABC23", serial)
}
