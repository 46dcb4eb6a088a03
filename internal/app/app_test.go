package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poscore/internal/config"
	"poscore/internal/shared/testutil"
	"poscore/internal/store"
	"poscore/pkg/contracts/domain"
)

type staticIdentity string

func (s staticIdentity) GetMachineID() string { return string(s) }

type fakeLicenseClient struct {
	business uuid.UUID
}

func (f *fakeLicenseClient) Activate(_ context.Context, _, _ string) (domain.ActivationResult, error) {
	return domain.ActivationResult{
		BusinessID:     f.business,
		SubscriptionID: "sub-1",
		PlanName:       "Standard",
		PlanLimits:     domain.PlanLimits{CloudSyncEnabled: true},
	}, nil
}

func (f *fakeLicenseClient) Validate(_ context.Context, machineID string) (domain.LicenseInfo, error) {
	return domain.LicenseInfo{Status: domain.LicenseValid, MachineID: machineID}, nil
}

type recordingRemote struct {
	mu     sync.Mutex
	pushed []domain.SyncRecord
}

func (r *recordingRemote) Ping(context.Context) error { return nil }

func (r *recordingRemote) Push(_ context.Context, rec domain.SyncRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushed = append(r.pushed, rec)
	return nil
}

func (r *recordingRemote) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pushed)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Server.Port = 0
	cfg.Server.ShutdownTimeout = 2 * time.Second
	cfg.Store.Path = filepath.Join(t.TempDir(), "data", "pos.db")
	cfg.Security.StorageSecret = "storage-secret"
	cfg.Security.ScryptN = 1024
	cfg.Security.PINCost = 4
	cfg.Sync.RemoteURL = "http://sync.invalid"
	cfg.Telemetry.EnableMetrics = false
	return cfg
}

func startApp(t *testing.T, a *Application) (base string, stop func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	select {
	case <-a.Ready():
	case err := <-done:
		cancel()
		t.Fatalf("run exited early: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("application did not start listening")
	}

	return "http://" + a.Addr().String(), func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("application did not shut down")
			return nil
		}
	}
}

func call(t *testing.T, method, url string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func TestApplicationServesAndSyncs(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	remote := &recordingRemote{}
	business := uuid.New()

	a, err := New(context.Background(), testConfig(t),
		WithLogger(logger),
		WithMachineIdentity(staticIdentity("machine-1")),
		WithLicenseClient(&fakeLicenseClient{business: business}),
		WithSyncRemote(remote),
	)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, domain.LicenseNotFound, a.License.Status())

	base, stop := startApp(t, a)

	code, _ := call(t, http.MethodGet, base+"/healthz/live", nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = call(t, http.MethodGet, base+"/api/products", nil)
	assert.Equal(t, http.StatusPaymentRequired, code, "domain routes need a license")

	code, body := call(t, http.MethodPost, base+"/api/license/activate",
		map[string]string{"license_key": "POS-ABCD-EFGH-IJKL"})
	require.Equal(t, http.StatusOK, code, string(body))
	assert.Equal(t, domain.LicenseValid, a.License.Status())

	code, body = call(t, http.MethodPost, base+"/api/license/branch",
		map[string]string{"branch_id": uuid.NewString(), "branch_name": "Main"})
	require.Equal(t, http.StatusOK, code, string(body))
	assert.True(t, a.Tenant.IsBranchBound())

	code, body = call(t, http.MethodPost, base+"/api/products",
		map[string]any{"sku": "SKU-1", "name": "Tea", "price": "2.50", "stock": 10})
	require.Equal(t, http.StatusCreated, code, string(body))

	code, _ = call(t, http.MethodPost, base+"/api/sync/run", nil)
	assert.Equal(t, http.StatusAccepted, code)

	require.Eventually(t, func() bool { return remote.count() >= 1 }, 5*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		n, err := a.Outbox.PendingCount(context.Background())
		return err == nil && n == 0
	}, 5*time.Second, 20*time.Millisecond)

	assert.NoError(t, stop())
}

func TestApplicationRestoresStateAcrossRestarts(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	cfg := testConfig(t)
	cfg.Sync.Enabled = false
	business := uuid.New()

	opts := []Option{
		WithLogger(logger),
		WithMachineIdentity(staticIdentity("machine-1")),
		WithLicenseClient(&fakeLicenseClient{business: business}),
		WithSyncRemote(&recordingRemote{}),
	}

	first, err := New(context.Background(), cfg, opts...)
	require.NoError(t, err)
	_, err = first.License.ActivateLicense(context.Background(), "POS-ABCD-EFGH-IJKL")
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := New(context.Background(), cfg, opts...)
	require.NoError(t, err)
	defer second.Close()

	assert.Equal(t, domain.LicenseValid, second.License.Status())
	restored, ok := second.Tenant.BusinessID()
	require.True(t, ok)
	assert.Equal(t, business, restored)
}

func TestApplicationStartsWithCorruptedLicenseCache(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)
	cfg := testConfig(t)
	cfg.Sync.Enabled = false

	require.NoError(t, mkdirFor(cfg.Store.Path))
	st, err := store.Open(cfg.Store.Path)
	require.NoError(t, err)
	require.NoError(t, st.Settings().SaveLicense(context.Background(), []byte("not a sealed blob")))
	require.NoError(t, st.Close())

	a, err := New(context.Background(), cfg,
		WithLogger(logger),
		WithMachineIdentity(staticIdentity("machine-1")),
		WithLicenseClient(&fakeLicenseClient{business: uuid.New()}),
		WithSyncRemote(&recordingRemote{}),
	)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, domain.LicenseError, a.License.Status())
	assert.True(t, handler.ContainsMessage("persisted license not restored"))
}

func TestNewFailsWithoutStorageSecret(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	cfg := testConfig(t)
	cfg.Security.StorageSecret = ""

	_, err := New(context.Background(), cfg,
		WithLogger(logger),
		WithMachineIdentity(staticIdentity("machine-1")),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage secret")
}

func TestGenerateBuildID(t *testing.T) {
	id := generateBuildID()
	assert.Len(t, id, 12)
	assert.Equal(t, id, generateBuildID())
}

func mkdirFor(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0755)
}
