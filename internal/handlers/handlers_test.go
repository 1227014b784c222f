package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/device-entitlement/internal/config"
	"github.com/ahmetcoskunkizilkaya/device-entitlement/internal/dto"
	"github.com/ahmetcoskunkizilkaya/device-entitlement/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/device-entitlement/internal/models"
	"github.com/ahmetcoskunkizilkaya/device-entitlement/internal/routes"
	"github.com/ahmetcoskunkizilkaya/device-entitlement/internal/services"
	"github.com/ahmetcoskunkizilkaya/device-entitlement/internal/testutil"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	adminToken = "test-admin-token"
	fp         = "00ff00ff00ff00ff"
)

type testEnv struct {
	app   *fiber.App
	db    *gorm.DB
	clock *testutil.Clock
}

func newEnv(t *testing.T, rateLimit int) *testEnv {
	t.Helper()
	clock := &testutil.Clock{T: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	return newEnvWithClock(t, rateLimit, clock, clock.Now)
}

func newEnvWithClock(t *testing.T, rateLimit int, clock *testutil.Clock, now func() time.Time) *testEnv {
	t.Helper()
	db := testutil.NewDB(t)
	ledger := services.NewLedgerService(db).WithClock(now)

	cfg := &config.Config{AdminToken: adminToken, StatusRateLimit: rateLimit, CORSOrigins: "*"}
	app := fiber.New()
	app.Use(requestid.New())
	routes.Setup(app, cfg, nil,
		handlers.NewDeviceHandler(ledger),
		handlers.NewAdminHandler(ledger),
		handlers.NewHealthHandler(db),
	)
	return &testEnv{app: app, db: db, clock: clock}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, token string) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func (e *testEnv) status(t *testing.T, hash string) (int, dto.DeviceStatusResponse) {
	t.Helper()
	code, data := e.do(t, http.MethodPost, "/api/device/status", dto.DeviceStatusRequest{DeviceHash: hash}, "")
	var resp dto.DeviceStatusResponse
	if code == http.StatusOK {
		require.NoError(t, json.Unmarshal(data, &resp))
	}
	return code, resp
}

func (e *testEnv) deviceCount(t *testing.T) int64 {
	var n int64
	require.NoError(t, e.db.Model(&models.Device{}).Count(&n).Error)
	return n
}

func errorBody(t *testing.T, data []byte) string {
	var e dto.ErrorResponse
	require.NoError(t, json.Unmarshal(data, &e))
	return e.Error
}

func TestStatus_FirstContactStartsTrial(t *testing.T) {
	env := newEnv(t, 100)

	code, resp := env.status(t, fp)
	require.Equal(t, http.StatusOK, code)

	assert.True(t, resp.Allowed)
	assert.Equal(t, "trial", resp.Reason)
	assert.Equal(t, fp, resp.DeviceHash)
	assert.False(t, resp.IsActive)
	assert.Nil(t, resp.ActiveUntil)
	assert.True(t, env.clock.T.Equal(resp.ServerTime))
	assert.True(t, env.clock.T.Add(7*24*time.Hour).Equal(resp.TrialEndAt))
}

func TestStatus_NormalizesCase(t *testing.T) {
	env := newEnv(t, 100)

	code, resp := env.status(t, "  00FF00FF00FF00FF ")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, fp, resp.DeviceHash)
	assert.EqualValues(t, 1, env.deviceCount(t))
}

func TestStatus_TrialExpires(t *testing.T) {
	env := newEnv(t, 100)
	_, _ = env.status(t, fp)

	env.clock.Advance(8 * 24 * time.Hour)
	code, resp := env.status(t, fp)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, resp.Allowed)
	assert.Equal(t, "expired", resp.Reason)
}

func TestStatus_MalformedHashIsRejected(t *testing.T) {
	env := newEnv(t, 100)

	for _, hash := range []string{"", "xyz", "0123456789abcdeg", "0123456789abcdef0"} {
		code, data := env.do(t, http.MethodPost, "/api/device/status", dto.DeviceStatusRequest{DeviceHash: hash}, "")
		assert.Equal(t, http.StatusBadRequest, code, hash)
		assert.Equal(t, "Invalid device hash", errorBody(t, data))
	}

	code, _ := env.do(t, http.MethodPost, "/api/device/status", "not an object", "")
	assert.Equal(t, http.StatusBadRequest, code)

	assert.EqualValues(t, 0, env.deviceCount(t))
}

func TestStatus_RateLimited(t *testing.T) {
	env := newEnv(t, 2)

	for i := 0; i < 2; i++ {
		code, _ := env.status(t, fp)
		require.Equal(t, http.StatusOK, code)
	}
	code, data := env.do(t, http.MethodPost, "/api/device/status", dto.DeviceStatusRequest{DeviceHash: fp}, "")
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "Too many requests", errorBody(t, data))
}

func TestAdmin_RequiresToken(t *testing.T) {
	env := newEnv(t, 100)

	code, data := env.do(t, http.MethodPost, "/api/admin/activate", dto.ExtendRequest{DeviceHash: fp, Days: 30}, "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Unauthorized", errorBody(t, data))

	code, _ = env.do(t, http.MethodGet, "/api/admin/devices", nil, "wrong")
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestAdmin_ActivateUnlocksDevice(t *testing.T) {
	env := newEnv(t, 100)
	_, _ = env.status(t, fp)
	env.clock.Advance(10 * 24 * time.Hour)

	code, data := env.do(t, http.MethodPost, "/api/admin/activate", dto.ExtendRequest{DeviceHash: fp, Days: 30}, adminToken)
	require.Equal(t, http.StatusOK, code, string(data))

	var device models.Device
	require.NoError(t, json.Unmarshal(data, &device))
	assert.True(t, device.IsActivated)
	require.NotNil(t, device.ActiveUntil)
	assert.True(t, env.clock.T.Add(30*24*time.Hour).Equal(*device.ActiveUntil))

	code, resp := env.status(t, fp)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Allowed)
	assert.Equal(t, "active", resp.Reason)
	assert.True(t, resp.IsActive)
}

func TestAdmin_ActivateErrors(t *testing.T) {
	env := newEnv(t, 100)

	code, data := env.do(t, http.MethodPost, "/api/admin/activate", dto.ExtendRequest{DeviceHash: fp, Days: 30}, adminToken)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Device not found", errorBody(t, data))

	_, _ = env.status(t, fp)
	for _, req := range []dto.ExtendRequest{
		{DeviceHash: fp, Days: 0},
		{DeviceHash: fp, Days: -3},
		{DeviceHash: fp, Days: 5000},
		{DeviceHash: "short", Days: 30},
	} {
		code, data := env.do(t, http.MethodPost, "/api/admin/activate", req, adminToken)
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "Invalid input", errorBody(t, data))
	}
}

func TestAdmin_BlockOverridesActivation(t *testing.T) {
	env := newEnv(t, 100)
	_, _ = env.status(t, fp)
	code, _ := env.do(t, http.MethodPost, "/api/admin/activate", dto.ExtendRequest{DeviceHash: fp, Days: 30}, adminToken)
	require.Equal(t, http.StatusOK, code)

	blocked := true
	code, _ = env.do(t, http.MethodPost, "/api/admin/block", dto.BlockRequest{DeviceHash: fp, Blocked: &blocked}, adminToken)
	require.Equal(t, http.StatusOK, code)

	_, resp := env.status(t, fp)
	assert.False(t, resp.Allowed)
	assert.Equal(t, "blocked", resp.Reason)

	blocked = false
	code, _ = env.do(t, http.MethodPost, "/api/admin/block", dto.BlockRequest{DeviceHash: fp, Blocked: &blocked}, adminToken)
	require.Equal(t, http.StatusOK, code)

	_, resp = env.status(t, fp)
	assert.True(t, resp.Allowed)
	assert.Equal(t, "active", resp.Reason)
}

func TestAdmin_BlockRequiresFlag(t *testing.T) {
	env := newEnv(t, 100)
	_, _ = env.status(t, fp)

	code, _ := env.do(t, http.MethodPost, "/api/admin/block", map[string]string{"device_hash": fp}, adminToken)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAdmin_DevicesListsMostRecentFirst(t *testing.T) {
	env := newEnv(t, 100)
	_, _ = env.status(t, "aaaaaaaaaaaaaaaa")
	env.clock.Advance(time.Minute)
	_, _ = env.status(t, "bbbbbbbbbbbbbbbb")

	code, data := env.do(t, http.MethodGet, "/api/admin/devices", nil, adminToken)
	require.Equal(t, http.StatusOK, code)

	var list dto.DeviceListResponse
	require.NoError(t, json.Unmarshal(data, &list))
	require.Len(t, list.Devices, 2)
	assert.Equal(t, "bbbbbbbbbbbbbbbb", list.Devices[0].Fingerprint)
	assert.Equal(t, "aaaaaaaaaaaaaaaa", list.Devices[1].Fingerprint)

	code, data = env.do(t, http.MethodGet, "/api/admin/devices?limit=1", nil, adminToken)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(data, &list))
	assert.Len(t, list.Devices, 1)
}

func TestHealth(t *testing.T) {
	env := newEnv(t, 100)

	code, data := env.do(t, http.MethodGet, "/api/health", nil, "")
	require.Equal(t, http.StatusOK, code)

	var h dto.HealthResponse
	require.NoError(t, json.Unmarshal(data, &h))
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, "ok", h.DB)
}

func TestMetricsExposeVerdicts(t *testing.T) {
	env := newEnv(t, 100)
	_, _ = env.status(t, fp)

	code, data := env.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(data), `entitlement_verdicts_total{reason="trial"}`)
}

func TestStatus_ServerTimeIsEvaluationTime(t *testing.T) {
	// Every read of the clock moves it forward an hour, so any second read
	// after the verdict is computed would show up in server_time.
	clock := &testutil.Clock{T: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	base := clock.T
	ticking := func() time.Time {
		now := clock.T
		clock.Advance(time.Hour)
		return now
	}
	env := newEnvWithClock(t, 100, clock, ticking)

	code, resp := env.status(t, fp)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, base.Equal(resp.ServerTime), "server_time %s", resp.ServerTime)
	assert.True(t, base.Add(7*24*time.Hour).Equal(resp.TrialEndAt))
}

func TestStatus_DatabaseFailureIs500(t *testing.T) {
	env := newEnv(t, 100)
	sqlDB, err := env.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	code, data := env.do(t, http.MethodPost, "/api/device/status", dto.DeviceStatusRequest{DeviceHash: fp}, "")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Internal Server Error", errorBody(t, data))
}
