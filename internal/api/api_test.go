package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lte-gateway/enodebd/internal/acs"
	"github.com/lte-gateway/enodebd/internal/config"
	"github.com/lte-gateway/enodebd/internal/metrics"
	"github.com/lte-gateway/enodebd/internal/storage"
	"github.com/lte-gateway/enodebd/pkg/crypto"
	"github.com/lte-gateway/enodebd/pkg/tr069"
)

const serial = "120200002618AGP0003"

type testServer struct {
	handler http.Handler
	manager *acs.Manager
	store   *storage.MemoryStore
	token   string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	hash, err := crypto.HashPassword("secret")
	require.NoError(t, err)

	cfg := &config.Config{
		Server:  config.ServerConfig{Name: "enodebd", Version: "test"},
		API:     config.APIConfig{AllowedOrigins: []string{"*"}},
		JWT:     config.JWTConfig{Secret: "test-secret", AccessTokenTTL: time.Hour},
		Admin:   config.AdminConfig{Username: "admin", PasswordHash: hash},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}

	registry := prometheus.NewRegistry()
	store := storage.NewMemoryStore()
	manager := acs.NewManager(nil, store, nil, acs.Options{Metrics: metrics.NewCollector(registry)})
	server := NewRESTServer(cfg, store, manager, registry)

	ts := &testServer{handler: server.Handler(), manager: manager, store: store}
	ts.token = ts.login(t, "admin", "secret", http.StatusOK)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if ts.token != "" {
		req.Header.Set("Authorization", "Bearer "+ts.token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) login(t *testing.T, username, password string, want int) string {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"username": username,
		"password": password,
	})
	require.Equal(t, want, rec.Code, rec.Body.String())
	if want != http.StatusOK {
		return ""
	}
	var resp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Bearer", resp.TokenType)
	return resp.AccessToken
}

func (ts *testServer) connect(t *testing.T) {
	t.Helper()
	_, err := ts.manager.HandleEvent(context.Background(), tr069.Event{
		Kind:       tr069.EventInform,
		Serial:     serial,
		DeviceID:   &tr069.DeviceID{Manufacturer: "Baicells", OUI: "48BF74", ProductClass: "mBS1100", SerialNumber: serial},
		EventCodes: []string{tr069.EventCodeBoot},
		Params: []tr069.ParameterValue{
			{Name: "Device.DeviceInfo.SoftwareVersion", Value: "BaiStation_V100R001C00B110SPC002"},
		},
	})
	require.NoError(t, err)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	ts.token = ""

	rec := ts.do(t, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)
	assert.NotEmpty(t, ts.token)

	ts.token = ""
	ts.login(t, "admin", "wrong", http.StatusUnauthorized)
	ts.login(t, "root", "secret", http.StatusUnauthorized)
	ts.login(t, "", "", http.StatusBadRequest)
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)
	token := ts.token

	ts.token = ""
	assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodGet, "/api/v1/enodebs", nil).Code)

	ts.token = token + "x"
	assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodGet, "/api/v1/enodebs", nil).Code)
}

func TestListAndGetEnodebs(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/enodebs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decode(t, rec)["total"])

	rec = ts.do(t, http.MethodGet, "/api/v1/enodebs/"+serial, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ts.connect(t)

	rec = ts.do(t, http.MethodGet, "/api/v1/enodebs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["total"])

	rec = ts.do(t, http.MethodGet, "/api/v1/enodebs?persisted=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["total"])

	rec = ts.do(t, http.MethodGet, "/api/v1/enodebs/"+serial, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, serial, body["serial"])
	assert.Equal(t, true, body["connected"])
}

func TestRebootEnodeb(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/enodebs/"+serial+"/reboot", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// an Inform exchange is in flight
	ts.connect(t)
	rec = ts.do(t, http.MethodPost, "/api/v1/enodebs/"+serial+"/reboot", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestEnodebConfig(t *testing.T) {
	ts := newTestServer(t)
	path := "/api/v1/enodebs/" + serial + "/config"

	rec := ts.do(t, http.MethodPut, path, map[string]any{"pci": 900})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "pci")

	rec = ts.do(t, http.MethodPut, path, map[string]any{"unknownField": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPut, path, map[string]any{"pci": 260, "tac": 1, "bandwidthMhz": 20})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Contains(t, body, "override")
	require.Contains(t, body, "effective")
	assert.EqualValues(t, 260, body["effective"].(map[string]any)["pci"])
	assert.NotContains(t, body, "current", "no live session")

	rec = ts.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListEvents(t *testing.T) {
	ts := newTestServer(t)
	ts.connect(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/events?serial="+serial+"&type=CONNECTED", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["total"])

	rec = ts.do(t, http.MethodGet, "/api/v1/events?serial=OTHER", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 0, body["total"])
	assert.Equal(t, []any{}, body["events"])

	rec = ts.do(t, http.MethodGet, "/api/v1/events?start=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.connect(t)
	ts.token = ""

	rec := ts.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "enodebd_sessions 1"))
}
