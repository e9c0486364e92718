package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/mininerva/openclaw-cardputer/domain/repositories"
	"github.com/mininerva/openclaw-cardputer/internal/auth"
	"github.com/mininerva/openclaw-cardputer/internal/gateway"
	"github.com/mininerva/openclaw-cardputer/internal/metrics"
	"github.com/mininerva/openclaw-cardputer/internal/protocol"
)

type stubSTT struct{ available bool }

func (s *stubSTT) Transcribe(context.Context, []byte, string) (string, error) {
	return "", nil
}

func (s *stubSTT) Available() bool { return s.available }

type stubRelay struct{}

func (stubRelay) Relay(context.Context, string, string) (string, error) { return "ok", nil }

func (stubRelay) Close() error { return nil }

type stubHistory struct{}

func (stubHistory) Record(context.Context, repositories.Exchange) error { return nil }

func (stubHistory) Close(context.Context) error { return nil }

type apiFixture struct {
	echo     *echo.Echo
	registry *gateway.Registry
}

func newAPIFixture(t *testing.T, tokens *auth.TokenService) *apiFixture {
	t.Helper()

	m := metrics.New(prometheus.NewRegistry())
	logger := zap.NewNop()
	registry := gateway.NewRegistry(16, 1<<20, m, logger)
	stt := &stubSTT{available: true}
	router := gateway.NewRouter(registry, stt, stubRelay{}, stubHistory{}, true, m, logger)
	sup := gateway.NewSupervisor(registry, router, "", m, logger)

	e := echo.New()
	InitRoutes(e, &Handlers{
		Registry:   registry,
		Supervisor: sup,
		STT:        stt,
		Tokens:     tokens,
		Version:    "test",
		Logger:     logger,
	})
	return &apiFixture{echo: e, registry: registry}
}

func connectDevice(t *testing.T, r *gateway.Registry, deviceID string) *gateway.Session {
	t.Helper()
	sess := r.Create(deviceID)
	if !r.Authenticate(sess.ID, gateway.DeviceInfo{DeviceID: deviceID, DeviceName: "Cardputer"}) {
		t.Fatalf("Authenticate failed for %s", deviceID)
	}
	return sess
}

func doJSON(fx *apiFixture, method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	fx.echo.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	fx := newAPIFixture(t, nil)
	connectDevice(t, fx.registry, "dev-1")

	rec := doJSON(fx, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != "ok" || resp.ConnectedDevices != 1 || !resp.STTAvailable {
		t.Fatalf("unexpected health: %+v", resp)
	}
}

func TestListDevices(t *testing.T) {
	fx := newAPIFixture(t, nil)
	connectDevice(t, fx.registry, "dev-1")
	connectDevice(t, fx.registry, "dev-2")
	fx.registry.Create("dev-pending") // unauthenticated, must not appear

	rec := doJSON(fx, http.MethodGet, "/devices", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp DevicesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Count != 2 || len(resp.Devices) != 2 {
		t.Fatalf("unexpected devices: %+v", resp)
	}
}

func TestDeviceStats(t *testing.T) {
	fx := newAPIFixture(t, nil)
	connectDevice(t, fx.registry, "dev-1")

	rec := doJSON(fx, http.MethodGet, "/devices/dev-1", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var info gateway.SessionInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if info.DeviceID != "dev-1" || !info.Authenticated {
		t.Fatalf("unexpected info: %+v", info)
	}

	if rec := doJSON(fx, http.MethodGet, "/devices/dev-unknown", "", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown device status = %d, want 404", rec.Code)
	}
}

func TestPushMessage(t *testing.T) {
	fx := newAPIFixture(t, nil)
	sess := connectDevice(t, fx.registry, "dev-1")

	rec := doJSON(fx, http.MethodPost, "/devices/dev-1/message", `{"message":"hello there"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	msg, ok := sess.Outbox().TryNext()
	if !ok {
		t.Fatal("no frame queued for device")
	}
	f, err := protocol.Decode(msg)
	if err != nil {
		t.Fatalf("decode queued frame: %v", err)
	}
	if f.Type != protocol.TypeResponseFinal || f.Payload["payload"] != "hello there" {
		t.Fatalf("queued frame = %v %v", f.Type, f.Payload)
	}
	if final, _ := f.Payload["is_final"].(bool); !final {
		t.Fatal("pushed message not marked final")
	}
}

func TestPushMessageValidation(t *testing.T) {
	fx := newAPIFixture(t, nil)
	connectDevice(t, fx.registry, "dev-1")

	if rec := doJSON(fx, http.MethodPost, "/devices/dev-1/message", `{"message":"  "}`, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("blank message status = %d, want 400", rec.Code)
	}
	if rec := doJSON(fx, http.MethodPost, "/devices/dev-gone/message", `{"message":"hi"}`, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("disconnected device status = %d, want 404", rec.Code)
	}
}

func TestPushMessageRequiresToken(t *testing.T) {
	tokens := auth.NewTokenService("test-secret")
	fx := newAPIFixture(t, tokens)
	connectDevice(t, fx.registry, "dev-1")

	if rec := doJSON(fx, http.MethodPost, "/devices/dev-1/message", `{"message":"hi"}`, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token status = %d, want 401", rec.Code)
	}
	if rec := doJSON(fx, http.MethodPost, "/devices/dev-1/message", `{"message":"hi"}`, "bogus"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d, want 401", rec.Code)
	}

	token, err := tokens.GenerateAdminToken(time.Hour)
	if err != nil {
		t.Fatalf("GenerateAdminToken: %v", err)
	}
	if rec := doJSON(fx, http.MethodPost, "/devices/dev-1/message", `{"message":"hi"}`, token); rec.Code != http.StatusOK {
		t.Fatalf("valid token status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	fx := newAPIFixture(t, nil)

	rec := doJSON(fx, http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
