package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/mininerva/openclaw-cardputer/domain/repositories"
)

var (
	_ repositories.MessageRelay = &OpenClaw{}
	_ repositories.MessageRelay = &Gemini{}
)

func TestOpenClawRelay(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/message" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}

		var req openclawRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.DeviceID != "dev-1" || req.Message != "what time is it" || req.Source != "cardputer" {
			t.Errorf("unexpected request body: %+v", req)
		}
		if req.Timestamp == 0 {
			t.Error("timestamp not set")
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(openclawResponse{Response: "It is noon."})
	}))
	defer server.Close()

	relay := NewOpenClaw(server.URL, "sk-test", zap.NewNop())
	defer relay.Close()

	reply, err := relay.Relay(context.Background(), "dev-1", "what time is it")
	if err != nil {
		t.Fatalf("Relay: %v", err)
	}
	if reply != "It is noon." {
		t.Fatalf("reply = %q", reply)
	}
}

func TestOpenClawRelayGatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusBadGateway)
	}))
	defer server.Close()

	relay := NewOpenClaw(server.URL, "", zap.NewNop())
	if _, err := relay.Relay(context.Background(), "dev-1", "hi"); err == nil {
		t.Fatal("expected error on 502 response")
	}
}

func TestOpenClawRelayEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	relay := NewOpenClaw(server.URL, "", zap.NewNop())
	if _, err := relay.Relay(context.Background(), "dev-1", "hi"); err == nil {
		t.Fatal("expected error on empty response field")
	}
}

func TestOpenClawRelayNoAuthHeaderWithoutKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("Authorization = %q, want empty", got)
		}
		json.NewEncoder(w).Encode(openclawResponse{Response: "ok"})
	}))
	defer server.Close()

	relay := NewOpenClaw(server.URL, "", zap.NewNop())
	if _, err := relay.Relay(context.Background(), "dev-1", "hi"); err != nil {
		t.Fatalf("Relay: %v", err)
	}
}
