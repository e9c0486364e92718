package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// OpenClaw forwards device messages to the OpenClaw gateway's HTTP API and
// returns the assistant's reply.
type OpenClaw struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

type openclawRequest struct {
	DeviceID  string `json:"device_id"`
	Message   string `json:"message"`
	Source    string `json:"source"`
	Timestamp int64  `json:"timestamp"`
}

type openclawResponse struct {
	Response string `json:"response"`
}

// NewOpenClaw creates a relay pointed at the gateway URL.
func NewOpenClaw(baseURL, apiKey string, logger *zap.Logger) *OpenClaw {
	return &OpenClaw{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 60 * time.Second},
		logger:  logger,
	}
}

// Relay sends one message and waits for the reply.
func (o *OpenClaw) Relay(ctx context.Context, deviceID, text string) (string, error) {
	body, err := json.Marshal(openclawRequest{
		DeviceID:  deviceID,
		Message:   text,
		Source:    "cardputer",
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal relay request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/v1/message", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("relay request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		o.logger.Error("Gateway returned an error",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", data))
		return "", fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	var parsed openclawResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode gateway response: %w", err)
	}
	if parsed.Response == "" {
		return "", fmt.Errorf("gateway returned an empty response")
	}
	return parsed.Response, nil
}

// Close releases idle connections.
func (o *OpenClaw) Close() error {
	o.client.CloseIdleConnections()
	return nil
}
