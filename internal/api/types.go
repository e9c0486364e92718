package api

import "github.com/mininerva/openclaw-cardputer/internal/gateway"

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status           string `json:"status"`
	Version          string `json:"version"`
	ConnectedDevices int    `json:"connected_devices"`
	STTAvailable     bool   `json:"stt_available"`
}

// DevicesResponse lists every authenticated device session.
type DevicesResponse struct {
	Count   int                   `json:"count"`
	Devices []gateway.SessionInfo `json:"devices"`
}

// PushMessageRequest is the body of POST /devices/:device_id/message.
type PushMessageRequest struct {
	Message string `json:"message"`
}

// PushMessageResponse acknowledges a queued push.
type PushMessageResponse struct {
	Status   string `json:"status"`
	DeviceID string `json:"device_id"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
