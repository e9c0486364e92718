package protocol

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Typed payload views. The wire payload is an untyped JSON object; handlers
// never touch it directly. They go through these parsers so everything past
// the codec boundary is statically typed.

// AuthPayload is the first message a device must send.
type AuthPayload struct {
	DeviceID     string
	DeviceName   string
	Version      string
	APIKey       string
	Capabilities []string
}

// ParseAuth extracts an auth payload. device_id is required.
func ParseAuth(p map[string]interface{}) (AuthPayload, error) {
	out := AuthPayload{
		DeviceID:   getString(p, "device_id"),
		DeviceName: getString(p, "device_name"),
		Version:    getString(p, "version"),
		APIKey:     getString(p, "api_key"),
	}
	if out.DeviceID == "" {
		return AuthPayload{}, fmt.Errorf("auth payload: device_id is required")
	}
	if out.DeviceName == "" {
		out.DeviceName = "Unknown"
	}
	if out.Version == "" {
		out.Version = "unknown"
	}
	if caps, ok := p["capabilities"].([]interface{}); ok {
		for _, c := range caps {
			if s, ok := c.(string); ok && s != "" {
				out.Capabilities = append(out.Capabilities, s)
			}
		}
	}
	return out, nil
}

// TextPayload is a typed text request.
type TextPayload struct {
	Text string
}

// ParseText extracts the trimmed text. An empty result is not an error;
// the router drops empty texts silently.
func ParseText(p map[string]interface{}) TextPayload {
	return TextPayload{Text: strings.TrimSpace(getString(p, "payload"))}
}

// AudioPayload is one audio chunk, already base64-decoded.
type AudioPayload struct {
	Data    []byte
	IsFinal bool
	Codec   string
}

// ParseAudio decodes the chunk bytes. Malformed base64 rejects just this
// chunk; the session's buffer is untouched.
func ParseAudio(p map[string]interface{}) (AudioPayload, error) {
	out := AudioPayload{
		IsFinal: getBool(p, "is_final"),
		Codec:   getString(p, "codec"),
	}
	if out.Codec == "" {
		out.Codec = "opus"
	}
	if encoded := getString(p, "payload"); encoded != "" {
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return AudioPayload{}, fmt.Errorf("audio payload: invalid base64: %w", err)
		}
		out.Data = data
	}
	return out, nil
}

// AudioConfigPayload is the device's negotiated capture format.
type AudioConfigPayload struct {
	SampleRate      int
	Channels        int
	BitDepth        int
	Codec           string
	FrameDurationMs int
}

// ParseAudioConfig extracts the declared audio format. Absent fields keep
// their zero value; the device may declare only what it knows.
func ParseAudioConfig(p map[string]interface{}) AudioConfigPayload {
	return AudioConfigPayload{
		SampleRate:      getInt(p, "sample_rate"),
		Channels:        getInt(p, "channels"),
		BitDepth:        getInt(p, "bit_depth"),
		Codec:           getString(p, "codec"),
		FrameDurationMs: getInt(p, "frame_duration_ms"),
	}
}

// PingTimestamp returns the timestamp field of a ping payload, if present.
func PingTimestamp(p map[string]interface{}) (int64, bool) {
	switch v := p["timestamp"].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	}
	return 0, false
}

// Outbound payload builders.

// AuthResponsePayload builds the handshake reply.
func AuthResponsePayload(success bool, sessionID, errMsg string) map[string]interface{} {
	p := map[string]interface{}{"success": success}
	if sessionID != "" {
		p["session_id"] = sessionID
	}
	if errMsg != "" {
		p["error"] = errMsg
	}
	return p
}

// ResponsePayload builds a response frame payload.
func ResponsePayload(text string, isFinal bool) map[string]interface{} {
	return map[string]interface{}{
		"payload":  text,
		"is_final": isFinal,
	}
}

// ResponseFrame builds a reply frame. Final replies get their own wire type
// so the device can close its streaming view; the payload carries is_final
// as well for clients that only look at the JSON.
func ResponseFrame(text string, isFinal bool) Frame {
	t := TypeResponse
	if isFinal {
		t = TypeResponseFinal
	}
	return NewFrame(t, ResponsePayload(text, isFinal))
}

// StatusPayload builds a status frame payload.
func StatusPayload(text string) map[string]interface{} {
	return map[string]interface{}{"payload": text}
}

// ErrorPayload builds an error frame payload.
func ErrorPayload(text string) map[string]interface{} {
	return map[string]interface{}{"payload": text}
}

// PongPayload echoes the ping's timestamp alongside the current time.
func PongPayload(pingTimestamp int64) map[string]interface{} {
	return map[string]interface{}{
		"ping_timestamp": pingTimestamp,
		"timestamp":      int64(NowMillis()),
	}
}

func getString(p map[string]interface{}, key string) string {
	s, _ := p[key].(string)
	return s
}

func getBool(p map[string]interface{}, key string) bool {
	b, _ := p[key].(bool)
	return b
}

func getInt(p map[string]interface{}, key string) int {
	switch v := p[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}
