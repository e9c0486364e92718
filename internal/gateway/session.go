package gateway

import (
	"sync"
	"time"

	"github.com/mininerva/openclaw-cardputer/internal/audio"
	"github.com/mininerva/openclaw-cardputer/internal/protocol"
)

// AuthState is the session's authentication lifecycle state. There are no
// transitions out of Authenticated; the only later lifecycle event is removal.
type AuthState int

const (
	StateConnecting AuthState = iota
	StateAuthenticated
	StateRejected
)

// Stats are cumulative per-session counters.
type Stats struct {
	MessagesSent       uint64 `json:"messages_sent"`
	MessagesReceived   uint64 `json:"messages_received"`
	AudioBytesReceived uint64 `json:"audio_bytes_received"`
	AudioBytesSent     uint64 `json:"audio_bytes_sent"`
}

// DeviceInfo is what a device declares about itself during authentication.
type DeviceInfo struct {
	DeviceID     string
	DeviceName   string
	Version      string
	Capabilities []string
}

// Session is the server-side state of one device connection. The registry
// owns it; the connection supervisor holds a reference for the lifetime of
// the physical connection.
type Session struct {
	ID     string
	Audio  *audio.Buffer
	outbox *Outbox

	// closeConn tears down the transport when the session is evicted while
	// the connection is still open. Set once by the supervisor.
	closeConn func()

	mu           sync.Mutex
	deviceID     string
	deviceName   string
	version      string
	capabilities []string
	state        AuthState
	connectedAt  time.Time
	lastActivity time.Time
	stats        Stats
	audioConfig  *protocol.AudioConfigPayload
}

// Touch refreshes the last-activity timestamp.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// State returns the current authentication state.
func (s *Session) State() AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// DeviceID returns the device id, empty until authenticated unless a hint
// was supplied at connect time.
func (s *Session) DeviceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceID
}

// SetAudioConfig stores the device's declared capture format.
func (s *Session) SetAudioConfig(cfg protocol.AudioConfigPayload) {
	s.mu.Lock()
	s.audioConfig = &cfg
	s.mu.Unlock()
}

// AudioConfig returns the declared capture format, or nil if none was sent.
func (s *Session) AudioConfig() *protocol.AudioConfigPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audioConfig == nil {
		return nil
	}
	cfg := *s.audioConfig
	return &cfg
}

// Stats returns a snapshot of the cumulative counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// RecordReceived counts one inbound frame and refreshes activity.
func (s *Session) RecordReceived() {
	s.mu.Lock()
	s.stats.MessagesReceived++
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// RecordAudioReceived counts buffered audio bytes.
func (s *Session) RecordAudioReceived(n int) {
	s.mu.Lock()
	s.stats.AudioBytesReceived += uint64(n)
	s.mu.Unlock()
}

// recordSent updates the outbound counters. Pong replies are keepalive
// traffic and refresh activity without counting as messages.
func (s *Session) recordSent(frameType protocol.Type, frameBytes int) {
	s.mu.Lock()
	if frameType != protocol.TypePong {
		s.stats.MessagesSent++
	}
	if frameType == protocol.TypeAudio {
		s.stats.AudioBytesSent += uint64(frameBytes)
	}
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) lastActivityAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) setCloseConn(fn func()) {
	s.mu.Lock()
	s.closeConn = fn
	s.mu.Unlock()
}

func (s *Session) teardown() {
	s.mu.Lock()
	fn := s.closeConn
	s.closeConn = nil
	s.mu.Unlock()

	s.outbox.Close()
	if fn != nil {
		fn()
	}
}

// Outbox exposes the session's outbound queue to the writer goroutine.
func (s *Session) Outbox() *Outbox {
	return s.outbox
}

// SessionInfo is a read-only snapshot used by the HTTP surface.
type SessionInfo struct {
	SessionID     string                       `json:"session_id"`
	DeviceID      string                       `json:"device_id"`
	DeviceName    string                       `json:"device_name"`
	Version       string                       `json:"version"`
	Capabilities  []string                     `json:"capabilities,omitempty"`
	Authenticated bool                         `json:"authenticated"`
	ConnectedAt   time.Time                    `json:"connected_at"`
	LastActivity  time.Time                    `json:"last_activity"`
	Stats         Stats                        `json:"stats"`
	AudioConfig   *protocol.AudioConfigPayload `json:"audio_config,omitempty"`
}

// Info returns a consistent snapshot of the session.
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := SessionInfo{
		SessionID:     s.ID,
		DeviceID:      s.deviceID,
		DeviceName:    s.deviceName,
		Version:       s.version,
		Authenticated: s.state == StateAuthenticated,
		ConnectedAt:   s.connectedAt,
		LastActivity:  s.lastActivity,
		Stats:         s.stats,
	}
	if len(s.capabilities) > 0 {
		info.Capabilities = append([]string(nil), s.capabilities...)
	}
	if s.audioConfig != nil {
		cfg := *s.audioConfig
		info.AudioConfig = &cfg
	}
	return info
}
