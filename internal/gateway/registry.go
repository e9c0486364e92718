package gateway

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mininerva/openclaw-cardputer/internal/audio"
	"github.com/mininerva/openclaw-cardputer/internal/metrics"
	"github.com/mininerva/openclaw-cardputer/internal/protocol"
)

// Registry owns the set of live sessions and the device-id index. One lock
// guards both maps: a device id must never be observed pointing at a session
// that no longer exists. The lock is only ever held for map access, never
// across I/O.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	devices  map[string]string // device id -> session id

	queueCap      int
	maxAudioBytes int

	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewRegistry creates an empty registry. queueCap bounds each session's
// outbound queue; maxAudioBytes caps each session's audio buffer.
func NewRegistry(queueCap, maxAudioBytes int, m *metrics.Metrics, logger *zap.Logger) *Registry {
	return &Registry{
		sessions:      make(map[string]*Session),
		devices:       make(map[string]string),
		queueCap:      queueCap,
		maxAudioBytes: maxAudioBytes,
		logger:        logger,
		metrics:       m,
	}
}

// Create allocates a session in the Connecting state. The device-id mapping
// is not installed until authentication succeeds.
func (r *Registry) Create(deviceIDHint string) *Session {
	now := time.Now()
	sess := &Session{
		ID:           uuid.NewString(),
		Audio:        audio.NewBuffer(r.maxAudioBytes),
		outbox:       NewOutbox(r.queueCap),
		deviceID:     deviceIDHint,
		state:        StateConnecting,
		connectedAt:  now,
		lastActivity: now,
	}

	r.mu.Lock()
	r.sessions[sess.ID] = sess
	r.mu.Unlock()

	r.metrics.ConnectionsTotal.Inc()
	r.metrics.ActiveSessions.Inc()
	r.logger.Info("Session created",
		zap.String("session_id", sess.ID),
		zap.String("device_id", deviceIDHint))
	return sess
}

// Authenticate transitions the session to Authenticated, records the device
// info, and installs the device-id mapping. A new authentication for the same
// device id overwrites the mapping; the superseded session stays open but is
// no longer addressable by device id. Returns false when the session id is
// unknown (e.g. already evicted).
func (r *Registry) Authenticate(sessionID string, info DeviceInfo) bool {
	r.mu.Lock()
	sess, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	r.devices[info.DeviceID] = sessionID
	r.mu.Unlock()

	sess.mu.Lock()
	sess.state = StateAuthenticated
	sess.deviceID = info.DeviceID
	sess.deviceName = info.DeviceName
	sess.version = info.Version
	sess.capabilities = append([]string(nil), info.Capabilities...)
	sess.lastActivity = time.Now()
	sess.mu.Unlock()

	r.logger.Info("Session authenticated",
		zap.String("session_id", sessionID),
		zap.String("device_id", info.DeviceID),
		zap.String("device_name", info.DeviceName))
	return true
}

// Reject marks the session's handshake as failed. The caller closes the
// connection and removes the session.
func (r *Registry) Reject(sessionID string) {
	r.mu.RLock()
	sess, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	sess.mu.Lock()
	sess.state = StateRejected
	sess.mu.Unlock()
	r.metrics.AuthFailures.Inc()
}

// Remove deletes the session and any device-id mapping that points at it.
// Idempotent. The session's outbox is closed and its transport torn down.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	sess, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, sessionID)
	for deviceID, sid := range r.devices {
		if sid == sessionID {
			delete(r.devices, deviceID)
		}
	}
	r.mu.Unlock()

	sess.teardown()
	r.metrics.ActiveSessions.Dec()
	r.logger.Info("Session removed",
		zap.String("session_id", sessionID),
		zap.String("device_id", sess.DeviceID()))
}

// Get returns the session by id.
func (r *Registry) Get(sessionID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[sessionID]
	return sess, ok
}

// GetByDevice resolves a device id to its current session.
func (r *Registry) GetByDevice(deviceID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sid, ok := r.devices[deviceID]
	if !ok {
		return nil, false
	}
	sess, ok := r.sessions[sid]
	return sess, ok
}

// SendToSession encodes the frame and queues it on the session's outbox.
// Returns false when the session is gone or the frame cannot be transmitted;
// a full queue drops the frame (logged), it is never retried.
func (r *Registry) SendToSession(sessionID string, f protocol.Frame) bool {
	r.mu.RLock()
	sess, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return r.send(sess, f)
}

// SendToDevice resolves the device id and delegates to SendToSession.
func (r *Registry) SendToDevice(deviceID string, f protocol.Frame) bool {
	r.mu.RLock()
	sid, ok := r.devices[deviceID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return r.SendToSession(sid, f)
}

// Broadcast sends the frame to every session, optionally only authenticated
// ones, and returns the number of successful sends. One session's failure
// never blocks delivery to the rest.
func (r *Registry) Broadcast(f protocol.Frame, authenticatedOnly bool) int {
	r.mu.RLock()
	targets := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		targets = append(targets, sess)
	}
	r.mu.RUnlock()

	count := 0
	for _, sess := range targets {
		if authenticatedOnly && sess.State() != StateAuthenticated {
			continue
		}
		if r.send(sess, f) {
			count++
		}
	}
	return count
}

// SweepStale removes every session idle longer than timeout, judged against
// one clock reading for the whole sweep. Returns the number evicted.
func (r *Registry) SweepStale(timeout time.Duration) int {
	now := time.Now()

	r.mu.RLock()
	stale := make([]string, 0)
	for id, sess := range r.sessions {
		if now.Sub(sess.lastActivityAt()) > timeout {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range stale {
		r.logger.Info("Sweeping stale session", zap.String("session_id", id))
		r.Remove(id)
		r.metrics.SessionsSwept.Inc()
	}
	return len(stale)
}

// ActiveSessions snapshots every authenticated session for the HTTP surface.
func (r *Registry) ActiveSessions() []SessionInfo {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	r.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		if info := sess.Info(); info.Authenticated {
			infos = append(infos, info)
		}
	}
	return infos
}

// Len reports the number of live sessions, authenticated or not.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) send(sess *Session, f protocol.Frame) bool {
	encoded, err := protocol.Encode(f)
	if err != nil {
		r.logger.Error("Failed to encode outbound frame",
			zap.String("session_id", sess.ID),
			zap.Stringer("type", f.Type),
			zap.Error(err))
		return false
	}

	switch sess.outbox.Enqueue(encoded) {
	case EnqueueOK:
		sess.recordSent(f.Type, len(encoded))
		r.metrics.FramesSent.Inc()
		return true
	case EnqueueFull:
		r.metrics.DroppedOutbound.Inc()
		r.logger.Warn("Outbound queue full, dropping frame",
			zap.String("session_id", sess.ID),
			zap.Stringer("type", f.Type))
		return false
	default: // EnqueueClosed
		return false
	}
}
