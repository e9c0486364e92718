package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/mininerva/openclaw-cardputer/internal/metrics"
	"github.com/mininerva/openclaw-cardputer/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed for the first auth frame to arrive.
	authWait = 10 * time.Second

	// Time allowed to read the next message from the peer.
	pongWait = 60 * time.Second

	// Send transport-level pings with this period. Must be less than
	// pongWait. These keep NAT bindings alive; they do not refresh the
	// session's activity clock.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer; sized for audio chunks.
	maxMessageSize = 512 * 1024
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Cardputers have no Origin header; browsers are not a client.
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Supervisor runs one device connection end to end: accept, authenticate,
// receive loop, disconnect. Whatever path the loop exits by, the session is
// removed from the registry.
type Supervisor struct {
	registry *Registry
	router   *Router
	apiKey   string // empty means no key check
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewSupervisor creates a connection supervisor.
func NewSupervisor(registry *Registry, router *Router, apiKey string, m *metrics.Metrics, logger *zap.Logger) *Supervisor {
	return &Supervisor{
		registry: registry,
		router:   router,
		apiKey:   apiKey,
		logger:   logger,
		metrics:  m,
	}
}

// HandleConnection upgrades an HTTP request and serves the connection on its
// own goroutine.
func (s *Supervisor) HandleConnection(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	go s.serve(conn)
	return nil
}

func (s *Supervisor) serve(conn *websocket.Conn) {
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)

	sess, ok := s.handshake(conn)
	if !ok {
		return
	}
	defer s.registry.Remove(sess.ID)

	sess.setCloseConn(func() { conn.Close() })
	go s.writePump(sess, conn)

	s.registry.SendToSession(sess.ID, protocol.NewFrame(
		protocol.TypeAuthResponse,
		protocol.AuthResponsePayload(true, sess.ID, "")))

	s.readLoop(conn, sess)
}

// handshake requires the first frame to be auth. Any other first frame, a
// decode failure, or a bad API key gets one failure response and the
// connection is closed.
func (s *Supervisor) handshake(conn *websocket.Conn) (*Session, bool) {
	conn.SetReadDeadline(time.Now().Add(authWait))

	_, data, err := conn.ReadMessage()
	if err != nil {
		s.logger.Info("Connection closed before auth", zap.Error(err))
		return nil, false
	}

	f, err := protocol.Decode(data)
	if err != nil {
		s.metrics.DecodeErrors.Inc()
		s.failAuth(conn, "Invalid auth frame")
		return nil, false
	}
	if f.Type != protocol.TypeAuth {
		s.failAuth(conn, "First frame must be auth")
		return nil, false
	}

	auth, err := protocol.ParseAuth(f.Payload)
	if err != nil {
		s.failAuth(conn, err.Error())
		return nil, false
	}

	sess := s.registry.Create(auth.DeviceID)

	if s.apiKey != "" && auth.APIKey != s.apiKey {
		s.logger.Warn("Rejected auth with bad API key",
			zap.String("device_id", auth.DeviceID))
		s.registry.Reject(sess.ID)
		s.failAuth(conn, "Invalid API key")
		s.registry.Remove(sess.ID)
		return nil, false
	}

	s.registry.Authenticate(sess.ID, DeviceInfo{
		DeviceID:     auth.DeviceID,
		DeviceName:   auth.DeviceName,
		Version:      auth.Version,
		Capabilities: auth.Capabilities,
	})
	return sess, true
}

func (s *Supervisor) failAuth(conn *websocket.Conn, reason string) {
	encoded, err := protocol.Encode(protocol.NewFrame(
		protocol.TypeAuthResponse,
		protocol.AuthResponsePayload(false, "", reason)))
	if err != nil {
		return
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.BinaryMessage, encoded)
}

// readLoop pumps frames from the connection to the router, strictly in
// arrival order. A frame that fails to decode is dropped and the connection
// stays open; a handler failure is answered with an error frame.
func (s *Supervisor) readLoop(conn *websocket.Conn, sess *Session) {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Error("WebSocket error",
					zap.String("session_id", sess.ID),
					zap.Error(err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		if messageType != websocket.BinaryMessage {
			s.logger.Warn("Ignoring non-binary message",
				zap.String("session_id", sess.ID),
				zap.Int("ws_type", messageType))
			continue
		}

		s.metrics.FramesReceived.Inc()

		f, err := protocol.Decode(data)
		if err != nil {
			s.metrics.DecodeErrors.Inc()
			s.logger.Warn("Dropping undecodable frame",
				zap.String("session_id", sess.ID),
				zap.Error(err))
			continue
		}

		// Pings refresh the activity clock but stay out of the message
		// counters; they are keepalive traffic, not an exchange.
		if f.Type == protocol.TypePing {
			sess.Touch()
		} else {
			sess.RecordReceived()
		}

		if err := s.dispatch(sess, f); err != nil {
			s.logger.Error("Message handling error",
				zap.String("session_id", sess.ID),
				zap.Stringer("type", f.Type),
				zap.Error(err))
			s.registry.SendToSession(sess.ID, protocol.NewFrame(
				protocol.TypeError,
				protocol.ErrorPayload(fmt.Sprintf("Message error: %v", err))))
		}
	}
}

// dispatch runs one handler, converting panics into errors so a bad frame
// can never take the connection loop down.
func (s *Supervisor) dispatch(sess *Session, f protocol.Frame) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return s.router.HandleFrame(context.Background(), sess, f)
}

// writePump is the connection's single writer: it drains the session outbox
// and keeps the transport alive with ws-level pings.
func (s *Supervisor) writePump(sess *Session, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	outbox := sess.Outbox()
	for {
		select {
		case <-outbox.Ready():
			for {
				msg, ok := outbox.TryNext()
				if !ok {
					break
				}
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
					s.logger.Error("Failed to write message",
						zap.String("session_id", sess.ID),
						zap.Error(err))
					return
				}
			}
			if outbox.Closed() {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
