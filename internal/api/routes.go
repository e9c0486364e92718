package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mininerva/openclaw-cardputer/domain/repositories"
	"github.com/mininerva/openclaw-cardputer/internal/auth"
	"github.com/mininerva/openclaw-cardputer/internal/gateway"
	"github.com/mininerva/openclaw-cardputer/internal/protocol"
)

// Handlers bundles everything the HTTP surface needs. Tokens may be nil, in
// which case the push endpoint is open.
type Handlers struct {
	Registry   *gateway.Registry
	Supervisor *gateway.Supervisor
	STT        repositories.SpeechToText
	Tokens     *auth.TokenService
	Version    string
	Logger     *zap.Logger
}

// InitRoutes initializes all API routes.
func InitRoutes(e *echo.Echo, h *Handlers) {
	e.GET("/health", h.health)
	e.GET("/devices", h.listDevices)
	e.GET("/devices/:device_id", h.deviceStats)
	e.POST("/devices/:device_id/message", h.pushMessage)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Device WebSocket endpoint; devices authenticate in-band with their
	// first frame, not with a JWT.
	e.GET("/ws", h.Supervisor.HandleConnection)
}

func (h *Handlers) health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:           "ok",
		Version:          h.Version,
		ConnectedDevices: len(h.Registry.ActiveSessions()),
		STTAvailable:     h.STT.Available(),
	})
}

func (h *Handlers) listDevices(c echo.Context) error {
	devices := h.Registry.ActiveSessions()
	return c.JSON(http.StatusOK, DevicesResponse{
		Count:   len(devices),
		Devices: devices,
	})
}

func (h *Handlers) deviceStats(c echo.Context) error {
	deviceID := c.Param("device_id")
	sess, ok := h.Registry.GetByDevice(deviceID)
	if !ok {
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "device_not_connected",
			Message: "No session for device " + deviceID,
		})
	}
	return c.JSON(http.StatusOK, sess.Info())
}

// pushMessage queues a server-initiated message for a connected device. With
// a token service configured the caller must present an admin bearer token.
func (h *Handlers) pushMessage(c echo.Context) error {
	if h.Tokens != nil {
		if ok, err := h.requireAdmin(c); !ok {
			return err
		}
	}

	deviceID := c.Param("device_id")

	var req PushMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}
	if strings.TrimSpace(req.Message) == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "Message is required",
		})
	}

	if _, ok := h.Registry.GetByDevice(deviceID); !ok {
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "device_not_connected",
			Message: "No session for device " + deviceID,
		})
	}

	if !h.Registry.SendToDevice(deviceID, protocol.ResponseFrame(req.Message, true)) {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "queue_full",
			Message: "Device send queue is full",
		})
	}

	h.Logger.Info("Pushed message to device",
		zap.String("device_id", deviceID),
		zap.Int("length", len(req.Message)))
	return c.JSON(http.StatusOK, PushMessageResponse{
		Status:   "sent",
		DeviceID: deviceID,
	})
}

// requireAdmin reports whether the request carries a valid admin token. On
// failure the rejection response has already been written.
func (h *Handlers) requireAdmin(c echo.Context) (bool, error) {
	header := c.Request().Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return false, c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_token",
			Message: "Admin token is required in Authorization header",
		})
	}

	claims, err := h.Tokens.ValidateToken(strings.TrimPrefix(header, "Bearer "))
	if err != nil {
		h.Logger.Warn("Rejected push with invalid token", zap.Error(err))
		return false, c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired token",
		})
	}
	if claims.Role != auth.RoleAdmin {
		return false, c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "invalid_role",
			Message: "Only admin tokens may push messages",
		})
	}
	return true, nil
}
