package httpserver

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chaz8081/govee-light/internal/ble"
	"github.com/chaz8081/govee-light/internal/ble/protocol"
	"github.com/chaz8081/govee-light/internal/color"
	"github.com/chaz8081/govee-light/internal/metrics"
)

// Request outcomes recorded in metrics.
const (
	resultOK      = "ok"
	resultInvalid = "invalid"
	resultFailed  = "failed"
)

// LightHandler turns HTTP requests into frames and submits them through a
// ble.Sender. It never writes to the link directly.
type LightHandler struct {
	sender  ble.Sender
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewLightHandler creates a handler submitting frames to sender.
func NewLightHandler(sender ble.Sender, logger *zap.Logger, m *metrics.Metrics) *LightHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LightHandler{sender: sender, logger: logger, metrics: m}
}

// SetColor handles GET /light/:hex.
func (h *LightHandler) SetColor(c *gin.Context) {
	raw := c.Param("hex")
	rgb, err := color.Parse(raw)
	if err != nil {
		h.reject(c, "invalid_color", err)
		return
	}

	if !h.send(c, protocol.SetColor(rgb.R, rgb.G, rgb.B)) {
		return
	}
	h.logger.Info("color set", zap.String("color", rgb.Hex()), zap.String(requestIDKey, c.GetString(requestIDKey)))
	c.String(http.StatusOK, "Color set")
}

// SetPower handles GET /power/:state where state is "on" or "off".
func (h *LightHandler) SetPower(c *gin.Context) {
	var on bool
	switch state := strings.ToLower(c.Param("state")); state {
	case "on":
		on = true
	case "off":
	default:
		h.reject(c, "invalid_power_state", errors.New(`state must be "on" or "off"`))
		return
	}

	if !h.send(c, protocol.SetPower(on)) {
		return
	}
	if on {
		c.String(http.StatusOK, "Power on")
		return
	}
	c.String(http.StatusOK, "Power off")
}

// SetBrightness handles GET /brightness/:level with level a percentage.
func (h *LightHandler) SetBrightness(c *gin.Context) {
	pct, err := strconv.Atoi(c.Param("level"))
	if err != nil || pct < 0 || pct > 100 {
		h.reject(c, "invalid_brightness", errors.New("level must be an integer from 0 to 100"))
		return
	}

	if !h.send(c, protocol.SetBrightness(scalePercent(pct))) {
		return
	}
	c.String(http.StatusOK, "Brightness set")
}

func (h *LightHandler) reject(c *gin.Context, code string, err error) {
	h.metrics.ObserveRequest(resultInvalid)
	c.JSON(http.StatusBadRequest, gin.H{"error": code, "message": err.Error()})
}

// send submits frame and writes the error response on failure.
func (h *LightHandler) send(c *gin.Context, frame protocol.Frame) bool {
	err := h.sender.Send(c.Request.Context(), frame)
	if err == nil {
		h.metrics.ObserveRequest(resultOK)
		return true
	}

	h.metrics.ObserveRequest(resultFailed)
	h.logger.Warn("frame not sent",
		zap.Stringer("command", frame.Command()),
		zap.String(requestIDKey, c.GetString(requestIDKey)),
		zap.Error(err),
	)
	if errors.Is(err, ble.ErrGatewayClosed) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "unavailable", "message": err.Error()})
		return false
	}
	c.JSON(http.StatusBadGateway, gin.H{"error": "write_failed", "message": err.Error()})
	return false
}

// scalePercent maps 0-100 onto the light's 0-255 brightness range.
func scalePercent(pct int) uint8 {
	return uint8((pct*255 + 50) / 100)
}
