package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/unitedbyai/droidclaw/internal/api/middleware"
	"github.com/unitedbyai/droidclaw/internal/device"
	"github.com/unitedbyai/droidclaw/internal/logger"
	"github.com/unitedbyai/droidclaw/internal/models"
	"github.com/unitedbyai/droidclaw/internal/wire"
	"github.com/unitedbyai/droidclaw/pkg/types"
)

// DeviceListQueries is the subset of queries used by the device handler.
type DeviceListQueries interface {
	ListDevices(ctx context.Context, accountID string) ([]models.Device, error)
}

type DeviceHandler struct {
	queries  DeviceListQueries
	registry *device.Registry
}

func NewDeviceHandler(queries DeviceListQueries, registry *device.Registry) *DeviceHandler {
	return &DeviceHandler{queries: queries, registry: registry}
}

// ListDevices returns every device known to the account. Persisted rows are
// the base; live registry state overrides them, which keeps battery and
// presence current between heartbeat persistence writes.
// GET /v1/devices
func (h *DeviceHandler) ListDevices(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	rows, err := h.queries.ListDevices(c.Request.Context(), userID)
	if err != nil {
		logger.Errorf("[api] list devices: %v", err)
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "failed to list devices"})
		return
	}

	live := make(map[string]device.Snapshot)
	for _, snap := range h.registry.Snapshots(userID) {
		live[snap.DeviceID] = snap
	}

	response := make([]types.DeviceResponse, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		seen[row.ID] = true
		resp := types.DeviceResponse{
			ID:           row.ID,
			Model:        row.Model,
			Manufacturer: row.Manufacturer,
			Online:       row.Online,
			BatteryLevel: row.BatteryLevel,
			IsCharging:   row.IsCharging,
			LastSeenAt:   row.LastSeenAt,
		}
		if snap, ok := live[row.ID]; ok {
			resp.Online = snap.Online
			if snap.BatteryLevel >= 0 {
				resp.BatteryLevel = snap.BatteryLevel
				resp.IsCharging = snap.IsCharging
			}
			resp.LastSeenAt = snap.LastSeen
		}
		response = append(response, resp)
	}

	// Connections the store has not caught up with yet.
	for id, snap := range live {
		if seen[id] {
			continue
		}
		battery := snap.BatteryLevel
		if battery < 0 {
			battery = 0
		}
		response = append(response, types.DeviceResponse{
			ID:           id,
			Model:        snap.Model,
			Manufacturer: snap.Manufacturer,
			Online:       snap.Online,
			BatteryLevel: battery,
			IsCharging:   snap.IsCharging,
			LastSeenAt:   snap.LastSeen,
		})
	}

	c.JSON(http.StatusOK, response)
}

// GetDeviceApps returns the cached installed-app inventory for a device.
// GET /v1/devices/:deviceId/apps
func (h *DeviceHandler) GetDeviceApps(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	deviceID := c.Param("deviceId")

	conn := h.registry.LookupByPersistentID(deviceID)
	if conn == nil || conn.UserID() != userID {
		c.JSON(http.StatusNotFound, types.ErrorResponse{Error: "device not found"})
		return
	}

	apps := conn.Apps()
	if apps == nil {
		apps = []wire.AppInfo{}
	}
	c.JSON(http.StatusOK, apps)
}
