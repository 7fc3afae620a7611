// README: Driver handlers for lookup, location updates and availability.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"dispatch/internal/apperr"
	"dispatch/internal/http/middleware"
	"dispatch/internal/modules/driver"
	"dispatch/internal/types"
)

type DriverService interface {
	Get(ctx context.Context, id types.ID) (*driver.Driver, error)
	UpdateLocation(ctx context.Context, cmd driver.UpdateLocationCommand) (*driver.Driver, error)
	SetAvailability(ctx context.Context, cmd driver.SetAvailabilityCommand) (*driver.Driver, error)
}

type DriverHandler struct {
	drivers DriverService
}

func NewDriverHandler(svc DriverService) *DriverHandler {
	return &DriverHandler{drivers: svc}
}

type updateLocationReq struct {
	Location *types.Point `json:"location"`
}

type setStatusReq struct {
	Status string `json:"status"`
}

type driverResp struct {
	Driver *driver.Driver `json:"driver"`
}

func (h *DriverHandler) Get(c *gin.Context) {
	d, err := h.drivers.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, driverResp{Driver: d})
}

func (h *DriverHandler) UpdateLocation(c *gin.Context) {
	id := c.Param("id")
	if forbidden(c, middleware.CallerUID(c), id) {
		return
	}
	var req updateLocationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeServiceError(c, apperr.Validation("invalid json: %v", err))
		return
	}
	if req.Location == nil {
		writeServiceError(c, apperr.Validation("location is required"))
		return
	}
	d, err := h.drivers.UpdateLocation(c.Request.Context(), driver.UpdateLocationCommand{
		DriverID: types.ID(id),
		Location: *req.Location,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, driverResp{Driver: d})
}

func (h *DriverHandler) SetStatus(c *gin.Context) {
	id := c.Param("id")
	if forbidden(c, middleware.CallerUID(c), id) {
		return
	}
	var req setStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeServiceError(c, apperr.Validation("invalid json: %v", err))
		return
	}
	status, ok := driver.ParseStatus(req.Status)
	if !ok {
		writeServiceError(c, apperr.Validation("unknown status %q", req.Status))
		return
	}
	d, err := h.drivers.SetAvailability(c.Request.Context(), driver.SetAvailabilityCommand{
		DriverID: types.ID(id),
		Status:   status,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, driverResp{Driver: d})
}
