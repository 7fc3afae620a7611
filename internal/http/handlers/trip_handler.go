// README: Trip handlers for create/get/candidates/accept/complete/cancel.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"dispatch/internal/apperr"
	"dispatch/internal/http/middleware"
	"dispatch/internal/modules/matching"
	"dispatch/internal/modules/trip"
	"dispatch/internal/types"
)

type TripService interface {
	Create(ctx context.Context, cmd trip.CreateCommand) (*trip.CreateResult, error)
	Accept(ctx context.Context, cmd trip.AcceptCommand) (*trip.Trip, error)
	Get(ctx context.Context, id types.ID) (*trip.Trip, error)
	Candidates(ctx context.Context, id types.ID) ([]matching.CachedCandidate, error)
	Complete(ctx context.Context, cmd trip.CompleteCommand) (*trip.Trip, error)
	Cancel(ctx context.Context, cmd trip.CancelCommand) (*trip.Trip, error)
}

type TripHandler struct {
	trips TripService
}

func NewTripHandler(svc TripService) *TripHandler {
	return &TripHandler{trips: svc}
}

type createTripReq struct {
	CustomerID  string       `json:"customer_id"`
	Pickup      *types.Point `json:"pickup"`
	Dropoff     *types.Point `json:"dropoff"`
	VehicleType string       `json:"vehicle_type"`
}

type acceptTripReq struct {
	DriverID string `json:"driver_id"`
}

type tripResp struct {
	Trip *trip.Trip `json:"trip"`
}

func (h *TripHandler) Create(c *gin.Context) {
	var req createTripReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeServiceError(c, apperr.Validation("invalid json: %v", err))
		return
	}
	if req.CustomerID == "" || req.VehicleType == "" || req.Pickup == nil || req.Dropoff == nil {
		writeServiceError(c, apperr.Validation("customer_id, pickup, dropoff and vehicle_type are required"))
		return
	}
	if forbidden(c, middleware.CallerUID(c), req.CustomerID) {
		return
	}
	res, err := h.trips.Create(c.Request.Context(), trip.CreateCommand{
		CustomerID:   types.ID(req.CustomerID),
		Pickup:       *req.Pickup,
		Dropoff:      *req.Dropoff,
		VehicleClass: req.VehicleType,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, res)
}

func (h *TripHandler) Get(c *gin.Context) {
	t, err := h.trips.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, tripResp{Trip: t})
}

func (h *TripHandler) Candidates(c *gin.Context) {
	list, err := h.trips.Candidates(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"candidates": list})
}

func (h *TripHandler) Accept(c *gin.Context) {
	var req acceptTripReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeServiceError(c, apperr.Validation("invalid json: %v", err))
		return
	}
	if req.DriverID == "" {
		writeServiceError(c, apperr.Validation("driver_id is required"))
		return
	}
	if forbidden(c, middleware.CallerUID(c), req.DriverID) {
		return
	}
	t, err := h.trips.Accept(c.Request.Context(), trip.AcceptCommand{
		TripID:   types.ID(c.Param("id")),
		DriverID: types.ID(req.DriverID),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, tripResp{Trip: t})
}

func (h *TripHandler) Complete(c *gin.Context) {
	if !h.callerIsParty(c, false) {
		return
	}
	t, err := h.trips.Complete(c.Request.Context(), trip.CompleteCommand{TripID: types.ID(c.Param("id"))})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, tripResp{Trip: t})
}

func (h *TripHandler) Cancel(c *gin.Context) {
	if !h.callerIsParty(c, true) {
		return
	}
	t, err := h.trips.Cancel(c.Request.Context(), trip.CancelCommand{TripID: types.ID(c.Param("id"))})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, tripResp{Trip: t})
}

// callerIsParty allows an authenticated caller that is the trip's assigned
// driver, or its customer when allowCustomer is set. Unauthenticated requests
// pass through. On false the response has already been written.
func (h *TripHandler) callerIsParty(c *gin.Context, allowCustomer bool) bool {
	uid := middleware.CallerUID(c)
	if uid == "" {
		return true
	}
	t, err := h.trips.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeServiceError(c, err)
		return false
	}
	if t.DriverID != nil && string(*t.DriverID) == uid {
		return true
	}
	if allowCustomer && string(t.CustomerID) == uid {
		return true
	}
	writeError(c, http.StatusForbidden, "forbidden")
	return false
}
