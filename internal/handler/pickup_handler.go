package handler

import (
	"net/http"

	"kitarcycle/internal/service"
	"kitarcycle/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// POST /api/v1/pickups
func (h *Handler) CreatePickup(c *gin.Context) {
	var req service.CreatePickupRequest
	if !bind(c, &req) {
		return
	}
	pickup, err := h.pickupService.Create(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, pickup)
}

// GET /api/v1/pickups/:id
func (h *Handler) GetPickup(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	pickup, err := h.pickupService.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, pickup)
}

// GET /api/v1/pickups/account/:accountId?page=&size=
func (h *Handler) ListPickups(c *gin.Context) {
	accountID, ok := pathID(c, "accountId")
	if !ok {
		return
	}
	page, size := pageParams(c)
	list, total, err := h.pickupService.ListByAccount(c.Request.Context(), accountID, page, size)
	if err != nil {
		fail(c, err)
		return
	}
	response.Page(c, list, total, page, size)
}

// POST /api/v1/pickups/:id/start
func (h *Handler) StartPickup(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	pickup, err := h.pickupService.Start(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, pickup)
}

type CompletePickupRequest struct {
	ActualWeight *decimal.Decimal `json:"actual_weight" binding:"required"`
}

// POST /api/v1/pickups/:id/weight
// Records the measured weight, completes the pickup and credits points.
func (h *Handler) CompletePickup(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req CompletePickupRequest
	if !bind(c, &req) {
		return
	}
	result, err := h.pickupService.Complete(c.Request.Context(), id, *req.ActualWeight)
	if err != nil {
		fail(c, err)
		return
	}
	data := gin.H{
		"pickup":         result.Pickup,
		"points_awarded": result.PointsAwarded,
		"tier_changed":   result.TierChanged,
	}
	if result.Account != nil {
		data["current_points"] = result.Account.CurrentPoints
		data["total_points_earned"] = result.Account.TotalPointsEarned
	}
	response.Success(c, data)
}

// GET /api/v1/pickups/:id/calculate-points?weight=
func (h *Handler) CalculatePoints(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var weight *decimal.Decimal
	if raw := c.Query("weight"); raw != "" {
		w, err := decimal.NewFromString(raw)
		if err != nil {
			response.Fail(c, http.StatusBadRequest, response.CodeValidation, "weight must be a number", nil)
			return
		}
		weight = &w
	}
	preview, err := h.pickupService.PreviewPoints(c.Request.Context(), id, weight)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, preview)
}

type ReasonRequest struct {
	Reason string `json:"reason"`
}

// POST /api/v1/pickups/:id/reject
func (h *Handler) RejectPickup(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req ReasonRequest
	if !bind(c, &req) {
		return
	}
	pickup, err := h.pickupService.Reject(c.Request.Context(), id, req.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, pickup)
}

// POST /api/v1/pickups/:id/cancel
func (h *Handler) CancelPickup(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req ReasonRequest
	if c.Request.ContentLength > 0 && !bind(c, &req) {
		return
	}
	pickup, err := h.pickupService.Cancel(c.Request.Context(), id, req.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, pickup)
}
