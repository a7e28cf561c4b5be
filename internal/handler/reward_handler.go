package handler

import (
	"kitarcycle/internal/service"
	"kitarcycle/pkg/response"

	"github.com/gin-gonic/gin"
)

// ============================================================
// Reward catalog
// ============================================================

func (h *Handler) ListRewards(c *gin.Context) {
	page, size := pageParams(c)
	list, total, err := h.rewardService.List(c.Request.Context(), page, size)
	if err != nil {
		fail(c, err)
		return
	}
	response.Page(c, list, total, page, size)
}

func (h *Handler) GetReward(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	reward, err := h.rewardService.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, reward)
}

func (h *Handler) CreateReward(c *gin.Context) {
	var in service.RewardInput
	if !bind(c, &in) {
		return
	}
	reward, err := h.rewardService.Create(c.Request.Context(), in)
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, reward)
}

func (h *Handler) UpdateReward(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in service.RewardInput
	if !bind(c, &in) {
		return
	}
	reward, err := h.rewardService.Update(c.Request.Context(), id, in)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, reward)
}

func (h *Handler) DeleteReward(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.rewardService.Delete(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"id": id})
}

type RestockRequest struct {
	Quantity int64 `json:"quantity"`
}

// POST /api/v1/rewards/:id/restock
func (h *Handler) RestockReward(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req RestockRequest
	if !bind(c, &req) {
		return
	}
	reward, err := h.rewardService.Restock(c.Request.Context(), id, req.Quantity)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, reward)
}

// ============================================================
// Cart and checkout
// ============================================================

// GET /api/v1/rewards/cart-items?account_id=
func (h *Handler) ListCart(c *gin.Context) {
	accountID, ok := queryID(c, "account_id")
	if !ok {
		return
	}
	view, err := h.cartService.List(c.Request.Context(), accountID)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, view)
}

type AddCartItemRequest struct {
	AccountID int64 `json:"account_id" binding:"required"`
	RewardID  int64 `json:"reward_id" binding:"required"`
	Quantity  int64 `json:"quantity"`
}

// POST /api/v1/rewards/cart-items
func (h *Handler) AddCartItem(c *gin.Context) {
	var req AddCartItemRequest
	if !bind(c, &req) {
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	item, err := h.cartService.Add(c.Request.Context(), req.AccountID, req.RewardID, req.Quantity)
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, item)
}

type UpdateCartItemRequest struct {
	Quantity int64 `json:"quantity"`
}

// PUT /api/v1/rewards/cart-items/:id
func (h *Handler) UpdateCartItem(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req UpdateCartItemRequest
	if !bind(c, &req) {
		return
	}
	item, err := h.cartService.UpdateQuantity(c.Request.Context(), id, req.Quantity)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, item)
}

// DELETE /api/v1/rewards/cart-items/:id
func (h *Handler) RemoveCartItem(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.cartService.Remove(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"id": id})
}

type CheckoutRequest struct {
	AccountID int64 `json:"account_id" binding:"required"`
}

// POST /api/v1/rewards/checkout
func (h *Handler) Checkout(c *gin.Context) {
	var req CheckoutRequest
	if !bind(c, &req) {
		return
	}
	result, err := h.checkoutService.Checkout(c.Request.Context(), req.AccountID)
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, result)
}

// GET /api/v1/rewards/redemptions?account_id=
func (h *Handler) ListRedemptions(c *gin.Context) {
	accountID, ok := queryID(c, "account_id")
	if !ok {
		return
	}
	list, err := h.rewardService.ListRedemptions(c.Request.Context(), accountID)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, list)
}

// GET /api/v1/rewards/redemptions/:id
func (h *Handler) GetRedemption(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	redemption, err := h.rewardService.GetRedemption(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, redemption)
}
