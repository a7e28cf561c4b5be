package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"kitarcycle/internal/config"
	"kitarcycle/internal/model"
	"kitarcycle/internal/service"
	"kitarcycle/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Handler holds every service the HTTP surface calls.
type Handler struct {
	accountService      *service.AccountService
	ledgerService       *service.LedgerService
	tierService         *service.TierService
	pickupService       *service.PickupService
	rewardService       *service.RewardService
	cartService         *service.CartService
	checkoutService     *service.CheckoutService
	notificationService *service.NotificationService
}

func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config, notifier service.Notifier) *Handler {
	if notifier == nil {
		notifier = service.NopNotifier{}
	}
	tiers := service.NewTierService(db, rdb, cfg, notifier)
	ledger := service.NewLedgerService(db, rdb, cfg, tiers)
	return &Handler{
		accountService:      service.NewAccountService(db, cfg, tiers),
		ledgerService:       ledger,
		tierService:         tiers,
		pickupService:       service.NewPickupService(db, cfg, ledger, tiers, notifier),
		rewardService:       service.NewRewardService(db),
		cartService:         service.NewCartService(db),
		checkoutService:     service.NewCheckoutService(db, rdb, cfg, notifier),
		notificationService: service.NewNotificationService(db),
	}
}

// fail maps a service error onto the response envelope.
func fail(c *gin.Context, err error) {
	var (
		points *service.InsufficientPointsError
		stock  *service.InsufficientStockError
	)
	switch {
	case errors.As(err, &points):
		response.Fail(c, http.StatusUnprocessableEntity, response.CodeInsufficient, err.Error(), points)
	case errors.As(err, &stock):
		response.Fail(c, http.StatusUnprocessableEntity, response.CodeInsufficient, err.Error(), stock)
	case errors.Is(err, service.ErrValidation):
		response.Fail(c, http.StatusBadRequest, response.CodeValidation, err.Error(), nil)
	case errors.Is(err, service.ErrNotFound):
		response.Fail(c, http.StatusNotFound, response.CodeResourceGone, err.Error(), nil)
	case errors.Is(err, service.ErrStateConflict):
		response.Fail(c, http.StatusConflict, response.CodeStateConflict, err.Error(), nil)
	case errors.Is(err, service.ErrInsufficientResource):
		response.Fail(c, http.StatusUnprocessableEntity, response.CodeInsufficient, err.Error(), nil)
	case errors.Is(err, service.ErrConfiguration):
		log.WithField("request_id", c.GetString("request_id")).WithError(err).Error("[HTTP] configuration error")
		response.Fail(c, http.StatusInternalServerError, response.CodeConfiguration, err.Error(), nil)
	case errors.Is(err, service.ErrTransientStore), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		response.Fail(c, http.StatusServiceUnavailable, response.CodeTransient, "service busy, please retry", nil)
	default:
		log.WithField("request_id", c.GetString("request_id")).WithError(err).Error("[HTTP] unhandled error")
		response.ServerError(c, "internal server error")
	}
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.Fail(c, http.StatusBadRequest, response.CodeValidation, name+" must be a positive integer", nil)
		return 0, false
	}
	return id, true
}

func queryID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Query(name), 10, 64)
	if err != nil || id <= 0 {
		response.Fail(c, http.StatusBadRequest, response.CodeValidation, name+" must be a positive integer", nil)
		return 0, false
	}
	return id, true
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	return page, size
}

func bind(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.Fail(c, http.StatusBadRequest, response.CodeValidation, "invalid request body: "+err.Error(), nil)
		return false
	}
	return true
}

// ============================================================
// Accounts
// ============================================================

// POST /api/v1/accounts
func (h *Handler) Register(c *gin.Context) {
	var req service.RegisterRequest
	if !bind(c, &req) {
		return
	}
	account, err := h.accountService.Register(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, account)
}

// GET /api/v1/accounts/:id
func (h *Handler) GetAccount(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	account, err := h.accountService.GetAccount(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, account)
}

// ============================================================
// Points
// ============================================================

// GET /api/v1/points/:accountId/current
func (h *Handler) CurrentPoints(c *gin.Context) {
	id, ok := pathID(c, "accountId")
	if !ok {
		return
	}
	summary, err := h.ledgerService.Current(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, summary)
}

// GET /api/v1/points/leaderboard?limit=
func (h *Handler) Leaderboard(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	board, err := h.ledgerService.TopAccounts(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, board)
}

// GET /api/v1/points/monthly/:accountId?month=YYYY-MM
func (h *Handler) MonthlyPoints(c *gin.Context) {
	id, ok := pathID(c, "accountId")
	if !ok {
		return
	}
	month := c.Query("month")
	total, err := h.ledgerService.MonthlyEarned(c.Request.Context(), id, month)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"account_id":    id,
		"month":         month,
		"points_earned": total,
	})
}

// GET /api/v1/points/history/:accountId
func (h *Handler) PointsHistory(c *gin.Context) {
	id, ok := pathID(c, "accountId")
	if !ok {
		return
	}
	items, err := h.ledgerService.UnifiedHistory(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, items)
}

// GET /api/v1/points/transactions/:accountId?page=&size=
func (h *Handler) PointTransactions(c *gin.Context) {
	id, ok := pathID(c, "accountId")
	if !ok {
		return
	}
	page, size := pageParams(c)
	entries, total, err := h.ledgerService.History(c.Request.Context(), id, page, size)
	if err != nil {
		fail(c, err)
		return
	}
	response.Page(c, entries, total, page, size)
}

// ============================================================
// Tier levels
// ============================================================

func (h *Handler) ListTiers(c *gin.Context) {
	tiers, err := h.tierService.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, tiers)
}

func (h *Handler) GetTier(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	tier, err := h.tierService.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, tier)
}

func (h *Handler) CreateTier(c *gin.Context) {
	var in service.TierInput
	if !bind(c, &in) {
		return
	}
	tier, err := h.tierService.Create(c.Request.Context(), in)
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, tier)
}

func (h *Handler) UpdateTier(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in service.TierInput
	if !bind(c, &in) {
		return
	}
	tier, err := h.tierService.Update(c.Request.Context(), id, in)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, tier)
}

func (h *Handler) DeleteTier(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.tierService.Delete(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"id": id})
}

// POST /api/v1/tier-levels/assign/:accountId
func (h *Handler) AssignTier(c *gin.Context) {
	id, ok := pathID(c, "accountId")
	if !ok {
		return
	}
	result, err := h.tierService.Assign(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"account_id": id,
		"tier_level": result.Tier,
		"changed":    result.Changed,
	})
}

// ============================================================
// Notifications
// ============================================================

func recipient(c *gin.Context) (model.Recipient, bool) {
	kind := model.RecipientKind(c.DefaultQuery("recipient_kind", string(model.RecipientUser)))
	id, err := strconv.ParseInt(c.Query("recipient_id"), 10, 64)
	if !kind.Valid() || err != nil || id <= 0 {
		response.Fail(c, http.StatusBadRequest, response.CodeValidation, "recipient_kind (user|organizer) and a positive recipient_id are required", nil)
		return model.Recipient{}, false
	}
	return model.Recipient{Kind: kind, ID: id}, true
}

// GET /api/v1/notifications?recipient_kind=&recipient_id=&page=&size=
func (h *Handler) ListNotifications(c *gin.Context) {
	r, ok := recipient(c)
	if !ok {
		return
	}
	page, size := pageParams(c)
	list, total, err := h.notificationService.List(c.Request.Context(), r, page, size)
	if err != nil {
		fail(c, err)
		return
	}
	response.Page(c, list, total, page, size)
}

func (h *Handler) UnreadCount(c *gin.Context) {
	r, ok := recipient(c)
	if !ok {
		return
	}
	count, err := h.notificationService.UnreadCount(c.Request.Context(), r)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"unread": count})
}

func (h *Handler) MarkNotificationRead(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	r, ok := recipient(c)
	if !ok {
		return
	}
	if err := h.notificationService.MarkRead(c.Request.Context(), r, id); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"id": id, "is_read": true})
}

func (h *Handler) MarkAllNotificationsRead(c *gin.Context) {
	r, ok := recipient(c)
	if !ok {
		return
	}
	n, err := h.notificationService.MarkAllRead(c.Request.Context(), r)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"updated": n})
}

type FcmTokenRequest struct {
	Token      string `json:"token" binding:"required"`
	DeviceType string `json:"device_type"`
}

func (h *Handler) RegisterFcmToken(c *gin.Context) {
	r, ok := recipient(c)
	if !ok {
		return
	}
	var req FcmTokenRequest
	if !bind(c, &req) {
		return
	}
	if err := h.notificationService.RegisterToken(c.Request.Context(), r, req.Token, req.DeviceType); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"registered": true})
}

func (h *Handler) RemoveFcmToken(c *gin.Context) {
	r, ok := recipient(c)
	if !ok {
		return
	}
	var req FcmTokenRequest
	if !bind(c, &req) {
		return
	}
	if err := h.notificationService.RemoveToken(c.Request.Context(), r, req.Token); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"removed": true})
}
