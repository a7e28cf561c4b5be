package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"kitarcycle/internal/config"
	"kitarcycle/internal/model"
	"kitarcycle/internal/repository"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ============================================================================
// Pickup workflow
// ============================================================================
//
//   Pending ──start──▶ In Progress ──complete──▶ Completed
//      │                    │
//      ├──reject──▶ Rejected │
//      └──cancel──▶ Cancelled ◀──cancel
//
// Every transition locks the pickup row and is applied with a guarded
// UPDATE ... WHERE status = <observed>. Completion additionally credits
// points through the ledger in the same transaction. Notifications go out
// only after commit.
// ============================================================================

type PickupService struct {
	db           *gorm.DB
	cfg          *config.Config
	tx           *txRunner
	pickupRepo   *repository.PickupRepository
	categoryRepo *repository.CategoryRepository
	accountRepo  *repository.AccountRepository
	ledger       *LedgerService
	tiers        *TierService
	notifier     Notifier
}

func NewPickupService(db *gorm.DB, cfg *config.Config, ledger *LedgerService, tiers *TierService, notifier Notifier) *PickupService {
	return &PickupService{
		db:           db,
		cfg:          cfg,
		tx:           newTxRunner(db, cfg.Business.TxMaxRetries, cfg.Business.TxRetryBackoff),
		pickupRepo:   repository.NewPickupRepository(db),
		categoryRepo: repository.NewCategoryRepository(db),
		accountRepo:  repository.NewAccountRepository(db),
		ledger:       ledger,
		tiers:        tiers,
		notifier:     notifier,
	}
}

type CreatePickupRequest struct {
	AccountID       int64           `json:"account_id"`
	OrganizerID     int64           `json:"organizer_id"`
	CategoryID      int64           `json:"category_id"`
	Address         string          `json:"address"`
	EstimatedWeight decimal.Decimal `json:"estimated_weight"`
}

func (s *PickupService) Create(ctx context.Context, req CreatePickupRequest) (*model.Pickup, error) {
	address := strings.TrimSpace(req.Address)
	switch {
	case req.AccountID <= 0:
		return nil, validationf("account_id is required")
	case req.OrganizerID <= 0:
		return nil, validationf("organizer_id is required")
	case address == "":
		return nil, validationf("address is required")
	case !req.EstimatedWeight.IsPositive():
		return nil, validationf("estimated_weight must be positive")
	}

	if _, err := s.accountRepo.GetByID(ctx, nil, req.AccountID); err != nil {
		return nil, translate(err)
	}
	category, err := s.categoryRepo.GetByID(ctx, nil, req.CategoryID)
	if err != nil {
		return nil, translate(err)
	}

	pickup := &model.Pickup{
		AccountID:       req.AccountID,
		OrganizerID:     req.OrganizerID,
		CategoryID:      req.CategoryID,
		Address:         address,
		EstimatedWeight: req.EstimatedWeight.Round(weightPlaces),
		Status:          model.PickupStatusPending,
	}
	if err := s.pickupRepo.Create(ctx, nil, pickup); err != nil {
		return nil, fmt.Errorf("create pickup: %w", err)
	}
	pickup.Category = category

	s.notifier.Notify(ctx, Notice{
		Recipient: model.OrganizerRecipient(pickup.OrganizerID),
		Type:      model.NotificationTypePickupRequested,
		Title:     "New pickup request",
		Message:   fmt.Sprintf("A recycler requested a %s pickup at %s.", category.Name, pickup.Address),
		Data:      pickupData(pickup),
	})
	return pickup, nil
}

func (s *PickupService) Get(ctx context.Context, id int64) (*model.Pickup, error) {
	pickup, err := s.pickupRepo.GetByID(ctx, id)
	return pickup, translate(err)
}

func (s *PickupService) ListByAccount(ctx context.Context, accountID int64, page, pageSize int) ([]*model.Pickup, int64, error) {
	page, pageSize = normalizePage(page, pageSize)
	return s.pickupRepo.ListByAccountID(ctx, accountID, page, pageSize)
}

// Start moves a Pending pickup to In Progress.
func (s *PickupService) Start(ctx context.Context, id int64) (*model.Pickup, error) {
	pickup, err := s.transition(ctx, id, model.PickupStatusInProgress, nil)
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(ctx, Notice{
		Recipient: model.UserRecipient(pickup.AccountID),
		Type:      model.NotificationTypePickupUpdated,
		Title:     "Pickup on the way",
		Message:   "Your pickup is now in progress.",
		Data:      pickupData(pickup),
	})
	return pickup, nil
}

// Reject closes a Pending pickup. reason is required.
func (s *PickupService) Reject(ctx context.Context, id int64, reason string) (*model.Pickup, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, validationf("rejection reason is required")
	}
	pickup, err := s.transition(ctx, id, model.PickupStatusRejected, map[string]interface{}{"rejection_reason": reason})
	if err != nil {
		return nil, err
	}
	pickup.RejectionReason = reason
	s.notifier.Notify(ctx, Notice{
		Recipient: model.UserRecipient(pickup.AccountID),
		Type:      model.NotificationTypePickupUpdated,
		Title:     "Pickup rejected",
		Message:   "Your pickup was rejected: " + reason,
		Data:      pickupData(pickup),
	})
	return pickup, nil
}

// Cancel closes a Pending or In Progress pickup.
func (s *PickupService) Cancel(ctx context.Context, id int64, reason string) (*model.Pickup, error) {
	reason = strings.TrimSpace(reason)
	pickup, err := s.transition(ctx, id, model.PickupStatusCancelled, map[string]interface{}{"cancellation_reason": reason})
	if err != nil {
		return nil, err
	}
	pickup.CancellationReason = reason
	s.notifier.Notify(ctx, Notice{
		Recipient: model.OrganizerRecipient(pickup.OrganizerID),
		Type:      model.NotificationTypePickupCancelled,
		Title:     "Pickup cancelled",
		Message:   fmt.Sprintf("Pickup #%d was cancelled.", pickup.ID),
		Data:      pickupData(pickup),
	})
	return pickup, nil
}

func (s *PickupService) transition(ctx context.Context, id int64, to string, extra map[string]interface{}) (*model.Pickup, error) {
	var pickup *model.Pickup
	err := s.tx.run(ctx, "pickup to "+to, func(tx *gorm.DB) error {
		p, err := s.pickupRepo.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if !model.CanTransitionTo(p.Status, to) {
			return conflictf("pickup %d is %s and cannot become %s", id, p.Status, to)
		}
		if err := s.pickupRepo.UpdateStatus(ctx, tx, id, p.Status, to, extra); err != nil {
			return err
		}
		p.Status = to
		pickup = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"pickup_id": id, "status": to}).Info("[PickupService] status changed")
	return pickup, nil
}

type CompletionResult struct {
	Pickup        *model.Pickup     `json:"pickup"`
	PointsAwarded int64             `json:"points_awarded"`
	Entry         *model.PointEntry `json:"entry"`
	Account       *model.Account    `json:"account"`
	TierChanged   bool              `json:"tier_changed"`
}

// Complete records the actual weight of an In Progress pickup and credits
// the points, all in one transaction. The tier multiplier is the account's
// tier at completion time.
func (s *PickupService) Complete(ctx context.Context, id int64, actualWeight decimal.Decimal) (*CompletionResult, error) {
	if err := checkWeight(actualWeight); err != nil {
		return nil, err
	}
	weight := actualWeight

	var result *CompletionResult
	var tierResult *ReconcileResult
	err := s.tx.run(ctx, "complete pickup", func(tx *gorm.DB) error {
		pickup, err := s.pickupRepo.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if pickup.Status != model.PickupStatusInProgress {
			return conflictf("pickup %d is %s, only an In Progress pickup can be completed", id, pickup.Status)
		}

		category, err := s.categoryRepo.GetByID(ctx, tx, pickup.CategoryID)
		if err != nil {
			return err
		}
		account, err := s.accountRepo.GetByIDForUpdate(ctx, tx, pickup.AccountID)
		if err != nil {
			return err
		}
		multiplier, err := s.tiers.MultiplierFor(ctx, tx, account)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if err := s.pickupRepo.UpdateStatus(ctx, tx, id, pickup.Status, model.PickupStatusCompleted, map[string]interface{}{
			"actual_weight": weight,
			"completed_at":  now,
		}); err != nil {
			return err
		}
		pickup.Status = model.PickupStatusCompleted
		pickup.ActualWeight = decimal.NewNullDecimal(weight)
		pickup.CompletedAt = &now
		pickup.Category = category

		credited, err := s.ledger.AddPoints(ctx, tx, AddPointsRequest{
			AccountID:   pickup.AccountID,
			PickupID:    pickup.ID,
			OrganizerID: pickup.OrganizerID,
			Weight:      weight,
			PointsPerKg: category.PointsPerKg,
			Multiplier:  multiplier,
			Description: fmt.Sprintf("Pickup #%d: %s kg %s", pickup.ID, weight.StringFixed(2), category.Name),
		})
		if err != nil {
			return err
		}

		tierResult = credited.Tier
		result = &CompletionResult{
			Pickup:        pickup,
			PointsAwarded: credited.Entry.PointsEarned,
			Entry:         credited.Entry,
			Account:       credited.Account,
			TierChanged:   credited.Tier.Changed,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.ledger.PointsChanged(ctx)

	s.notifier.Notify(ctx, Notice{
		Recipient: model.UserRecipient(result.Pickup.AccountID),
		Type:      model.NotificationTypePointsEarned,
		Title:     "Pickup completed",
		Message:   fmt.Sprintf("You earned %d points for %s kg.", result.PointsAwarded, weight.StringFixed(2)),
		Data: map[string]interface{}{
			"pickup_id":      result.Pickup.ID,
			"points_earned":  result.PointsAwarded,
			"current_points": result.Account.CurrentPoints,
		},
	})
	if tierResult.Changed {
		s.notifier.Notify(ctx, tierChangedNotice(result.Pickup.AccountID, tierResult))
	}
	return result, nil
}

type PointsPreview struct {
	PickupID    int64           `json:"pickup_id"`
	Weight      decimal.Decimal `json:"weight"`
	PointsPerKg decimal.Decimal `json:"points_per_kg"`
	Multiplier  decimal.Decimal `json:"multiplier"`
	Points      int64           `json:"points"`
}

// PreviewPoints computes what a pickup would earn right now without writing
// anything. A nil weight uses the recorded actual weight, or the estimate.
func (s *PickupService) PreviewPoints(ctx context.Context, id int64, weight *decimal.Decimal) (*PointsPreview, error) {
	pickup, err := s.pickupRepo.GetByID(ctx, id)
	if err != nil {
		return nil, translate(err)
	}

	w := pickup.EstimatedWeight
	switch {
	case weight != nil:
		w = *weight
	case pickup.ActualWeight.Valid:
		w = pickup.ActualWeight.Decimal
	}

	category := pickup.Category
	if category == nil {
		if category, err = s.categoryRepo.GetByID(ctx, nil, pickup.CategoryID); err != nil {
			return nil, translate(err)
		}
	}
	account, err := s.accountRepo.GetByID(ctx, nil, pickup.AccountID)
	if err != nil {
		return nil, translate(err)
	}
	multiplier, err := s.tiers.MultiplierFor(ctx, nil, account)
	if err != nil {
		return nil, err
	}

	points, err := CalculatePoints(w, category.PointsPerKg, multiplier)
	if err != nil {
		return nil, err
	}
	return &PointsPreview{
		PickupID:    pickup.ID,
		Weight:      w,
		PointsPerKg: category.PointsPerKg,
		Multiplier:  multiplier,
		Points:      points,
	}, nil
}

func pickupData(p *model.Pickup) map[string]interface{} {
	return map[string]interface{}{
		"pickup_id":    p.ID,
		"account_id":   p.AccountID,
		"organizer_id": p.OrganizerID,
		"status":       p.Status,
	}
}
