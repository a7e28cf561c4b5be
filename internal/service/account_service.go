package service

import (
	"context"
	"net/mail"
	"strings"

	"kitarcycle/internal/config"
	"kitarcycle/internal/model"
	"kitarcycle/internal/repository"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type AccountService struct {
	db          *gorm.DB
	tx          *txRunner
	accountRepo *repository.AccountRepository
	tiers       *TierService
}

func NewAccountService(db *gorm.DB, cfg *config.Config, tiers *TierService) *AccountService {
	return &AccountService{
		db:          db,
		tx:          newTxRunner(db, cfg.Business.TxMaxRetries, cfg.Business.TxRetryBackoff),
		accountRepo: repository.NewAccountRepository(db),
		tiers:       tiers,
	}
}

type RegisterRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Register opens an account with zero balances on the default tier.
func (s *AccountService) Register(ctx context.Context, req RegisterRequest) (*model.Account, error) {
	name := strings.TrimSpace(req.Name)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if name == "" {
		return nil, validationf("name is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, validationf("email %q is not valid", req.Email)
	}

	account := &model.Account{Name: name, Email: email}
	err := s.tx.run(ctx, "register account", func(tx *gorm.DB) error {
		tier, err := s.tiers.DefaultTier(ctx, tx)
		if err != nil {
			return err
		}
		account.TierLevelID = &tier.ID
		if err := s.accountRepo.Create(ctx, tx, account); err != nil {
			return err
		}
		account.TierLevel = tier
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"account_id": account.ID, "tier_level_id": *account.TierLevelID}).Info("[AccountService] account registered")
	return account, nil
}

func (s *AccountService) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	account, err := s.accountRepo.GetByID(ctx, nil, id)
	return account, translate(err)
}
