package service

import (
	"errors"
	"fmt"

	"kitarcycle/internal/repository"
)

// Error kinds. Every error a service returns matches exactly one of these
// with errors.Is, which is what the HTTP layer maps to a status code.
var (
	ErrValidation           = errors.New("validation error")
	ErrNotFound             = errors.New("not found")
	ErrStateConflict        = errors.New("state conflict")
	ErrInsufficientResource = errors.New("insufficient resource")
	ErrConfiguration        = errors.New("configuration error")
	ErrTransientStore       = errors.New("transient store error")
	ErrNotificationDelivery = errors.New("notification delivery failed")
)

var (
	ErrEmptyCart           = &BizError{Kind: ErrStateConflict, Msg: "cart is empty"}
	ErrNoDefaultTier       = &BizError{Kind: ErrConfiguration, Msg: "no default tier level configured"}
	ErrPointsAlreadyEarned = &BizError{Kind: ErrStateConflict, Msg: "points already awarded for this pickup"}
)

// BizError carries a kind, a client-facing message and an optional cause.
type BizError struct {
	Kind error
	Msg  string
	Err  error
}

func (e *BizError) Error() string {
	if e.Err != nil && e.Err.Error() != e.Msg {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *BizError) Is(target error) bool {
	return target == e.Kind
}

func (e *BizError) Unwrap() error {
	return e.Err
}

func validationf(format string, args ...interface{}) error {
	return &BizError{Kind: ErrValidation, Msg: fmt.Sprintf(format, args...)}
}

func conflictf(format string, args ...interface{}) error {
	return &BizError{Kind: ErrStateConflict, Msg: fmt.Sprintf(format, args...)}
}

// InsufficientPointsError reports a checkout the balance cannot cover.
type InsufficientPointsError struct {
	Required  int64 `json:"required"`
	Available int64 `json:"available"`
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient points: required %d, available %d", e.Required, e.Available)
}

func (e *InsufficientPointsError) Is(target error) bool {
	return target == ErrInsufficientResource
}

// InsufficientStockError names the first reward that cannot cover its cart line.
type InsufficientStockError struct {
	RewardID   int64  `json:"reward_id"`
	RewardName string `json:"reward_name"`
	Available  int64  `json:"available"`
	Requested  int64  `json:"requested"`
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: requested %d, available %d", e.RewardName, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientResource
}

// translate maps repository sentinels onto service error kinds. Errors that
// already carry a kind, and unknown errors, pass through unchanged.
func translate(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, repository.ErrAccountNotFound),
		errors.Is(err, repository.ErrTierNotFound),
		errors.Is(err, repository.ErrPickupNotFound),
		errors.Is(err, repository.ErrCategoryNotFound),
		errors.Is(err, repository.ErrRewardNotFound),
		errors.Is(err, repository.ErrCartItemNotFound),
		errors.Is(err, repository.ErrRedemptionNotFound),
		errors.Is(err, repository.ErrNotificationNotFound):
		return &BizError{Kind: ErrNotFound, Msg: err.Error(), Err: err}
	case errors.Is(err, repository.ErrPickupStatusInvalid),
		errors.Is(err, repository.ErrEmailAlreadyUsed):
		return &BizError{Kind: ErrStateConflict, Msg: err.Error(), Err: err}
	case errors.Is(err, repository.ErrOptimisticLock),
		errors.Is(err, repository.ErrStockNotEnough),
		errors.Is(err, repository.ErrPointsNotEnough):
		// a guarded update lost a race the pre-checks could not see
		return &BizError{Kind: ErrTransientStore, Msg: err.Error(), Err: err}
	}
	return err
}
