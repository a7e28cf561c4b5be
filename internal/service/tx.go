package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

// txRunner runs a unit of work in one transaction and retries it a bounded
// number of times when the store reports contention.
type txRunner struct {
	db         *gorm.DB
	maxRetries int
	backoff    time.Duration
}

func newTxRunner(db *gorm.DB, maxRetries int, backoff time.Duration) *txRunner {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &txRunner{db: db, maxRetries: maxRetries, backoff: backoff}
}

// run executes fn inside a transaction bound to ctx. A cancelled ctx rolls
// the transaction back. Contention is retried; once the attempts are spent
// the last failure is returned as ErrTransientStore.
func (r *txRunner) run(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	var lastErr error
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return translate(fn(tx))
		})
		if err == nil {
			return nil
		}
		if !isTransient(err) || ctx.Err() != nil {
			return err
		}

		lastErr = err
		log.WithFields(log.Fields{
			"op":      op,
			"attempt": attempt,
			"error":   err,
		}).Warn("[Tx] contention, retrying")

		if attempt == r.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.backoff * time.Duration(attempt)):
		}
	}
	return &BizError{Kind: ErrTransientStore, Msg: op + " failed after retries, try again", Err: lastErr}
}

func isTransient(err error) bool {
	if errors.Is(err, ErrTransientStore) {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlErrDeadlock || myErr.Number == mysqlErrLockWaitTimeout
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}
