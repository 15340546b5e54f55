package database

import (
	"context"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"
)

const (
	TxAttempts    = 3
	txRetryBase   = 50 * time.Millisecond
	errDeadlock   = 1213
	errLockWaitTO = 1205
)

// WithTxRetry runs fn in a transaction and reruns it from the start when
// MySQL aborts it with a deadlock or lock wait timeout. fn must not keep
// state across attempts other than what it reassigns.
func WithTxRetry(ctx context.Context, db *gorm.DB, attempts uint64, fn func(tx *gorm.DB) error) error {
	if attempts < 1 {
		attempts = 1
	}
	b := retry.WithMaxRetries(attempts-1, retry.NewExponential(txRetryBase))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := db.WithContext(ctx).Transaction(fn)
		if IsRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// IsRetryable reports whether err is a MySQL deadlock or lock wait timeout.
func IsRetryable(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == errDeadlock || me.Number == errLockWaitTO
	}
	return false
}
