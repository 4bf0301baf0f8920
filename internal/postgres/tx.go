// Package postgres holds the transaction plumbing shared by every
// transactional operation: a commit/rollback wrapper and a bounded retry for
// transient lock conflicts.
package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// Transient lock-conflict SQLSTATE codes. Classification is by code, never by
// message text.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

// InTx runs fn inside a transaction, committing on nil and rolling back on
// error. Row locks taken by fn are released at commit/rollback.
func InTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

// IsTransient reports whether err is a lock conflict worth retrying
// (deadlock, serialization failure, lock wait timeout). Business rejections
// and not-found conditions are never transient.
func IsTransient(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch string(pqErr.Code) {
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
		return true
	}
	return false
}

// Retry runs fn up to attempts times, stopping at the first result that is
// nil or not transient.
func Retry(ctx context.Context, attempts int, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		err = fn()
		if err == nil || !IsTransient(err) {
			return err
		}
	}
	return err
}

// RetryInTx is Retry over InTx: the whole transactional sequence re-runs from
// the top on a transient conflict.
func RetryInTx(ctx context.Context, db *sql.DB, attempts int, fn func(tx *sql.Tx) error) error {
	return Retry(ctx, attempts, func() error {
		return InTx(ctx, db, fn)
	})
}
