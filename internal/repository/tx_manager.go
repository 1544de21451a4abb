package repository

import (
	"context"

	"gorm.io/gorm"
)

type contextKey string

const txKey contextKey = "gorm_tx"

// TransactionManager runs work inside one database transaction carried by the context.
type TransactionManager interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

type transactionManager struct {
	db *gorm.DB
}

func NewTransactionManager(db *gorm.DB) TransactionManager {
	return &transactionManager{db: db}
}

// RunInTx commits when fn returns nil and rolls back otherwise. A call made while a
// transaction is already in ctx joins it instead of opening a new one.
func (t *transactionManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if InTx(ctx) {
		return fn(ctx)
	}
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey, tx))
	})
}

// InTx reports whether ctx carries a transaction.
func InTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey).(*gorm.DB)
	return ok
}

// GetDB returns the transaction in ctx if present, otherwise the root DB.
func GetDB(ctx context.Context, rootDB *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return rootDB.WithContext(ctx)
}

// Page converts a 1-based page and limit into an offset.
func Page(page, limit int) (offset, size int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	return (page - 1) * limit, limit
}
