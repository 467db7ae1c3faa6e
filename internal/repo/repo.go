package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var ErrConcurrentUpdate = errors.New("record was modified concurrently")

type GormRepo struct {
	DB     *gorm.DB
	Policy PasswordPolicy
}

func New(db *gorm.DB, policy PasswordPolicy) *GormRepo {
	return &GormRepo{DB: db, Policy: policy}
}

type txKey struct{}

// InTx runs fn in one transaction. Repo calls made with the ctx handed to fn
// join it; an InTx inside another reuses the outer transaction.
func (r *GormRepo) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// conn is the transaction carried by ctx, or the shared handle.
func (r *GormRepo) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return r.DB.WithContext(ctx)
}
