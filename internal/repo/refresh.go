package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Skotchmaster/eventbook/internal/models"
)

// FindRefreshToken returns nil, nil when the token is unknown.
func (r *GormRepo) FindRefreshToken(ctx context.Context, token uuid.UUID) (*models.RefreshToken, error) {
	var rt models.RefreshToken
	if err := r.conn(ctx).Where("token = ?", token).First(&rt).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return &rt, nil
}

func (r *GormRepo) AddRefreshToken(ctx context.Context, rt *models.RefreshToken) error {
	if rt.Version == 0 {
		rt.Version = 1
	}
	if err := r.conn(ctx).Create(rt).Error; err != nil {
		return fmt.Errorf("add refresh token: %w", err)
	}
	return nil
}

// UpdateRefreshToken writes the consumption flags only if nobody else changed
// the row since rt was read. On success rt.Version is advanced.
func (r *GormRepo) UpdateRefreshToken(ctx context.Context, rt *models.RefreshToken) error {
	res := r.conn(ctx).
		Model(&models.RefreshToken{}).
		Where("token = ? AND version = ?", rt.Token, rt.Version).
		Updates(map[string]any{
			"used":        rt.Used,
			"invalidated": rt.Invalidated,
			"version":     gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return fmt.Errorf("update refresh token: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConcurrentUpdate
	}

	rt.Version++
	return nil
}

// RemoveExpiredRefreshTokens deletes every token that expired before the given
// instant. It runs under a savepoint so a failure leaves an enclosing
// transaction usable.
func (r *GormRepo) RemoveExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error) {
	var removed int64
	err := r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("expiration_date < ?", before).Delete(&models.RefreshToken{})
		removed = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, fmt.Errorf("remove refresh tokens: %w", err)
	}
	return removed, nil
}
