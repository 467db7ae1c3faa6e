package repo

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Skotchmaster/eventbook/internal/models"
)

func (r *GormRepo) GetPageElements(ctx context.Context) ([]models.PageElement, error) {
	var items []models.PageElement
	if err := r.conn(ctx).Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *GormRepo) GetPageElement(ctx context.Context, id uuid.UUID) (*models.PageElement, error) {
	var el models.PageElement
	if err := r.conn(ctx).Where("id = ?", id).First(&el).Error; err != nil {
		return nil, err
	}
	return &el, nil
}

// CreatePageElement reports an id collision as gorm.ErrDuplicatedKey on every driver.
func (r *GormRepo) CreatePageElement(ctx context.Context, el *models.PageElement) error {
	err := r.conn(ctx).Create(el).Error
	if err == nil || errors.Is(err, gorm.ErrDuplicatedKey) {
		return err
	}
	var n int64
	if r.conn(ctx).Model(&models.PageElement{}).Where("id = ?", el.ID).Count(&n).Error == nil && n > 0 {
		return gorm.ErrDuplicatedKey
	}
	return err
}

func (r *GormRepo) UpdatePageElement(ctx context.Context, el *models.PageElement) error {
	res := r.conn(ctx).
		Model(&models.PageElement{}).
		Where("id = ?", el.ID).
		Updates(map[string]any{"content": el.Content, "classname": el.Classname})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *GormRepo) DeletePageElement(ctx context.Context, id uuid.UUID) error {
	res := r.conn(ctx).Where("id = ?", id).Delete(&models.PageElement{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SearchPageElements is a case-insensitive substring match over content and classname.
func (r *GormRepo) SearchPageElements(ctx context.Context, q string, offset, limit int) (int64, []models.PageElement, error) {
	pattern := "%" + strings.ToLower(q) + "%"
	where := "LOWER(content) LIKE ? OR LOWER(classname) LIKE ?"

	var total int64
	if err := r.conn(ctx).
		Model(&models.PageElement{}).
		Where(where, pattern, pattern).
		Count(&total).Error; err != nil {
		return 0, nil, err
	}

	items := make([]models.PageElement, 0, limit)
	if err := r.conn(ctx).
		Model(&models.PageElement{}).
		Where(where, pattern, pattern).
		Order("classname ASC").
		Offset(offset).
		Limit(limit).
		Find(&items).Error; err != nil {
		return 0, nil, err
	}

	return total, items, nil
}
